// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package evaluate

import (
	"context"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/gorse-io/taste/base/log"
	"github.com/gorse-io/taste/common/parallel"
	"github.com/gorse-io/taste/common/stats"
	"github.com/gorse-io/taste/recommend"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// LoadStatistics describe the latency of recommend calls in milliseconds.
type LoadStatistics struct {
	Users   int
	Average float64
	StdDev  float64
	Stats   EstimateStats
}

// LoadEvaluator measures how fast a recommender serves a sample of users.
type LoadEvaluator struct {
	options Options
	limiter parallel.RateLimiter
}

// NewLoadEvaluator creates a load evaluator issuing at most requestsPerSecond requests.
// Non-positive requestsPerSecond means unlimited.
func NewLoadEvaluator(options Options, requestsPerSecond int) *LoadEvaluator {
	return &LoadEvaluator{
		options: options,
		limiter: parallel.NewRateLimiter(requestsPerSecond),
	}
}

// Evaluate requests howMany recommendations for about numUsers sampled users, after one
// warm up request.
func (e *LoadEvaluator) Evaluate(ctx context.Context, recommender recommend.Recommender, numUsers, howMany int) (*LoadStatistics, error) {
	if numUsers < 1 || howMany < 1 {
		return nil, errors.NotValidf("%d users with %d recommendations", numUsers, howMany)
	}
	if err := e.options.validate(); err != nil {
		return nil, err
	}
	if recommender == nil {
		return nil, errors.NotValidf("nil recommender")
	}
	userIDs := recommender.DataModel().UserIDs()
	if len(userIDs) == 0 {
		return &LoadStatistics{}, nil
	}
	rate := float64(numUsers) / float64(len(userIDs))
	sampled := bitset.New(uint(len(userIDs)))
	for i := range userIDs {
		if e.options.Rng.Float64() < rate {
			sampled.Set(uint(i))
		}
	}
	users := make([]int64, 0, sampled.Count())
	for i, ok := sampled.NextSet(0); ok; i, ok = sampled.NextSet(i + 1) {
		users = append(users, userIDs[i])
	}
	if len(users) == 0 {
		return &LoadStatistics{}, nil
	}
	// warm up
	if _, err := recommender.Recommend(users[0], howMany); err != nil {
		return nil, errors.Trace(err)
	}

	elapsed := make([]time.Duration, len(users))
	err := run(ctx, "load", e.options, len(users), func(ctx context.Context, jobId int) error {
		e.limiter.Wait(1)
		start := time.Now()
		if _, err := recommender.Recommend(users[jobId], howMany); err != nil {
			return errors.Trace(err)
		}
		elapsed[jobId] = time.Since(start)
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	timing := stats.NewRunningAverageAndStdDev()
	result := &LoadStatistics{Users: len(users)}
	for _, d := range elapsed {
		timing.AddDatum(float64(d.Microseconds()) / 1000)
		result.Stats = result.Stats.Add(d)
	}
	result.Average = timing.Average()
	result.StdDev = timing.StandardDeviation()
	log.Logger().Info("evaluation complete",
		zap.String("evaluator", "load"),
		zap.Int("users", result.Users),
		zap.Float64("average_ms", result.Average),
		zap.Float64("stddev_ms", result.StdDev),
		zap.Stringer("stats", result.Stats))
	return result, nil
}
