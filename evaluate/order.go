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
	"math"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/taste/base/log"
	"github.com/gorse-io/taste/common/stats"
	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/recommend"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// OrderStatistics compare the top recommendations of two recommenders.
type OrderStatistics struct {
	// Users is the number of users with at least two items recommended by both.
	Users int
	// Overlap is the mean share of the top items recommended by both.
	Overlap float64
	// Spearman is the mean rank correlation of the items recommended by both.
	Spearman float64
	Stats    EstimateStats
}

// OrderEvaluator compares the order in which two recommenders rank items.
type OrderEvaluator struct {
	options Options
}

func NewOrderEvaluator(options Options) *OrderEvaluator {
	return &OrderEvaluator{options: options}
}

type orderResult struct {
	compared bool
	overlap  float64
	spearman float64
	elapsed  time.Duration
}

// Evaluate requests samples recommendations from both recommenders for every user of
// the first one.
func (e *OrderEvaluator) Evaluate(ctx context.Context, recommender1, recommender2 recommend.Recommender, samples int) (*OrderStatistics, error) {
	if samples < 2 {
		return nil, errors.NotValidf("%d samples", samples)
	}
	if recommender1 == nil || recommender2 == nil {
		return nil, errors.NotValidf("nil recommender")
	}
	users := recommender1.DataModel().UserIDs()
	results := make([]orderResult, len(users))
	err := run(ctx, "order", e.options, len(users), func(ctx context.Context, jobId int) error {
		start := time.Now()
		items1, err := recommender1.Recommend(users[jobId], samples)
		if err != nil {
			return errors.Trace(err)
		}
		items2, err := recommender2.Recommend(users[jobId], samples)
		if err != nil {
			return errors.Trace(err)
		}
		common1, common2 := commonItems(items1, items2)
		if len(common1) < 2 {
			return nil
		}
		results[jobId] = orderResult{
			compared: true,
			overlap:  float64(len(common1)) / float64(samples),
			spearman: rankCorrelation(common1, common2),
			elapsed:  time.Since(start),
		}
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	overlap, spearman := stats.NewRunningAverage(), stats.NewRunningAverage()
	result := &OrderStatistics{}
	for _, r := range results {
		if !r.compared {
			continue
		}
		result.Users++
		overlap.AddDatum(r.overlap)
		spearman.AddDatum(r.spearman)
		result.Stats = result.Stats.Add(r.elapsed)
	}
	result.Overlap = overlap.Average()
	result.Spearman = spearman.Average()
	log.Logger().Info("evaluation complete",
		zap.String("evaluator", "order"),
		zap.Int("users", result.Users),
		zap.Float64("overlap", result.Overlap),
		zap.Float64("spearman", result.Spearman))
	return result, nil
}

// commonItems returns the items in both lists, in the order of each list.
func commonItems(items1, items2 []dataset.RecommendedItem) ([]int64, []int64) {
	in1 := mapset.NewThreadUnsafeSetWithSize[int64](len(items1))
	for _, item := range items1 {
		in1.Add(item.ItemID)
	}
	in2 := mapset.NewThreadUnsafeSetWithSize[int64](len(items2))
	var common2 []int64
	for _, item := range items2 {
		in2.Add(item.ItemID)
		if in1.Contains(item.ItemID) {
			common2 = append(common2, item.ItemID)
		}
	}
	var common1 []int64
	for _, item := range items1 {
		if in2.Contains(item.ItemID) {
			common1 = append(common1, item.ItemID)
		}
	}
	return common1, common2
}

// rankCorrelation is the Spearman correlation of two orderings of the same items.
func rankCorrelation(order1, order2 []int64) float64 {
	n := len(order1)
	if n < 2 {
		return math.NaN()
	}
	rank2 := make(map[int64]int, n)
	for i, id := range order2 {
		rank2[id] = i
	}
	var sumSquares float64
	for i, id := range order1 {
		d := float64(i - rank2[id])
		sumSquares += d * d
	}
	return 1 - 6*sumSquares/float64(n*(n*n-1))
}
