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
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/gorse-io/taste/base/log"
	"github.com/gorse-io/taste/common/parallel"
	"github.com/gorse-io/taste/common/util"
	"github.com/gorse-io/taste/config"
	"github.com/gorse-io/taste/dataset"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const LabelEvaluator = "evaluator"

var TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "taste",
	Subsystem: "evaluator",
	Name:      "tasks_total",
}, []string{LabelEvaluator})

// EstimateStats summarizes the time spent in tasks.
type EstimateStats struct {
	Count int
	Total time.Duration
	Max   time.Duration
}

func (s EstimateStats) Add(elapsed time.Duration) EstimateStats {
	return EstimateStats{
		Count: s.Count + 1,
		Total: s.Total + elapsed,
		Max:   max(s.Max, elapsed),
	}
}

// Merge combines the stats of disjoint sets of tasks.
func (s EstimateStats) Merge(other EstimateStats) EstimateStats {
	return EstimateStats{
		Count: s.Count + other.Count,
		Total: s.Total + other.Total,
		Max:   max(s.Max, other.Max),
	}
}

func (s EstimateStats) Average() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

func (s EstimateStats) String() string {
	return fmt.Sprintf("tasks: %d, average: %v, max: %v", s.Count, s.Average(), s.Max)
}

// Evaluation is the result of comparing estimated preferences to held out preferences.
type Evaluation struct {
	Name  string
	Score float64
	// Successful counts estimated preferences, NotFound the preferences whose user or
	// item is missing from the training data and NoEstimate those with no estimate.
	Successful          int
	NotFound            int
	NoEstimate          int
	TrainingUsers       int
	TrainingPreferences int
	TestUsers           int
	TestPreferences     int
	Stats               EstimateStats
}

// Options are shared by all evaluators.
type Options struct {
	// Executor runs tasks. Defaults to a pool with one worker per CPU.
	Executor parallel.Executor
	// Rng drives sampling and splitting. Required.
	Rng *rand.Rand
	// Progress is called after each task if not nil.
	Progress func(done, total int)
}

func (o Options) validate() error {
	if o.Rng == nil {
		return errors.NotValidf("nil random source")
	}
	return nil
}

func (o Options) executor() parallel.Executor {
	if o.Executor == nil {
		return parallel.NewPoolExecutor(0, 0)
	}
	return o.Executor
}

// NewOptions creates options from configuration.
func NewOptions(cfg config.EvaluatorConfig) Options {
	var executor parallel.Executor
	if cfg.NumJobs == 1 {
		executor = parallel.NewSequentialExecutor()
	} else {
		executor = parallel.NewPoolExecutor(cfg.NumJobs, cfg.Timeout)
	}
	return Options{
		Executor: executor,
		Rng:      util.NewRand(cfg.Seed),
	}
}

func checkPercentage(name string, value float64) error {
	if math.IsNaN(value) || value <= 0 || value > 1 {
		return errors.NotValidf("%s %v", name, value)
	}
	return nil
}

// run executes one task per job and reports progress. Results are written by the
// tasks to their own slots so no locking is needed.
func run(ctx context.Context, name string, o Options, nJobs int, task func(ctx context.Context, jobId int) error) error {
	done := atomic.NewInt64(0)
	start := time.Now()
	err := o.executor().Execute(ctx, nJobs, func(ctx context.Context, jobId int) error {
		if err := task(ctx, jobId); err != nil {
			return errors.Trace(err)
		}
		TasksTotal.WithLabelValues(name).Inc()
		n := done.Inc()
		if n%1000 == 0 {
			log.Logger().Info("evaluation in progress",
				zap.String("evaluator", name),
				zap.Int64("done", n),
				zap.Int("total", nJobs),
				zap.Duration("elapsed", time.Since(start)))
		}
		if o.Progress != nil {
			o.Progress(int(n), nJobs)
		}
		return nil
	})
	return errors.Trace(err)
}

// split divides the preferences of the sampled users into a training model and test
// preferences.
func split(model dataset.DataModel, rng *rand.Rand, trainingPercentage, evaluationPercentage float64) (*dataset.GenericDataModel, []*dataset.UserPreferences, error) {
	var training, test []*dataset.UserPreferences
	for _, userID := range model.UserIDs() {
		if rng.Float64() >= evaluationPercentage {
			continue
		}
		prefs, err := model.PreferencesFromUser(userID)
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		userTraining := dataset.NewUserPreferences(userID)
		userTest := dataset.NewUserPreferences(userID)
		for i := 0; i < prefs.Len(); i++ {
			if rng.Float64() < trainingPercentage {
				userTraining.Add(prefs.ItemID(i), prefs.Value(i))
			} else {
				userTest.Add(prefs.ItemID(i), prefs.Value(i))
			}
		}
		if userTraining.Len() > 0 {
			training = append(training, userTraining)
		}
		if userTest.Len() > 0 {
			test = append(test, userTest)
		}
	}
	trainingModel, err := dataset.NewGenericDataModelFromUsers(training)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	return trainingModel, test, nil
}
