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
	"testing"
	"testing/synctest"
	"time"

	"github.com/chewxy/math32"
	"github.com/gorse-io/taste/common/parallel"
	"github.com/gorse-io/taste/common/util"
	"github.com/gorse-io/taste/config"
	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/recommend"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func ratingModel() *dataset.GenericDataModel {
	var prefs []dataset.Preference
	for userID := int64(1); userID <= 5; userID++ {
		for itemID := int64(1); itemID <= 6; itemID++ {
			prefs = append(prefs, dataset.Preference{UserID: userID, ItemID: itemID, Value: float32(userID*itemID%5 + 1)})
		}
	}
	return lo.Must(dataset.NewGenericDataModel(prefs))
}

// constantRecommender estimates every preference as the same value, except for user 4
// which gets no estimate.
type constantRecommender struct {
	recommend.Recommender
	model dataset.DataModel
	value float32
}

func (r *constantRecommender) EstimatePreference(userID, itemID int64) (float32, error) {
	if _, err := r.model.PreferencesFromUser(userID); err != nil {
		return math32.NaN(), err
	}
	if userID == 4 {
		return math32.NaN(), nil
	}
	return r.value, nil
}

func (r *constantRecommender) DataModel() dataset.DataModel {
	return r.model
}

func sequentialOptions(seed int64) Options {
	return Options{Executor: parallel.NewSequentialExecutor(), Rng: util.NewRand(seed)}
}

func TestEstimateStats(t *testing.T) {
	a := EstimateStats{}.Add(time.Second).Add(3 * time.Second)
	b := EstimateStats{}.Add(2 * time.Second)
	merged := a.Merge(b)
	assert.Equal(t, 3, merged.Count)
	assert.Equal(t, 6*time.Second, merged.Total)
	assert.Equal(t, 3*time.Second, merged.Max)
	assert.Equal(t, 2*time.Second, merged.Average())
	assert.Equal(t, merged, b.Merge(a))
	assert.Zero(t, EstimateStats{}.Average())
}

func TestDifferenceEvaluator(t *testing.T) {
	model := ratingModel()
	for name, newEvaluator := range map[string]func(Options) *DifferenceEvaluator{
		"rmse": NewRMSEvaluator,
		"mae":  NewAverageAbsoluteDifferenceEvaluator,
	} {
		t.Run(name, func(t *testing.T) {
			var training dataset.DataModel
			builder := func(_ context.Context, model dataset.DataModel) (recommend.Recommender, error) {
				training = model
				return &constantRecommender{model: model, value: 3}, nil
			}
			evaluation, err := newEvaluator(sequentialOptions(0)).Evaluate(context.Background(), builder, model, 0.7, 1)
			assert.NoError(t, err)

			// replay the split
			var sum float64
			var successful, notFound, noEstimate, test int
			for _, userID := range model.UserIDs() {
				prefs := lo.Must(model.PreferencesFromUser(userID))
				for i := 0; i < prefs.Len(); i++ {
					value, err := training.PreferenceValue(userID, prefs.ItemID(i))
					if err == nil && !math32.IsNaN(value) {
						continue
					}
					test++
					if err != nil {
						notFound++
					} else if userID == 4 {
						noEstimate++
					} else {
						diff := 3 - float64(prefs.Value(i))
						if name == "rmse" {
							sum += diff * diff
						} else {
							sum += math.Abs(diff)
						}
						successful++
					}
				}
			}
			assert.Positive(t, test)
			assert.Equal(t, test, evaluation.TestPreferences)
			assert.Equal(t, successful, evaluation.Successful)
			assert.Equal(t, notFound, evaluation.NotFound)
			assert.Equal(t, noEstimate, evaluation.NoEstimate)
			assert.Equal(t, 30-test, evaluation.TrainingPreferences)
			assert.Equal(t, training.NumUsers(), evaluation.TrainingUsers)
			if name == "rmse" {
				assert.InDelta(t, math.Sqrt(sum/float64(successful)), evaluation.Score, 1e-6)
			} else {
				assert.InDelta(t, sum/float64(successful), evaluation.Score, 1e-6)
			}
		})
	}
}

func TestDifferenceEvaluator_Parallel(t *testing.T) {
	model := ratingModel()
	cfg := config.GetDefaultConfig()
	cfg.Recommender.Type = config.ItemUserAverage
	cfg.Recommender.CandidateStrategy = config.AllUnknownItems
	builder := recommend.NewBuilder(cfg, nil)
	expected, err := NewRMSEvaluator(sequentialOptions(1)).Evaluate(context.Background(), builder, model, 0.8, 1)
	assert.NoError(t, err)
	actual, err := NewRMSEvaluator(Options{Executor: parallel.NewPoolExecutor(4, time.Minute), Rng: util.NewRand(1)}).
		Evaluate(context.Background(), builder, model, 0.8, 1)
	assert.NoError(t, err)
	assert.InDelta(t, expected.Score, actual.Score, 1e-6)
	assert.Equal(t, expected.Successful, actual.Successful)
	assert.Equal(t, expected.TestUsers, actual.Stats.Count)
}

func TestDifferenceEvaluator_Errors(t *testing.T) {
	model := ratingModel()
	builder := func(_ context.Context, model dataset.DataModel) (recommend.Recommender, error) {
		return &constantRecommender{model: model, value: 3}, nil
	}
	evaluator := NewRMSEvaluator(sequentialOptions(0))
	_, err := evaluator.Evaluate(context.Background(), builder, model, 0, 1)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = evaluator.Evaluate(context.Background(), builder, model, 0.5, 1.5)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = NewRMSEvaluator(Options{}).Evaluate(context.Background(), builder, model, 0.5, 1)
	assert.True(t, errors.Is(err, errors.NotValid))

	_, err = evaluator.Evaluate(context.Background(), func(context.Context, dataset.DataModel) (recommend.Recommender, error) {
		return nil, errors.New("build failed")
	}, model, 0.5, 1)
	assert.EqualError(t, err, "build failed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = evaluator.Evaluate(ctx, builder, model, 0.5, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

type slowRecommender struct {
	*constantRecommender
	delay time.Duration
}

func (r *slowRecommender) EstimatePreference(userID, itemID int64) (float32, error) {
	time.Sleep(r.delay)
	return r.constantRecommender.EstimatePreference(userID, itemID)
}

func TestDifferenceEvaluator_Timeout(t *testing.T) {
	var prefs []dataset.Preference
	for itemID := int64(1); itemID <= 200; itemID++ {
		prefs = append(prefs, dataset.Preference{UserID: 1, ItemID: itemID, Value: float32(itemID%5 + 1)})
	}
	model := lo.Must(dataset.NewGenericDataModel(prefs))
	builder := func(_ context.Context, model dataset.DataModel) (recommend.Recommender, error) {
		return &slowRecommender{
			constantRecommender: &constantRecommender{model: model, value: 3},
			delay:               20 * time.Millisecond,
		}, nil
	}
	synctest.Test(t, func(t *testing.T) {
		evaluator := NewRMSEvaluator(Options{Executor: parallel.NewPoolExecutor(2, 50*time.Millisecond), Rng: util.NewRand(0)})
		start := time.Now()
		_, err := evaluator.Evaluate(context.Background(), builder, model, 0.1, 1)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		// the estimate in flight at the deadline finishes, then the task stops
		assert.Equal(t, 60*time.Millisecond, time.Since(start))
	})
}

func TestNewOptions(t *testing.T) {
	cfg := config.GetDefaultConfig().Evaluator
	cfg.NumJobs = 1
	options := NewOptions(cfg)
	assert.IsType(t, &parallel.SequentialExecutor{}, options.Executor)
	assert.NotNil(t, options.Rng)
	cfg.NumJobs = 4
	options = NewOptions(cfg)
	assert.Equal(t, 4, options.Executor.(*parallel.PoolExecutor).Workers())
}
