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

	"github.com/chewxy/math32"
	"github.com/gorse-io/taste/base/log"
	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/recommend"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// DifferenceEvaluator scores a recommender by how far its estimates are from held out
// preferences.
type DifferenceEvaluator struct {
	name string
	// diff maps an estimate and the actual preference to the value averaged.
	diff func(estimate, actual float64) float64
	// final maps the average to the score.
	final   func(average float64) float64
	options Options
}

// NewRMSEvaluator scores by root mean square error.
func NewRMSEvaluator(options Options) *DifferenceEvaluator {
	return &DifferenceEvaluator{
		name: "rmse",
		diff: func(estimate, actual float64) float64 {
			return (estimate - actual) * (estimate - actual)
		},
		final:   math.Sqrt,
		options: options,
	}
}

// NewAverageAbsoluteDifferenceEvaluator scores by mean absolute error.
func NewAverageAbsoluteDifferenceEvaluator(options Options) *DifferenceEvaluator {
	return &DifferenceEvaluator{
		name: "mae",
		diff: func(estimate, actual float64) float64 {
			return math.Abs(estimate - actual)
		},
		final:   func(average float64) float64 { return average },
		options: options,
	}
}

type differenceResult struct {
	sum        float64
	successful int
	notFound   int
	noEstimate int
	elapsed    time.Duration
}

// Evaluate trains a recommender on a trainingPercentage share of the preferences of an
// evaluationPercentage share of users and estimates the rest. Estimates are capped into
// the preference range of the full model.
func (e *DifferenceEvaluator) Evaluate(ctx context.Context, builder recommend.Builder, model dataset.DataModel,
	trainingPercentage, evaluationPercentage float64) (*Evaluation, error) {
	if err := checkPercentage("training percentage", trainingPercentage); err != nil {
		return nil, err
	}
	if err := checkPercentage("evaluation percentage", evaluationPercentage); err != nil {
		return nil, err
	}
	if err := e.options.validate(); err != nil {
		return nil, err
	}
	if builder == nil || model == nil {
		return nil, errors.NotValidf("nil builder or model")
	}
	trainingModel, test, err := split(model, e.options.Rng, trainingPercentage, evaluationPercentage)
	if err != nil {
		return nil, errors.Trace(err)
	}
	recommender, err := builder(ctx, trainingModel)
	if err != nil {
		return nil, errors.Trace(err)
	}
	lower, upper := model.MinPreference(), model.MaxPreference()

	results := make([]differenceResult, len(test))
	err = run(ctx, e.name, e.options, len(test), func(ctx context.Context, jobId int) error {
		start := time.Now()
		prefs := test[jobId]
		result := &results[jobId]
		for i := 0; i < prefs.Len(); i++ {
			if err := ctx.Err(); err != nil {
				return errors.Trace(err)
			}
			estimate, err := recommender.EstimatePreference(prefs.UserID(), prefs.ItemID(i))
			if errors.Is(err, errors.NotFound) {
				log.Logger().Info("user or item exists in test data but not training data",
					zap.Int64("user_id", prefs.UserID()), zap.Int64("item_id", prefs.ItemID(i)))
				result.notFound++
				continue
			} else if err != nil {
				return errors.Trace(err)
			}
			if math32.IsNaN(estimate) {
				result.noEstimate++
				continue
			}
			if estimate > upper {
				estimate = upper
			} else if estimate < lower {
				estimate = lower
			}
			result.sum += e.diff(float64(estimate), float64(prefs.Value(i)))
			result.successful++
		}
		result.elapsed = time.Since(start)
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	evaluation := &Evaluation{
		Name:                e.name,
		TrainingUsers:       trainingModel.NumUsers(),
		TrainingPreferences: countPreferences(trainingModel),
		TestUsers:           len(test),
	}
	var sum float64
	for i, result := range results {
		sum += result.sum
		evaluation.Successful += result.successful
		evaluation.NotFound += result.notFound
		evaluation.NoEstimate += result.noEstimate
		evaluation.TestPreferences += test[i].Len()
		evaluation.Stats = evaluation.Stats.Add(result.elapsed)
	}
	if evaluation.Successful > 0 {
		evaluation.Score = e.final(sum / float64(evaluation.Successful))
	} else {
		evaluation.Score = math.NaN()
	}
	log.Logger().Info("evaluation complete",
		zap.String("evaluator", e.name),
		zap.Float64("score", evaluation.Score),
		zap.Int("successful", evaluation.Successful),
		zap.Int("not_found", evaluation.NotFound),
		zap.Int("no_estimate", evaluation.NoEstimate),
		zap.Stringer("stats", evaluation.Stats))
	return evaluation, nil
}

func countPreferences(model dataset.DataModel) int {
	n := 0
	for _, userID := range model.UserIDs() {
		if prefs, err := model.PreferencesFromUser(userID); err == nil {
			n += prefs.Len()
		}
	}
	return n
}
