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
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/taste/base/log"
	"github.com/gorse-io/taste/common/stats"
	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/recommend"
	"github.com/gorse-io/taste/recommend/topitems"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// IRStatistics are information retrieval measures of the top recommendations.
type IRStatistics struct {
	Precision float64
	Recall    float64
	FallOut   float64
	NDCG      float64
	// Reach is the share of evaluated users who got at least one recommendation.
	Reach float64
	Users int
	Stats EstimateStats
}

// F1 is the harmonic mean of precision and recall.
func (s *IRStatistics) F1() float64 {
	return s.FN(1)
}

// FN weights recall n times as much as precision.
func (s *IRStatistics) FN(n float64) float64 {
	n2 := n * n
	sum := n2*s.Precision + s.Recall
	if sum == 0 {
		return math.NaN()
	}
	return (1 + n2) * s.Precision * s.Recall / sum
}

func (s *IRStatistics) String() string {
	return fmt.Sprintf("IRStatistics[precision:%g, recall:%g, fallOut:%g, nDCG:%g, reach:%g]",
		s.Precision, s.Recall, s.FallOut, s.NDCG, s.Reach)
}

// IRStatsEvaluator holds out the most preferred items of each user and checks how many
// of them come back among the top recommendations.
type IRStatsEvaluator struct {
	options Options
}

func NewIRStatsEvaluator(options Options) *IRStatsEvaluator {
	return &IRStatsEvaluator{options: options}
}

type irResult struct {
	evaluated      bool
	recommended    int
	intersection   int
	relevant       int
	size           int
	idealizedGain  float64
	cumulativeGain float64
	elapsed        time.Duration
}

// Evaluate computes statistics at the cutoff at. Items preferred at least
// relevanceThreshold are relevant. A NaN threshold is chosen per user as the mean plus
// one standard deviation of the preferences of the user.
func (e *IRStatsEvaluator) Evaluate(ctx context.Context, builder recommend.Builder, model dataset.DataModel,
	rescorer topitems.IDRescorer, at int, relevanceThreshold, evaluationPercentage float64) (*IRStatistics, error) {
	if at < 1 {
		return nil, errors.NotValidf("cutoff %d", at)
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
	var users []int64
	for _, userID := range model.UserIDs() {
		if e.options.Rng.Float64() < evaluationPercentage {
			users = append(users, userID)
		}
	}
	numItems := model.NumItems()

	results := make([]irResult, len(users))
	err := run(ctx, "irstats", e.options, len(users), func(ctx context.Context, jobId int) error {
		start := time.Now()
		userID := users[jobId]
		prefs, err := model.PreferencesFromUser(userID)
		if err != nil {
			return errors.Trace(err)
		}
		threshold := relevanceThreshold
		if math.IsNaN(threshold) {
			threshold = computeThreshold(prefs)
		}
		relevant := relevantItems(prefs, at, threshold)
		if relevant.Cardinality() == 0 {
			return nil
		}
		trainingModel, err := excludeItems(model, userID, relevant)
		if err != nil {
			return errors.Trace(err)
		}
		trainingItems, err := trainingModel.ItemIDsFromUser(userID)
		if errors.Is(err, errors.NotFound) {
			// every preference of the user is relevant
			return nil
		} else if err != nil {
			return errors.Trace(err)
		}
		size := relevant.Cardinality() + len(trainingItems)
		if size < 2*at {
			// too few preferences to evaluate the user
			return nil
		}
		recommender, err := builder(ctx, trainingModel)
		if err != nil {
			return errors.Trace(err)
		}
		items, err := recommender.Recommend(userID, at, recommend.WithRescorer(rescorer))
		if err != nil {
			return errors.Trace(err)
		}

		result := irResult{
			evaluated:   true,
			recommended: len(items),
			relevant:    relevant.Cardinality(),
			size:        size,
		}
		for i, item := range items {
			discount := 1 / math.Log2(float64(i)+2)
			if relevant.Contains(item.ItemID) {
				result.intersection++
				result.cumulativeGain += discount
			}
			// the ideal ranking puts every relevant item first
			if i < result.relevant {
				result.idealizedGain += discount
			}
		}
		result.elapsed = time.Since(start)
		results[jobId] = result
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	precision, recall := stats.NewRunningAverage(), stats.NewRunningAverage()
	fallOut, nDCG := stats.NewRunningAverage(), stats.NewRunningAverage()
	statistics := &IRStatistics{}
	withRecommendations := 0
	for _, result := range results {
		if !result.evaluated {
			continue
		}
		statistics.Users++
		statistics.Stats = statistics.Stats.Add(result.elapsed)
		if result.recommended > 0 {
			precision.AddDatum(float64(result.intersection) / float64(result.recommended))
			withRecommendations++
		}
		recall.AddDatum(float64(result.intersection) / float64(result.relevant))
		if result.relevant < result.size && numItems > result.relevant {
			fallOut.AddDatum(float64(result.recommended-result.intersection) / float64(numItems-result.relevant))
		}
		if result.idealizedGain > 0 {
			nDCG.AddDatum(result.cumulativeGain / result.idealizedGain)
		}
	}
	statistics.Precision = precision.Average()
	statistics.Recall = recall.Average()
	statistics.FallOut = fallOut.Average()
	statistics.NDCG = nDCG.Average()
	statistics.Reach = math.NaN()
	if statistics.Users > 0 {
		statistics.Reach = float64(withRecommendations) / float64(statistics.Users)
	}
	log.Logger().Info("evaluation complete",
		zap.String("evaluator", "irstats"),
		zap.Int("users", statistics.Users),
		zap.Float64("precision", statistics.Precision),
		zap.Float64("recall", statistics.Recall),
		zap.Float64("fall_out", statistics.FallOut),
		zap.Float64("ndcg", statistics.NDCG),
		zap.Float64("reach", statistics.Reach),
		zap.Stringer("stats", statistics.Stats))
	return statistics, nil
}

// computeThreshold returns the mean plus one standard deviation, or -Inf for fewer than
// two preferences so every item is relevant.
func computeThreshold(prefs *dataset.UserPreferences) float64 {
	if prefs.Len() < 2 {
		return math.Inf(-1)
	}
	stdDev := stats.NewRunningAverageAndStdDev()
	for _, value := range prefs.Values() {
		stdDev.AddDatum(float64(value))
	}
	return stdDev.Average() + stdDev.StandardDeviation()
}

// relevantItems returns up to at most preferred items reaching the threshold.
func relevantItems(prefs *dataset.UserPreferences, at int, threshold float64) mapset.Set[int64] {
	sorted := prefs.Clone()
	sorted.SortByValueReversed()
	relevant := mapset.NewThreadUnsafeSet[int64]()
	for i := 0; i < sorted.Len() && relevant.Cardinality() < at; i++ {
		if float64(sorted.Value(i)) >= threshold {
			relevant.Add(sorted.ItemID(i))
		}
	}
	return relevant
}

// excludeItems copies the model without the preferences of a user for the given items.
func excludeItems(model dataset.DataModel, userID int64, excluded mapset.Set[int64]) (*dataset.GenericDataModel, error) {
	userIDs := model.UserIDs()
	users := make([]*dataset.UserPreferences, 0, len(userIDs))
	for _, otherID := range userIDs {
		prefs, err := model.PreferencesFromUser(otherID)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if otherID != userID {
			users = append(users, prefs)
			continue
		}
		kept := dataset.NewUserPreferences(userID)
		for i := 0; i < prefs.Len(); i++ {
			if !excluded.Contains(prefs.ItemID(i)) {
				kept.Add(prefs.ItemID(i), prefs.Value(i))
			}
		}
		if kept.Len() > 0 {
			users = append(users, kept)
		}
	}
	return dataset.NewGenericDataModelFromUsers(users)
}
