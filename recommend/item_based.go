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

package recommend

import (
	"math"
	"slices"

	"github.com/chewxy/math32"
	"github.com/gorse-io/taste/common/stats"
	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/recommend/topitems"
	"github.com/gorse-io/taste/similarity"
	"github.com/juju/errors"
	"go.uber.org/atomic"
)

// GenericItemBasedRecommender estimates a preference as the similarity weighted average
// of the preferences of a user for similar items.
type GenericItemBasedRecommender struct {
	baseRecommender
	similarity  similarity.ItemSimilarity
	mostSimilar MostSimilarItemsCandidateItemsStrategy
	capper      atomic.Pointer[EstimatedPreferenceCapper]
	boolean     bool
}

// NewGenericItemBasedRecommender creates an item-based recommender. Nil strategies
// default to the preferred items neighborhood.
func NewGenericItemBasedRecommender(model dataset.DataModel, similarity similarity.ItemSimilarity,
	candidates CandidateItemsStrategy, mostSimilar MostSimilarItemsCandidateItemsStrategy) (*GenericItemBasedRecommender, error) {
	return newItemBasedRecommender(model, similarity, candidates, mostSimilar, false)
}

// NewGenericBooleanPrefItemBasedRecommender scores an item by the sum of its
// similarities to the items of a user. The score ranks items but is not a preference
// estimate, so it is never capped.
func NewGenericBooleanPrefItemBasedRecommender(model dataset.DataModel, similarity similarity.ItemSimilarity,
	candidates CandidateItemsStrategy, mostSimilar MostSimilarItemsCandidateItemsStrategy) (*GenericItemBasedRecommender, error) {
	return newItemBasedRecommender(model, similarity, candidates, mostSimilar, true)
}

func newItemBasedRecommender(model dataset.DataModel, similarity similarity.ItemSimilarity,
	candidates CandidateItemsStrategy, mostSimilar MostSimilarItemsCandidateItemsStrategy, boolean bool) (*GenericItemBasedRecommender, error) {
	if similarity == nil {
		return nil, errors.NotValidf("nil item similarity")
	}
	base, err := newBaseRecommender(model, candidates)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if mostSimilar == nil {
		mostSimilar = NewPreferredItemsNeighborhoodStrategy()
	}
	r := &GenericItemBasedRecommender{
		baseRecommender: base,
		similarity:      similarity,
		mostSimilar:     mostSimilar,
		boolean:         boolean,
	}
	r.capper.Store(NewEstimatedPreferenceCapper(model))
	return r, nil
}

func (r *GenericItemBasedRecommender) Recommend(userID int64, howMany int, opts ...Option) ([]dataset.RecommendedItem, error) {
	if err := checkHowMany(howMany); err != nil {
		return nil, err
	}
	o := newOptions(opts...)
	prefs, err := r.model.PreferencesFromUser(userID)
	if errors.Is(err, errors.NotFound) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	if prefs.Len() == 0 {
		return nil, nil
	}
	candidates, err := r.candidates.CandidateItems(userID, prefs, r.model, o.includeKnownItems)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return topitems.TopItems(howMany, slices.Values(candidates), o.rescorer, func(itemID int64) (float64, error) {
		estimate, err := r.doEstimate(prefs, itemID)
		return float64(estimate), err
	})
}

func (r *GenericItemBasedRecommender) EstimatePreference(userID, itemID int64) (float32, error) {
	prefs, err := r.model.PreferencesFromUser(userID)
	if err != nil {
		return math32.NaN(), errors.Trace(err)
	}
	if i := prefs.Search(itemID); i >= 0 {
		return prefs.Value(i), nil
	}
	return r.doEstimate(prefs, itemID)
}

func (r *GenericItemBasedRecommender) doEstimate(prefs *dataset.UserPreferences, itemID int64) (float32, error) {
	similarities, err := r.similarity.ItemSimilarities(itemID, prefs.IDs())
	if err != nil {
		return math32.NaN(), errors.Trace(err)
	}
	var preference, totalSimilarity float64
	count := 0
	for i, sim := range similarities {
		if math.IsNaN(sim) {
			continue
		}
		if r.boolean {
			totalSimilarity += sim
		} else {
			// weights can be negative
			preference += sim * float64(prefs.Value(i))
			totalSimilarity += sim
		}
		count++
	}
	if r.boolean {
		if count == 0 {
			return math32.NaN(), nil
		}
		return float32(totalSimilarity), nil
	}
	// A single similar item would just echo its own preference.
	if count <= 1 {
		return math32.NaN(), nil
	}
	return r.capper.Load().CapEstimate(float32(preference / totalSimilarity)), nil
}

// MostSimilarItems returns the items most similar to an item. The rescorer sees pairs of
// (item, candidate).
func (r *GenericItemBasedRecommender) MostSimilarItems(itemID int64, howMany int, rescorer topitems.PairRescorer) ([]dataset.RecommendedItem, error) {
	if err := checkHowMany(howMany); err != nil {
		return nil, err
	}
	return r.mostSimilarItems([]int64{itemID}, howMany, func(candidate int64) (float64, error) {
		pair := dataset.NewLongPair(itemID, candidate)
		if rescorer != nil && rescorer.IsFiltered(pair) {
			return math.NaN(), nil
		}
		sim, err := r.similarity.ItemSimilarity(itemID, candidate)
		if err != nil {
			return math.NaN(), errors.Trace(err)
		}
		if rescorer != nil {
			sim = rescorer.Rescore(pair, sim)
		}
		return sim, nil
	})
}

// MostSimilarItemsMulti ranks items by their average similarity to the seed items. If
// excludeIfNotSimilarToAll is set, items without a similarity to some seed are dropped.
func (r *GenericItemBasedRecommender) MostSimilarItemsMulti(itemIDs []int64, howMany int, rescorer topitems.PairRescorer,
	excludeIfNotSimilarToAll bool) ([]dataset.RecommendedItem, error) {
	if err := checkHowMany(howMany); err != nil {
		return nil, err
	}
	if len(itemIDs) == 0 {
		return nil, errors.NotValidf("empty seed items")
	}
	return r.mostSimilarItems(itemIDs, howMany, func(candidate int64) (float64, error) {
		similarities, err := r.similarity.ItemSimilarities(candidate, itemIDs)
		if err != nil {
			return math.NaN(), errors.Trace(err)
		}
		average := stats.NewRunningAverage()
		for i, seed := range itemIDs {
			pair := dataset.NewLongPair(seed, candidate)
			if rescorer != nil && rescorer.IsFiltered(pair) {
				continue
			}
			sim := similarities[i]
			if rescorer != nil {
				sim = rescorer.Rescore(pair, sim)
			}
			if excludeIfNotSimilarToAll || !math.IsNaN(sim) {
				average.AddDatum(sim)
			}
		}
		if average.Average() == 0 {
			return math.NaN(), nil
		}
		return average.Average(), nil
	})
}

func (r *GenericItemBasedRecommender) mostSimilarItems(itemIDs []int64, howMany int, estimator topitems.Estimator[int64]) ([]dataset.RecommendedItem, error) {
	candidates, err := r.mostSimilar.CandidateItemsForItems(itemIDs, r.model)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return topitems.TopItems(howMany, slices.Values(candidates), nil, estimator)
}

// RecommendedBecause returns the items of a user that contribute most to recommending
// an item, scored by (1 + similarity) * preference.
func (r *GenericItemBasedRecommender) RecommendedBecause(userID, itemID int64, howMany int) ([]dataset.RecommendedItem, error) {
	if err := checkHowMany(howMany); err != nil {
		return nil, err
	}
	prefs, err := r.model.PreferencesFromUser(userID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	candidates := make([]int64, 0, prefs.Len())
	for _, id := range prefs.IDs() {
		if id != itemID {
			candidates = append(candidates, id)
		}
	}
	return topitems.TopItems(howMany, slices.Values(candidates), nil, func(candidate int64) (float64, error) {
		i := prefs.Search(candidate)
		if i < 0 {
			return math.NaN(), nil
		}
		sim, err := r.similarity.ItemSimilarity(itemID, candidate)
		if err != nil {
			return math.NaN(), errors.Trace(err)
		}
		return (1 + sim) * float64(prefs.Value(i)), nil
	})
}

func (r *GenericItemBasedRecommender) Refresh() {
	r.similarity.Refresh()
	r.model.Refresh()
	r.capper.Store(NewEstimatedPreferenceCapper(r.model))
}
