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
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/neighborhood"
	"github.com/gorse-io/taste/recommend/topitems"
	"github.com/gorse-io/taste/similarity"
	"github.com/juju/errors"
	"go.uber.org/atomic"
)

// GenericUserBasedRecommender estimates a preference as the similarity weighted average
// of the preferences of the neighbors of a user.
type GenericUserBasedRecommender struct {
	baseRecommender
	neighborhood neighborhood.UserNeighborhood
	similarity   similarity.UserSimilarity
	capper       atomic.Pointer[EstimatedPreferenceCapper]
	// estimate combines neighbor preferences for one item.
	estimate func(r *GenericUserBasedRecommender, userID int64, neighbors []int64, itemID int64) (float32, error)
}

func NewGenericUserBasedRecommender(model dataset.DataModel, neighborhood neighborhood.UserNeighborhood,
	similarity similarity.UserSimilarity) (*GenericUserBasedRecommender, error) {
	return newUserBasedRecommender(model, neighborhood, similarity, (*GenericUserBasedRecommender).weightedAverage)
}

// NewGenericBooleanPrefUserBasedRecommender scores an item by the sum of similarities
// of the neighbors having a preference for it. The score ranks items but is not a
// preference estimate, so it is never capped.
func NewGenericBooleanPrefUserBasedRecommender(model dataset.DataModel, neighborhood neighborhood.UserNeighborhood,
	similarity similarity.UserSimilarity) (*GenericUserBasedRecommender, error) {
	return newUserBasedRecommender(model, neighborhood, similarity, (*GenericUserBasedRecommender).similaritySum)
}

func newUserBasedRecommender(model dataset.DataModel, neighborhood neighborhood.UserNeighborhood, similarity similarity.UserSimilarity,
	estimate func(*GenericUserBasedRecommender, int64, []int64, int64) (float32, error)) (*GenericUserBasedRecommender, error) {
	if neighborhood == nil || similarity == nil {
		return nil, errors.NotValidf("nil neighborhood or similarity")
	}
	base, err := newBaseRecommender(model, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	r := &GenericUserBasedRecommender{
		baseRecommender: base,
		neighborhood:    neighborhood,
		similarity:      similarity,
		estimate:        estimate,
	}
	r.capper.Store(NewEstimatedPreferenceCapper(model))
	return r, nil
}

func (r *GenericUserBasedRecommender) Recommend(userID int64, howMany int, opts ...Option) ([]dataset.RecommendedItem, error) {
	if err := checkHowMany(howMany); err != nil {
		return nil, err
	}
	o := newOptions(opts...)
	neighbors, err := r.neighborhood.UserNeighborhood(userID)
	if errors.Is(err, errors.NotFound) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	if len(neighbors) == 0 {
		return nil, nil
	}
	candidates, err := r.otherItems(userID, neighbors, o.includeKnownItems)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return topitems.TopItems(howMany, slices.Values(candidates), o.rescorer, func(itemID int64) (float64, error) {
		estimate, err := r.estimate(r, userID, neighbors, itemID)
		return float64(estimate), err
	})
}

func (r *GenericUserBasedRecommender) EstimatePreference(userID, itemID int64) (float32, error) {
	value, ok, err := storedPreference(r.model, userID, itemID)
	if err != nil || ok {
		return value, err
	}
	neighbors, err := r.neighborhood.UserNeighborhood(userID)
	if err != nil {
		return math32.NaN(), errors.Trace(err)
	}
	return r.estimate(r, userID, neighbors, itemID)
}

// MostSimilarUserIDs returns the users most similar to a user. The rescorer sees pairs of
// (user, candidate).
func (r *GenericUserBasedRecommender) MostSimilarUserIDs(userID int64, howMany int, rescorer topitems.PairRescorer) ([]int64, error) {
	if err := checkHowMany(howMany); err != nil {
		return nil, err
	}
	users, err := topitems.TopUsers(howMany, slices.Values(r.model.UserIDs()), nil, func(candidate int64) (float64, error) {
		if candidate == userID {
			return math.NaN(), nil
		}
		pair := dataset.NewLongPair(userID, candidate)
		if rescorer != nil && rescorer.IsFiltered(pair) {
			return math.NaN(), nil
		}
		sim, err := r.similarity.UserSimilarity(userID, candidate)
		if err != nil {
			return math.NaN(), errors.Trace(err)
		}
		if rescorer != nil {
			sim = rescorer.Rescore(pair, sim)
		}
		return sim, nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	ids := make([]int64, len(users))
	for i, user := range users {
		ids[i] = user.UserID
	}
	return ids, nil
}

func (r *GenericUserBasedRecommender) Refresh() {
	r.neighborhood.Refresh()
	r.similarity.Refresh()
	r.model.Refresh()
	r.capper.Store(NewEstimatedPreferenceCapper(r.model))
}

// otherItems collects the items of the neighbors.
func (r *GenericUserBasedRecommender) otherItems(userID int64, neighbors []int64, includeKnownItems bool) ([]int64, error) {
	candidates := mapset.NewThreadUnsafeSet[int64]()
	for _, neighbor := range neighbors {
		items, err := r.model.ItemIDsFromUser(neighbor)
		if errors.Is(err, errors.NotFound) {
			continue
		} else if err != nil {
			return nil, errors.Trace(err)
		}
		candidates.Append(items...)
	}
	known, err := r.model.ItemIDsFromUser(userID)
	if err != nil && !errors.Is(err, errors.NotFound) {
		return nil, errors.Trace(err)
	}
	return candidateSet(candidates, known, !includeKnownItems), nil
}

func (r *GenericUserBasedRecommender) weightedAverage(userID int64, neighbors []int64, itemID int64) (float32, error) {
	var preference, totalSimilarity float64
	count := 0
	for _, neighbor := range neighbors {
		if neighbor == userID {
			continue
		}
		value, err := r.model.PreferenceValue(neighbor, itemID)
		if errors.Is(err, errors.NotFound) {
			continue
		} else if err != nil {
			return math32.NaN(), errors.Trace(err)
		}
		if math32.IsNaN(value) {
			continue
		}
		sim, err := r.similarity.UserSimilarity(userID, neighbor)
		if err != nil {
			return math32.NaN(), errors.Trace(err)
		}
		if !math.IsNaN(sim) {
			preference += sim * float64(value)
			totalSimilarity += sim
			count++
		}
	}
	// A single neighbor would just echo its own preference.
	if count <= 1 {
		return math32.NaN(), nil
	}
	return r.capper.Load().CapEstimate(float32(preference / totalSimilarity)), nil
}

func (r *GenericUserBasedRecommender) similaritySum(userID int64, neighbors []int64, itemID int64) (float32, error) {
	var total float64
	found := false
	for _, neighbor := range neighbors {
		if neighbor == userID {
			continue
		}
		value, err := r.model.PreferenceValue(neighbor, itemID)
		if errors.Is(err, errors.NotFound) {
			continue
		} else if err != nil {
			return math32.NaN(), errors.Trace(err)
		}
		if math32.IsNaN(value) {
			continue
		}
		sim, err := r.similarity.UserSimilarity(userID, neighbor)
		if err != nil {
			return math32.NaN(), errors.Trace(err)
		}
		if !math.IsNaN(sim) {
			total += sim
			found = true
		}
	}
	if !found {
		return math32.NaN(), nil
	}
	return float32(total), nil
}
