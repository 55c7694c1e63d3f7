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
	"math/rand"
	"slices"

	"github.com/chewxy/math32"
	"github.com/gorse-io/taste/dataset"
	"github.com/juju/errors"
)

// RandomRecommender recommends random items with random scores between the smallest
// and the largest preference. It is a baseline for evaluation.
type RandomRecommender struct {
	baseRecommender
	rng *rand.Rand
}

// NewRandomRecommender creates a random recommender. rng must be safe for concurrent
// use if the recommender is.
func NewRandomRecommender(model dataset.DataModel, rng *rand.Rand) (*RandomRecommender, error) {
	if rng == nil {
		return nil, errors.NotValidf("nil random source")
	}
	base, err := newBaseRecommender(model, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &RandomRecommender{baseRecommender: base, rng: rng}, nil
}

func (r *RandomRecommender) randomPreference() float32 {
	lower, upper := r.model.MinPreference(), r.model.MaxPreference()
	if math32.IsNaN(lower) || math32.IsNaN(upper) {
		return math32.NaN()
	}
	return lower + r.rng.Float32()*(upper-lower)
}

func (r *RandomRecommender) Recommend(userID int64, howMany int, opts ...Option) ([]dataset.RecommendedItem, error) {
	if err := checkHowMany(howMany); err != nil {
		return nil, err
	}
	o := newOptions(opts...)
	known, err := r.model.ItemIDsFromUser(userID)
	if errors.Is(err, errors.NotFound) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	itemIDs := r.model.ItemIDs()
	var items []dataset.RecommendedItem
	for _, i := range r.rng.Perm(len(itemIDs)) {
		if len(items) >= howMany {
			break
		}
		itemID := itemIDs[i]
		if !o.includeKnownItems {
			if _, found := slices.BinarySearch(known, itemID); found {
				continue
			}
		}
		if o.rescorer != nil && o.rescorer.IsFiltered(itemID) {
			continue
		}
		value := float64(r.randomPreference())
		if o.rescorer != nil {
			value = o.rescorer.Rescore(itemID, value)
		}
		if math.IsNaN(value) {
			continue
		}
		items = append(items, dataset.RecommendedItem{ItemID: itemID, Value: float32(value)})
	}
	slices.SortFunc(items, dataset.CompareRecommendedItems)
	return items, nil
}

func (r *RandomRecommender) EstimatePreference(userID, itemID int64) (float32, error) {
	value, ok, err := storedPreference(r.model, userID, itemID)
	if err != nil || ok {
		return value, err
	}
	return r.randomPreference(), nil
}

func (r *RandomRecommender) Refresh() {
	r.model.Refresh()
}
