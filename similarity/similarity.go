// Copyright 2026 gorse Project Authors
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

package similarity

import (
	"math"

	"github.com/gorse-io/taste/dataset"
	"github.com/juju/errors"
)

// UserSimilarity scores two users. Results are in [-1, 1] or NaN when undefined.
type UserSimilarity interface {
	UserSimilarity(userID1, userID2 int64) (float64, error)
	// SetPreferenceInferrer sets how missing preferences are filled in. Metrics that
	// ignore preference values return a NotSupported error.
	SetPreferenceInferrer(inferrer PreferenceInferrer) error
	Refresh()
}

// ItemSimilarity scores two items. Results are in [-1, 1] or NaN when undefined.
type ItemSimilarity interface {
	ItemSimilarity(itemID1, itemID2 int64) (float64, error)
	// ItemSimilarities scores one item against many.
	ItemSimilarities(itemID1 int64, itemID2s []int64) ([]float64, error)
	// AllSimilarItemIDs returns items with a defined similarity to the item.
	AllSimilarItemIDs(itemID int64) ([]int64, error)
	Refresh()
}

func itemSimilarities(s ItemSimilarity, itemID1 int64, itemID2s []int64) ([]float64, error) {
	result := make([]float64, len(itemID2s))
	for i, itemID2 := range itemID2s {
		var err error
		if result[i], err = s.ItemSimilarity(itemID1, itemID2); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return result, nil
}

// allSimilarItemIDs scans the whole catalog.
func allSimilarItemIDs(s ItemSimilarity, model dataset.DataModel, itemID int64) ([]int64, error) {
	var similar []int64
	for _, other := range model.ItemIDs() {
		if other == itemID {
			continue
		}
		value, err := s.ItemSimilarity(itemID, other)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if !math.IsNaN(value) {
			similar = append(similar, other)
		}
	}
	return similar, nil
}

// normalizeWeight damps a similarity supported by count of num possible overlaps and
// clamps rounding error into [-1, 1].
func normalizeWeight(result float64, count, num int, weighted bool) float64 {
	if weighted {
		scaleFactor := 1 - float64(count)/float64(num+1)
		if result < 0 {
			result = -1 + scaleFactor*(1+result)
		} else {
			result = 1 - scaleFactor*(1-result)
		}
	}
	return math.Max(-1, math.Min(1, result))
}

func notSupportedInferrer(metric string) error {
	return errors.NotSupportedf("preference inferrer for %s", metric)
}
