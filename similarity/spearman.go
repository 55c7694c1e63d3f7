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
	"slices"

	"github.com/gorse-io/taste/dataset"
	"github.com/juju/errors"
)

// SpearmanSimilarity is the Spearman rank correlation over co-rated preferences. Ranks
// are assigned only among common IDs; ties are ranked by their order after sorting.
type SpearmanSimilarity struct {
	model dataset.DataModel
}

func NewSpearman(model dataset.DataModel) (*SpearmanSimilarity, error) {
	if !model.HasPreferenceValues() {
		return nil, errors.NotValidf("spearman similarity on data without preference values")
	}
	return &SpearmanSimilarity{model: model}, nil
}

// rank replaces values of common IDs with ranks from 1, in ascending value order, then
// sorts by ID. The vector must be a private copy.
func rank(v interface {
	Len() int
	IDs() []int64
	SetValue(int, float32)
	SortByValue()
	SortByID()
}, other []int64) {
	v.SortByValue()
	nextRank := float32(1)
	for i, id := range v.IDs() {
		if _, found := slices.BinarySearch(other, id); found {
			v.SetValue(i, nextRank)
			nextRank++
		}
	}
	v.SortByID()
}

func spearman(xIDs []int64, xValues []float32, yIDs []int64, yValues []float32) float64 {
	var sumXYRankDiff2 float64
	count := 0
	for i, j := 0, 0; i < len(xIDs) && j < len(yIDs); {
		switch {
		case xIDs[i] == yIDs[j]:
			diff := float64(xValues[i] - yValues[j])
			sumXYRankDiff2 += diff * diff
			count++
			i++
			j++
		case xIDs[i] < yIDs[j]:
			i++
		default:
			j++
		}
	}
	if count <= 1 {
		return math.NaN()
	}
	n := float64(count)
	return 1 - 6*sumXYRankDiff2/(n*(n*n-1))
}

func (s *SpearmanSimilarity) UserSimilarity(userID1, userID2 int64) (float64, error) {
	xPrefs, err := s.model.PreferencesFromUser(userID1)
	if err != nil {
		return math.NaN(), errors.Trace(err)
	}
	yPrefs, err := s.model.PreferencesFromUser(userID2)
	if err != nil {
		return math.NaN(), errors.Trace(err)
	}
	if xPrefs.Len() <= 1 || yPrefs.Len() <= 1 {
		return math.NaN(), nil
	}
	xRanks, yRanks := xPrefs.Clone(), yPrefs.Clone()
	rank(xRanks, yPrefs.IDs())
	rank(yRanks, xPrefs.IDs())
	return spearman(xRanks.IDs(), xRanks.Values(), yRanks.IDs(), yRanks.Values()), nil
}

func (s *SpearmanSimilarity) ItemSimilarity(itemID1, itemID2 int64) (float64, error) {
	xPrefs, err := s.model.PreferencesForItem(itemID1)
	if err != nil {
		return math.NaN(), errors.Trace(err)
	}
	yPrefs, err := s.model.PreferencesForItem(itemID2)
	if err != nil {
		return math.NaN(), errors.Trace(err)
	}
	if xPrefs.Len() <= 1 || yPrefs.Len() <= 1 {
		return math.NaN(), nil
	}
	xRanks, yRanks := xPrefs.Clone(), yPrefs.Clone()
	rank(xRanks, yPrefs.IDs())
	rank(yRanks, xPrefs.IDs())
	return spearman(xRanks.IDs(), xRanks.Values(), yRanks.IDs(), yRanks.Values()), nil
}

func (s *SpearmanSimilarity) ItemSimilarities(itemID1 int64, itemID2s []int64) ([]float64, error) {
	return itemSimilarities(s, itemID1, itemID2s)
}

func (s *SpearmanSimilarity) AllSimilarItemIDs(itemID int64) ([]int64, error) {
	return allSimilarItemIDs(s, s.model, itemID)
}

func (s *SpearmanSimilarity) SetPreferenceInferrer(PreferenceInferrer) error {
	return notSupportedInferrer("spearman")
}

func (s *SpearmanSimilarity) Refresh() {}

func (s *SpearmanSimilarity) String() string {
	return "spearman"
}
