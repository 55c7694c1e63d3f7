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

// counts of two sets and their intersection, over a universe of size total.
type cooccurrence struct {
	size1        int
	size2        int
	intersection int
	total        int
}

func userCooccurrence(model dataset.DataModel, userID1, userID2 int64) (cooccurrence, error) {
	items1, err := model.ItemIDsFromUser(userID1)
	if err != nil {
		return cooccurrence{}, errors.Trace(err)
	}
	items2, err := model.ItemIDsFromUser(userID2)
	if err != nil {
		return cooccurrence{}, errors.Trace(err)
	}
	return cooccurrence{
		size1:        len(items1),
		size2:        len(items2),
		intersection: len(dataset.IntersectSorted(items1, items2)),
		total:        model.NumItems(),
	}, nil
}

func itemCooccurrence(model dataset.DataModel, itemID1, itemID2 int64) (cooccurrence, error) {
	preferring1, err := model.NumUsersWithPreferenceFor(itemID1)
	if err != nil {
		return cooccurrence{}, errors.Trace(err)
	}
	preferring2, err := model.NumUsersWithPreferenceFor(itemID2)
	if err != nil {
		return cooccurrence{}, errors.Trace(err)
	}
	preferringBoth, err := model.NumUsersWithPreferenceFor(itemID1, itemID2)
	if err != nil {
		return cooccurrence{}, errors.Trace(err)
	}
	return cooccurrence{
		size1:        preferring1,
		size2:        preferring2,
		intersection: preferringBoth,
		total:        model.NumUsers(),
	}, nil
}

// cooccurrenceSimilarity adapts a score over set counts to both users and items.
type cooccurrenceSimilarity struct {
	name  string
	model dataset.DataModel
	score func(c cooccurrence) float64
}

func (s *cooccurrenceSimilarity) UserSimilarity(userID1, userID2 int64) (float64, error) {
	c, err := userCooccurrence(s.model, userID1, userID2)
	if err != nil {
		return math.NaN(), errors.Trace(err)
	}
	return s.score(c), nil
}

func (s *cooccurrenceSimilarity) ItemSimilarity(itemID1, itemID2 int64) (float64, error) {
	c, err := itemCooccurrence(s.model, itemID1, itemID2)
	if err != nil {
		return math.NaN(), errors.Trace(err)
	}
	return s.score(c), nil
}

func (s *cooccurrenceSimilarity) ItemSimilarities(itemID1 int64, itemID2s []int64) ([]float64, error) {
	return itemSimilarities(s, itemID1, itemID2s)
}

func (s *cooccurrenceSimilarity) AllSimilarItemIDs(itemID int64) ([]int64, error) {
	return allSimilarItemIDs(s, s.model, itemID)
}

func (s *cooccurrenceSimilarity) SetPreferenceInferrer(PreferenceInferrer) error {
	return notSupportedInferrer(s.name)
}

func (s *cooccurrenceSimilarity) Refresh() {}

func (s *cooccurrenceSimilarity) String() string {
	return s.name
}

// LogLikelihoodSimilarity scores how unlikely the overlap of two preference sets is by
// chance. Results are in (0, 1).
type LogLikelihoodSimilarity struct {
	cooccurrenceSimilarity
}

func NewLogLikelihood(model dataset.DataModel) *LogLikelihoodSimilarity {
	return &LogLikelihoodSimilarity{cooccurrenceSimilarity{
		name:  "log_likelihood",
		model: model,
		score: func(c cooccurrence) float64 {
			if c.intersection == 0 {
				return math.NaN()
			}
			llr := LogLikelihoodRatio(
				int64(c.intersection),
				int64(c.size2-c.intersection),
				int64(c.size1-c.intersection),
				int64(c.total-c.size1-c.size2+c.intersection))
			return 1 - 1/(1+llr)
		},
	}}
}

func xLogX(x int64) float64 {
	if x == 0 {
		return 0
	}
	return float64(x) * math.Log(float64(x))
}

func entropy(elements ...int64) float64 {
	var sum int64
	var result float64
	for _, element := range elements {
		result += xLogX(element)
		sum += element
	}
	return xLogX(sum) - result
}

// LogLikelihoodRatio computes the G² statistic of a 2x2 contingency table.
func LogLikelihoodRatio(k11, k12, k21, k22 int64) float64 {
	rowEntropy := entropy(k11+k12, k21+k22)
	columnEntropy := entropy(k11+k21, k12+k22)
	matrixEntropy := entropy(k11, k12, k21, k22)
	if rowEntropy+columnEntropy < matrixEntropy {
		// round off error
		return 0
	}
	return 2 * (rowEntropy + columnEntropy - matrixEntropy)
}

// TanimotoSimilarity is the size of the intersection over the size of the union.
type TanimotoSimilarity struct {
	cooccurrenceSimilarity
}

func NewTanimoto(model dataset.DataModel) *TanimotoSimilarity {
	return &TanimotoSimilarity{cooccurrenceSimilarity{
		name:  "tanimoto",
		model: model,
		score: func(c cooccurrence) float64 {
			if c.intersection == 0 {
				return math.NaN()
			}
			union := c.size1 + c.size2 - c.intersection
			return float64(c.intersection) / float64(union)
		},
	}}
}

// CityBlockSimilarity is 1 / (1 + Manhattan distance) of two preference sets.
type CityBlockSimilarity struct {
	cooccurrenceSimilarity
}

func NewCityBlock(model dataset.DataModel) *CityBlockSimilarity {
	return &CityBlockSimilarity{cooccurrenceSimilarity{
		name:  "city_block",
		model: model,
		score: func(c cooccurrence) float64 {
			if c.intersection == 0 {
				return math.NaN()
			}
			distance := c.size1 + c.size2 - 2*c.intersection
			return 1 / (1 + float64(distance))
		},
	}}
}
