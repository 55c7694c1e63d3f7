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
	"strconv"
	"sync"

	"github.com/gorse-io/taste/dataset"
	"github.com/juju/errors"
)

type sums struct {
	count      int
	sumX       float64
	sumY       float64
	sumX2      float64
	sumY2      float64
	sumXY      float64
	sumXYdiff2 float64
}

func (s *sums) add(x, y float64) {
	s.sumX += x
	s.sumY += y
	s.sumX2 += x * x
	s.sumY2 += y * y
	s.sumXY += x * y
	diff := x - y
	s.sumXYdiff2 += diff * diff
	s.count++
}

// accumulate walks two ID-sorted vectors. IDs present on one side only are counted
// when infer functions are given, with the missing value inferred.
func accumulate(xIDs []int64, xValues []float32, yIDs []int64, yValues []float32,
	inferX, inferY func(id int64) (float64, error)) (sums, error) {
	var s sums
	hasInferrer := inferX != nil && inferY != nil
	for i, j := 0, 0; i < len(xIDs) || j < len(yIDs); {
		if !hasInferrer && (i >= len(xIDs) || j >= len(yIDs)) {
			break
		}
		switch {
		case i < len(xIDs) && j < len(yIDs) && xIDs[i] == yIDs[j]:
			s.add(float64(xValues[i]), float64(yValues[j]))
			i++
			j++
		case j >= len(yIDs) || (i < len(xIDs) && xIDs[i] < yIDs[j]):
			if hasInferrer {
				y, err := inferY(xIDs[i])
				if err != nil {
					return s, errors.Trace(err)
				}
				s.add(float64(xValues[i]), y)
			}
			i++
		default:
			if hasInferrer {
				x, err := inferX(yIDs[j])
				if err != nil {
					return s, errors.Trace(err)
				}
				s.add(x, float64(yValues[j]))
			}
			j++
		}
	}
	return s, nil
}

// CorrelationSimilarity implements metrics computed from co-rated preference sums:
// Pearson correlation, uncentered cosine and Euclidean distance. Users are compared over
// their items and items over their users.
type CorrelationSimilarity struct {
	name     string
	model    dataset.DataModel
	weighted bool
	centered bool
	compute  func(n int, sumXY, sumX2, sumY2, sumXYdiff2 float64) float64

	mu       sync.RWMutex
	inferrer PreferenceInferrer
}

func newCorrelationSimilarity(name string, model dataset.DataModel, weighted, centered bool,
	compute func(n int, sumXY, sumX2, sumY2, sumXYdiff2 float64) float64) (*CorrelationSimilarity, error) {
	if !model.HasPreferenceValues() {
		return nil, errors.NotValidf("%s similarity on data without preference values", name)
	}
	return &CorrelationSimilarity{
		name:     name,
		model:    model,
		weighted: weighted,
		centered: centered,
		compute:  compute,
	}, nil
}

func cosine(_ int, sumXY, sumX2, sumY2, _ float64) float64 {
	denominator := math.Sqrt(sumX2) * math.Sqrt(sumY2)
	if denominator == 0 {
		return math.NaN()
	}
	return sumXY / denominator
}

// NewPearsonCorrelation creates the Pearson correlation, which is the cosine of centered
// preference vectors.
func NewPearsonCorrelation(model dataset.DataModel, weighted bool) (*CorrelationSimilarity, error) {
	return newCorrelationSimilarity("pearson", model, weighted, true, cosine)
}

// NewUncenteredCosine creates the cosine of raw preference vectors.
func NewUncenteredCosine(model dataset.DataModel, weighted bool) (*CorrelationSimilarity, error) {
	return newCorrelationSimilarity("cosine", model, weighted, false, cosine)
}

// NewEuclideanDistance creates 1 / (1 + distance / sqrt(n)) over co-rated preferences.
func NewEuclideanDistance(model dataset.DataModel, weighted bool) (*CorrelationSimilarity, error) {
	return newCorrelationSimilarity("euclidean", model, weighted, false,
		func(n int, _, _, _, sumXYdiff2 float64) float64 {
			return 1 / (1 + math.Sqrt(sumXYdiff2)/math.Sqrt(float64(n)))
		})
}

func (s *CorrelationSimilarity) SetPreferenceInferrer(inferrer PreferenceInferrer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inferrer = inferrer
	return nil
}

func (s *CorrelationSimilarity) preferenceInferrer() PreferenceInferrer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inferrer
}

func (s *CorrelationSimilarity) result(sums sums, num int) float64 {
	if sums.count == 0 {
		return math.NaN()
	}
	var result float64
	if s.centered {
		meanX := sums.sumX / float64(sums.count)
		meanY := sums.sumY / float64(sums.count)
		centeredSumXY := sums.sumXY - meanY*sums.sumX
		centeredSumX2 := sums.sumX2 - meanX*sums.sumX
		centeredSumY2 := sums.sumY2 - meanY*sums.sumY
		result = s.compute(sums.count, centeredSumXY, centeredSumX2, centeredSumY2, sums.sumXYdiff2)
	} else {
		result = s.compute(sums.count, sums.sumXY, sums.sumX2, sums.sumY2, sums.sumXYdiff2)
	}
	if math.IsNaN(result) {
		return result
	}
	return normalizeWeight(result, sums.count, num, s.weighted)
}

func (s *CorrelationSimilarity) UserSimilarity(userID1, userID2 int64) (float64, error) {
	xPrefs, err := s.model.PreferencesFromUser(userID1)
	if err != nil {
		return math.NaN(), errors.Trace(err)
	}
	yPrefs, err := s.model.PreferencesFromUser(userID2)
	if err != nil {
		return math.NaN(), errors.Trace(err)
	}
	if xPrefs.Len() == 0 || yPrefs.Len() == 0 {
		return math.NaN(), nil
	}
	var inferX, inferY func(int64) (float64, error)
	if inferrer := s.preferenceInferrer(); inferrer != nil {
		inferX = func(itemID int64) (float64, error) {
			value, err := inferrer.InferPreference(userID1, itemID)
			return float64(value), err
		}
		inferY = func(itemID int64) (float64, error) {
			value, err := inferrer.InferPreference(userID2, itemID)
			return float64(value), err
		}
	}
	sums, err := accumulate(xPrefs.IDs(), xPrefs.Values(), yPrefs.IDs(), yPrefs.Values(), inferX, inferY)
	if err != nil {
		return math.NaN(), errors.Trace(err)
	}
	return s.result(sums, s.model.NumItems()), nil
}

func (s *CorrelationSimilarity) ItemSimilarity(itemID1, itemID2 int64) (float64, error) {
	xPrefs, err := s.model.PreferencesForItem(itemID1)
	if err != nil {
		return math.NaN(), errors.Trace(err)
	}
	yPrefs, err := s.model.PreferencesForItem(itemID2)
	if err != nil {
		return math.NaN(), errors.Trace(err)
	}
	if xPrefs.Len() == 0 || yPrefs.Len() == 0 {
		return math.NaN(), nil
	}
	sums, err := accumulate(xPrefs.IDs(), xPrefs.Values(), yPrefs.IDs(), yPrefs.Values(), nil, nil)
	if err != nil {
		return math.NaN(), errors.Trace(err)
	}
	return s.result(sums, s.model.NumUsers()), nil
}

func (s *CorrelationSimilarity) ItemSimilarities(itemID1 int64, itemID2s []int64) ([]float64, error) {
	return itemSimilarities(s, itemID1, itemID2s)
}

func (s *CorrelationSimilarity) AllSimilarItemIDs(itemID int64) ([]int64, error) {
	return allSimilarItemIDs(s, s.model, itemID)
}

func (s *CorrelationSimilarity) Refresh() {
	if inferrer := s.preferenceInferrer(); inferrer != nil {
		inferrer.Refresh()
	}
}

func (s *CorrelationSimilarity) String() string {
	return s.name + "[weighted:" + strconv.FormatBool(s.weighted) + "]"
}

