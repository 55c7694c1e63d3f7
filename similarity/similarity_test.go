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
	"context"
	"math"
	"testing"

	"github.com/gorse-io/taste/common/util"
	"github.com/gorse-io/taste/config"
	"github.com/gorse-io/taste/dataset"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat"
)

const delta = 1e-6

func newModel(t *testing.T, users map[int64]map[int64]float32) *dataset.GenericDataModel {
	var prefs []dataset.Preference
	for userID, items := range users {
		for itemID, value := range items {
			prefs = append(prefs, dataset.Preference{UserID: userID, ItemID: itemID, Value: value})
		}
	}
	model, err := dataset.NewGenericDataModel(prefs)
	assert.NoError(t, err)
	return model
}

func userSimilarity(t *testing.T, s UserSimilarity, userID1, userID2 int64) float64 {
	value, err := s.UserSimilarity(userID1, userID2)
	assert.NoError(t, err)
	return value
}

func itemSimilarity(t *testing.T, s ItemSimilarity, itemID1, itemID2 int64) float64 {
	value, err := s.ItemSimilarity(itemID1, itemID2)
	assert.NoError(t, err)
	return value
}

func TestPearsonCorrelation(t *testing.T) {
	model := newModel(t, map[int64]map[int64]float32{
		1: {1: 3, 2: -2},
		2: {1: 3, 2: -2},
		3: {1: -3, 2: 2},
		4: {3: 3, 4: -2},
		5: {1: 1, 2: 1},
	})
	s, err := NewPearsonCorrelation(model, false)
	assert.NoError(t, err)
	assert.InDelta(t, 1, userSimilarity(t, s, 1, 2), delta)
	assert.InDelta(t, -1, userSimilarity(t, s, 1, 3), delta)
	// no overlap
	assert.True(t, math.IsNaN(userSimilarity(t, s, 1, 4)))
	// zero variance
	assert.True(t, math.IsNaN(userSimilarity(t, s, 1, 5)))

	weighted, err := NewPearsonCorrelation(model, true)
	assert.NoError(t, err)
	assert.InDelta(t, 1, userSimilarity(t, weighted, 1, 2), delta)
	assert.InDelta(t, -1, userSimilarity(t, weighted, 1, 3), delta)

	// items 1 and 2 are rated inversely by users 1, 2, 3 and equally by 5
	value := itemSimilarity(t, s, 1, 2)
	assert.False(t, math.IsNaN(value))
	assert.Less(t, value, 0.0)

	_, err = s.UserSimilarity(1, 100)
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestPearsonAgainstGonum(t *testing.T) {
	rng := util.NewRand(0)
	users := map[int64]map[int64]float32{1: {}, 2: {}}
	var x, y []float64
	for itemID := int64(0); itemID < 30; itemID++ {
		a, b := float32(1+rng.Intn(5)), float32(1+rng.Intn(5))
		users[1][itemID], users[2][itemID] = a, b
		x, y = append(x, float64(a)), append(y, float64(b))
	}
	model := newModel(t, users)
	s, err := NewPearsonCorrelation(model, false)
	assert.NoError(t, err)
	assert.InDelta(t, stat.Correlation(x, y, nil), userSimilarity(t, s, 1, 2), delta)
}

func TestWeighting(t *testing.T) {
	model := newModel(t, map[int64]map[int64]float32{
		1: {1: 1, 2: 2, 3: 3, 4: 1},
		2: {1: 1, 2: 3, 3: 2, 4: 2},
	})
	s, err := NewPearsonCorrelation(model, false)
	assert.NoError(t, err)
	raw := userSimilarity(t, s, 1, 2)
	weighted, err := NewPearsonCorrelation(model, true)
	assert.NoError(t, err)
	// 4 overlapping of 4 items: scale = 1 - 4/5
	scale := 1 - 4.0/5
	assert.InDelta(t, 1-scale*(1-raw), userSimilarity(t, weighted, 1, 2), delta)
	assert.InDelta(t, 1-scale*(1-raw), normalizeWeight(raw, 4, 4, true), delta)
	assert.InDelta(t, -1+scale*(1-0.5), normalizeWeight(-0.5, 4, 4, true), delta)
	assert.Equal(t, 1.0, normalizeWeight(1.0000001, 1, 1, false))
	assert.Equal(t, -1.0, normalizeWeight(-1.0000001, 1, 1, false))
}

func TestUncenteredCosine(t *testing.T) {
	model := newModel(t, map[int64]map[int64]float32{
		1: {1: 1, 2: 2},
		2: {1: 2, 2: 4},
		3: {1: 2, 2: -1},
		4: {3: 1},
	})
	s, err := NewUncenteredCosine(model, false)
	assert.NoError(t, err)
	assert.InDelta(t, 1, userSimilarity(t, s, 1, 2), delta)
	assert.InDelta(t, 0, userSimilarity(t, s, 1, 3), delta)
	assert.True(t, math.IsNaN(userSimilarity(t, s, 1, 4)))
}

func TestEuclideanDistance(t *testing.T) {
	model := newModel(t, map[int64]map[int64]float32{
		1: {1: 1, 2: 2},
		2: {1: 2, 2: 4},
		3: {1: 1, 2: 2},
		4: {3: 1},
	})
	s, err := NewEuclideanDistance(model, false)
	assert.NoError(t, err)
	assert.InDelta(t, 1/(1+math.Sqrt(5)/math.Sqrt(2)), userSimilarity(t, s, 1, 2), delta)
	assert.InDelta(t, 1, userSimilarity(t, s, 1, 3), delta)
	assert.True(t, math.IsNaN(userSimilarity(t, s, 1, 4)))
}

func TestPreferenceInferrer(t *testing.T) {
	model := newModel(t, map[int64]map[int64]float32{
		1: {1: 1, 2: 2, 3: 3},
		2: {1: 1, 2: 2, 4: 5},
	})
	inferrer := NewAveragingPreferenceInferrer(model)
	value, err := inferrer.InferPreference(2, 3)
	assert.NoError(t, err)
	assert.InDelta(t, 8.0/3, value, delta)
	_, err = inferrer.InferPreference(100, 3)
	assert.True(t, errors.Is(err, errors.NotFound))

	s, err := NewUncenteredCosine(model, false)
	assert.NoError(t, err)
	assert.NoError(t, s.SetPreferenceInferrer(inferrer))
	// x = (1, 2, 3, 2), y = (1, 2, 8/3, 5)
	x := []float64{1, 2, 3, 2}
	y := []float64{1, 2, 8.0 / 3, 5}
	var xy, x2, y2 float64
	for i := range x {
		xy += x[i] * y[i]
		x2 += x[i] * x[i]
		y2 += y[i] * y[i]
	}
	assert.InDelta(t, xy/(math.Sqrt(x2)*math.Sqrt(y2)), userSimilarity(t, s, 1, 2), 1e-5)
	s.Refresh()

	assert.True(t, errors.Is(NewLogLikelihood(model).SetPreferenceInferrer(inferrer), errors.NotSupported))
	spearman, err := NewSpearman(model)
	assert.NoError(t, err)
	assert.True(t, errors.Is(spearman.SetPreferenceInferrer(inferrer), errors.NotSupported))
}

func TestLogLikelihoodRatio(t *testing.T) {
	assert.InDelta(t, 2.772589, LogLikelihoodRatio(1, 0, 0, 1), 1e-6)
	assert.InDelta(t, 27.72589, LogLikelihoodRatio(10, 0, 0, 10), 1e-5)
	assert.InDelta(t, 39.33052, LogLikelihoodRatio(5, 1995, 0, 100000), 1e-5)
	assert.InDelta(t, 4730.737, LogLikelihoodRatio(1000, 1995, 1000, 100000), 1e-3)
	assert.InDelta(t, 5734.343, LogLikelihoodRatio(1000, 1000, 1000, 100000), 1e-3)
	assert.Equal(t, 0.0, LogLikelihoodRatio(1, 1, 1, 1))
}

func cooccurrenceModel(t *testing.T) *dataset.BooleanDataModel {
	model, err := dataset.NewBooleanDataModel([]dataset.Preference{
		{UserID: 1, ItemID: 1, Value: 1}, {UserID: 1, ItemID: 2, Value: 1}, {UserID: 1, ItemID: 3, Value: 1},
		{UserID: 2, ItemID: 2, Value: 1}, {UserID: 2, ItemID: 3, Value: 1}, {UserID: 2, ItemID: 4, Value: 1},
		{UserID: 3, ItemID: 5, Value: 1},
	})
	assert.NoError(t, err)
	return model
}

func TestLogLikelihood(t *testing.T) {
	s := NewLogLikelihood(cooccurrenceModel(t))
	assert.InDelta(t, 0.121607, userSimilarity(t, s, 1, 2), delta)
	assert.True(t, math.IsNaN(userSimilarity(t, s, 1, 3)))
	// item 1 is preferred by user 1, item 2 by users 1 and 2, out of 3 users
	assert.InDelta(t, 1-1/(1+LogLikelihoodRatio(1, 1, 0, 1)), itemSimilarity(t, s, 1, 2), delta)
	assert.True(t, math.IsNaN(itemSimilarity(t, s, 1, 5)))
}

func TestTanimoto(t *testing.T) {
	s := NewTanimoto(cooccurrenceModel(t))
	assert.InDelta(t, 0.5, userSimilarity(t, s, 1, 2), delta)
	assert.True(t, math.IsNaN(userSimilarity(t, s, 1, 3)))
	assert.InDelta(t, 1, itemSimilarity(t, s, 2, 3), delta)
	assert.InDelta(t, 0.5, itemSimilarity(t, s, 1, 2), delta)
}

func TestCityBlock(t *testing.T) {
	s := NewCityBlock(cooccurrenceModel(t))
	assert.InDelta(t, 1.0/3, userSimilarity(t, s, 1, 2), delta)
	assert.True(t, math.IsNaN(userSimilarity(t, s, 1, 3)))
	assert.InDelta(t, 1, itemSimilarity(t, s, 2, 3), delta)
}

func TestSpearman(t *testing.T) {
	model := newModel(t, map[int64]map[int64]float32{
		1: {1: 1, 2: 2, 3: 3},
		2: {1: 10, 2: 20, 3: 30},
		3: {1: 3, 2: 2, 3: 1},
		4: {1: 1},
		5: {1: 2, 3: 1, 4: 5},
	})
	s, err := NewSpearman(model)
	assert.NoError(t, err)
	assert.InDelta(t, 1, userSimilarity(t, s, 1, 2), delta)
	assert.InDelta(t, -1, userSimilarity(t, s, 1, 3), delta)
	assert.True(t, math.IsNaN(userSimilarity(t, s, 1, 4)))
	// common items 1 and 3 are ranked inversely
	assert.InDelta(t, -1, userSimilarity(t, s, 1, 5), delta)

	// the model is not modified
	prefs, err := model.PreferencesFromUser(5)
	assert.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 4}, prefs.IDs())
	assert.Equal(t, []float32{2, 1, 5}, prefs.Values())

	boolean := cooccurrenceModel(t)
	_, err = NewSpearman(boolean)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestSymmetry(t *testing.T) {
	rng := util.NewRand(1)
	users := make(map[int64]map[int64]float32)
	for userID := int64(0); userID < 8; userID++ {
		users[userID] = make(map[int64]float32)
		for itemID := int64(0); itemID < 12; itemID++ {
			if rng.Float64() < 0.6 {
				users[userID][itemID] = float32(1 + rng.Intn(5))
			}
		}
	}
	model := newModel(t, users)
	for _, metric := range Metrics() {
		s, err := New(metric, model, true)
		assert.NoError(t, err)
		for _, u := range model.UserIDs() {
			for _, v := range model.UserIDs() {
				a, b := userSimilarity(t, s, u, v), userSimilarity(t, s, v, u)
				if math.IsNaN(a) {
					assert.True(t, math.IsNaN(b), metric)
				} else {
					assert.InDelta(t, a, b, delta, metric)
					assert.LessOrEqual(t, a, 1.0, metric)
					assert.GreaterOrEqual(t, a, -1.0, metric)
				}
			}
		}
		for _, i := range model.ItemIDs() {
			for _, j := range model.ItemIDs() {
				a, b := itemSimilarity(t, s, i, j), itemSimilarity(t, s, j, i)
				if math.IsNaN(a) {
					assert.True(t, math.IsNaN(b), metric)
				} else {
					assert.InDelta(t, a, b, delta, metric)
				}
			}
		}
	}
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{
		config.CityBlock, config.Cosine, config.Euclidean, config.LogLikelihood,
		config.Pearson, config.Spearman, config.Tanimoto,
	}, Metrics())
	model := cooccurrenceModel(t)
	_, err := New("jaccard", model, false)
	assert.True(t, errors.Is(err, errors.NotSupported))
	_, err = New(config.Pearson, model, false)
	assert.True(t, errors.Is(err, errors.NotValid))

	userSim, itemSim, err := FromConfig(config.SimilarityConfig{Metric: config.Tanimoto, CacheSize: 10}, model)
	assert.NoError(t, err)
	assert.IsType(t, &CachingUserSimilarity{}, userSim)
	assert.IsType(t, &CachingItemSimilarity{}, itemSim)
	_, _, err = FromConfig(config.SimilarityConfig{Metric: config.Tanimoto, InferPreferences: true}, model)
	assert.True(t, errors.Is(err, errors.NotSupported))
}

type countingSimilarity struct {
	Similarity
	calls int
}

func (c *countingSimilarity) UserSimilarity(userID1, userID2 int64) (float64, error) {
	c.calls++
	return c.Similarity.UserSimilarity(userID1, userID2)
}

func (c *countingSimilarity) ItemSimilarity(itemID1, itemID2 int64) (float64, error) {
	c.calls++
	return c.Similarity.ItemSimilarity(itemID1, itemID2)
}

func TestCachingUserSimilarity(t *testing.T) {
	model := newModel(t, map[int64]map[int64]float32{
		1: {1: 1, 2: 2, 3: 3},
		2: {1: 1, 2: 3, 3: 2},
		3: {1: 2, 2: 1},
	})
	delegate := &countingSimilarity{Similarity: lo.Must(NewPearsonCorrelation(model, false))}
	s := NewCachingUserSimilarity(delegate, model, 0)
	a := userSimilarity(t, s, 1, 2)
	assert.Equal(t, a, userSimilarity(t, s, 2, 1))
	assert.Equal(t, 1, delegate.calls)

	// mutations invalidate the cache
	assert.NoError(t, model.SetPreference(2, 3, 3))
	assert.NotEqual(t, a, userSimilarity(t, s, 1, 2))
	assert.Equal(t, 2, delegate.calls)

	s.Refresh()
	userSimilarity(t, s, 1, 2)
	assert.Equal(t, 3, delegate.calls)
}

func TestCachingItemSimilarity(t *testing.T) {
	model := cooccurrenceModel(t)
	delegate := &countingSimilarity{Similarity: NewTanimoto(model)}
	s := NewCachingItemSimilarity(delegate, model, 0)
	values, err := s.ItemSimilarities(2, []int64{3, 1, 3})
	assert.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 0.5, 1}, values, delta)
	assert.Equal(t, 2, delegate.calls)
	assert.InDelta(t, 1, itemSimilarity(t, s, 3, 2), delta)
	assert.Equal(t, 2, delegate.calls)
	s.Refresh()
	assert.InDelta(t, 1, itemSimilarity(t, s, 3, 2), delta)
	assert.Equal(t, 3, delegate.calls)

	similar, err := s.AllSimilarItemIDs(2)
	assert.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 4}, similar)
}

func TestGenericItemSimilarity(t *testing.T) {
	s := NewGenericItemSimilarity([]dataset.ItemItemSimilarity{
		{ItemID1: 1, ItemID2: 2, Similarity: 0.5}, {ItemID1: 3, ItemID2: 1, Similarity: -0.2}, {ItemID1: 2, ItemID2: 4, Similarity: math.NaN()},
	})
	assert.Equal(t, 0.5, itemSimilarity(t, s, 2, 1))
	assert.Equal(t, -0.2, itemSimilarity(t, s, 1, 3))
	assert.Equal(t, 1.0, itemSimilarity(t, s, 4, 4))
	assert.True(t, math.IsNaN(itemSimilarity(t, s, 2, 4)))
	similar, err := s.AllSimilarItemIDs(1)
	assert.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, similar)

	model := cooccurrenceModel(t)
	all, err := NewGenericItemSimilarityFrom(context.Background(), NewTanimoto(model), model, 0, 2)
	assert.NoError(t, err)
	assert.InDelta(t, 0.5, itemSimilarity(t, all, 1, 2), delta)
	assert.True(t, math.IsNaN(itemSimilarity(t, all, 1, 5)))

	top, err := NewGenericItemSimilarityFrom(context.Background(), NewTanimoto(model), model, 1, 1)
	assert.NoError(t, err)
	assert.InDelta(t, 1, itemSimilarity(t, top, 2, 3), delta)
	assert.True(t, math.IsNaN(itemSimilarity(t, top, 1, 2)))
}

func TestGenericUserSimilarity(t *testing.T) {
	model := cooccurrenceModel(t)
	s, err := NewGenericUserSimilarityFrom(context.Background(), NewTanimoto(model), model, 0, 1)
	assert.NoError(t, err)
	assert.InDelta(t, 0.5, userSimilarity(t, s, 2, 1), delta)
	assert.True(t, math.IsNaN(userSimilarity(t, s, 1, 3)))
	assert.True(t, errors.Is(s.SetPreferenceInferrer(nil), errors.NotSupported))
}
