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
	"testing"

	"github.com/chewxy/math32"
	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/neighborhood"
	"github.com/gorse-io/taste/recommend/topitems"
	"github.com/gorse-io/taste/similarity"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func userModelPreferences() []dataset.Preference {
	return []dataset.Preference{
		{UserID: 1, ItemID: 101, Value: 5}, {UserID: 1, ItemID: 102, Value: 3},
		{UserID: 2, ItemID: 101, Value: 4}, {UserID: 2, ItemID: 102, Value: 2}, {UserID: 2, ItemID: 103, Value: 4},
		{UserID: 3, ItemID: 101, Value: 2}, {UserID: 3, ItemID: 103, Value: 5},
		{UserID: 4, ItemID: 102, Value: 1},
	}
}

func userSimilarity() *similarity.GenericUserSimilarity {
	return similarity.NewGenericUserSimilarity([]dataset.UserUserSimilarity{
		{UserID1: 1, UserID2: 2, Similarity: 0.8},
		{UserID1: 1, UserID2: 3, Similarity: 0.4},
		{UserID1: 1, UserID2: 4, Similarity: -0.5},
	})
}

func newUserBased(t *testing.T, model dataset.DataModel, boolean bool) *GenericUserBasedRecommender {
	sim := userSimilarity()
	nb, err := neighborhood.NewNearestNUserNeighborhood(2, math.Inf(-1), sim, model, 1, nil)
	assert.NoError(t, err)
	if boolean {
		return lo.Must(NewGenericBooleanPrefUserBasedRecommender(model, nb, sim))
	}
	return lo.Must(NewGenericUserBasedRecommender(model, nb, sim))
}

func TestGenericUserBasedRecommender(t *testing.T) {
	model := lo.Must(dataset.NewGenericDataModel(userModelPreferences()))
	r := newUserBased(t, model, false)

	items, err := r.Recommend(1, 5)
	assert.NoError(t, err)
	if assert.Len(t, items, 1) {
		assert.Equal(t, int64(103), items[0].ItemID)
		assert.InDelta(t, (0.8*4+0.4*5)/1.2, items[0].Value, 1e-5)
	}

	// item 102 is known to a single neighbor only
	items, err = r.Recommend(1, 5, IncludeKnownItems(true))
	assert.NoError(t, err)
	assert.Equal(t, []int64{103, 101}, lo.Map(items, func(item dataset.RecommendedItem, _ int) int64 { return item.ItemID }))
	assert.InDelta(t, (0.8*4+0.4*2)/1.2, items[1].Value, 1e-5)

	items, err = r.Recommend(1, 5, WithRescorer(topitems.ExcludeIDs(103)))
	assert.NoError(t, err)
	assert.Empty(t, items)

	// unknown user
	items, err = r.Recommend(99, 5)
	assert.NoError(t, err)
	assert.Empty(t, items)

	_, err = r.Recommend(1, 0)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestGenericUserBasedRecommender_EstimatePreference(t *testing.T) {
	model := lo.Must(dataset.NewGenericDataModel(userModelPreferences()))
	r := newUserBased(t, model, false)

	value, err := r.EstimatePreference(1, 101)
	assert.NoError(t, err)
	assert.Equal(t, float32(5), value)
	value, err = r.EstimatePreference(1, 103)
	assert.NoError(t, err)
	assert.InDelta(t, (0.8*4+0.4*5)/1.2, value, 1e-5)
	value, err = r.EstimatePreference(1, 999)
	assert.NoError(t, err)
	assert.True(t, math32.IsNaN(value))
	_, err = r.EstimatePreference(99, 101)
	assert.True(t, errors.Is(err, errors.NotFound))

	// stored preference takes precedence
	assert.NoError(t, r.SetPreference(1, 103, 2))
	value, err = r.EstimatePreference(1, 103)
	assert.NoError(t, err)
	assert.Equal(t, float32(2), value)
	assert.True(t, errors.Is(r.SetPreference(1, 103, math32.NaN()), errors.NotValid))

	assert.NoError(t, r.RemovePreference(1, 103))
	value, err = r.EstimatePreference(1, 103)
	assert.NoError(t, err)
	assert.InDelta(t, (0.8*4+0.4*5)/1.2, value, 1e-5)
}

func TestGenericUserBasedRecommender_MostSimilarUserIDs(t *testing.T) {
	model := lo.Must(dataset.NewGenericDataModel(userModelPreferences()))
	r := newUserBased(t, model, false)
	users, err := r.MostSimilarUserIDs(1, 2, nil)
	assert.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, users)
	users, err = r.MostSimilarUserIDs(1, 5, nil)
	assert.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 4}, users)
	users, err = r.MostSimilarUserIDs(1, 5, topitems.FuncRescorer[dataset.LongPair]{
		FilterFunc: func(pair dataset.LongPair) bool { return pair.Second == 2 },
		RescoreFunc: func(pair dataset.LongPair, original float64) float64 {
			return -original
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, []int64{4, 3}, users)
}

func TestGenericBooleanPrefUserBasedRecommender(t *testing.T) {
	model := lo.Must(dataset.NewBooleanDataModel(userModelPreferences()))
	r := newUserBased(t, model, true)

	// sums of similarities are not capped to the preference range
	value, err := r.EstimatePreference(1, 103)
	assert.NoError(t, err)
	assert.InDelta(t, 1.2, value, 1e-5)
	// no neighbor of user 4 prefers item 103
	value, err = r.EstimatePreference(4, 103)
	assert.NoError(t, err)
	assert.True(t, math32.IsNaN(value))

	items, err := r.Recommend(1, 5)
	assert.NoError(t, err)
	if assert.Len(t, items, 1) {
		assert.Equal(t, int64(103), items[0].ItemID)
		assert.InDelta(t, 1.2, items[0].Value, 1e-5)
	}
	assert.True(t, errors.Is(r.SetPreference(1, 103, 1), errors.NotSupported))
}

func itemModelPreferences() []dataset.Preference {
	return []dataset.Preference{
		{UserID: 1, ItemID: 1, Value: 5}, {UserID: 1, ItemID: 2, Value: 3}, {UserID: 1, ItemID: 4, Value: 4},
		{UserID: 2, ItemID: 1, Value: 2}, {UserID: 2, ItemID: 3, Value: 4}, {UserID: 2, ItemID: 4, Value: 3},
		{UserID: 3, ItemID: 1, Value: 4.5}, {UserID: 3, ItemID: 2, Value: 3.5}, {UserID: 3, ItemID: 3, Value: 2},
	}
}

func itemSimilarity() *similarity.GenericItemSimilarity {
	return similarity.NewGenericItemSimilarity([]dataset.ItemItemSimilarity{
		{ItemID1: 1, ItemID2: 4, Similarity: 0.9},
		{ItemID1: 2, ItemID2: 4, Similarity: 0.8},
		{ItemID1: 3, ItemID2: 4, Similarity: 0.7},
		{ItemID1: 1, ItemID2: 2, Similarity: 0.5},
		{ItemID1: 1, ItemID2: 3, Similarity: 0.2},
	})
}

func TestGenericItemBasedRecommender(t *testing.T) {
	model := lo.Must(dataset.NewGenericDataModel(itemModelPreferences()))
	r := lo.Must(NewGenericItemBasedRecommender(model, itemSimilarity(), nil, nil))

	// item 4 is the only item user 3 has not rated
	items, err := r.Recommend(3, 1)
	assert.NoError(t, err)
	if assert.Len(t, items, 1) {
		assert.Equal(t, int64(4), items[0].ItemID)
		assert.InDelta(t, (0.9*4.5+0.8*3.5+0.7*2)/2.4, items[0].Value, 1e-5)
	}

	value, err := r.EstimatePreference(3, 1)
	assert.NoError(t, err)
	assert.Equal(t, float32(4.5), value)
	value, err = r.EstimatePreference(2, 2)
	assert.NoError(t, err)
	assert.InDelta(t, (0.5*2+0.8*3)/1.3, value, 1e-5)
	// no similar item
	value, err = r.EstimatePreference(2, 5)
	assert.NoError(t, err)
	assert.True(t, math32.IsNaN(value))
	_, err = r.EstimatePreference(99, 1)
	assert.True(t, errors.Is(err, errors.NotFound))

	items, err = r.Recommend(99, 1)
	assert.NoError(t, err)
	assert.Empty(t, items)
}

func TestGenericItemBasedRecommender_SetPreference(t *testing.T) {
	model := lo.Must(dataset.NewGenericDataModel(itemModelPreferences()))
	r := lo.Must(NewGenericItemBasedRecommender(model, itemSimilarity(), nil, nil))

	assert.NoError(t, r.SetPreference(2, 2, 1.5))
	value, err := r.EstimatePreference(2, 2)
	assert.NoError(t, err)
	assert.Equal(t, float32(1.5), value)
	// overwrite
	assert.NoError(t, r.SetPreference(2, 2, 2.5))
	value, err = r.EstimatePreference(2, 2)
	assert.NoError(t, err)
	assert.Equal(t, float32(2.5), value)
	assert.True(t, errors.Is(r.SetPreference(2, 2, math32.NaN()), errors.NotValid))

	assert.NoError(t, r.RemovePreference(2, 2))
	value, err = r.EstimatePreference(2, 2)
	assert.NoError(t, err)
	assert.InDelta(t, (0.5*2+0.8*3)/1.3, value, 1e-5)
}

func TestGenericItemBasedRecommender_Capped(t *testing.T) {
	model := lo.Must(dataset.NewGenericDataModel([]dataset.Preference{
		{UserID: 1, ItemID: 1, Value: 5}, {UserID: 1, ItemID: 2, Value: 1},
		{UserID: 2, ItemID: 3, Value: 3},
	}))
	sim := similarity.NewGenericItemSimilarity([]dataset.ItemItemSimilarity{
		{ItemID1: 1, ItemID2: 3, Similarity: 0.9},
		{ItemID1: 2, ItemID2: 3, Similarity: -0.5},
	})
	r := lo.Must(NewGenericItemBasedRecommender(model, sim, NewAllUnknownItemsStrategy(), nil))
	// (0.9*5 - 0.5*1) / 0.4 = 10 is clamped to the largest preference
	value, err := r.EstimatePreference(1, 3)
	assert.NoError(t, err)
	assert.Equal(t, float32(5), value)
	// a single similar item gives no estimate
	value, err = r.EstimatePreference(2, 1)
	assert.NoError(t, err)
	assert.True(t, math32.IsNaN(value))
}

func TestGenericItemBasedRecommender_MostSimilarItems(t *testing.T) {
	model := lo.Must(dataset.NewGenericDataModel(itemModelPreferences()))
	r := lo.Must(NewGenericItemBasedRecommender(model, itemSimilarity(), nil, nil))

	items, err := r.MostSimilarItems(4, 2, nil)
	assert.NoError(t, err)
	assert.Equal(t, []dataset.RecommendedItem{{ItemID: 1, Value: 0.9}, {ItemID: 2, Value: 0.8}}, items)

	items, err = r.MostSimilarItems(4, 2, topitems.FuncRescorer[dataset.LongPair]{
		FilterFunc: func(pair dataset.LongPair) bool { return pair.Second == 1 },
	})
	assert.NoError(t, err)
	assert.Equal(t, []dataset.RecommendedItem{{ItemID: 2, Value: 0.8}, {ItemID: 3, Value: 0.7}}, items)

	items, err = r.MostSimilarItemsMulti([]int64{1, 2}, 3, nil, false)
	assert.NoError(t, err)
	if assert.Len(t, items, 2) {
		assert.Equal(t, int64(4), items[0].ItemID)
		assert.InDelta(t, 0.85, items[0].Value, 1e-5)
		assert.Equal(t, int64(3), items[1].ItemID)
		assert.InDelta(t, 0.2, items[1].Value, 1e-5)
	}
	// item 3 has no similarity to item 2
	items, err = r.MostSimilarItemsMulti([]int64{1, 2}, 3, nil, true)
	assert.NoError(t, err)
	assert.Equal(t, []int64{4}, lo.Map(items, func(item dataset.RecommendedItem, _ int) int64 { return item.ItemID }))

	_, err = r.MostSimilarItemsMulti(nil, 3, nil, true)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestGenericItemBasedRecommender_RecommendedBecause(t *testing.T) {
	model := lo.Must(dataset.NewGenericDataModel(itemModelPreferences()))
	r := lo.Must(NewGenericItemBasedRecommender(model, itemSimilarity(), nil, nil))
	items, err := r.RecommendedBecause(3, 4, 2)
	assert.NoError(t, err)
	if assert.Len(t, items, 2) {
		assert.Equal(t, int64(1), items[0].ItemID)
		assert.InDelta(t, 1.9*4.5, items[0].Value, 1e-5)
		assert.Equal(t, int64(2), items[1].ItemID)
		assert.InDelta(t, 1.8*3.5, items[1].Value, 1e-5)
	}
	_, err = r.RecommendedBecause(99, 4, 2)
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestGenericBooleanPrefItemBasedRecommender(t *testing.T) {
	model := lo.Must(dataset.NewBooleanDataModel(itemModelPreferences()))
	r := lo.Must(NewGenericBooleanPrefItemBasedRecommender(model, itemSimilarity(), nil, nil))

	value, err := r.EstimatePreference(3, 4)
	assert.NoError(t, err)
	assert.InDelta(t, 2.4, value, 1e-5)
	value, err = r.EstimatePreference(2, 2)
	assert.NoError(t, err)
	assert.InDelta(t, 1.3, value, 1e-5)
	// no similar item at all
	value, err = r.EstimatePreference(3, 5)
	assert.NoError(t, err)
	assert.True(t, math32.IsNaN(value))

	items, err := r.Recommend(3, 1)
	assert.NoError(t, err)
	assert.Equal(t, []int64{4}, lo.Map(items, func(item dataset.RecommendedItem, _ int) int64 { return item.ItemID }))
}

func TestEstimatedPreferenceCapper(t *testing.T) {
	model := lo.Must(dataset.NewGenericDataModel([]dataset.Preference{
		{UserID: 1, ItemID: 1, Value: 1}, {UserID: 1, ItemID: 2, Value: 5},
	}))
	capper := NewEstimatedPreferenceCapper(model)
	assert.Equal(t, float32(5), capper.CapEstimate(7))
	assert.Equal(t, float32(1), capper.CapEstimate(-2))
	assert.Equal(t, float32(3), capper.CapEstimate(3))

	empty := lo.Must(dataset.NewGenericDataModel(nil))
	capper = NewEstimatedPreferenceCapper(empty)
	assert.Nil(t, capper)
	assert.Equal(t, float32(7), capper.CapEstimate(7))
}

func TestCandidateItemsStrategy(t *testing.T) {
	model := lo.Must(dataset.NewGenericDataModel(append(itemModelPreferences(),
		dataset.Preference{UserID: 4, ItemID: 5, Value: 1})))
	prefs := lo.Must(model.PreferencesFromUser(1))

	preferred := NewPreferredItemsNeighborhoodStrategy()
	candidates, err := preferred.CandidateItems(1, prefs, model, false)
	assert.NoError(t, err)
	assert.Equal(t, []int64{3}, candidates)
	candidates, err = preferred.CandidateItems(1, prefs, model, true)
	assert.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, candidates)
	candidates, err = preferred.CandidateItemsForItems([]int64{3}, model)
	assert.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 4}, candidates)

	unknown := NewAllUnknownItemsStrategy()
	candidates, err = unknown.CandidateItems(1, prefs, model, false)
	assert.NoError(t, err)
	assert.Equal(t, []int64{3, 5}, candidates)
	candidates, err = unknown.CandidateItemsForItems([]int64{1, 5}, model)
	assert.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 4}, candidates)

	similar := NewAllSimilarItemsStrategy(itemSimilarity())
	candidates, err = similar.CandidateItems(1, prefs, model, false)
	assert.NoError(t, err)
	assert.Equal(t, []int64{3}, candidates)
	candidates, err = similar.CandidateItemsForItems([]int64{3}, model)
	assert.NoError(t, err)
	assert.Equal(t, []int64{1, 4}, candidates)

	_, err = NewCandidateItemsStrategy("unknown", nil)
	assert.True(t, errors.Is(err, errors.NotSupported))
	_, err = NewCandidateItemsStrategy("all_similar_items", nil)
	assert.True(t, errors.Is(err, errors.NotValid))
}
