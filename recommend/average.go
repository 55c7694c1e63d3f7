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
	"slices"
	"sync"

	"github.com/chewxy/math32"
	"github.com/gorse-io/taste/common/stats"
	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/recommend/topitems"
	"github.com/juju/errors"
)

// averages holds running means keyed by ID.
type averages map[int64]*stats.RunningAverage

func (a averages) add(id int64, value float64) {
	average, exist := a[id]
	if !exist {
		average = stats.NewRunningAverage()
		a[id] = average
	}
	average.AddDatum(value)
}

// update applies a preference change of the given kind to the mean of id.
func (a averages) update(id int64, old, value float64, isNew bool) error {
	if isNew {
		a.add(id, value)
		return nil
	}
	average, exist := a[id]
	if !exist {
		return errors.NotFoundf("average of %d", id)
	}
	return errors.Trace(average.ChangeDatum(value - old))
}

func (a averages) remove(id int64, old float64) error {
	average, exist := a[id]
	if !exist {
		return errors.NotFoundf("average of %d", id)
	}
	if err := average.RemoveDatum(old); err != nil {
		return errors.Trace(err)
	}
	if average.Count() == 0 {
		delete(a, id)
	}
	return nil
}

// previousPreference returns the current preference before a mutation. A missing
// preference of a known or unknown user is NaN.
func previousPreference(model dataset.DataModel, userID, itemID int64) (float32, error) {
	value, err := model.PreferenceValue(userID, itemID)
	if errors.Is(err, errors.NotFound) {
		return math32.NaN(), nil
	}
	return value, errors.Trace(err)
}

// ItemAverageRecommender estimates every preference for an item as the mean preference
// for the item. The means follow mutations made through the recommender without a full
// rebuild.
type ItemAverageRecommender struct {
	baseRecommender
	mu           sync.RWMutex
	itemAverages averages
}

func NewItemAverageRecommender(model dataset.DataModel, candidates CandidateItemsStrategy) (*ItemAverageRecommender, error) {
	base, err := newBaseRecommender(model, candidates)
	if err != nil {
		return nil, errors.Trace(err)
	}
	r := &ItemAverageRecommender{baseRecommender: base}
	if err = r.buildAverages(); err != nil {
		return nil, errors.Trace(err)
	}
	return r, nil
}

func (r *ItemAverageRecommender) buildAverages() error {
	itemAverages := make(averages)
	for _, userID := range r.model.UserIDs() {
		prefs, err := r.model.PreferencesFromUser(userID)
		if err != nil {
			return errors.Trace(err)
		}
		for i := 0; i < prefs.Len(); i++ {
			itemAverages.add(prefs.ItemID(i), float64(prefs.Value(i)))
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.itemAverages = itemAverages
	return nil
}

func (r *ItemAverageRecommender) Recommend(userID int64, howMany int, opts ...Option) ([]dataset.RecommendedItem, error) {
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
	candidates, err := r.candidates.CandidateItems(userID, prefs, r.model, o.includeKnownItems)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return topitems.TopItems(howMany, slices.Values(candidates), o.rescorer, func(itemID int64) (float64, error) {
		return float64(r.doEstimate(itemID)), nil
	})
}

func (r *ItemAverageRecommender) EstimatePreference(userID, itemID int64) (float32, error) {
	value, ok, err := storedPreference(r.model, userID, itemID)
	if err != nil || ok {
		return value, err
	}
	return r.doEstimate(itemID), nil
}

func (r *ItemAverageRecommender) doEstimate(itemID int64) float32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if average, exist := r.itemAverages[itemID]; exist {
		return float32(average.Average())
	}
	return math32.NaN()
}

// SetPreference holds the write lock from reading the previous preference until the
// mean is updated, so concurrent writers are applied one at a time.
func (r *ItemAverageRecommender) SetPreference(userID, itemID int64, value float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, err := previousPreference(r.model, userID, itemID)
	if err != nil {
		return errors.Trace(err)
	}
	if err = r.baseRecommender.SetPreference(userID, itemID, value); err != nil {
		return errors.Trace(err)
	}
	return r.itemAverages.update(itemID, float64(old), float64(value), math32.IsNaN(old))
}

func (r *ItemAverageRecommender) RemovePreference(userID, itemID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, err := previousPreference(r.model, userID, itemID)
	if err != nil {
		return errors.Trace(err)
	}
	if err = r.baseRecommender.RemovePreference(userID, itemID); err != nil {
		return errors.Trace(err)
	}
	if math32.IsNaN(old) {
		return nil
	}
	return r.itemAverages.remove(itemID, float64(old))
}

func (r *ItemAverageRecommender) Refresh() {
	r.model.Refresh()
	if err := r.buildAverages(); err != nil {
		logRefreshError(err)
	}
}

// ItemUserAverageRecommender adjusts the mean preference for an item by how far the
// mean preference of the user is from the overall mean.
type ItemUserAverageRecommender struct {
	baseRecommender
	mu           sync.RWMutex
	itemAverages averages
	userAverages averages
	overall      *stats.RunningAverage
}

func NewItemUserAverageRecommender(model dataset.DataModel, candidates CandidateItemsStrategy) (*ItemUserAverageRecommender, error) {
	base, err := newBaseRecommender(model, candidates)
	if err != nil {
		return nil, errors.Trace(err)
	}
	r := &ItemUserAverageRecommender{baseRecommender: base}
	if err = r.buildAverages(); err != nil {
		return nil, errors.Trace(err)
	}
	return r, nil
}

func (r *ItemUserAverageRecommender) buildAverages() error {
	itemAverages, userAverages := make(averages), make(averages)
	overall := stats.NewRunningAverage()
	for _, userID := range r.model.UserIDs() {
		prefs, err := r.model.PreferencesFromUser(userID)
		if err != nil {
			return errors.Trace(err)
		}
		for i := 0; i < prefs.Len(); i++ {
			value := float64(prefs.Value(i))
			itemAverages.add(prefs.ItemID(i), value)
			userAverages.add(userID, value)
			overall.AddDatum(value)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.itemAverages, r.userAverages, r.overall = itemAverages, userAverages, overall
	return nil
}

func (r *ItemUserAverageRecommender) Recommend(userID int64, howMany int, opts ...Option) ([]dataset.RecommendedItem, error) {
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
	candidates, err := r.candidates.CandidateItems(userID, prefs, r.model, o.includeKnownItems)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return topitems.TopItems(howMany, slices.Values(candidates), o.rescorer, func(itemID int64) (float64, error) {
		return float64(r.doEstimate(userID, itemID)), nil
	})
}

func (r *ItemUserAverageRecommender) EstimatePreference(userID, itemID int64) (float32, error) {
	value, ok, err := storedPreference(r.model, userID, itemID)
	if err != nil || ok {
		return value, err
	}
	return r.doEstimate(userID, itemID), nil
}

func (r *ItemUserAverageRecommender) doEstimate(userID, itemID int64) float32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	itemAverage, exist := r.itemAverages[itemID]
	if !exist {
		return math32.NaN()
	}
	userAverage, exist := r.userAverages[userID]
	if !exist {
		return math32.NaN()
	}
	return float32(itemAverage.Average() + userAverage.Average() - r.overall.Average())
}

func (r *ItemUserAverageRecommender) SetPreference(userID, itemID int64, value float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, err := previousPreference(r.model, userID, itemID)
	if err != nil {
		return errors.Trace(err)
	}
	if err = r.baseRecommender.SetPreference(userID, itemID, value); err != nil {
		return errors.Trace(err)
	}
	isNew := math32.IsNaN(old)
	if err = r.itemAverages.update(itemID, float64(old), float64(value), isNew); err != nil {
		return errors.Trace(err)
	}
	if err = r.userAverages.update(userID, float64(old), float64(value), isNew); err != nil {
		return errors.Trace(err)
	}
	if isNew {
		r.overall.AddDatum(float64(value))
		return nil
	}
	return errors.Trace(r.overall.ChangeDatum(float64(value - old)))
}

func (r *ItemUserAverageRecommender) RemovePreference(userID, itemID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, err := previousPreference(r.model, userID, itemID)
	if err != nil {
		return errors.Trace(err)
	}
	if err = r.baseRecommender.RemovePreference(userID, itemID); err != nil {
		return errors.Trace(err)
	}
	if math32.IsNaN(old) {
		return nil
	}
	if err = r.itemAverages.remove(itemID, float64(old)); err != nil {
		return errors.Trace(err)
	}
	if err = r.userAverages.remove(userID, float64(old)); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(r.overall.RemoveDatum(float64(old)))
}

func (r *ItemUserAverageRecommender) Refresh() {
	r.model.Refresh()
	if err := r.buildAverages(); err != nil {
		logRefreshError(err)
	}
}
