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
	"github.com/chewxy/math32"
	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/recommend/topitems"
	"github.com/juju/errors"
)

// Recommender ranks items for users and estimates single preferences.
type Recommender interface {
	// Recommend returns at most howMany items in descending order of score. Users without
	// usable data get an empty list.
	Recommend(userID int64, howMany int, opts ...Option) ([]dataset.RecommendedItem, error)
	// EstimatePreference returns the stored preference if present, otherwise an
	// estimate. NaN means the preference cannot be estimated.
	EstimatePreference(userID, itemID int64) (float32, error)
	SetPreference(userID, itemID int64, value float32) error
	RemovePreference(userID, itemID int64) error
	DataModel() dataset.DataModel
	Refresh()
}

// ItemBasedRecommender also answers item similarity queries.
type ItemBasedRecommender interface {
	Recommender
	MostSimilarItems(itemID int64, howMany int, rescorer topitems.PairRescorer) ([]dataset.RecommendedItem, error)
	MostSimilarItemsMulti(itemIDs []int64, howMany int, rescorer topitems.PairRescorer, excludeIfNotSimilarToAll bool) ([]dataset.RecommendedItem, error)
	RecommendedBecause(userID, itemID int64, howMany int) ([]dataset.RecommendedItem, error)
}

// UserBasedRecommender also answers user similarity queries.
type UserBasedRecommender interface {
	Recommender
	MostSimilarUserIDs(userID int64, howMany int, rescorer topitems.PairRescorer) ([]int64, error)
}

type options struct {
	rescorer          topitems.IDRescorer
	includeKnownItems bool
}

type Option func(*options)

// WithRescorer rescores or filters candidate items.
func WithRescorer(rescorer topitems.IDRescorer) Option {
	return func(o *options) {
		o.rescorer = rescorer
	}
}

// IncludeKnownItems lets items already preferred by the user be recommended.
func IncludeKnownItems(include bool) Option {
	return func(o *options) {
		o.includeKnownItems = include
	}
}

func newOptions(opts ...Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func checkHowMany(howMany int) error {
	if howMany < 1 {
		return errors.NotValidf("number of recommendations %d", howMany)
	}
	return nil
}

// baseRecommender holds the data model and forwards mutations to it.
type baseRecommender struct {
	model      dataset.DataModel
	candidates CandidateItemsStrategy
}

func newBaseRecommender(model dataset.DataModel, candidates CandidateItemsStrategy) (baseRecommender, error) {
	if model == nil {
		return baseRecommender{}, errors.NotValidf("nil data model")
	}
	if candidates == nil {
		candidates = NewPreferredItemsNeighborhoodStrategy()
	}
	return baseRecommender{model: model, candidates: candidates}, nil
}

func (r *baseRecommender) DataModel() dataset.DataModel {
	return r.model
}

func (r *baseRecommender) SetPreference(userID, itemID int64, value float32) error {
	if math32.IsNaN(value) {
		return errors.NotValidf("NaN preference")
	}
	return errors.Trace(r.model.SetPreference(userID, itemID, value))
}

func (r *baseRecommender) RemovePreference(userID, itemID int64) error {
	return errors.Trace(r.model.RemovePreference(userID, itemID))
}

// storedPreference returns the preference of the user for the item if present. ok is
// false if the preference must be estimated.
func storedPreference(model dataset.DataModel, userID, itemID int64) (value float32, ok bool, err error) {
	value, err = model.PreferenceValue(userID, itemID)
	if err != nil {
		return math32.NaN(), false, errors.Trace(err)
	}
	return value, !math32.IsNaN(value), nil
}

// EstimatedPreferenceCapper clamps estimates into the preference range of a model.
type EstimatedPreferenceCapper struct {
	min float32
	max float32
}

// NewEstimatedPreferenceCapper returns nil if the model declares no bounds.
func NewEstimatedPreferenceCapper(model dataset.DataModel) *EstimatedPreferenceCapper {
	lower, upper := model.MinPreference(), model.MaxPreference()
	if math32.IsNaN(lower) && math32.IsNaN(upper) {
		return nil
	}
	return &EstimatedPreferenceCapper{min: lower, max: upper}
}

// CapEstimate clamps an estimate. A nil capper keeps the estimate.
func (c *EstimatedPreferenceCapper) CapEstimate(estimate float32) float32 {
	if c == nil {
		return estimate
	}
	if estimate > c.max {
		return c.max
	} else if estimate < c.min {
		return c.min
	}
	return estimate
}
