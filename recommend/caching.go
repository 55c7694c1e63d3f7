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
	"github.com/gorse-io/taste/common/cache"
	"github.com/gorse-io/taste/common/util"
	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/recommend/topitems"
	"github.com/juju/errors"
	"go.uber.org/atomic"
)

type recommendations struct {
	items []dataset.RecommendedItem
	// requested is the number of items asked from the delegate.
	requested int
}

// CachingRecommender memoizes recommendations per user and estimates per (user, item).
// Mutations through it evict the entries of the affected user. Any other change of the
// data model drops everything.
//
// Rescorers are compared by identity, so a rescorer should be a pointer or another
// comparable value. Changing the rescorer or including known items drops the cached
// recommendations but keeps the estimates.
type CachingRecommender struct {
	recommender     Recommender
	recommendations *cache.Cache[int64, *recommendations]
	estimates       *cache.Cache[dataset.LongPair, float32]
	generation      atomic.Uint64

	mu                sync.Mutex
	maxHowMany        int
	rescorer          topitems.IDRescorer
	includeKnownItems bool
}

func NewCachingRecommender(recommender Recommender) (*CachingRecommender, error) {
	if recommender == nil {
		return nil, errors.NotValidf("nil recommender")
	}
	model := recommender.DataModel()
	numUsers := model.NumUsers()
	c := &CachingRecommender{
		recommender:     recommender,
		recommendations: cache.New[int64, *recommendations]("recommendations", numUsers, nil),
		estimates:       cache.New[dataset.LongPair, float32]("estimates", numUsers, nil),
		maxHowMany:      1,
	}
	c.generation.Store(model.Generation())
	return c, nil
}

// syncGeneration drops everything if the data model changed behind our back.
func (c *CachingRecommender) syncGeneration() uint64 {
	current := c.recommender.DataModel().Generation()
	if c.generation.Swap(current) != current {
		c.clear()
	}
	return current
}

func (c *CachingRecommender) Recommend(userID int64, howMany int, opts ...Option) ([]dataset.RecommendedItem, error) {
	if err := checkHowMany(howMany); err != nil {
		return nil, err
	}
	o := newOptions(opts...)
	c.syncGeneration()
	c.mu.Lock()
	c.maxHowMany = max(c.maxHowMany, howMany)
	if !util.SameInstance(o.rescorer, c.rescorer) || o.includeKnownItems != c.includeKnownItems {
		c.rescorer, c.includeKnownItems = o.rescorer, o.includeKnownItems
		c.recommendations.Clear()
	}
	c.mu.Unlock()

	recs, err := c.recommendations.GetOrCompute(userID, func() (*recommendations, error) {
		return c.retrieve(userID)
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(recs.items) < howMany && recs.requested < howMany {
		// cached for a smaller request
		c.recommendations.Remove(userID)
		recs, err = c.recommendations.GetOrCompute(userID, func() (*recommendations, error) {
			return c.retrieve(userID)
		})
		if err != nil {
			return nil, errors.Trace(err)
		}
	}
	return slices.Clone(recs.items[:min(howMany, len(recs.items))]), nil
}

func (c *CachingRecommender) retrieve(userID int64) (*recommendations, error) {
	c.mu.Lock()
	howMany, rescorer, includeKnownItems := c.maxHowMany, c.rescorer, c.includeKnownItems
	c.mu.Unlock()
	items, err := c.recommender.Recommend(userID, howMany, WithRescorer(rescorer), IncludeKnownItems(includeKnownItems))
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &recommendations{items: items, requested: howMany}, nil
}

func (c *CachingRecommender) EstimatePreference(userID, itemID int64) (float32, error) {
	c.syncGeneration()
	value, err := c.estimates.GetOrCompute(dataset.NewLongPair(userID, itemID), func() (float32, error) {
		return c.recommender.EstimatePreference(userID, itemID)
	})
	if err != nil {
		return math32.NaN(), errors.Trace(err)
	}
	return value, nil
}

func (c *CachingRecommender) SetPreference(userID, itemID int64, value float32) error {
	return c.mutate(userID, func() error {
		return c.recommender.SetPreference(userID, itemID, value)
	})
}

func (c *CachingRecommender) RemovePreference(userID, itemID int64) error {
	return c.mutate(userID, func() error {
		return c.recommender.RemovePreference(userID, itemID)
	})
}

// mutate applies a mutation and evicts the user. If the data model moved by more than
// this mutation, the next lookup drops everything.
func (c *CachingRecommender) mutate(userID int64, mutation func() error) error {
	before := c.syncGeneration()
	if err := mutation(); err != nil {
		return errors.Trace(err)
	}
	c.ClearUser(userID)
	if c.recommender.DataModel().Generation() == before+1 {
		c.generation.CompareAndSwap(before, before+1)
	}
	return nil
}

// ClearUser evicts the recommendations and estimates of a user.
func (c *CachingRecommender) ClearUser(userID int64) {
	c.recommendations.Remove(userID)
	c.estimates.RemoveIf(func(key dataset.LongPair) bool {
		return key.First == userID
	})
}

func (c *CachingRecommender) clear() {
	c.recommendations.Clear()
	c.estimates.Clear()
}

func (c *CachingRecommender) DataModel() dataset.DataModel {
	return c.recommender.DataModel()
}

func (c *CachingRecommender) Refresh() {
	c.clear()
	c.recommender.Refresh()
	c.generation.Store(c.recommender.DataModel().Generation())
}
