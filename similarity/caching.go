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
	"github.com/gorse-io/taste/common/cache"
	"github.com/gorse-io/taste/dataset"
	"github.com/juju/errors"
)

// CachingUserSimilarity memoizes another UserSimilarity. Both orders of a pair share one
// entry. Entries are dropped when the model changes.
type CachingUserSimilarity struct {
	similarity UserSimilarity
	values     *cache.Cache[dataset.LongPair, float64]
}

// NewCachingUserSimilarity caches up to size pairs, or one per user if size <= 0.
func NewCachingUserSimilarity(similarity UserSimilarity, model dataset.DataModel, size int) *CachingUserSimilarity {
	if size <= 0 {
		size = model.NumUsers()
	}
	return &CachingUserSimilarity{
		similarity: similarity,
		values:     cache.New[dataset.LongPair, float64]("user_similarity", size, model.Generation),
	}
}

func (c *CachingUserSimilarity) UserSimilarity(userID1, userID2 int64) (float64, error) {
	key := dataset.NewLongPair(userID1, userID2).Canonical()
	return c.values.GetOrCompute(key, func() (float64, error) {
		value, err := c.similarity.UserSimilarity(key.First, key.Second)
		return value, errors.Trace(err)
	})
}

func (c *CachingUserSimilarity) SetPreferenceInferrer(inferrer PreferenceInferrer) error {
	c.values.Clear()
	return c.similarity.SetPreferenceInferrer(inferrer)
}

func (c *CachingUserSimilarity) Refresh() {
	c.values.Clear()
	c.similarity.Refresh()
}

// CachingItemSimilarity memoizes another ItemSimilarity.
type CachingItemSimilarity struct {
	similarity ItemSimilarity
	values     *cache.Cache[dataset.LongPair, float64]
}

// NewCachingItemSimilarity caches up to size pairs, or one per item if size <= 0.
func NewCachingItemSimilarity(similarity ItemSimilarity, model dataset.DataModel, size int) *CachingItemSimilarity {
	if size <= 0 {
		size = model.NumItems()
	}
	return &CachingItemSimilarity{
		similarity: similarity,
		values:     cache.New[dataset.LongPair, float64]("item_similarity", size, model.Generation),
	}
}

func (c *CachingItemSimilarity) ItemSimilarity(itemID1, itemID2 int64) (float64, error) {
	key := dataset.NewLongPair(itemID1, itemID2).Canonical()
	return c.values.GetOrCompute(key, func() (float64, error) {
		value, err := c.similarity.ItemSimilarity(key.First, key.Second)
		return value, errors.Trace(err)
	})
}

func (c *CachingItemSimilarity) ItemSimilarities(itemID1 int64, itemID2s []int64) ([]float64, error) {
	return itemSimilarities(c, itemID1, itemID2s)
}

func (c *CachingItemSimilarity) AllSimilarItemIDs(itemID int64) ([]int64, error) {
	return c.similarity.AllSimilarItemIDs(itemID)
}

func (c *CachingItemSimilarity) Refresh() {
	c.values.Clear()
	c.similarity.Refresh()
}
