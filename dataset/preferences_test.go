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

package dataset

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserPreferences(t *testing.T) {
	prefs := NewUserPreferences(1)
	prefs.Add(30, 2)
	prefs.Add(10, 5)
	prefs.Add(20, 2)
	assert.Equal(t, int64(1), prefs.UserID())
	assert.Equal(t, 3, prefs.Len())
	assert.Equal(t, Preference{UserID: 1, ItemID: 10, Value: 5}, prefs.Get(1))
	assert.Equal(t, 2, prefs.Index(20))
	assert.False(t, prefs.Has(40))

	prefs.SortByID()
	assert.Equal(t, []int64{10, 20, 30}, prefs.IDs())
	assert.Equal(t, []float32{5, 2, 2}, prefs.Values())
	assert.Equal(t, 1, prefs.Search(20))
	assert.Equal(t, -1, prefs.Search(25))

	// ties keep their order
	prefs.SortByValue()
	assert.Equal(t, []int64{20, 30, 10}, prefs.IDs())
	prefs.SortByValueReversed()
	assert.Equal(t, []int64{10, 20, 30}, prefs.IDs())

	prefs.SetItemID(0, 11)
	prefs.SetValue(0, 4)
	assert.Equal(t, Preference{UserID: 1, ItemID: 11, Value: 4}, prefs.Get(0))
	for i := 0; i < prefs.Len(); i++ {
		assert.Equal(t, int64(1), prefs.Get(i).UserID)
	}
}

func TestItemPreferences(t *testing.T) {
	prefs := NewItemPreferences(7)
	prefs.Add(3, 1)
	prefs.Add(1, 2)
	prefs.SortByID()
	assert.Equal(t, int64(7), prefs.ItemID())
	assert.Equal(t, int64(1), prefs.UserID(0))
	assert.Equal(t, Preference{UserID: 3, ItemID: 7, Value: 1}, prefs.Get(1))
	prefs.SetUserID(1, 4)
	assert.Equal(t, []int64{1, 4}, prefs.IDs())
}

func TestClone(t *testing.T) {
	prefs := NewUserPreferences(1)
	prefs.Add(10, 1)
	prefs.Add(20, 2)
	clone := prefs.Clone()
	clone.SetValue(0, 100)
	clone.SortByValueReversed()
	assert.Equal(t, []float32{1, 2}, prefs.Values())
	assert.Equal(t, []int64{10, 20}, prefs.IDs())
	assert.Equal(t, []int64{20, 10}, clone.IDs())
	assert.Equal(t, prefs.UserID(), clone.UserID())

	itemPrefs := NewItemPreferences(1)
	itemPrefs.Add(5, 5)
	itemClone := itemPrefs.Clone()
	itemClone.SetValue(0, 1)
	assert.Equal(t, float32(5), itemPrefs.Value(0))
}

func TestCompare(t *testing.T) {
	users := []SimilarUser{{1, 0.5}, {3, 0.9}, {2, 0.9}, {4, -0.2}}
	slices.SortFunc(users, CompareSimilarUsers)
	assert.Equal(t, []SimilarUser{{2, 0.9}, {3, 0.9}, {1, 0.5}, {4, -0.2}}, users)

	items := []RecommendedItem{{1, 2}, {2, 5}, {3, 3}}
	slices.SortFunc(items, CompareRecommendedItems)
	assert.Equal(t, []RecommendedItem{{2, 5}, {3, 3}, {1, 2}}, items)
}

func TestLongPair(t *testing.T) {
	assert.Equal(t, LongPair{1, 2}, NewLongPair(2, 1).Canonical())
	assert.Equal(t, LongPair{1, 2}, NewLongPair(1, 2).Canonical())
	assert.Equal(t, LongPair{2, 1}, NewLongPair(1, 2).Swap())
	assert.Equal(t, "(1,2)", NewLongPair(1, 2).String())
}
