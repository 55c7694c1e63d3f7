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
	"cmp"
	"fmt"

	"github.com/juju/errors"
)

// ErrUserNotExist and ErrItemNotExist are returned for unknown IDs. Check them with
// errors.Is(err, errors.NotFound).
func ErrUserNotExist(userID int64) error {
	return errors.NotFoundf("user %d", userID)
}

func ErrItemNotExist(itemID int64) error {
	return errors.NotFoundf("item %d", itemID)
}

// SimilarUser is a user and its similarity to some other user.
type SimilarUser struct {
	UserID     int64
	Similarity float64
}

// CompareSimilarUsers orders by descending similarity, then ascending user ID.
func CompareSimilarUsers(a, b SimilarUser) int {
	if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
		return c
	}
	return cmp.Compare(a.UserID, b.UserID)
}

func (u SimilarUser) String() string {
	return fmt.Sprintf("SimilarUser[user:%d, similarity:%g]", u.UserID, u.Similarity)
}

// SimilarItem is an item and its similarity to some other item.
type SimilarItem struct {
	ItemID     int64
	Similarity float64
}

// RecommendedItem is an item with its estimated preference or score.
type RecommendedItem struct {
	ItemID int64
	Value  float32
}

// CompareRecommendedItems orders by descending value, then ascending item ID.
func CompareRecommendedItems(a, b RecommendedItem) int {
	if c := cmp.Compare(b.Value, a.Value); c != 0 {
		return c
	}
	return cmp.Compare(a.ItemID, b.ItemID)
}

func (r RecommendedItem) String() string {
	return fmt.Sprintf("RecommendedItem[item:%d, value:%g]", r.ItemID, r.Value)
}

// LongPair is an ordered pair of IDs.
type LongPair struct {
	First  int64
	Second int64
}

func NewLongPair(first, second int64) LongPair {
	return LongPair{First: first, Second: second}
}

// Canonical returns the pair with the smaller ID first, so both orders share one key.
func (p LongPair) Canonical() LongPair {
	if p.First <= p.Second {
		return p
	}
	return LongPair{First: p.Second, Second: p.First}
}

func (p LongPair) Swap() LongPair {
	return LongPair{First: p.Second, Second: p.First}
}

func (p LongPair) String() string {
	return fmt.Sprintf("(%d,%d)", p.First, p.Second)
}

// ItemItemSimilarity is the similarity of two items.
type ItemItemSimilarity struct {
	ItemID1    int64
	ItemID2    int64
	Similarity float64
}

// UserUserSimilarity is the similarity of two users.
type UserUserSimilarity struct {
	UserID1    int64
	UserID2    int64
	Similarity float64
}
