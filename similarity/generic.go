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
	"iter"
	"math"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/taste/common/parallel"
	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/recommend/topitems"
	"github.com/juju/errors"
)

type pairTable struct {
	values  map[dataset.LongPair]float64
	similar map[int64]mapset.Set[int64]
}

func newPairTable() pairTable {
	return pairTable{
		values:  make(map[dataset.LongPair]float64),
		similar: make(map[int64]mapset.Set[int64]),
	}
}

func (t pairTable) put(id1, id2 int64, similarity float64) {
	if id1 == id2 || math.IsNaN(similarity) {
		return
	}
	t.values[dataset.NewLongPair(id1, id2).Canonical()] = similarity
	for _, p := range [][2]int64{{id1, id2}, {id2, id1}} {
		set, exist := t.similar[p[0]]
		if !exist {
			set = mapset.NewThreadUnsafeSet[int64]()
			t.similar[p[0]] = set
		}
		set.Add(p[1])
	}
}

func (t pairTable) get(id1, id2 int64) float64 {
	if id1 == id2 {
		return 1
	}
	if value, exist := t.values[dataset.NewLongPair(id1, id2).Canonical()]; exist {
		return value
	}
	return math.NaN()
}

func (t pairTable) neighbors(id int64) []int64 {
	set, exist := t.similar[id]
	if !exist {
		return nil
	}
	ids := set.ToSlice()
	slices.Sort(ids)
	return ids
}

// allPairs scores every unordered pair of ids in parallel.
func allPairs(ctx context.Context, ids []int64, jobs int, score func(id1, id2 int64) (float64, error)) ([][]dataset.ItemItemSimilarity, error) {
	rows := make([][]dataset.ItemItemSimilarity, len(ids))
	err := parallel.Parallel(ctx, len(ids), jobs, func(_, i int) error {
		for j := i + 1; j < len(ids); j++ {
			value, err := score(ids[i], ids[j])
			if err != nil {
				return errors.Trace(err)
			}
			if !math.IsNaN(value) {
				rows[i] = append(rows[i], dataset.ItemItemSimilarity{ItemID1: ids[i], ItemID2: ids[j], Similarity: value})
			}
		}
		return nil
	})
	return rows, errors.Trace(err)
}

func flatten(rows [][]dataset.ItemItemSimilarity) iter.Seq[dataset.ItemItemSimilarity] {
	return func(yield func(dataset.ItemItemSimilarity) bool) {
		for _, row := range rows {
			for _, s := range row {
				if !yield(s) {
					return
				}
			}
		}
	}
}

// GenericItemSimilarity serves precomputed item-item similarities. Unknown pairs are NaN
// and an item is fully similar to itself.
type GenericItemSimilarity struct {
	table pairTable
}

func NewGenericItemSimilarity(similarities []dataset.ItemItemSimilarity) *GenericItemSimilarity {
	table := newPairTable()
	for _, s := range similarities {
		table.put(s.ItemID1, s.ItemID2, s.Similarity)
	}
	return &GenericItemSimilarity{table: table}
}

// NewGenericItemSimilarityFrom precomputes all pairs of items in the model with another
// metric. If maxToKeep > 0, only the maxToKeep most similar pairs are kept.
func NewGenericItemSimilarityFrom(ctx context.Context, other ItemSimilarity, model dataset.DataModel, maxToKeep, jobs int) (*GenericItemSimilarity, error) {
	rows, err := allPairs(ctx, model.ItemIDs(), jobs, other.ItemSimilarity)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if maxToKeep > 0 {
		return NewGenericItemSimilarity(topitems.TopItemItemSimilarities(maxToKeep, flatten(rows))), nil
	}
	return NewGenericItemSimilarity(slices.Concat(rows...)), nil
}

func (s *GenericItemSimilarity) ItemSimilarity(itemID1, itemID2 int64) (float64, error) {
	return s.table.get(itemID1, itemID2), nil
}

func (s *GenericItemSimilarity) ItemSimilarities(itemID1 int64, itemID2s []int64) ([]float64, error) {
	return itemSimilarities(s, itemID1, itemID2s)
}

func (s *GenericItemSimilarity) AllSimilarItemIDs(itemID int64) ([]int64, error) {
	return s.table.neighbors(itemID), nil
}

func (s *GenericItemSimilarity) Refresh() {}

// GenericUserSimilarity serves precomputed user-user similarities.
type GenericUserSimilarity struct {
	table pairTable
}

func NewGenericUserSimilarity(similarities []dataset.UserUserSimilarity) *GenericUserSimilarity {
	table := newPairTable()
	for _, s := range similarities {
		table.put(s.UserID1, s.UserID2, s.Similarity)
	}
	return &GenericUserSimilarity{table: table}
}

// NewGenericUserSimilarityFrom precomputes all pairs of users in the model with another
// metric. If maxToKeep > 0, only the maxToKeep most similar pairs are kept.
func NewGenericUserSimilarityFrom(ctx context.Context, other UserSimilarity, model dataset.DataModel, maxToKeep, jobs int) (*GenericUserSimilarity, error) {
	rows, err := allPairs(ctx, model.UserIDs(), jobs, other.UserSimilarity)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var similarities []dataset.UserUserSimilarity
	for s := range flatten(rows) {
		similarities = append(similarities, dataset.UserUserSimilarity{
			UserID1:    s.ItemID1,
			UserID2:    s.ItemID2,
			Similarity: s.Similarity,
		})
	}
	if maxToKeep > 0 {
		similarities = topitems.TopUserUserSimilarities(maxToKeep, slices.Values(similarities))
	}
	return NewGenericUserSimilarity(similarities), nil
}

func (s *GenericUserSimilarity) UserSimilarity(userID1, userID2 int64) (float64, error) {
	return s.table.get(userID1, userID2), nil
}

func (s *GenericUserSimilarity) SetPreferenceInferrer(PreferenceInferrer) error {
	return notSupportedInferrer("precomputed user similarity")
}

func (s *GenericUserSimilarity) Refresh() {}
