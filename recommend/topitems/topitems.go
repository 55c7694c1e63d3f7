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

package topitems

import (
	"iter"
	"math"

	"github.com/gorse-io/taste/common/heap"
	"github.com/gorse-io/taste/dataset"
	"github.com/juju/errors"
)

// Rescorer adjusts or vetoes the score of a candidate before ranking.
type Rescorer[T any] interface {
	Rescore(thing T, original float64) float64
	IsFiltered(thing T) bool
}

// IDRescorer rescores users or items.
type IDRescorer = Rescorer[int64]

// PairRescorer rescores pairs of items, keyed by (candidate, seed).
type PairRescorer = Rescorer[dataset.LongPair]

// Estimator scores a candidate. NaN means no estimate and a NotFound error means the
// candidate no longer exists; both skip the candidate.
type Estimator[T any] func(thing T) (float64, error)

// ranksBelow breaks ties on weight by preferring the smaller ID.
func ranksBelow(a, b heap.Elem[int64, float64]) bool {
	if a.Weight != b.Weight {
		return a.Weight < b.Weight
	}
	return a.Value > b.Value
}

func topIDs(howMany int, candidates iter.Seq[int64], rescorer IDRescorer, estimator Estimator[int64]) ([]heap.Elem[int64, float64], error) {
	if howMany < 0 {
		return nil, errors.NotValidf("negative number of results %d", howMany)
	}
	if howMany == 0 {
		return nil, nil
	}
	filter := heap.NewTopKFilterFunc[int64, float64](howMany, ranksBelow)
	for id := range candidates {
		if rescorer != nil && rescorer.IsFiltered(id) {
			continue
		}
		score, err := estimator(id)
		if errors.Is(err, errors.NotFound) {
			continue
		} else if err != nil {
			return nil, errors.Trace(err)
		}
		if rescorer != nil {
			score = rescorer.Rescore(id, score)
		}
		if math.IsNaN(score) {
			continue
		}
		elem := heap.Elem[int64, float64]{Value: id, Weight: score}
		if filter.Full() && !ranksBelow(filter.Min(), elem) {
			continue
		}
		filter.Push(id, score)
	}
	return filter.PopAll(), nil
}

// TopItems returns the howMany best scored items in descending order of score.
func TopItems(howMany int, candidates iter.Seq[int64], rescorer IDRescorer, estimator Estimator[int64]) ([]dataset.RecommendedItem, error) {
	elems, err := topIDs(howMany, candidates, rescorer, estimator)
	if err != nil {
		return nil, errors.Trace(err)
	}
	items := make([]dataset.RecommendedItem, len(elems))
	for i, elem := range elems {
		items[i] = dataset.RecommendedItem{ItemID: elem.Value, Value: float32(elem.Weight)}
	}
	return items, nil
}

// TopUsers returns the howMany most similar users in descending order of similarity,
// ties broken by ascending user ID.
func TopUsers(howMany int, candidates iter.Seq[int64], rescorer IDRescorer, estimator Estimator[int64]) ([]dataset.SimilarUser, error) {
	elems, err := topIDs(howMany, candidates, rescorer, estimator)
	if err != nil {
		return nil, errors.Trace(err)
	}
	users := make([]dataset.SimilarUser, len(elems))
	for i, elem := range elems {
		users[i] = dataset.SimilarUser{UserID: elem.Value, Similarity: elem.Weight}
	}
	return users, nil
}

// TopItemItemSimilarities keeps the howMany most similar item pairs.
func TopItemItemSimilarities(howMany int, similarities iter.Seq[dataset.ItemItemSimilarity]) []dataset.ItemItemSimilarity {
	return topPairs(howMany, similarities, func(s dataset.ItemItemSimilarity) (float64, dataset.LongPair) {
		return s.Similarity, dataset.NewLongPair(s.ItemID1, s.ItemID2)
	})
}

// TopUserUserSimilarities keeps the howMany most similar user pairs.
func TopUserUserSimilarities(howMany int, similarities iter.Seq[dataset.UserUserSimilarity]) []dataset.UserUserSimilarity {
	return topPairs(howMany, similarities, func(s dataset.UserUserSimilarity) (float64, dataset.LongPair) {
		return s.Similarity, dataset.NewLongPair(s.UserID1, s.UserID2)
	})
}

func topPairs[T any](howMany int, similarities iter.Seq[T], key func(T) (float64, dataset.LongPair)) []T {
	if howMany <= 0 {
		return nil
	}
	less := func(a, b heap.Elem[T, float64]) bool {
		if a.Weight != b.Weight {
			return a.Weight < b.Weight
		}
		_, pa := key(a.Value)
		_, pb := key(b.Value)
		if pa.First != pb.First {
			return pa.First > pb.First
		}
		return pa.Second > pb.Second
	}
	filter := heap.NewTopKFilterFunc[T, float64](howMany, less)
	for s := range similarities {
		similarity, _ := key(s)
		if math.IsNaN(similarity) {
			continue
		}
		elem := heap.Elem[T, float64]{Value: s, Weight: similarity}
		if filter.Full() && !less(filter.Min(), elem) {
			continue
		}
		filter.Push(s, similarity)
	}
	return filter.PopAllValues()
}
