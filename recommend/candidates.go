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

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/taste/config"
	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/similarity"
	"github.com/juju/errors"
)

// CandidateItemsStrategy chooses the items scored for a user.
type CandidateItemsStrategy interface {
	CandidateItems(userID int64, preferences *dataset.UserPreferences, model dataset.DataModel, includeKnownItems bool) ([]int64, error)
}

// MostSimilarItemsCandidateItemsStrategy chooses the items scored against seed items.
// Seeds are never candidates.
type MostSimilarItemsCandidateItemsStrategy interface {
	CandidateItemsForItems(itemIDs []int64, model dataset.DataModel) ([]int64, error)
}

// candidateSet collects candidates and removes the known ones.
func candidateSet(candidates mapset.Set[int64], known []int64, removeKnown bool) []int64 {
	if removeKnown {
		candidates.RemoveAll(known...)
	}
	ids := candidates.ToSlice()
	slices.Sort(ids)
	return ids
}

// PreferredItemsNeighborhoodStrategy picks the items preferred by users who share a
// preferred item with the user.
type PreferredItemsNeighborhoodStrategy struct{}

func NewPreferredItemsNeighborhoodStrategy() *PreferredItemsNeighborhoodStrategy {
	return &PreferredItemsNeighborhoodStrategy{}
}

func (s *PreferredItemsNeighborhoodStrategy) CandidateItems(_ int64, preferences *dataset.UserPreferences, model dataset.DataModel, includeKnownItems bool) ([]int64, error) {
	seeds := preferences.IDs()
	candidates, err := s.neighborItems(seeds, model)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return candidateSet(candidates, seeds, !includeKnownItems), nil
}

func (s *PreferredItemsNeighborhoodStrategy) CandidateItemsForItems(itemIDs []int64, model dataset.DataModel) ([]int64, error) {
	candidates, err := s.neighborItems(itemIDs, model)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return candidateSet(candidates, itemIDs, true), nil
}

func (s *PreferredItemsNeighborhoodStrategy) neighborItems(itemIDs []int64, model dataset.DataModel) (mapset.Set[int64], error) {
	candidates := mapset.NewThreadUnsafeSet[int64]()
	visited := mapset.NewThreadUnsafeSet[int64]()
	for _, itemID := range itemIDs {
		users, err := model.PreferencesForItem(itemID)
		if errors.Is(err, errors.NotFound) {
			continue
		} else if err != nil {
			return nil, errors.Trace(err)
		}
		for _, userID := range users.IDs() {
			if !visited.Add(userID) {
				continue
			}
			items, err := model.ItemIDsFromUser(userID)
			if errors.Is(err, errors.NotFound) {
				continue
			} else if err != nil {
				return nil, errors.Trace(err)
			}
			candidates.Append(items...)
		}
	}
	return candidates, nil
}

// AllUnknownItemsStrategy picks every item the user has no preference for.
type AllUnknownItemsStrategy struct{}

func NewAllUnknownItemsStrategy() *AllUnknownItemsStrategy {
	return &AllUnknownItemsStrategy{}
}

func (s *AllUnknownItemsStrategy) CandidateItems(_ int64, preferences *dataset.UserPreferences, model dataset.DataModel, includeKnownItems bool) ([]int64, error) {
	return candidateSet(mapset.NewThreadUnsafeSet(model.ItemIDs()...), preferences.IDs(), !includeKnownItems), nil
}

func (s *AllUnknownItemsStrategy) CandidateItemsForItems(itemIDs []int64, model dataset.DataModel) ([]int64, error) {
	return candidateSet(mapset.NewThreadUnsafeSet(model.ItemIDs()...), itemIDs, true), nil
}

// AllSimilarItemsStrategy picks every item with a defined similarity to a preferred item.
type AllSimilarItemsStrategy struct {
	similarity similarity.ItemSimilarity
}

func NewAllSimilarItemsStrategy(similarity similarity.ItemSimilarity) *AllSimilarItemsStrategy {
	return &AllSimilarItemsStrategy{similarity: similarity}
}

func (s *AllSimilarItemsStrategy) CandidateItems(_ int64, preferences *dataset.UserPreferences, _ dataset.DataModel, includeKnownItems bool) ([]int64, error) {
	seeds := preferences.IDs()
	candidates, err := s.similarItems(seeds)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return candidateSet(candidates, seeds, !includeKnownItems), nil
}

func (s *AllSimilarItemsStrategy) CandidateItemsForItems(itemIDs []int64, _ dataset.DataModel) ([]int64, error) {
	candidates, err := s.similarItems(itemIDs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return candidateSet(candidates, itemIDs, true), nil
}

func (s *AllSimilarItemsStrategy) similarItems(itemIDs []int64) (mapset.Set[int64], error) {
	candidates := mapset.NewThreadUnsafeSet[int64]()
	for _, itemID := range itemIDs {
		similar, err := s.similarity.AllSimilarItemIDs(itemID)
		if errors.Is(err, errors.NotFound) {
			continue
		} else if err != nil {
			return nil, errors.Trace(err)
		}
		candidates.Append(similar...)
	}
	return candidates, nil
}

// NewCandidateItemsStrategy resolves a strategy name. The similarity is only used by
// the all similar items strategy.
func NewCandidateItemsStrategy(name string, sim similarity.ItemSimilarity) (CandidateItemsStrategy, error) {
	switch name {
	case config.PreferredItems, "":
		return NewPreferredItemsNeighborhoodStrategy(), nil
	case config.AllUnknownItems:
		return NewAllUnknownItemsStrategy(), nil
	case config.AllSimilarItems:
		if sim == nil {
			return nil, errors.NotValidf("all similar items strategy without item similarity")
		}
		return NewAllSimilarItemsStrategy(sim), nil
	default:
		return nil, errors.NotSupportedf("candidate strategy %s", name)
	}
}
