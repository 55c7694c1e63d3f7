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
	"sync"

	"github.com/chewxy/math32"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/atomic"
)

// DataModel provides preference data. Vectors returned by a DataModel are shared and must
// not be modified; clone them first.
type DataModel interface {
	// UserIDs returns all user IDs in ascending order.
	UserIDs() []int64
	// ItemIDs returns all item IDs in ascending order.
	ItemIDs() []int64
	// PreferencesFromUser returns preferences of a user sorted by item ID.
	PreferencesFromUser(userID int64) (*UserPreferences, error)
	// PreferencesForItem returns preferences for an item sorted by user ID.
	PreferencesForItem(itemID int64) (*ItemPreferences, error)
	// ItemIDsFromUser returns items preferred by a user in ascending order.
	ItemIDsFromUser(userID int64) ([]int64, error)
	// PreferenceValue returns the stored preference, or NaN if the user has none for the item.
	PreferenceValue(userID, itemID int64) (float32, error)
	NumUsers() int
	NumItems() int
	// NumUsersWithPreferenceFor counts users preferring all the given items.
	NumUsersWithPreferenceFor(itemIDs ...int64) (int, error)
	// HasPreferenceValues is false when only presence of preferences matters.
	HasPreferenceValues() bool
	// MaxPreference and MinPreference bound preference values. NaN means unbounded.
	MaxPreference() float32
	MinPreference() float32
	SetPreference(userID, itemID int64, value float32) error
	RemovePreference(userID, itemID int64) error
	// Generation increases whenever preferences change or the model is refreshed.
	Generation() uint64
	Refresh()
}

// GenericDataModel is an in-memory DataModel. Mutations replace vectors instead of
// modifying them, so vectors handed out earlier stay consistent.
type GenericDataModel struct {
	mu         sync.RWMutex
	userIDs    []int64
	itemIDs    []int64
	users      map[int64]*UserPreferences
	items      map[int64]*ItemPreferences
	minPref    float32
	maxPref    float32
	generation atomic.Uint64
}

// NewGenericDataModel builds a model from preferences. Later duplicates of a (user, item)
// pair override earlier ones.
func NewGenericDataModel(preferences []Preference) (*GenericDataModel, error) {
	users := make(map[int64]*UserPreferences)
	for _, pref := range preferences {
		if math32.IsNaN(pref.Value) {
			return nil, errors.NotValidf("NaN preference of user %d for item %d", pref.UserID, pref.ItemID)
		}
		userPrefs, exist := users[pref.UserID]
		if !exist {
			userPrefs = NewUserPreferences(pref.UserID)
			users[pref.UserID] = userPrefs
		}
		userPrefs.Add(pref.ItemID, pref.Value)
	}
	return NewGenericDataModelFromUsers(lo.Values(users))
}

// NewGenericDataModelFromUsers builds a model from per-user vectors. The vectors are copied.
func NewGenericDataModelFromUsers(users []*UserPreferences) (*GenericDataModel, error) {
	model := &GenericDataModel{
		users:   make(map[int64]*UserPreferences, len(users)),
		items:   make(map[int64]*ItemPreferences),
		minPref: math32.NaN(),
		maxPref: math32.NaN(),
	}
	for _, userPrefs := range users {
		deduplicated := NewUserPreferences(userPrefs.UserID())
		latest := make(map[int64]float32, userPrefs.Len())
		for i := 0; i < userPrefs.Len(); i++ {
			value := userPrefs.Value(i)
			if math32.IsNaN(value) {
				return nil, errors.NotValidf("NaN preference of user %d for item %d", userPrefs.UserID(), userPrefs.ItemID(i))
			}
			latest[userPrefs.ItemID(i)] = value
		}
		if previous, exist := model.users[userPrefs.UserID()]; exist {
			for i := 0; i < previous.Len(); i++ {
				if _, overridden := latest[previous.ItemID(i)]; !overridden {
					latest[previous.ItemID(i)] = previous.Value(i)
				}
			}
		}
		for itemID, value := range latest {
			deduplicated.Add(itemID, value)
		}
		deduplicated.SortByID()
		model.users[userPrefs.UserID()] = deduplicated
	}
	for _, userPrefs := range model.users {
		for i := 0; i < userPrefs.Len(); i++ {
			itemID, value := userPrefs.ItemID(i), userPrefs.Value(i)
			itemPrefs, exist := model.items[itemID]
			if !exist {
				itemPrefs = NewItemPreferences(itemID)
				model.items[itemID] = itemPrefs
			}
			itemPrefs.Add(userPrefs.UserID(), value)
			model.updateBounds(value)
		}
	}
	for _, itemPrefs := range model.items {
		itemPrefs.SortByID()
	}
	model.userIDs = sortedKeys(model.users)
	model.itemIDs = sortedKeys(model.items)
	return model, nil
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}

func (m *GenericDataModel) updateBounds(value float32) {
	if math32.IsNaN(m.maxPref) || value > m.maxPref {
		m.maxPref = value
	}
	if math32.IsNaN(m.minPref) || value < m.minPref {
		m.minPref = value
	}
}

func (m *GenericDataModel) UserIDs() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userIDs
}

func (m *GenericDataModel) ItemIDs() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.itemIDs
}

func (m *GenericDataModel) PreferencesFromUser(userID int64) (*UserPreferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	userPrefs, exist := m.users[userID]
	if !exist {
		return nil, ErrUserNotExist(userID)
	}
	return userPrefs, nil
}

func (m *GenericDataModel) PreferencesForItem(itemID int64) (*ItemPreferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	itemPrefs, exist := m.items[itemID]
	if !exist {
		return nil, ErrItemNotExist(itemID)
	}
	return itemPrefs, nil
}

func (m *GenericDataModel) ItemIDsFromUser(userID int64) ([]int64, error) {
	userPrefs, err := m.PreferencesFromUser(userID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return userPrefs.IDs(), nil
}

func (m *GenericDataModel) PreferenceValue(userID, itemID int64) (float32, error) {
	userPrefs, err := m.PreferencesFromUser(userID)
	if err != nil {
		return math32.NaN(), errors.Trace(err)
	}
	if i := userPrefs.Search(itemID); i >= 0 {
		return userPrefs.Value(i), nil
	}
	return math32.NaN(), nil
}

func (m *GenericDataModel) NumUsers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.userIDs)
}

func (m *GenericDataModel) NumItems() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.itemIDs)
}

func (m *GenericDataModel) NumUsersWithPreferenceFor(itemIDs ...int64) (int, error) {
	if len(itemIDs) == 0 {
		return 0, errors.NotValidf("empty item IDs")
	}
	var intersection []int64
	for i, itemID := range itemIDs {
		itemPrefs, err := m.PreferencesForItem(itemID)
		if errors.Is(err, errors.NotFound) {
			return 0, nil
		} else if err != nil {
			return 0, errors.Trace(err)
		}
		if i == 0 {
			intersection = itemPrefs.IDs()
		} else {
			intersection = IntersectSorted(intersection, itemPrefs.IDs())
		}
	}
	return len(intersection), nil
}

// IntersectSorted intersects two ascending ID slices.
func IntersectSorted(a, b []int64) []int64 {
	var result []int64
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			result = append(result, a[i])
			i++
			j++
		}
	}
	return result
}

func (m *GenericDataModel) HasPreferenceValues() bool {
	return true
}

func (m *GenericDataModel) MaxPreference() float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxPref
}

func (m *GenericDataModel) MinPreference() float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.minPref
}

func (m *GenericDataModel) SetPreference(userID, itemID int64, value float32) error {
	if math32.IsNaN(value) {
		return errors.NotValidf("NaN preference of user %d for item %d", userID, itemID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// user side
	userPrefs, exist := m.users[userID]
	if exist {
		userPrefs = userPrefs.Clone()
	} else {
		userPrefs = NewUserPreferences(userID)
		m.userIDs = insertSorted(m.userIDs, userID)
	}
	if i := userPrefs.Search(itemID); i >= 0 {
		userPrefs.SetValue(i, value)
	} else {
		userPrefs.Add(itemID, value)
		userPrefs.SortByID()
	}
	m.users[userID] = userPrefs
	// item side
	itemPrefs, exist := m.items[itemID]
	if exist {
		itemPrefs = itemPrefs.Clone()
	} else {
		itemPrefs = NewItemPreferences(itemID)
		m.itemIDs = insertSorted(m.itemIDs, itemID)
	}
	if i := itemPrefs.Search(userID); i >= 0 {
		itemPrefs.SetValue(i, value)
	} else {
		itemPrefs.Add(userID, value)
		itemPrefs.SortByID()
	}
	m.items[itemID] = itemPrefs
	m.updateBounds(value)
	m.generation.Inc()
	return nil
}

// RemovePreference deletes a preference. Users and items left without preferences are
// removed. Bounds are not narrowed.
func (m *GenericDataModel) RemovePreference(userID, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	userPrefs, exist := m.users[userID]
	if !exist {
		return ErrUserNotExist(userID)
	}
	i := userPrefs.Search(itemID)
	if i < 0 {
		return nil
	}
	if userPrefs.Len() == 1 {
		delete(m.users, userID)
		m.userIDs = removeSorted(m.userIDs, userID)
	} else {
		remaining := NewUserPreferences(userID)
		remaining.ids = slices.Delete(slices.Clone(userPrefs.ids), i, i+1)
		remaining.values = slices.Delete(slices.Clone(userPrefs.values), i, i+1)
		m.users[userID] = remaining
	}
	itemPrefs := m.items[itemID]
	j := itemPrefs.Search(userID)
	if itemPrefs.Len() == 1 {
		delete(m.items, itemID)
		m.itemIDs = removeSorted(m.itemIDs, itemID)
	} else {
		remaining := NewItemPreferences(itemID)
		remaining.ids = slices.Delete(slices.Clone(itemPrefs.ids), j, j+1)
		remaining.values = slices.Delete(slices.Clone(itemPrefs.values), j, j+1)
		m.items[itemID] = remaining
	}
	m.generation.Inc()
	return nil
}

func insertSorted(ids []int64, id int64) []int64 {
	i, _ := slices.BinarySearch(ids, id)
	return slices.Insert(slices.Clone(ids), i, id)
}

func removeSorted(ids []int64, id int64) []int64 {
	i, found := slices.BinarySearch(ids, id)
	if !found {
		return ids
	}
	return slices.Delete(slices.Clone(ids), i, i+1)
}

func (m *GenericDataModel) Generation() uint64 {
	return m.generation.Load()
}

// Refresh only advances the generation since the model has no backing store.
func (m *GenericDataModel) Refresh() {
	m.generation.Inc()
}

// BooleanDataModel keeps only which users prefer which items. Every preference value is 1
// and the model is immutable.
type BooleanDataModel struct {
	*GenericDataModel
}

// NewBooleanDataModel builds a boolean model from (user, item) pairs. Values are ignored.
func NewBooleanDataModel(preferences []Preference) (*BooleanDataModel, error) {
	return newBooleanDataModel(NewGenericDataModel(lo.Map(preferences, func(p Preference, _ int) Preference {
		return Preference{UserID: p.UserID, ItemID: p.ItemID, Value: 1}
	})))
}

// ToBooleanDataModel drops the values of a model.
func ToBooleanDataModel(model DataModel) (*BooleanDataModel, error) {
	var prefs []Preference
	for _, userID := range model.UserIDs() {
		userPrefs, err := model.PreferencesFromUser(userID)
		if err != nil {
			return nil, errors.Trace(err)
		}
		for i := 0; i < userPrefs.Len(); i++ {
			prefs = append(prefs, userPrefs.Get(i))
		}
	}
	return NewBooleanDataModel(prefs)
}

func newBooleanDataModel(model *GenericDataModel, err error) (*BooleanDataModel, error) {
	if err != nil {
		return nil, errors.Trace(err)
	}
	model.minPref, model.maxPref = 1, 1
	return &BooleanDataModel{GenericDataModel: model}, nil
}

func (m *BooleanDataModel) HasPreferenceValues() bool {
	return false
}

func (m *BooleanDataModel) SetPreference(userID, itemID int64, _ float32) error {
	return errors.NotSupportedf("set preference of user %d for item %d on boolean data", userID, itemID)
}

func (m *BooleanDataModel) RemovePreference(userID, itemID int64) error {
	return errors.NotSupportedf("remove preference of user %d for item %d on boolean data", userID, itemID)
}
