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
	"sort"
)

// Preference is the strength of association between a user and an item.
type Preference struct {
	UserID int64
	ItemID int64
	Value  float32
}

// vector holds preferences sharing one fixed ID. ids and values are indexed together
// along the other dimension.
type vector struct {
	fixed  int64
	ids    []int64
	values []float32
}

func (v *vector) Len() int {
	return len(v.ids)
}

func (v *vector) Value(i int) float32 {
	return v.values[i]
}

func (v *vector) SetValue(i int, value float32) {
	v.values[i] = value
}

// IDs returns the backing slice of varying IDs. Callers must not modify it.
func (v *vector) IDs() []int64 {
	return v.ids
}

// Values returns the backing slice of values. Callers must not modify it.
func (v *vector) Values() []float32 {
	return v.values
}

// Index returns the position of id, or -1.
func (v *vector) Index(id int64) int {
	return slices.Index(v.ids, id)
}

// Search returns the position of id in a vector sorted by ID, or -1.
func (v *vector) Search(id int64) int {
	if i, found := slices.BinarySearch(v.ids, id); found {
		return i
	}
	return -1
}

func (v *vector) Has(id int64) bool {
	return v.Index(id) >= 0
}

func (v *vector) append(id int64, value float32) {
	v.ids = append(v.ids, id)
	v.values = append(v.values, value)
}

func (v *vector) clone() vector {
	return vector{
		fixed:  v.fixed,
		ids:    slices.Clone(v.ids),
		values: slices.Clone(v.values),
	}
}

func (v *vector) Swap(i, j int) {
	v.ids[i], v.ids[j] = v.ids[j], v.ids[i]
	v.values[i], v.values[j] = v.values[j], v.values[i]
}

type byID struct{ *vector }

func (s byID) Less(i, j int) bool { return s.ids[i] < s.ids[j] }

type byValue struct{ *vector }

func (s byValue) Less(i, j int) bool { return s.values[i] < s.values[j] }

type byValueReversed struct{ *vector }

func (s byValueReversed) Less(i, j int) bool { return s.values[i] > s.values[j] }

func (v *vector) SortByID() {
	sort.Sort(byID{v})
}

// SortByValue sorts ascending by value. Ties keep their relative order.
func (v *vector) SortByValue() {
	sort.Stable(byValue{v})
}

// SortByValueReversed sorts descending by value. Ties keep their relative order.
func (v *vector) SortByValueReversed() {
	sort.Stable(byValueReversed{v})
}

// UserPreferences are preferences of one user, indexed by item.
type UserPreferences struct {
	vector
}

func NewUserPreferences(userID int64) *UserPreferences {
	return &UserPreferences{vector{fixed: userID}}
}

func (p *UserPreferences) UserID() int64 {
	return p.fixed
}

func (p *UserPreferences) ItemID(i int) int64 {
	return p.ids[i]
}

func (p *UserPreferences) SetItemID(i int, itemID int64) {
	p.ids[i] = itemID
}

func (p *UserPreferences) Get(i int) Preference {
	return Preference{UserID: p.fixed, ItemID: p.ids[i], Value: p.values[i]}
}

func (p *UserPreferences) Add(itemID int64, value float32) {
	p.append(itemID, value)
}

func (p *UserPreferences) Clone() *UserPreferences {
	return &UserPreferences{p.clone()}
}

// ItemPreferences are preferences for one item, indexed by user.
type ItemPreferences struct {
	vector
}

func NewItemPreferences(itemID int64) *ItemPreferences {
	return &ItemPreferences{vector{fixed: itemID}}
}

func (p *ItemPreferences) ItemID() int64 {
	return p.fixed
}

func (p *ItemPreferences) UserID(i int) int64 {
	return p.ids[i]
}

func (p *ItemPreferences) SetUserID(i int, userID int64) {
	p.ids[i] = userID
}

func (p *ItemPreferences) Get(i int) Preference {
	return Preference{UserID: p.ids[i], ItemID: p.fixed, Value: p.values[i]}
}

func (p *ItemPreferences) Add(userID int64, value float32) {
	p.append(userID, value)
}

func (p *ItemPreferences) Clone() *ItemPreferences {
	return &ItemPreferences{p.clone()}
}
