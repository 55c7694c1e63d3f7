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

// FuncRescorer adapts functions to a Rescorer. A nil function keeps the score or filters
// nothing.
type FuncRescorer[T any] struct {
	RescoreFunc func(thing T, original float64) float64
	FilterFunc  func(thing T) bool
}

func (r FuncRescorer[T]) Rescore(thing T, original float64) float64 {
	if r.RescoreFunc == nil {
		return original
	}
	return r.RescoreFunc(thing, original)
}

func (r FuncRescorer[T]) IsFiltered(thing T) bool {
	return r.FilterFunc != nil && r.FilterFunc(thing)
}

// ExcludeIDs filters the given IDs.
func ExcludeIDs(ids ...int64) IDRescorer {
	excluded := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		excluded[id] = struct{}{}
	}
	return FuncRescorer[int64]{FilterFunc: func(id int64) bool {
		_, exist := excluded[id]
		return exist
	}}
}
