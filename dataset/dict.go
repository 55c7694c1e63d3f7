// Copyright 2021 gorse Project Authors
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
	"hash/fnv"
	"strconv"
	"sync"
)

// IDDict maps external string IDs to int64 IDs. Decimal strings map to their value and
// other strings to a 64-bit hash, so the mapping is stable across processes.
type IDDict struct {
	mu sync.RWMutex
	si map[string]int64
	is map[int64]string
}

func NewIDDict() *IDDict {
	return &IDDict{
		si: make(map[string]int64),
		is: make(map[int64]string),
	}
}

func (d *IDDict) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.si)
}

func (d *IDDict) ToLongID(s string) int64 {
	if id, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(id, 10) == s {
		return id
	}
	d.mu.RLock()
	id, exist := d.si[s]
	d.mu.RUnlock()
	if exist {
		return id
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	id = int64(h.Sum64())
	d.mu.Lock()
	d.si[s] = id
	d.is[id] = s
	d.mu.Unlock()
	return id
}

func (d *IDDict) ToStringID(id int64) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if s, exist := d.is[id]; exist {
		return s
	}
	return strconv.FormatInt(id, 10)
}
