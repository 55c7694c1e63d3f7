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

package cache

import (
	"fmt"
	"sync"

	"github.com/jellydator/ttlcache/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"
)

const LabelCache = "cache"

var (
	HitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taste",
		Subsystem: "cache",
		Name:      "hits_total",
	}, []string{LabelCache})
	MissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taste",
		Subsystem: "cache",
		Name:      "misses_total",
	}, []string{LabelCache})
)

// Cache is a bounded LRU memo. Concurrent lookups of a missing key run the compute
// function once. If a generation source is given, the whole cache is dropped whenever
// the generation moves.
type Cache[K comparable, V any] struct {
	name       string
	items      *ttlcache.Cache[K, V]
	group      singleflight.Group
	generation func() uint64
	seen       atomic.Uint64
	mu         sync.Mutex
}

// New creates a cache holding at most capacity entries. capacity <= 0 means unbounded.
func New[K comparable, V any](name string, capacity int, generation func() uint64) *Cache[K, V] {
	var options []ttlcache.Option[K, V]
	if capacity > 0 {
		options = append(options, ttlcache.WithCapacity[K, V](uint64(capacity)))
	}
	c := &Cache[K, V]{
		name:       name,
		items:      ttlcache.New[K, V](options...),
		generation: generation,
	}
	if generation != nil {
		c.seen.Store(generation())
	}
	return c
}

func (c *Cache[K, V]) checkGeneration() {
	if c.generation == nil {
		return
	}
	g := c.generation()
	if g == c.seen.Load() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if g != c.seen.Load() {
		c.items.DeleteAll()
		c.seen.Store(g)
	}
}

// Get returns a cached value without computing it.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.checkGeneration()
	if item := c.items.Get(key); item != nil {
		return item.Value(), true
	}
	var zero V
	return zero, false
}

// GetOrCompute returns the cached value for key or computes and stores it. Errors are
// returned to every waiting caller and never cached.
func (c *Cache[K, V]) GetOrCompute(key K, compute func() (V, error)) (V, error) {
	c.checkGeneration()
	if item := c.items.Get(key); item != nil {
		HitsTotal.WithLabelValues(c.name).Inc()
		return item.Value(), nil
	}
	MissesTotal.WithLabelValues(c.name).Inc()
	v, err, _ := c.group.Do(fmt.Sprint(key), func() (any, error) {
		value, err := compute()
		if err != nil {
			return value, err
		}
		c.items.Set(key, value, ttlcache.NoTTL)
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.checkGeneration()
	c.items.Set(key, value, ttlcache.NoTTL)
}

func (c *Cache[K, V]) Remove(key K) {
	c.items.Delete(key)
}

// RemoveIf evicts every key matching the predicate.
func (c *Cache[K, V]) RemoveIf(pred func(key K) bool) {
	for _, key := range c.items.Keys() {
		if pred(key) {
			c.items.Delete(key)
		}
	}
}

func (c *Cache[K, V]) Clear() {
	c.items.DeleteAll()
}

func (c *Cache[K, V]) Len() int {
	return c.items.Len()
}
