// Copyright 2024 gorse Project Authors
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

package sink

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/gorse-io/taste/base/log"
	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/storage"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var FlushSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "taste",
	Subsystem: "sink",
	Name:      "flush_seconds",
}, []string{"sink"})

// ItemWriter stores recommendations. Writes are buffered and a later write for a user
// replaces an earlier one. Close flushes what is left.
type ItemWriter interface {
	Write(ctx context.Context, userID int64, items []dataset.RecommendedItem) error
	Flush(ctx context.Context) error
	Close() error
}

// Open a result sink. IDs are written as strings through dict, which may be nil.
func Open(ctx context.Context, dsn, tablePrefix string, dict *dataset.IDDict, opts ...storage.Option) (ItemWriter, error) {
	if dict == nil {
		dict = dataset.NewIDDict()
	}
	opt := storage.NewOptions(opts...)
	prefix := storage.TablePrefix(tablePrefix)
	switch storage.KindOf(dsn) {
	case storage.SQL:
		database, err := storage.OpenSQL(ctx, dsn, opt)
		if err != nil {
			return nil, errors.Trace(err)
		}
		w, err := newSQLWriter(ctx, database, prefix.RecommendationsTable(), dict, opt.BatchSize)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return w, nil
	case storage.Redis:
		client, err := storage.OpenRedis(ctx, dsn, opt)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return newRedisWriter(client, prefix, dict, opt.BatchSize), nil
	case storage.Mongo:
		database, err := storage.OpenMongo(ctx, dsn, opt)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return newMongoWriter(database.Collection(prefix.RecommendationsTable()), dict, opt.BatchSize), nil
	case storage.CSV:
		w, err := newCSVWriter(dsn[len(storage.CSVPrefix):], dict, opt.BatchSize)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return w, nil
	}
	return nil, errors.NotSupportedf("result store %s", log.RedactDBURL(dsn))
}

type recommendations struct {
	userID int64
	items  []dataset.RecommendedItem
}

// buffer holds recommendations until batchSize items are pending.
type buffer struct {
	name      string
	batchSize int
	flush     func(ctx context.Context, batch []recommendations) error

	mu      sync.Mutex
	pending []recommendations
	index   map[int64]int
	size    int
}

func newBuffer(name string, batchSize int, flush func(context.Context, []recommendations) error) *buffer {
	return &buffer{
		name:      name,
		batchSize: max(batchSize, 1),
		flush:     flush,
		index:     make(map[int64]int),
	}
}

func (b *buffer) Write(ctx context.Context, userID int64, items []dataset.RecommendedItem) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	items = slices.Clone(items)
	if i, exist := b.index[userID]; exist {
		b.size += len(items) - len(b.pending[i].items)
		b.pending[i].items = items
	} else {
		b.index[userID] = len(b.pending)
		b.pending = append(b.pending, recommendations{userID: userID, items: items})
		b.size += len(items)
	}
	if b.size >= b.batchSize {
		return b.flushLocked(ctx)
	}
	return nil
}

func (b *buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(ctx)
}

func (b *buffer) flushLocked(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	start := time.Now()
	if err := b.flush(ctx, b.pending); err != nil {
		return errors.Trace(err)
	}
	FlushSeconds.WithLabelValues(b.name).Observe(time.Since(start).Seconds())
	log.Logger().Debug("flush recommendations",
		zap.String("sink", b.name),
		zap.Int("n_users", len(b.pending)),
		zap.Int("n_items", b.size))
	b.pending = nil
	b.size = 0
	clear(b.index)
	return nil
}
