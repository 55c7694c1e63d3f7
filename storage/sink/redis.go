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

	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/storage"
	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

// RedisWriter stores the recommendations of a user in the sorted set
// {prefix}:recommend:{userID}, scored by estimated preference.
type RedisWriter struct {
	*buffer
	client *redis.Client
	prefix storage.TablePrefix
	dict   *dataset.IDDict
}

func newRedisWriter(client *redis.Client, prefix storage.TablePrefix, dict *dataset.IDDict, batchSize int) *RedisWriter {
	w := &RedisWriter{client: client, prefix: prefix, dict: dict}
	w.buffer = newBuffer("redis", batchSize, w.write)
	return w
}

func (w *RedisWriter) Key(userID int64) string {
	return w.prefix.Key("recommend", w.dict.ToStringID(userID))
}

func (w *RedisWriter) write(ctx context.Context, batch []recommendations) error {
	_, err := w.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, rec := range batch {
			key := w.Key(rec.userID)
			pipe.Del(ctx, key)
			if len(rec.items) == 0 {
				continue
			}
			pipe.ZAdd(ctx, key, lo.Map(rec.items, func(item dataset.RecommendedItem, _ int) redis.Z {
				return redis.Z{Score: float64(item.Value), Member: w.dict.ToStringID(item.ItemID)}
			})...)
		}
		return nil
	})
	return errors.Trace(err)
}

func (w *RedisWriter) Close() error {
	if err := w.Flush(context.Background()); err != nil {
		_ = w.client.Close()
		return errors.Trace(err)
	}
	return errors.Trace(w.client.Close())
}
