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

package data

import (
	"context"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/storage"
	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

const redisScanCount = 1000

// RedisSource keeps the user IDs in the set {prefix}:users and the preferences of each
// user in the hash {prefix}:user:{id}, mapping item IDs to values. Boolean preferences
// have empty values.
type RedisSource struct {
	client *redis.Client
	prefix storage.TablePrefix
	dict   *dataset.IDDict
}

func (r *RedisSource) Init(context.Context) error {
	return nil
}

func (r *RedisSource) Load(ctx context.Context) (dataset.DataModel, error) {
	b := newBuilder("redis", r.dict)
	visited := mapset.NewThreadUnsafeSet[string]()
	var cursor uint64
	for {
		userIDs, next, err := r.client.SScan(ctx, r.prefix.Key("users"), cursor, "", redisScanCount).Result()
		if err != nil {
			return nil, errors.Trace(err)
		}
		// SSCAN may return an element more than once
		userIDs = lo.Filter(userIDs, func(userID string, _ int) bool {
			return visited.Add(userID)
		})
		pipe := r.client.Pipeline()
		commands := make([]*redis.MapStringStringCmd, len(userIDs))
		for i, userID := range userIDs {
			commands[i] = pipe.HGetAll(ctx, r.prefix.Key("user", userID))
		}
		if _, err = pipe.Exec(ctx); err != nil {
			return nil, errors.Trace(err)
		}
		for i, command := range commands {
			for itemID, value := range command.Val() {
				if err = b.addString(userIDs[i], itemID, value); err != nil {
					return nil, errors.Trace(err)
				}
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return b.build()
}

func (r *RedisSource) BatchInsertPreferences(ctx context.Context, prefs []dataset.Preference, boolean bool) error {
	if len(prefs) == 0 {
		return nil
	}
	start := time.Now()
	byUser := lo.GroupBy(prefs, func(pref dataset.Preference) int64 {
		return pref.UserID
	})
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		userIDs := make([]any, 0, len(byUser))
		for userID, userPrefs := range byUser {
			user := r.dict.ToStringID(userID)
			userIDs = append(userIDs, user)
			values := make([]any, 0, 2*len(userPrefs))
			for _, pref := range userPrefs {
				value := ""
				if !boolean {
					value = formatValue(pref.Value)
				}
				values = append(values, r.dict.ToStringID(pref.ItemID), value)
			}
			pipe.HSet(ctx, r.prefix.Key("user", user), values...)
		}
		pipe.SAdd(ctx, r.prefix.Key("users"), userIDs...)
		return nil
	})
	if err != nil {
		return errors.Trace(err)
	}
	BatchInsertPreferencesSeconds.WithLabelValues("redis").Observe(time.Since(start).Seconds())
	return nil
}

func (r *RedisSource) Close() error {
	return r.client.Close()
}
