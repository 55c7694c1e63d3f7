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
	"os"
	"path/filepath"
	"testing"

	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/storage"
	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

var (
	firstItems = []dataset.RecommendedItem{{ItemID: 10, Value: 4.5}, {ItemID: 20, Value: 3}}
	newItems   = []dataset.RecommendedItem{{ItemID: 30, Value: 2}}
)

func TestBuffer(t *testing.T) {
	var flushed [][]recommendations
	b := newBuffer("test", 3, func(_ context.Context, batch []recommendations) error {
		flushed = append(flushed, batch)
		return nil
	})
	ctx := context.Background()
	assert.NoError(t, b.Write(ctx, 1, firstItems))
	// replaces the pending recommendations of user 1
	assert.NoError(t, b.Write(ctx, 1, newItems))
	assert.Empty(t, flushed)
	assert.NoError(t, b.Write(ctx, 2, firstItems))
	assert.Len(t, flushed, 1)
	assert.Equal(t, []recommendations{{userID: 1, items: newItems}, {userID: 2, items: firstItems}}, flushed[0])
	assert.NoError(t, b.Flush(ctx))
	assert.Len(t, flushed, 1)

	failing := newBuffer("test", 1, func(context.Context, []recommendations) error {
		return errors.New("disk full")
	})
	assert.Error(t, failing.Write(ctx, 1, firstItems))
}

func TestCSVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recommendations.csv")
	dict := dataset.NewIDDict()
	alice := dict.ToLongID("alice")
	w, err := Open(context.Background(), "csv://"+path, "", dict)
	assert.NoError(t, err)
	assert.NoError(t, w.Write(context.Background(), alice, firstItems))
	assert.NoError(t, w.Write(context.Background(), 2, nil))
	assert.NoError(t, w.Close())
	content, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Equal(t, "user_id,item_id,score\nalice,10,4.5\nalice,20,3\n", string(content))
}

func TestSQLWriter(t *testing.T) {
	ctx := context.Background()
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "taste.db")
	w, err := Open(ctx, dsn, "taste_", nil, storage.WithBatchSize(2))
	assert.NoError(t, err)
	assert.NoError(t, w.Write(ctx, 1, firstItems))
	assert.NoError(t, w.Write(ctx, 2, firstItems[:1]))
	assert.NoError(t, w.Close())

	w, err = Open(ctx, dsn, "taste_", nil)
	assert.NoError(t, err)
	assert.NoError(t, w.Write(ctx, 1, newItems))
	assert.NoError(t, w.Close())

	database, err := storage.OpenSQL(ctx, dsn, storage.NewOptions())
	assert.NoError(t, err)
	defer database.Close()
	var rows []SQLRecommendation
	assert.NoError(t, database.GormDB.Table("taste_recommendations").Order("user_id, item_id").Find(&rows).Error)
	assert.Equal(t, []SQLRecommendation{
		{UserID: "1", ItemID: "30", Score: 2},
		{UserID: "2", ItemID: "10", Score: 4.5},
	}, rows)
}

func TestRedisWriter(t *testing.T) {
	uri, ok := os.LookupEnv("REDIS_URI")
	if !ok {
		t.Skip("REDIS_URI is not set")
	}
	ctx := context.Background()
	w, err := Open(ctx, uri, "taste", nil)
	assert.NoError(t, err)
	redisWriter := w.(*RedisWriter)
	assert.NoError(t, redisWriter.client.FlushDB(ctx).Err())
	assert.NoError(t, w.Write(ctx, 1, firstItems))
	assert.NoError(t, w.Flush(ctx))
	assert.NoError(t, w.Write(ctx, 1, newItems))
	assert.NoError(t, w.Flush(ctx))
	members, err := redisWriter.client.ZRevRangeWithScores(ctx, "taste:recommend:1", 0, -1).Result()
	assert.NoError(t, err)
	assert.Equal(t, []redis.Z{{Score: 2, Member: "30"}}, members)
	assert.NoError(t, w.Close())
}

func TestMongoWriter(t *testing.T) {
	uri, ok := os.LookupEnv("MONGO_URI")
	if !ok {
		t.Skip("MONGO_URI is not set")
	}
	ctx := context.Background()
	w, err := Open(ctx, uri, "taste_", nil)
	assert.NoError(t, err)
	mongoWriter := w.(*MongoWriter)
	assert.NoError(t, mongoWriter.collection.Drop(ctx))
	assert.NoError(t, w.Write(ctx, 1, firstItems))
	assert.NoError(t, w.Flush(ctx))
	var doc MongoRecommendations
	assert.NoError(t, mongoWriter.collection.FindOne(ctx, bson.M{"_id": "1"}).Decode(&doc))
	assert.Equal(t, []MongoItem{{ItemID: "10", Score: 4.5}, {ItemID: "20", Score: 3}}, doc.Items)
	assert.NoError(t, w.Close())
}

func TestOpenUnsupported(t *testing.T) {
	_, err := Open(context.Background(), "badger:///tmp/taste", "", nil)
	assert.True(t, errors.Is(err, errors.NotSupported))
}
