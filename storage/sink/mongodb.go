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
	"github.com/juju/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoItem struct {
	ItemID string  `bson:"item_id"`
	Score  float64 `bson:"score"`
}

// MongoRecommendations is the document of a user in the recommendations collection.
type MongoRecommendations struct {
	UserID string      `bson:"_id"`
	Items  []MongoItem `bson:"items"`
}

type MongoWriter struct {
	*buffer
	collection *mongo.Collection
	dict       *dataset.IDDict
}

func newMongoWriter(collection *mongo.Collection, dict *dataset.IDDict, batchSize int) *MongoWriter {
	w := &MongoWriter{collection: collection, dict: dict}
	w.buffer = newBuffer("mongodb", batchSize, w.write)
	return w
}

func (w *MongoWriter) write(ctx context.Context, batch []recommendations) error {
	models := make([]mongo.WriteModel, 0, len(batch))
	for _, rec := range batch {
		doc := MongoRecommendations{
			UserID: w.dict.ToStringID(rec.userID),
			Items:  make([]MongoItem, len(rec.items)),
		}
		for i, item := range rec.items {
			doc.Items[i] = MongoItem{ItemID: w.dict.ToStringID(item.ItemID), Score: float64(item.Value)}
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.UserID}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	_, err := w.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return errors.Trace(err)
}

func (w *MongoWriter) Close() error {
	err := w.Flush(context.Background())
	if disconnectErr := w.collection.Database().Client().Disconnect(context.Background()); err == nil {
		err = disconnectErr
	}
	return errors.Trace(err)
}
