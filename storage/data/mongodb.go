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

	"github.com/gorse-io/taste/dataset"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoPreference is a document of the preferences collection.
type MongoPreference struct {
	UserID string   `bson:"user_id"`
	ItemID string   `bson:"item_id"`
	Value  *float64 `bson:"value,omitempty"`
}

type MongoSource struct {
	collection *mongo.Collection
	dict       *dataset.IDDict
}

func (m *MongoSource) Init(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "item_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return errors.Trace(err)
}

func (m *MongoSource) Load(ctx context.Context) (dataset.DataModel, error) {
	cursor, err := m.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer cursor.Close(ctx)
	b := newBuilder("mongodb", m.dict)
	for cursor.Next(ctx) {
		var doc MongoPreference
		if err = cursor.Decode(&doc); err != nil {
			return nil, errors.Trace(err)
		}
		if err = b.add(doc.UserID, doc.ItemID, lo.FromPtr(doc.Value), doc.Value != nil); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if err = cursor.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return b.build()
}

func (m *MongoSource) BatchInsertPreferences(ctx context.Context, prefs []dataset.Preference, boolean bool) error {
	if len(prefs) == 0 {
		return nil
	}
	start := time.Now()
	models := make([]mongo.WriteModel, 0, len(prefs))
	for _, pref := range prefs {
		doc := MongoPreference{
			UserID: m.dict.ToStringID(pref.UserID),
			ItemID: m.dict.ToStringID(pref.ItemID),
		}
		if !boolean {
			doc.Value = lo.ToPtr(float64(pref.Value))
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"user_id": doc.UserID, "item_id": doc.ItemID}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	if _, err := m.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return errors.Trace(err)
	}
	BatchInsertPreferencesSeconds.WithLabelValues("mongodb").Observe(time.Since(start).Seconds())
	return nil
}

func (m *MongoSource) Close() error {
	return m.collection.Database().Client().Disconnect(context.Background())
}
