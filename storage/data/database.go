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
	"strconv"
	"time"

	"github.com/gorse-io/taste/base/log"
	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/storage"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Source is a store of preferences a DataModel is loaded from.
type Source interface {
	// Init creates tables, collections or indices.
	Init(ctx context.Context) error
	// Load reads every preference. Without any preference value a BooleanDataModel is
	// returned.
	Load(ctx context.Context) (dataset.DataModel, error)
	// BatchInsertPreferences inserts or overwrites preferences. Boolean preferences are
	// stored without values.
	BatchInsertPreferences(ctx context.Context, prefs []dataset.Preference, boolean bool) error
	Close() error
}

// Open a preference source. IDs are stored as strings and mapped to int64 through dict,
// which may be nil.
func Open(ctx context.Context, dsn, tablePrefix string, dict *dataset.IDDict, opts ...storage.Option) (Source, error) {
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
		return &SQLSource{database: database, table: prefix.PreferencesTable(), dict: dict, batchSize: opt.BatchSize}, nil
	case storage.Redis:
		client, err := storage.OpenRedis(ctx, dsn, opt)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return &RedisSource{client: client, prefix: prefix, dict: dict}, nil
	case storage.Mongo:
		database, err := storage.OpenMongo(ctx, dsn, opt)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return &MongoSource{collection: database.Collection(prefix.PreferencesTable()), dict: dict}, nil
	case storage.CSV:
		return &CSVSource{path: dsn[len(storage.CSVPrefix):], dict: dict}, nil
	}
	return nil, errors.NotSupportedf("data store %s", log.RedactDBURL(dsn))
}

// Import copies every preference of a model into a source.
func Import(ctx context.Context, source Source, model dataset.DataModel, batchSize int) error {
	if batchSize < 1 {
		return errors.NotValidf("batch size %d", batchSize)
	}
	boolean := !model.HasPreferenceValues()
	batch := make([]dataset.Preference, 0, batchSize)
	for _, userID := range model.UserIDs() {
		prefs, err := model.PreferencesFromUser(userID)
		if err != nil {
			return errors.Trace(err)
		}
		for i := 0; i < prefs.Len(); i++ {
			batch = append(batch, prefs.Get(i))
			if len(batch) == batchSize {
				if err = source.BatchInsertPreferences(ctx, batch, boolean); err != nil {
					return errors.Trace(err)
				}
				batch = batch[:0]
			}
		}
	}
	if len(batch) > 0 {
		return errors.Trace(source.BatchInsertPreferences(ctx, batch, boolean))
	}
	return nil
}

// builder collects preferences read from a source.
type builder struct {
	name   string
	dict   *dataset.IDDict
	start  time.Time
	prefs  []dataset.Preference
	valued int
}

func newBuilder(name string, dict *dataset.IDDict) *builder {
	return &builder{name: name, dict: dict, start: time.Now(), valued: -1}
}

func (b *builder) add(userID, itemID string, value float64, hasValue bool) error {
	valued := 0
	if hasValue {
		valued = 1
	}
	if b.valued < 0 {
		b.valued = valued
	} else if b.valued != valued {
		return errors.NotValidf("mixed boolean and valued preferences (user %s, item %s)", userID, itemID)
	}
	pref := dataset.Preference{
		UserID: b.dict.ToLongID(userID),
		ItemID: b.dict.ToLongID(itemID),
		Value:  1,
	}
	if hasValue {
		pref.Value = float32(value)
	}
	b.prefs = append(b.prefs, pref)
	return nil
}

// addString adds a preference whose value is encoded as text. Empty text means no value.
func (b *builder) addString(userID, itemID, value string) error {
	if value == "" {
		return b.add(userID, itemID, 0, false)
	}
	parsed, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return errors.NotValidf("preference value %q of user %s for item %s", value, userID, itemID)
	}
	return b.add(userID, itemID, parsed, true)
}

func (b *builder) build() (dataset.DataModel, error) {
	var (
		model dataset.DataModel
		err   error
	)
	if b.valued == 0 {
		model, err = dataset.NewBooleanDataModel(b.prefs)
	} else {
		model, err = dataset.NewGenericDataModel(b.prefs)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	LoadSeconds.WithLabelValues(b.name).Observe(time.Since(b.start).Seconds())
	log.Logger().Info("load preferences",
		zap.String("source", b.name),
		zap.Int("n_users", model.NumUsers()),
		zap.Int("n_items", model.NumItems()),
		zap.Int("n_preferences", len(b.prefs)))
	return model, nil
}

func formatValue(value float32) string {
	return strconv.FormatFloat(float64(value), 'g', -1, 32)
}
