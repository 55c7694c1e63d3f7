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
	"database/sql"
	"time"

	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"gorm.io/gorm/clause"
)

// SQLPreference is a row of the preferences table. A NULL value marks a boolean preference.
type SQLPreference struct {
	UserID string   `gorm:"column:user_id;type:varchar(256) not null;primaryKey"`
	ItemID string   `gorm:"column:item_id;type:varchar(256) not null;primaryKey"`
	Value  *float64 `gorm:"column:value"`
}

type SQLSource struct {
	database  *storage.SQLDatabase
	table     string
	dict      *dataset.IDDict
	batchSize int
}

func (s *SQLSource) Init(ctx context.Context) error {
	tx := s.database.GormDB.WithContext(ctx).Table(s.table)
	if s.database.Driver == storage.MySQL {
		tx = tx.Set("gorm:table_options", "ENGINE=InnoDB")
	}
	return errors.Trace(tx.AutoMigrate(&SQLPreference{}))
}

func (s *SQLSource) Load(ctx context.Context) (dataset.DataModel, error) {
	rows, err := s.database.GormDB.WithContext(ctx).Table(s.table).Select("user_id, item_id, value").Rows()
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()
	b := newBuilder(s.database.Driver.String(), s.dict)
	for rows.Next() {
		var (
			userID, itemID string
			value          sql.NullFloat64
		)
		if err = rows.Scan(&userID, &itemID, &value); err != nil {
			return nil, errors.Trace(err)
		}
		if err = b.add(userID, itemID, value.Float64, value.Valid); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return b.build()
}

func (s *SQLSource) BatchInsertPreferences(ctx context.Context, prefs []dataset.Preference, boolean bool) error {
	if len(prefs) == 0 {
		return nil
	}
	start := time.Now()
	rows := lo.Map(prefs, func(pref dataset.Preference, _ int) SQLPreference {
		row := SQLPreference{
			UserID: s.dict.ToStringID(pref.UserID),
			ItemID: s.dict.ToStringID(pref.ItemID),
		}
		if !boolean {
			row.Value = lo.ToPtr(float64(pref.Value))
		}
		return row
	})
	err := s.database.GormDB.WithContext(ctx).Table(s.table).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(&rows, s.batchSize).Error
	if err != nil {
		return errors.Trace(err)
	}
	BatchInsertPreferencesSeconds.WithLabelValues(s.database.Driver.String()).Observe(time.Since(start).Seconds())
	return nil
}

func (s *SQLSource) Close() error {
	return s.database.Close()
}
