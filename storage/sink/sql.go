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
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// SQLRecommendation is a row of the recommendations table.
type SQLRecommendation struct {
	UserID string  `gorm:"column:user_id;type:varchar(256) not null;primaryKey"`
	ItemID string  `gorm:"column:item_id;type:varchar(256) not null;primaryKey"`
	Score  float64 `gorm:"column:score;not null"`
}

// SQLWriter replaces all rows of a user on flush.
type SQLWriter struct {
	*buffer
	database *storage.SQLDatabase
	table    string
	dict     *dataset.IDDict
}

func newSQLWriter(ctx context.Context, database *storage.SQLDatabase, table string, dict *dataset.IDDict, batchSize int) (*SQLWriter, error) {
	w := &SQLWriter{database: database, table: table, dict: dict}
	w.buffer = newBuffer(database.Driver.String(), batchSize, w.write)
	if err := database.GormDB.WithContext(ctx).Table(table).AutoMigrate(&SQLRecommendation{}); err != nil {
		_ = database.Close()
		return nil, errors.Trace(err)
	}
	return w, nil
}

func (w *SQLWriter) write(ctx context.Context, batch []recommendations) error {
	userIDs := lo.Map(batch, func(rec recommendations, _ int) string {
		return w.dict.ToStringID(rec.userID)
	})
	var rows []SQLRecommendation
	for i, rec := range batch {
		for _, item := range rec.items {
			rows = append(rows, SQLRecommendation{
				UserID: userIDs[i],
				ItemID: w.dict.ToStringID(item.ItemID),
				Score:  float64(item.Value),
			})
		}
	}
	return w.database.GormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(w.table).Where("user_id IN ?", userIDs).Delete(&SQLRecommendation{}).Error; err != nil {
			return errors.Trace(err)
		}
		if len(rows) == 0 {
			return nil
		}
		return errors.Trace(tx.Table(w.table).CreateInBatches(&rows, 1000).Error)
	})
}

func (w *SQLWriter) Close() error {
	if err := w.Flush(context.Background()); err != nil {
		_ = w.database.Close()
		return errors.Trace(err)
	}
	return errors.Trace(w.database.Close())
}
