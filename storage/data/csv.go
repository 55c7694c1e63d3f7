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
	"bufio"
	"context"
	"os"
	"time"

	"github.com/gorse-io/taste/dataset"
	"github.com/juju/errors"
)

// CSVSource reads and appends lines of "user,item[,value]".
type CSVSource struct {
	path string
	dict *dataset.IDDict
}

func (c *CSVSource) Init(context.Context) error {
	file, err := os.OpenFile(c.path, os.O_CREATE|os.O_RDONLY, 0644)
	if err != nil {
		return errors.Trace(err)
	}
	return file.Close()
}

func (c *CSVSource) Load(context.Context) (dataset.DataModel, error) {
	start := time.Now()
	model, err := dataset.LoadCSVFile(c.path, c.dict)
	if err != nil {
		return nil, errors.Trace(err)
	}
	LoadSeconds.WithLabelValues("csv").Observe(time.Since(start).Seconds())
	return model, nil
}

func (c *CSVSource) BatchInsertPreferences(_ context.Context, prefs []dataset.Preference, boolean bool) error {
	if len(prefs) == 0 {
		return nil
	}
	start := time.Now()
	file, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Trace(err)
	}
	defer file.Close()
	w := bufio.NewWriter(file)
	for _, pref := range prefs {
		_, _ = w.WriteString(dataset.Escape(c.dict.ToStringID(pref.UserID)))
		_ = w.WriteByte(',')
		_, _ = w.WriteString(dataset.Escape(c.dict.ToStringID(pref.ItemID)))
		if !boolean {
			_ = w.WriteByte(',')
			_, _ = w.WriteString(formatValue(pref.Value))
		}
		_ = w.WriteByte('\n')
	}
	if err = w.Flush(); err != nil {
		return errors.Trace(err)
	}
	BatchInsertPreferencesSeconds.WithLabelValues("csv").Observe(time.Since(start).Seconds())
	return nil
}

func (c *CSVSource) Close() error {
	return nil
}
