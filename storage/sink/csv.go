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
	"bufio"
	"context"
	"os"
	"strconv"

	"github.com/gorse-io/taste/dataset"
	"github.com/juju/errors"
)

// CSVWriter writes lines of "user_id,item_id,score" in the order users are flushed.
type CSVWriter struct {
	*buffer
	file   *os.File
	writer *bufio.Writer
	dict   *dataset.IDDict
}

func newCSVWriter(path string, dict *dataset.IDDict, batchSize int) (*CSVWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	w := &CSVWriter{file: file, writer: bufio.NewWriter(file), dict: dict}
	w.buffer = newBuffer("csv", batchSize, w.write)
	if _, err = w.writer.WriteString("user_id,item_id,score\n"); err != nil {
		_ = file.Close()
		return nil, errors.Trace(err)
	}
	return w, nil
}

func (w *CSVWriter) write(_ context.Context, batch []recommendations) error {
	for _, rec := range batch {
		userID := dataset.Escape(w.dict.ToStringID(rec.userID))
		for _, item := range rec.items {
			_, _ = w.writer.WriteString(userID)
			_ = w.writer.WriteByte(',')
			_, _ = w.writer.WriteString(dataset.Escape(w.dict.ToStringID(item.ItemID)))
			_ = w.writer.WriteByte(',')
			_, _ = w.writer.WriteString(strconv.FormatFloat(float64(item.Value), 'g', -1, 32))
			_ = w.writer.WriteByte('\n')
		}
	}
	return errors.Trace(w.writer.Flush())
}

func (w *CSVWriter) Close() error {
	if err := w.Flush(context.Background()); err != nil {
		_ = w.file.Close()
		return errors.Trace(err)
	}
	return errors.Trace(w.file.Close())
}
