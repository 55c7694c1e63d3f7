// Copyright 2020 gorse Project Authors
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

package dataset

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorse-io/taste/base/log"
	"github.com/gorse-io/taste/common/datautil"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

type builtInDataSet struct {
	url    string
	path   string
	sep    string
	header bool
}

var builtInDataSets = map[string]builtInDataSet{
	// MovieLens: https://grouplens.org/datasets/movielens/
	"ml-100k": {
		url:  "https://cdn.sine-x.com/datasets/movielens/ml-100k.zip",
		path: "ml-100k/u.data",
		sep:  "\t",
	},
	"ml-1m": {
		url:  "https://cdn.sine-x.com/datasets/movielens/ml-1m.zip",
		path: "ml-1m/ratings.dat",
		sep:  "::",
	},
	"ml-10m": {
		url:  "https://cdn.sine-x.com/datasets/movielens/ml-10m.zip",
		path: "ml-10M100K/ratings.dat",
		sep:  "::",
	},
	"ml-20m": {
		url:    "https://cdn.sine-x.com/datasets/movielens/ml-20m.zip",
		path:   "ml-20m/ratings.csv",
		sep:    ",",
		header: true,
	},
	"filmtrust": {
		url:  "https://cdn.sine-x.com/datasets/filmtrust/filmtrust.zip",
		path: "filmtrust/ratings.txt",
		sep:  " ",
	},
	"epinions": {
		url:    "https://cdn.sine-x.com/datasets/epinions/epinions.zip",
		path:   "epinions/ratings_data.txt",
		sep:    " ",
		header: true,
	},
}

// DataSetDir holds extracted built-in datasets and TempDir holds downloaded archives.
var (
	DataSetDir string
	TempDir    string
)

func init() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	DataSetDir = filepath.Join(home, ".taste", "dataset")
	TempDir = filepath.Join(home, ".taste", "temp")
}

// BuiltInDataSets lists names accepted by LoadBuiltIn.
func BuiltInDataSets() []string {
	names := make([]string, 0, len(builtInDataSets))
	for name := range builtInDataSets {
		names = append(names, name)
	}
	return names
}

// LoadBuiltIn loads a public rating dataset, downloading it on first use.
func LoadBuiltIn(ctx context.Context, name string, dict *IDDict) (DataModel, error) {
	ds, exist := builtInDataSets[name]
	if !exist {
		return nil, errors.NotFoundf("built-in dataset %s", name)
	}
	dataFile := filepath.Join(DataSetDir, ds.path)
	if _, err := os.Stat(dataFile); os.IsNotExist(err) {
		if _, err = datautil.DownloadAndUnzip(ctx, ds.url, TempDir, DataSetDir); err != nil {
			return nil, errors.Trace(err)
		}
	}
	file, err := os.Open(dataFile)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	model, err := loadDelimited(file, ds.sep, ds.header, dict)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to load %s", name)
	}
	log.Logger().Info("load built-in dataset",
		zap.String("name", name),
		zap.Int("n_users", model.NumUsers()),
		zap.Int("n_items", model.NumItems()))
	return model, nil
}

// loadDelimited reads lines of "user<sep>item<sep>value[<sep>...]".
func loadDelimited(r io.Reader, sep string, header bool, dict *IDDict) (DataModel, error) {
	var prefs []Preference
	scanner := bufio.NewScanner(r)
	for lineNumber := 0; scanner.Scan(); lineNumber++ {
		line := strings.TrimSpace(scanner.Text())
		if (header && lineNumber == 0) || line == "" {
			continue
		}
		fields := strings.Split(line, sep)
		if len(fields) < 3 {
			return nil, errors.NotValidf("line %d: expect at least 3 fields but got %d", lineNumber+1, len(fields))
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 32)
		if err != nil {
			return nil, errors.NotValidf("line %d: preference value %q", lineNumber+1, fields[2])
		}
		prefs = append(prefs, Preference{
			UserID: dict.ToLongID(strings.TrimSpace(fields[0])),
			ItemID: dict.ToLongID(strings.TrimSpace(fields[1])),
			Value:  float32(value),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	model, err := NewGenericDataModel(prefs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return model, nil
}
