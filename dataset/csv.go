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
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gorse-io/taste/base/log"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Escape text for csv.
func Escape(text string) string {
	// check if need escape
	if !strings.ContainsAny(text, ",\"\n\r") {
		return text
	}
	// start to encode
	builder := strings.Builder{}
	builder.WriteRune('"')
	for _, c := range text {
		if c == '"' {
			builder.WriteString("\"\"")
		} else {
			builder.WriteRune(c)
		}
	}
	builder.WriteRune('"')
	return builder.String()
}

// ReadLines parse fields of each line for csv file.
func ReadLines(sc *bufio.Scanner, sep rune, handler func(int, []string) error) error {
	lineCount := 0               // line number of current position
	fields := make([]string, 0)  // fields for current line
	builder := strings.Builder{} // string builder for current field
	quoted := false              // whether current position in quote
	for sc.Scan() {
		line := []rune(sc.Text())
		// start of line
		if quoted {
			builder.WriteString("\r\n")
		}
		// parse line
		for i := 0; i < len(line); i++ {
			if line[i] == sep && !quoted {
				// end of field
				fields = append(fields, builder.String())
				builder.Reset()
			} else if line[i] == '"' {
				if quoted {
					if i+1 >= len(line) || line[i+1] != '"' {
						// end of quoted
						quoted = false
					} else {
						i++
						builder.WriteRune('"')
					}
				} else {
					// start of quoted
					quoted = true
				}
			} else {
				builder.WriteRune(line[i])
			}
		}
		// end of line
		if !quoted {
			fields = append(fields, builder.String())
			builder.Reset()
			if err := handler(lineCount, fields); err != nil {
				return err
			}
			fields = []string{}
		}
		lineCount++
	}
	return sc.Err()
}

// LoadCSV reads lines of "user,item[,value]". Tabs are accepted as separators, blank
// lines and lines starting with # are skipped. Without any value column, a
// BooleanDataModel is returned.
func LoadCSV(r io.Reader, dict *IDDict) (DataModel, error) {
	var (
		prefs     []Preference
		withValue = -1
	)
	scanner := bufio.NewScanner(r)
	err := ReadLines(scanner, ',', func(lineNumber int, fields []string) error {
		if len(fields) == 1 && strings.Contains(fields[0], "\t") {
			fields = strings.Split(fields[0], "\t")
		}
		if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
			return nil
		}
		if strings.HasPrefix(strings.TrimSpace(fields[0]), "#") {
			return nil
		}
		if len(fields) < 2 || len(fields) > 4 {
			return errors.NotValidf("line %d: expect 2 to 4 fields but got %d", lineNumber+1, len(fields))
		}
		pref := Preference{
			UserID: dict.ToLongID(strings.TrimSpace(fields[0])),
			ItemID: dict.ToLongID(strings.TrimSpace(fields[1])),
			Value:  1,
		}
		hasValue := len(fields) > 2 && strings.TrimSpace(fields[2]) != ""
		if withValue < 0 {
			withValue = boolToInt(hasValue)
		} else if withValue != boolToInt(hasValue) {
			return errors.NotValidf("line %d: mixed boolean and valued preferences", lineNumber+1)
		}
		if hasValue {
			value, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 32)
			if err != nil {
				return errors.NotValidf("line %d: preference value %q", lineNumber+1, fields[2])
			}
			pref.Value = float32(value)
		}
		prefs = append(prefs, pref)
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	var model DataModel
	if withValue == 0 {
		model, err = NewBooleanDataModel(prefs)
	} else {
		model, err = NewGenericDataModel(prefs)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("load preferences from csv",
		zap.Int("n_users", model.NumUsers()),
		zap.Int("n_items", model.NumItems()),
		zap.Int("n_preferences", len(prefs)))
	return model, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// LoadCSVFile loads preferences from a csv file.
func LoadCSVFile(path string, dict *IDDict) (DataModel, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	return LoadCSV(file, dict)
}
