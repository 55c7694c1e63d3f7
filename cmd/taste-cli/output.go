// Copyright 2021 gorse Project Authors
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

package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/evaluate"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
)

func printItems(w io.Writer, items []dataset.RecommendedItem) error {
	table := tablewriter.NewWriter(w)
	table.Header("Rank", "Item", "Score")
	for i, item := range items {
		if err := table.Append([]string{
			strconv.Itoa(i + 1),
			dict.ToStringID(item.ItemID),
			strconv.FormatFloat(float64(item.Value), 'f', 4, 32),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

// printFields prints pairs of names and values as a two-column table.
func printFields(w io.Writer, fields ...any) error {
	table := tablewriter.NewWriter(w)
	table.Header("Metric", "Value")
	for i := 0; i+1 < len(fields); i += 2 {
		if err := table.Append([]string{fmt.Sprint(fields[i]), fmt.Sprint(fields[i+1])}); err != nil {
			return err
		}
	}
	return table.Render()
}

// withProgress shows a progress bar while the evaluator runs.
func withProgress(options evaluate.Options, description string) (evaluate.Options, *progressbar.ProgressBar) {
	bar := progressbar.Default(-1, description)
	options.Progress = func(_, total int) {
		bar.ChangeMax(total)
		_ = bar.Add(1)
	}
	return options, bar
}
