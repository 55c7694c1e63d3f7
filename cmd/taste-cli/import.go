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
	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/storage/data"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
)

var importCommand = &cobra.Command{
	Use:   "import [csv]",
	Short: "Import preferences from a csv file or a built-in dataset into the data store",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		if batchSize == 0 {
			batchSize = conf.Database.BatchSize
		}
		builtIn, _ := cmd.Flags().GetString("builtin")
		ctx := cmd.Context()
		var (
			model dataset.DataModel
			err   error
		)
		switch {
		case builtIn != "" && len(args) > 0:
			return errors.NotValidf("both csv file and built-in dataset")
		case builtIn != "":
			model, err = dataset.LoadBuiltIn(ctx, builtIn, dict)
		case len(args) > 0:
			model, err = dataset.LoadCSVFile(args[0], dict)
		default:
			return errors.NotValidf("no csv file or built-in dataset")
		}
		if err != nil {
			return errors.Trace(err)
		}
		source, err := data.Open(ctx, conf.Database.DataStore, conf.Database.TablePrefix, dict, storageOptions()...)
		if err != nil {
			return errors.Trace(err)
		}
		defer source.Close()
		if err = source.Init(ctx); err != nil {
			return errors.Trace(err)
		}
		return errors.Trace(data.Import(ctx, source, model, batchSize))
	},
}

func init() {
	importCommand.Flags().Int("batch-size", 0, "number of preferences inserted at once (default database.batch_size)")
	importCommand.Flags().String("builtin", "", "name of a built-in dataset (ml-100k, ml-1m, ml-10m, ml-20m, filmtrust or epinions)")
	cliCommand.AddCommand(importCommand)
}
