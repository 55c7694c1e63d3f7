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
	"github.com/gorse-io/taste/recommend"
	"github.com/gorse-io/taste/similarity"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
)

var similarCommand = &cobra.Command{
	Use:   "similar <item>",
	Short: "Find the items most similar to an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		howMany, _ := cmd.Flags().GetInt("n")
		ctx := cmd.Context()
		model, err := loadModel(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		if conf.Recommender.Boolean && model.HasPreferenceValues() {
			if model, err = dataset.ToBooleanDataModel(model); err != nil {
				return errors.Trace(err)
			}
		}
		_, itemSimilarity, err := similarity.FromConfig(conf.Similarity, model)
		if err != nil {
			return errors.Trace(err)
		}
		recommender, err := recommend.NewGenericItemBasedRecommender(model, itemSimilarity, nil, nil)
		if err != nil {
			return errors.Trace(err)
		}
		items, err := recommender.MostSimilarItems(dict.ToLongID(args[0]), howMany, nil)
		if err != nil {
			return errors.Trace(err)
		}
		return printItems(cmd.OutOrStdout(), items)
	},
}

func init() {
	similarCommand.Flags().IntP("n", "n", 10, "number of similar items")
	cliCommand.AddCommand(similarCommand)
}
