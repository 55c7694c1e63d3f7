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
	"github.com/gorse-io/taste/base/log"
	"github.com/gorse-io/taste/common/util"
	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/recommend"
	"github.com/gorse-io/taste/storage/sink"
	"github.com/juju/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var recommendCommand = &cobra.Command{
	Use:   "recommend [user]",
	Short: "Recommend items to a user, or to every user with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		howMany, _ := cmd.Flags().GetInt("n")
		all, _ := cmd.Flags().GetBool("all")
		includeKnown, _ := cmd.Flags().GetBool("include-known")
		if all == (len(args) == 1) {
			return errors.NotValidf("either a user or --all")
		}
		ctx := cmd.Context()
		model, err := loadModel(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		recommender, err := recommend.FromConfig(ctx, conf, model, util.NewRand(conf.Evaluator.Seed))
		if err != nil {
			return errors.Trace(err)
		}
		rescorer, err := recommend.RescorerFromConfig(conf.Recommender)
		if err != nil {
			return errors.Trace(err)
		}
		opts := []recommend.Option{recommend.WithRescorer(rescorer), recommend.IncludeKnownItems(includeKnown)}

		if !all {
			items, err := recommender.Recommend(dict.ToLongID(args[0]), howMany, opts...)
			if err != nil {
				return errors.Trace(err)
			}
			return printItems(cmd.OutOrStdout(), items)
		}

		if conf.Database.ResultStore == "" {
			return errors.NotValidf("empty result store")
		}
		writer, err := sink.Open(ctx, conf.Database.ResultStore, conf.Database.TablePrefix, dict, storageOptions()...)
		if err != nil {
			return errors.Trace(err)
		}
		userIDs := model.UserIDs()
		bar := progressbar.Default(int64(len(userIDs)), "recommend")
		for _, userID := range userIDs {
			if err = ctx.Err(); err != nil {
				break
			}
			var items []dataset.RecommendedItem
			if items, err = recommender.Recommend(userID, howMany, opts...); err != nil {
				break
			}
			if err = writer.Write(ctx, userID, items); err != nil {
				break
			}
			_ = bar.Add(1)
		}
		if closeErr := writer.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return errors.Trace(err)
		}
		_ = bar.Finish()
		log.Logger().Info("write recommendations",
			zap.Int("n_users", len(userIDs)),
			zap.String("result_store", log.RedactDBURL(conf.Database.ResultStore)))
		return nil
	},
}

func init() {
	recommendCommand.Flags().IntP("n", "n", 10, "number of recommended items")
	recommendCommand.Flags().Bool("all", false, "write recommendations of every user to the result store")
	recommendCommand.Flags().Bool("include-known", false, "keep items the user already prefers")
	cliCommand.AddCommand(recommendCommand)
}
