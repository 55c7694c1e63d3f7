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
	"math"

	"github.com/gorse-io/taste/common/util"
	"github.com/gorse-io/taste/evaluate"
	"github.com/gorse-io/taste/recommend"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
)

var evaluateCommand = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate the configured recommender",
}

func newDifferenceCommand(name, short string, newEvaluator func(evaluate.Options) *evaluate.DifferenceEvaluator) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			model, err := loadModel(ctx)
			if err != nil {
				return errors.Trace(err)
			}
			options, bar := withProgress(evaluate.NewOptions(conf.Evaluator), name)
			result, err := newEvaluator(options).Evaluate(ctx, recommend.NewBuilder(conf, util.NewRand(conf.Evaluator.Seed)),
				model, conf.Evaluator.TrainingPercentage, conf.Evaluator.EvaluationPercentage)
			if err != nil {
				return errors.Trace(err)
			}
			_ = bar.Finish()
			return printFields(cmd.OutOrStdout(),
				result.Name, result.Score,
				"successful", result.Successful,
				"not found", result.NotFound,
				"no estimate", result.NoEstimate,
				"training users", result.TrainingUsers,
				"training preferences", result.TrainingPreferences,
				"test users", result.TestUsers,
				"test preferences", result.TestPreferences,
				"stats", result.Stats)
		},
	}
}

var irStatsCommand = &cobra.Command{
	Use:   "irstats",
	Short: "Precision, recall, fall-out, nDCG and reach of the top recommendations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		model, err := loadModel(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		rescorer, err := recommend.RescorerFromConfig(conf.Recommender)
		if err != nil {
			return errors.Trace(err)
		}
		threshold := conf.Evaluator.RelevanceThreshold
		if conf.Evaluator.AdaptiveThreshold {
			threshold = math.NaN()
		}
		options, bar := withProgress(evaluate.NewOptions(conf.Evaluator), "irstats")
		result, err := evaluate.NewIRStatsEvaluator(options).Evaluate(ctx,
			recommend.NewBuilder(conf, util.NewRand(conf.Evaluator.Seed)), model, rescorer,
			conf.Evaluator.At, threshold, conf.Evaluator.EvaluationPercentage)
		if err != nil {
			return errors.Trace(err)
		}
		_ = bar.Finish()
		return printFields(cmd.OutOrStdout(),
			"precision", result.Precision,
			"recall", result.Recall,
			"f1", result.F1(),
			"fall-out", result.FallOut,
			"ndcg", result.NDCG,
			"reach", result.Reach,
			"users", result.Users,
			"stats", result.Stats)
	},
}

var loadCommand = &cobra.Command{
	Use:   "load",
	Short: "Measure the latency of recommendations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		model, err := loadModel(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		recommender, err := recommend.FromConfig(ctx, conf, model, util.NewRand(conf.Evaluator.Seed))
		if err != nil {
			return errors.Trace(err)
		}
		options, bar := withProgress(evaluate.NewOptions(conf.Evaluator), "load")
		result, err := evaluate.NewLoadEvaluator(options, int(conf.Evaluator.RequestsPerSecond)).
			Evaluate(ctx, recommender, conf.Evaluator.LoadUsers, conf.Evaluator.At)
		if err != nil {
			return errors.Trace(err)
		}
		_ = bar.Finish()
		return printFields(cmd.OutOrStdout(),
			"users", result.Users,
			"average (ms)", result.Average,
			"standard deviation (ms)", result.StdDev,
			"stats", result.Stats)
	},
}

var orderCommand = &cobra.Command{
	Use:   "order <recommender type>",
	Short: "Compare the order of recommendations with another recommender",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		model, err := loadModel(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		recommender, err := recommend.FromConfig(ctx, conf, model, util.NewRand(conf.Evaluator.Seed))
		if err != nil {
			return errors.Trace(err)
		}
		other := *conf
		other.Recommender.Type = args[0]
		if err = other.Validate(); err != nil {
			return errors.Trace(err)
		}
		otherRecommender, err := recommend.FromConfig(ctx, &other, model, util.NewRand(conf.Evaluator.Seed))
		if err != nil {
			return errors.Trace(err)
		}
		options, bar := withProgress(evaluate.NewOptions(conf.Evaluator), "order")
		result, err := evaluate.NewOrderEvaluator(options).Evaluate(ctx, recommender, otherRecommender, conf.Evaluator.At)
		if err != nil {
			return errors.Trace(err)
		}
		_ = bar.Finish()
		return printFields(cmd.OutOrStdout(),
			"users", result.Users,
			"overlap", result.Overlap,
			"spearman", result.Spearman,
			"stats", result.Stats)
	},
}

func init() {
	evaluateCommand.AddCommand(
		newDifferenceCommand("rmse", "Root mean squared error of estimated preferences", evaluate.NewRMSEvaluator),
		newDifferenceCommand("mae", "Mean absolute error of estimated preferences", evaluate.NewAverageAbsoluteDifferenceEvaluator),
		irStatsCommand,
		loadCommand,
		orderCommand)
	cliCommand.AddCommand(evaluateCommand)
}
