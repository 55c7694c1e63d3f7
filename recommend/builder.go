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

package recommend

import (
	"context"
	"math/rand"

	"github.com/gorse-io/taste/config"
	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/neighborhood"
	"github.com/gorse-io/taste/similarity"
	"github.com/juju/errors"
)

// Builder creates a recommender over a data model. Evaluators call it once per training
// model.
type Builder func(ctx context.Context, model dataset.DataModel) (Recommender, error)

// NewBuilder returns a builder for the recommender described by the configuration.
// rng drives neighborhood sampling and the random recommender.
func NewBuilder(cfg *config.Config, rng *rand.Rand) Builder {
	return func(ctx context.Context, model dataset.DataModel) (Recommender, error) {
		return FromConfig(ctx, cfg, model, rng)
	}
}

// FromConfig creates a recommender from configuration. Boolean recommenders see the
// model without preference values.
func FromConfig(ctx context.Context, cfg *config.Config, model dataset.DataModel, rng *rand.Rand) (Recommender, error) {
	var err error
	if cfg.Recommender.Boolean && model.HasPreferenceValues() {
		if model, err = dataset.ToBooleanDataModel(model); err != nil {
			return nil, errors.Trace(err)
		}
	}
	recommender, err := newRecommender(ctx, cfg, model, rng)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Recommender.Cache {
		if recommender, err = NewCachingRecommender(recommender); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return Instrument(recommender, cfg.Recommender.Type), nil
}

func newRecommender(ctx context.Context, cfg *config.Config, model dataset.DataModel, rng *rand.Rand) (Recommender, error) {
	switch cfg.Recommender.Type {
	case config.UserBased:
		userSim, _, err := similarity.FromConfig(cfg.Similarity, model)
		if err != nil {
			return nil, errors.Trace(err)
		}
		nb, err := neighborhood.FromConfig(cfg.Neighborhood, userSim, model, rng)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if cfg.Recommender.Boolean {
			return wrap(NewGenericBooleanPrefUserBasedRecommender(model, nb, userSim))
		}
		return wrap(NewGenericUserBasedRecommender(model, nb, userSim))
	case config.ItemBased:
		_, itemSim, err := similarity.FromConfig(cfg.Similarity, model)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if cfg.Recommender.SimilarityMatrixSize > 0 {
			if itemSim, err = similarity.NewGenericItemSimilarityFrom(ctx, itemSim, model,
				cfg.Recommender.SimilarityMatrixSize, cfg.Evaluator.NumJobs); err != nil {
				return nil, errors.Trace(err)
			}
		}
		candidates, err := NewCandidateItemsStrategy(cfg.Recommender.CandidateStrategy, itemSim)
		if err != nil {
			return nil, errors.Trace(err)
		}
		mostSimilar, _ := candidates.(MostSimilarItemsCandidateItemsStrategy)
		if cfg.Recommender.Boolean {
			return wrap(NewGenericBooleanPrefItemBasedRecommender(model, itemSim, candidates, mostSimilar))
		}
		return wrap(NewGenericItemBasedRecommender(model, itemSim, candidates, mostSimilar))
	case config.ItemAverage:
		candidates, err := NewCandidateItemsStrategy(cfg.Recommender.CandidateStrategy, nil)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return wrap(NewItemAverageRecommender(model, candidates))
	case config.ItemUserAverage:
		candidates, err := NewCandidateItemsStrategy(cfg.Recommender.CandidateStrategy, nil)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return wrap(NewItemUserAverageRecommender(model, candidates))
	case config.Random:
		return wrap(NewRandomRecommender(model, rng))
	default:
		return nil, errors.NotSupportedf("recommender %s", cfg.Recommender.Type)
	}
}

func wrap[T Recommender](r T, err error) (Recommender, error) {
	if err != nil {
		return nil, errors.Trace(err)
	}
	return r, nil
}
