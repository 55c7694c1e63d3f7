// Copyright 2026 gorse Project Authors
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

package similarity

import (
	"slices"

	"github.com/gorse-io/taste/config"
	"github.com/gorse-io/taste/dataset"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// Similarity scores both users and items.
type Similarity interface {
	UserSimilarity
	ItemSimilarity
}

type factory func(model dataset.DataModel, weighted bool) (Similarity, error)

func wrap[T Similarity](s T, err error) (Similarity, error) {
	if err != nil {
		return nil, errors.Trace(err)
	}
	return s, nil
}

var registry = map[string]factory{
	config.Pearson: func(model dataset.DataModel, weighted bool) (Similarity, error) {
		return wrap(NewPearsonCorrelation(model, weighted))
	},
	config.Cosine: func(model dataset.DataModel, weighted bool) (Similarity, error) {
		return wrap(NewUncenteredCosine(model, weighted))
	},
	config.Euclidean: func(model dataset.DataModel, weighted bool) (Similarity, error) {
		return wrap(NewEuclideanDistance(model, weighted))
	},
	config.Spearman: func(model dataset.DataModel, _ bool) (Similarity, error) {
		return wrap(NewSpearman(model))
	},
	config.LogLikelihood: func(model dataset.DataModel, _ bool) (Similarity, error) {
		return NewLogLikelihood(model), nil
	},
	config.Tanimoto: func(model dataset.DataModel, _ bool) (Similarity, error) {
		return NewTanimoto(model), nil
	},
	config.CityBlock: func(model dataset.DataModel, _ bool) (Similarity, error) {
		return NewCityBlock(model), nil
	},
}

// Metrics lists the names of supported metrics.
func Metrics() []string {
	names := lo.Keys(registry)
	slices.Sort(names)
	return names
}

// New creates a metric by name. weighted is ignored by metrics without weighting.
func New(metric string, model dataset.DataModel, weighted bool) (Similarity, error) {
	f, exist := registry[metric]
	if !exist {
		return nil, errors.NotSupportedf("similarity metric %q", metric)
	}
	return f(model, weighted)
}

// FromConfig creates a metric from configuration, with preference inference and a cache
// when configured.
func FromConfig(cfg config.SimilarityConfig, model dataset.DataModel) (UserSimilarity, ItemSimilarity, error) {
	s, err := New(cfg.Metric, model, cfg.Weighted)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	if cfg.InferPreferences {
		if err = s.SetPreferenceInferrer(NewAveragingPreferenceInferrer(model)); err != nil {
			return nil, nil, errors.Trace(err)
		}
	}
	if cfg.CacheSize > 0 {
		return NewCachingUserSimilarity(s, model, cfg.CacheSize), NewCachingItemSimilarity(s, model, cfg.CacheSize), nil
	}
	return s, s, nil
}
