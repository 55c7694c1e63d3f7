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

package config

// Similarity metrics.
const (
	Pearson       = "pearson"
	Cosine        = "cosine"
	Euclidean     = "euclidean"
	Spearman      = "spearman"
	LogLikelihood = "log_likelihood"
	Tanimoto      = "tanimoto"
	CityBlock     = "city_block"
)

// Neighborhood types.
const (
	Nearest   = "nearest"
	Threshold = "threshold"
)

// Recommender types.
const (
	UserBased       = "user_based"
	ItemBased       = "item_based"
	ItemAverage     = "item_average"
	ItemUserAverage = "item_user_average"
	Random          = "random"
)

// Candidate item strategies.
const (
	PreferredItems  = "preferred_items"
	AllUnknownItems = "all_unknown_items"
	AllSimilarItems = "all_similar_items"
)

// RequiresPreferenceValues reports whether a metric reads preference values. Metrics that
// only look at co-occurrence work on boolean data.
func RequiresPreferenceValues(metric string) bool {
	switch metric {
	case LogLikelihood, Tanimoto, CityBlock:
		return false
	default:
		return true
	}
}
