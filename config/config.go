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

package config

import (
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/juju/errors"
	"github.com/spf13/viper"
)

// Config is the configuration for the recommender engine.
type Config struct {
	Database     DatabaseConfig     `mapstructure:"database"`
	Similarity   SimilarityConfig   `mapstructure:"similarity"`
	Neighborhood NeighborhoodConfig `mapstructure:"neighborhood"`
	Recommender  RecommenderConfig  `mapstructure:"recommender"`
	Evaluator    EvaluatorConfig    `mapstructure:"evaluator"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
}

// DatabaseConfig is the configuration for the preference source and the result sink.
type DatabaseConfig struct {
	DataStore       string        `mapstructure:"data_store" validate:"required,dsn"`
	ResultStore     string        `mapstructure:"result_store" validate:"omitempty,dsn"`
	TablePrefix     string        `mapstructure:"table_prefix"`
	IsolationLevel  string        `mapstructure:"isolation_level" validate:"oneof=READ-UNCOMMITTED READ-COMMITTED REPEATABLE-READ SERIALIZABLE"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
	MaxRetries      uint          `mapstructure:"max_retries"`
	BatchSize       int           `mapstructure:"batch_size" validate:"gt=0"`
}

type SimilarityConfig struct {
	Metric           string `mapstructure:"metric" validate:"oneof=pearson cosine euclidean spearman log_likelihood tanimoto city_block"`
	Weighted         bool   `mapstructure:"weighted"`
	InferPreferences bool   `mapstructure:"infer_preferences"`
	CacheSize        int    `mapstructure:"cache_size" validate:"gte=0"`
}

type NeighborhoodConfig struct {
	Type          string  `mapstructure:"type" validate:"oneof=nearest threshold"`
	Size          int     `mapstructure:"size" validate:"gt=0"`
	MinSimilarity float64 `mapstructure:"min_similarity"`
	Threshold     float64 `mapstructure:"threshold" validate:"gte=-1,lte=1"`
	SamplingRate  float64 `mapstructure:"sampling_rate" validate:"gt=0,lte=1"`
	Cache         bool    `mapstructure:"cache"`
}

type RecommenderConfig struct {
	Type                 string `mapstructure:"type" validate:"oneof=user_based item_based item_average item_user_average random"`
	Boolean              bool   `mapstructure:"boolean"`
	CandidateStrategy    string `mapstructure:"candidate_strategy" validate:"oneof=preferred_items all_unknown_items all_similar_items"`
	Cache                bool   `mapstructure:"cache"`
	SimilarityMatrixSize int    `mapstructure:"similarity_matrix_size" validate:"gte=0"`
	Filter               string `mapstructure:"filter"`
	Score                string `mapstructure:"score"`
}

type EvaluatorConfig struct {
	TrainingPercentage   float64       `mapstructure:"training_percentage" validate:"gt=0,lte=1"`
	EvaluationPercentage float64       `mapstructure:"evaluation_percentage" validate:"gt=0,lte=1"`
	At                   int           `mapstructure:"at" validate:"gt=0"`
	AdaptiveThreshold    bool          `mapstructure:"adaptive_threshold"`
	RelevanceThreshold   float64       `mapstructure:"relevance_threshold"`
	NumJobs              int           `mapstructure:"num_jobs" validate:"gte=0"`
	Seed                 int64         `mapstructure:"seed"`
	Timeout              time.Duration `mapstructure:"timeout" validate:"gte=0"`
	LoadUsers            int           `mapstructure:"load_users" validate:"gt=0"`
	RequestsPerSecond    int64         `mapstructure:"requests_per_second" validate:"gte=0"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DataStore:      "sqlite://taste.db",
			IsolationLevel: "READ-UNCOMMITTED",
			MaxRetries:     3,
			BatchSize:      1000,
		},
		Similarity: SimilarityConfig{
			Metric:    Pearson,
			CacheSize: 10000,
		},
		Neighborhood: NeighborhoodConfig{
			Type:          Nearest,
			Size:          10,
			MinSimilarity: -1,
			Threshold:     0.5,
			SamplingRate:  1,
			Cache:         true,
		},
		Recommender: RecommenderConfig{
			Type:              UserBased,
			CandidateStrategy: PreferredItems,
			Cache:             true,
		},
		Evaluator: EvaluatorConfig{
			TrainingPercentage:   0.9,
			EvaluationPercentage: 1,
			At:                   10,
			AdaptiveThreshold:    true,
			LoadUsers:            1000,
		},
		Tracing: TracingConfig{
			Exporter: OTLP,
			Sampler:  AlwaysSample,
			Ratio:    1,
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [database]
	v.SetDefault("database.data_store", defaultConfig.Database.DataStore)
	v.SetDefault("database.result_store", defaultConfig.Database.ResultStore)
	v.SetDefault("database.table_prefix", defaultConfig.Database.TablePrefix)
	v.SetDefault("database.isolation_level", defaultConfig.Database.IsolationLevel)
	v.SetDefault("database.max_open_conns", defaultConfig.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultConfig.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", defaultConfig.Database.ConnMaxLifetime)
	v.SetDefault("database.max_retries", defaultConfig.Database.MaxRetries)
	v.SetDefault("database.batch_size", defaultConfig.Database.BatchSize)
	// [similarity]
	v.SetDefault("similarity.metric", defaultConfig.Similarity.Metric)
	v.SetDefault("similarity.weighted", defaultConfig.Similarity.Weighted)
	v.SetDefault("similarity.infer_preferences", defaultConfig.Similarity.InferPreferences)
	v.SetDefault("similarity.cache_size", defaultConfig.Similarity.CacheSize)
	// [neighborhood]
	v.SetDefault("neighborhood.type", defaultConfig.Neighborhood.Type)
	v.SetDefault("neighborhood.size", defaultConfig.Neighborhood.Size)
	v.SetDefault("neighborhood.min_similarity", defaultConfig.Neighborhood.MinSimilarity)
	v.SetDefault("neighborhood.threshold", defaultConfig.Neighborhood.Threshold)
	v.SetDefault("neighborhood.sampling_rate", defaultConfig.Neighborhood.SamplingRate)
	v.SetDefault("neighborhood.cache", defaultConfig.Neighborhood.Cache)
	// [recommender]
	v.SetDefault("recommender.type", defaultConfig.Recommender.Type)
	v.SetDefault("recommender.boolean", defaultConfig.Recommender.Boolean)
	v.SetDefault("recommender.candidate_strategy", defaultConfig.Recommender.CandidateStrategy)
	v.SetDefault("recommender.cache", defaultConfig.Recommender.Cache)
	v.SetDefault("recommender.similarity_matrix_size", defaultConfig.Recommender.SimilarityMatrixSize)
	v.SetDefault("recommender.filter", defaultConfig.Recommender.Filter)
	v.SetDefault("recommender.score", defaultConfig.Recommender.Score)
	// [evaluator]
	v.SetDefault("evaluator.training_percentage", defaultConfig.Evaluator.TrainingPercentage)
	v.SetDefault("evaluator.evaluation_percentage", defaultConfig.Evaluator.EvaluationPercentage)
	v.SetDefault("evaluator.at", defaultConfig.Evaluator.At)
	v.SetDefault("evaluator.adaptive_threshold", defaultConfig.Evaluator.AdaptiveThreshold)
	v.SetDefault("evaluator.relevance_threshold", defaultConfig.Evaluator.RelevanceThreshold)
	v.SetDefault("evaluator.num_jobs", defaultConfig.Evaluator.NumJobs)
	v.SetDefault("evaluator.seed", defaultConfig.Evaluator.Seed)
	v.SetDefault("evaluator.timeout", defaultConfig.Evaluator.Timeout)
	v.SetDefault("evaluator.load_users", defaultConfig.Evaluator.LoadUsers)
	v.SetDefault("evaluator.requests_per_second", defaultConfig.Evaluator.RequestsPerSecond)
	// [tracing]
	v.SetDefault("tracing.enable_tracing", defaultConfig.Tracing.EnableTracing)
	v.SetDefault("tracing.exporter", defaultConfig.Tracing.Exporter)
	v.SetDefault("tracing.collector_endpoint", defaultConfig.Tracing.CollectorEndpoint)
	v.SetDefault("tracing.sampler", defaultConfig.Tracing.Sampler)
	v.SetDefault("tracing.ratio", defaultConfig.Tracing.Ratio)
}

type configBinding struct {
	key string
	env string
}

func bindEnv(v *viper.Viper) error {
	bindings := []configBinding{
		{"database.data_store", "TASTE_DATA_STORE"},
		{"database.result_store", "TASTE_RESULT_STORE"},
		{"database.table_prefix", "TASTE_TABLE_PREFIX"},
		{"similarity.metric", "TASTE_SIMILARITY_METRIC"},
		{"neighborhood.size", "TASTE_NEIGHBORHOOD_SIZE"},
		{"recommender.type", "TASTE_RECOMMENDER_TYPE"},
		{"evaluator.num_jobs", "TASTE_EVALUATOR_JOBS"},
		{"evaluator.seed", "TASTE_EVALUATOR_SEED"},
		{"tracing.collector_endpoint", "TASTE_COLLECTOR_ENDPOINT"},
	}
	for _, binding := range bindings {
		if err := v.BindEnv(binding.key, binding.env); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// LoadConfig loads configuration from a TOML file. Missing keys fall back to defaults and
// environment variables override the file. An empty path loads defaults and environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefault(v)
	if err := bindEnv(v); err != nil {
		return nil, errors.Trace(err)
	}
	if path != "" {
		v.SetConfigFile(path)
		if strings.HasSuffix(path, ".template") {
			v.SetConfigType("toml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	var conf Config
	if err := v.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}
