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
	"time"

	"github.com/gorse-io/taste/base/log"
	"github.com/gorse-io/taste/dataset"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const LabelRecommender = "recommender"

var (
	RecommendSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taste",
		Subsystem: "recommender",
		Name:      "recommend_seconds",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{LabelRecommender})
	EstimateSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taste",
		Subsystem: "recommender",
		Name:      "estimate_seconds",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
	}, []string{LabelRecommender})
	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taste",
		Subsystem: "recommender",
		Name:      "errors_total",
	}, []string{LabelRecommender})
)

func logRefreshError(err error) {
	log.Logger().Error("failed to refresh recommender", zap.Error(err))
}

// instrumented records latencies of a recommender.
type instrumented struct {
	Recommender
	name string
}

// Instrument reports the latencies of recommend and estimate calls under name.
func Instrument(recommender Recommender, name string) Recommender {
	return &instrumented{Recommender: recommender, name: name}
}

func (r *instrumented) Recommend(userID int64, howMany int, opts ...Option) ([]dataset.RecommendedItem, error) {
	start := time.Now()
	items, err := r.Recommender.Recommend(userID, howMany, opts...)
	RecommendSeconds.WithLabelValues(r.name).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, errors.NotFound) {
		ErrorsTotal.WithLabelValues(r.name).Inc()
	}
	return items, err
}

func (r *instrumented) EstimatePreference(userID, itemID int64) (float32, error) {
	start := time.Now()
	value, err := r.Recommender.EstimatePreference(userID, itemID)
	EstimateSeconds.WithLabelValues(r.name).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, errors.NotFound) {
		ErrorsTotal.WithLabelValues(r.name).Inc()
	}
	return value, err
}
