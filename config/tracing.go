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

package config

import (
	"context"

	"github.com/juju/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Tracing exporters.
const (
	OTLP     = "otlp"
	OTLPHTTP = "otlphttp"
	Zipkin   = "zipkin"
)

// Tracing samplers.
const (
	AlwaysSample = "always"
	NeverSample  = "never"
	RatioSample  = "ratio"
)

type TracingConfig struct {
	EnableTracing     bool    `mapstructure:"enable_tracing"`
	Exporter          string  `mapstructure:"exporter" validate:"oneof=otlp otlphttp zipkin"`
	CollectorEndpoint string  `mapstructure:"collector_endpoint"`
	Sampler           string  `mapstructure:"sampler" validate:"oneof=always never ratio"`
	Ratio             float64 `mapstructure:"ratio" validate:"gte=0,lte=1"`
}

func (config *TracingConfig) newExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	switch config.Exporter {
	case OTLP:
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(config.CollectorEndpoint),
			otlptracegrpc.WithInsecure())
	case OTLPHTTP:
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(config.CollectorEndpoint),
			otlptracehttp.WithInsecure())
	case Zipkin:
		return zipkin.New(config.CollectorEndpoint)
	}
	return nil, errors.NotSupportedf("exporter %s", config.Exporter)
}

func (config *TracingConfig) newSampler() (sdktrace.Sampler, error) {
	switch config.Sampler {
	case AlwaysSample:
		return sdktrace.AlwaysSample(), nil
	case NeverSample:
		return sdktrace.NeverSample(), nil
	case RatioSample:
		return sdktrace.TraceIDRatioBased(config.Ratio), nil
	}
	return nil, errors.NotSupportedf("sampler %s", config.Sampler)
}

// NewTracerProvider creates a tracer provider exporting spans to the collector. The caller
// owns the provider and must shut it down to flush pending spans.
func (config *TracingConfig) NewTracerProvider(ctx context.Context) (*sdktrace.TracerProvider, error) {
	sampler, err := config.newSampler()
	if err != nil {
		return nil, errors.Trace(err)
	}
	exporter, err := config.newExporter(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "taste"),
		)),
	), nil
}
