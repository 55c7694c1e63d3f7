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
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/gorse-io/taste/base/log"
	"github.com/gorse-io/taste/cmd/version"
	"github.com/gorse-io/taste/config"
	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/storage"
	"github.com/gorse-io/taste/storage/data"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	conf *config.Config
	dict = dataset.NewIDDict()

	tracerProvider *sdktrace.TracerProvider
	commandSpan    trace.Span
)

var cliCommand = &cobra.Command{
	Use:   "taste-cli",
	Short: "Collaborative filtering recommendations and their evaluation.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		debug, _ := cmd.Flags().GetBool("debug")
		if err := log.SetLogger(cmd.Flags(), debug); err != nil {
			return errors.Trace(err)
		}
		configPath, _ := cmd.Flags().GetString("config")
		var err error
		if conf, err = config.LoadConfig(configPath); err != nil {
			return errors.Annotatef(err, "failed to load config %s", configPath)
		}
		log.Logger().Debug("load config", zap.String("config", configPath), zap.Any("values", conf))
		if conf.Tracing.EnableTracing {
			if tracerProvider, err = conf.Tracing.NewTracerProvider(cmd.Context()); err != nil {
				return errors.Trace(err)
			}
			otel.SetTracerProvider(tracerProvider)
			var ctx context.Context
			ctx, commandSpan = otel.Tracer("taste-cli").Start(cmd.Context(), cmd.CommandPath())
			cmd.SetContext(ctx)
		}
		return nil
	},
	SilenceUsage: true,
}

// shutdownTracing ends the command span and flushes spans to the collector.
func shutdownTracing(ctx context.Context) {
	if commandSpan != nil {
		commandSpan.End()
		commandSpan = nil
	}
	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			log.Logger().Error("failed to shutdown tracer provider", zap.Error(err))
		}
		tracerProvider = nil
	}
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show the version of taste-cli",
	// no config needed
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(version.BuildInfo())
	},
}

func init() {
	flags := cliCommand.PersistentFlags()
	flags.StringP("config", "c", "", "path of the configuration file")
	flags.Bool("debug", false, "use debug log mode")
	log.AddFlags(flags)
	cliCommand.AddCommand(versionCommand)
}

func storageOptions() []storage.Option {
	return []storage.Option{
		storage.WithIsolationLevel(conf.Database.IsolationLevel),
		storage.WithMaxOpenConns(conf.Database.MaxOpenConns),
		storage.WithMaxIdleConns(conf.Database.MaxIdleConns),
		storage.WithConnMaxLifetime(conf.Database.ConnMaxLifetime),
		storage.WithMaxRetries(conf.Database.MaxRetries),
		storage.WithBatchSize(conf.Database.BatchSize),
	}
}

// loadModel reads every preference from the data store.
func loadModel(ctx context.Context) (dataset.DataModel, error) {
	source, err := data.Open(ctx, conf.Database.DataStore, conf.Database.TablePrefix, dict, storageOptions()...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer source.Close()
	model, err := source.Load(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if model.NumUsers() == 0 {
		return nil, errors.NotFoundf("preferences in %s", log.RedactDBURL(conf.Database.DataStore))
	}
	return model, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := cliCommand.ExecuteContext(ctx)
	shutdownTracing(context.Background())
	if err != nil {
		os.Exit(1)
	}
}
