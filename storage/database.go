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

package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/cenkalti/backoff/v5"
	"github.com/gorse-io/taste/base/log"
	"github.com/juju/errors"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

// Retry calls open until it succeeds, ctx is done or opt.MaxRetries retries have failed.
func Retry[T any](ctx context.Context, opt Options, name string, open func() (T, error)) (T, error) {
	return backoff.Retry(ctx, open,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(opt.MaxRetries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Logger().Warn("failed to connect database",
				zap.String("database", name),
				zap.Duration("retry_after", next),
				zap.Error(err))
		}))
}

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
)

func (d SQLDriver) String() string {
	switch d {
	case MySQL:
		return "mysql"
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	}
	return "unknown"
}

// SQLDatabase is a connection pool shared by the GORM handle.
type SQLDatabase struct {
	Driver SQLDriver
	Client *sql.DB
	GormDB *gorm.DB
}

func (d *SQLDatabase) Close() error {
	return d.Client.Close()
}

// OpenSQL connects to MySQL, Postgres or SQLite.
func OpenSQL(ctx context.Context, dsn string, opt Options) (*SQLDatabase, error) {
	var (
		database = new(SQLDatabase)
		err      error
	)
	spanOptions := otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true})
	if strings.HasPrefix(dsn, MySQLPrefix) {
		name := dsn[len(MySQLPrefix):]
		var isolationVarName string
		isolationVarName, err = Retry(ctx, opt, "mysql", func() (string, error) {
			return ProbeMySQLIsolationVariableName(name)
		})
		if err != nil {
			return nil, errors.Trace(err)
		}
		if name, err = AppendMySQLParams(name, map[string]string{
			"sql_mode":       "'ONLY_FULL_GROUP_BY,STRICT_TRANS_TABLES,ERROR_FOR_DIVISION_BY_ZERO,NO_ENGINE_SUBSTITUTION'",
			isolationVarName: "'" + opt.IsolationLevel + "'",
			"parseTime":      "true",
		}); err != nil {
			return nil, errors.Trace(err)
		}
		database.Driver = MySQL
		if database.Client, err = otelsql.Open("mysql", name,
			otelsql.WithAttributes(attribute.String("db.system", "mysql")), spanOptions); err != nil {
			return nil, errors.Trace(err)
		}
		database.GormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: database.Client}), NewGORMConfig())
	} else if strings.HasPrefix(dsn, PostgresPrefix) || strings.HasPrefix(dsn, PostgreSQLPrefix) {
		database.Driver = Postgres
		if database.Client, err = otelsql.Open("postgres", dsn,
			otelsql.WithAttributes(attribute.String("db.system", "postgresql")), spanOptions); err != nil {
			return nil, errors.Trace(err)
		}
		database.GormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: database.Client}), NewGORMConfig())
	} else if strings.HasPrefix(dsn, SQLitePrefix) {
		var name string
		if name, err = AppendURLParams(dsn[len(SQLitePrefix):], []lo.Tuple2[string, string]{
			{A: "_pragma", B: "busy_timeout(10000)"},
			{A: "_pragma", B: "journal_mode(wal)"},
		}); err != nil {
			return nil, errors.Trace(err)
		}
		database.Driver = SQLite
		if database.Client, err = otelsql.Open("sqlite", name,
			otelsql.WithAttributes(attribute.String("db.system", "sqlite")), spanOptions); err != nil {
			return nil, errors.Trace(err)
		}
		database.GormDB, err = gorm.Open(sqlite.Dialector{Conn: database.Client}, NewGORMConfig())
	} else {
		return nil, errors.NotSupportedf("sql database %s", log.RedactDBURL(dsn))
	}
	if err != nil {
		_ = database.Client.Close()
		return nil, errors.Trace(err)
	}
	ApplySQLPool(database.Client, opt)
	if _, err = Retry(ctx, opt, database.Driver.String(), func() (struct{}, error) {
		return struct{}{}, database.Client.PingContext(ctx)
	}); err != nil {
		_ = database.Client.Close()
		return nil, errors.Trace(err)
	}
	log.Logger().Info("connect to database",
		zap.Stringer("driver", database.Driver),
		zap.String("dsn", log.RedactDBURL(dsn)))
	return database, nil
}

// OpenRedis connects to a Redis server given by a redis:// or rediss:// URL.
func OpenRedis(ctx context.Context, dsn string, opt Options) (*redis.Client, error) {
	redisOptions, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if opt.MaxOpenConns > 0 {
		redisOptions.PoolSize = opt.MaxOpenConns
	}
	client := redis.NewClient(redisOptions)
	if err = redisotel.InstrumentTracing(client); err != nil {
		_ = client.Close()
		return nil, errors.Trace(err)
	}
	if _, err = Retry(ctx, opt, "redis", func() (string, error) {
		return client.Ping(ctx).Result()
	}); err != nil {
		_ = client.Close()
		return nil, errors.Trace(err)
	}
	log.Logger().Info("connect to database",
		zap.String("driver", "redis"),
		zap.String("dsn", log.RedactDBURL(dsn)))
	return client, nil
}

// OpenMongo connects to MongoDB and returns the database named in the URI.
func OpenMongo(ctx context.Context, dsn string, opt Options) (*mongo.Database, error) {
	cs, err := connstring.ParseAndValidate(dsn)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if cs.Database == "" {
		return nil, errors.NotValidf("mongodb uri without database")
	}
	clientOptions := options.Client().ApplyURI(dsn)
	clientOptions.Monitor = otelmongo.NewMonitor()
	if opt.MaxOpenConns > 0 {
		clientOptions.SetMaxPoolSize(uint64(opt.MaxOpenConns))
	}
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if _, err = Retry(ctx, opt, "mongodb", func() (struct{}, error) {
		return struct{}{}, client.Ping(ctx, nil)
	}); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Trace(err)
	}
	log.Logger().Info("connect to database",
		zap.String("driver", "mongodb"),
		zap.String("dsn", log.RedactDBURL(dsn)))
	return client.Database(cs.Database), nil
}
