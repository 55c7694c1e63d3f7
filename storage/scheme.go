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
	"database/sql"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/gorse-io/taste/base/log"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	MySQLPrefix      = "mysql://"
	MongoPrefix      = "mongodb://"
	MongoSrvPrefix   = "mongodb+srv://"
	PostgresPrefix   = "postgres://"
	PostgreSQLPrefix = "postgresql://"
	SQLitePrefix     = "sqlite://"
	RedisPrefix      = "redis://"
	RedissPrefix     = "rediss://"
	CSVPrefix        = "csv://"
)

// Kind is the family of a data source name.
type Kind int

const (
	Unknown Kind = iota
	SQL
	Redis
	Mongo
	CSV
)

// KindOf classifies a data source name by its prefix.
func KindOf(dsn string) Kind {
	switch {
	case strings.HasPrefix(dsn, MySQLPrefix),
		strings.HasPrefix(dsn, PostgresPrefix),
		strings.HasPrefix(dsn, PostgreSQLPrefix),
		strings.HasPrefix(dsn, SQLitePrefix):
		return SQL
	case strings.HasPrefix(dsn, RedisPrefix), strings.HasPrefix(dsn, RedissPrefix):
		return Redis
	case strings.HasPrefix(dsn, MongoPrefix), strings.HasPrefix(dsn, MongoSrvPrefix):
		return Mongo
	case strings.HasPrefix(dsn, CSVPrefix):
		return CSV
	}
	return Unknown
}

func AppendURLParams(rawURL string, params []lo.Tuple2[string, string]) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Trace(err)
	}
	q := parsed.Query()
	for _, tuple := range params {
		q.Add(tuple.A, tuple.B)
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

// AppendMySQLParams adds parameters missing from a MySQL DSN.
func AppendMySQLParams(dsn string, params map[string]string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Trace(err)
	}
	if cfg.Params == nil {
		cfg.Params = make(map[string]string)
	}
	for key, value := range params {
		if _, exist := cfg.Params[key]; !exist {
			cfg.Params[key] = value
		}
	}
	return cfg.FormatDSN(), nil
}

// ProbeMySQLIsolationVariableName returns transaction_isolation on MySQL 8 and
// tx_isolation on older servers.
func ProbeMySQLIsolationVariableName(dsn string) (string, error) {
	connection, err := sql.Open("mysql", dsn)
	if err != nil {
		return "", errors.Trace(err)
	}
	defer connection.Close()
	rows, err := connection.Query("SHOW VARIABLES WHERE variable_name = 'transaction_isolation' OR variable_name = 'tx_isolation'")
	if err != nil {
		return "", errors.Trace(err)
	}
	defer rows.Close()
	var name, value string
	if rows.Next() {
		if err = rows.Scan(&name, &value); err != nil {
			return "", errors.Trace(err)
		}
	}
	return name, nil
}

// TablePrefix names tables, collections and keys of one deployment.
type TablePrefix string

func (tp TablePrefix) PreferencesTable() string {
	return string(tp) + "preferences"
}

func (tp TablePrefix) RecommendationsTable() string {
	return string(tp) + "recommendations"
}

// Key joins parts of a Redis key, led by the prefix if there is one.
func (tp TablePrefix) Key(parts ...string) string {
	if tp != "" {
		parts = append([]string{strings.TrimSuffix(string(tp), ":")}, parts...)
	}
	return strings.Join(parts, ":")
}

func NewGORMConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(zap.NewStdLog(log.Logger()), logger.Config{
			SlowThreshold:             10 * time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		CreateBatchSize:        1000,
		SkipDefaultTransaction: true,
	}
}
