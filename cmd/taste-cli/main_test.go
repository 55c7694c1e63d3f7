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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupConfig(t *testing.T, extra ...string) string {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "preferences.csv")
	require.NoError(t, os.WriteFile(dataPath, []byte("1,10,5\n1,20,3\n2,10,4\n2,30,2\n3,30,5\n"), 0644))
	configPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
[database]
data_store = "csv://`+filepath.ToSlash(dataPath)+`"
result_store = "csv://`+filepath.ToSlash(filepath.Join(dir, "recommendations.csv"))+`"

[recommender]
type = "item_average"

[evaluator]
num_jobs = 1
`+strings.Join(extra, "\n")), 0644))
	return configPath
}

func execute(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	cliCommand.SetOut(&out)
	cliCommand.SetArgs(args)
	err := cliCommand.Execute()
	return out.String(), err
}

func TestRecommend(t *testing.T) {
	configPath := setupConfig(t)
	out, err := execute(t, "recommend", "1", "-n", "2", "-c", configPath)
	assert.NoError(t, err)
	assert.Contains(t, out, "30")
	assert.Contains(t, out, "3.5000")

	_, err = execute(t, "recommend", "--all", "-c", configPath)
	assert.NoError(t, err)
	content, err := os.ReadFile(filepath.Join(filepath.Dir(configPath), "recommendations.csv"))
	assert.NoError(t, err)
	assert.Contains(t, string(content), "1,30,3.5\n")

	_, err = execute(t, "recommend", "--all=false", "-c", configPath)
	assert.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	configPath := setupConfig(t)
	out, err := execute(t, "evaluate", "rmse", "-c", configPath)
	assert.NoError(t, err)
	assert.Contains(t, out, "rmse")

	out, err = execute(t, "evaluate", "order", "random", "-c", configPath)
	assert.NoError(t, err)
	assert.Contains(t, out, "spearman")
}

func TestTracing(t *testing.T) {
	configPath := setupConfig(t, `
[tracing]
enable_tracing = true
exporter = "zipkin"
collector_endpoint = "http://127.0.0.1:1/api/v2/spans"
sampler = "never"
`)
	_, err := execute(t, "evaluate", "mae", "-c", configPath)
	assert.NoError(t, err)
	assert.NotNil(t, tracerProvider)
	assert.NotNil(t, commandSpan)
	shutdownTracing(context.Background())
	assert.Nil(t, tracerProvider)
	assert.Nil(t, commandSpan)
}

func TestImport(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "preferences.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("1,10,5\n1,20,3\n2,10,4\n2,30,2\n3,30,5\n"), 0644))
	configPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
[database]
data_store = "sqlite://`+filepath.ToSlash(filepath.Join(dir, "taste.db"))+`"

[recommender]
type = "item_average"
`), 0644))

	_, err := execute(t, "import", csvPath, "--batch-size", "2", "-c", configPath)
	assert.NoError(t, err)
	out, err := execute(t, "recommend", "1", "-c", configPath)
	assert.NoError(t, err)
	assert.Contains(t, out, "3.5000")

	_, err = execute(t, "import", "-c", configPath)
	assert.Error(t, err)
}
