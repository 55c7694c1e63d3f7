// Copyright 2024 gorse Project Authors
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
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/gorse-io/taste/base/log"
	"github.com/gorse-io/taste/config"
	"github.com/gorse-io/taste/recommend/topitems"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// ExpressionRescorer filters and rescores items with expressions. The filter sees
// `item` and keeps the item if it evaluates to true. The score sees `item` and the
// original `score`.
type ExpressionRescorer struct {
	filterFunc *vm.Program
	scoreFunc  *vm.Program
}

func NewExpressionRescorer(filter, score string) (*ExpressionRescorer, error) {
	r := &ExpressionRescorer{}
	var err error
	// Compile filter expression
	if filter != "" {
		r.filterFunc, err = expr.Compile(filter, expr.Env(map[string]any{
			"item": int64(0),
		}), expr.AsBool())
		if err != nil {
			return nil, errors.Annotatef(err, "compile filter %q", filter)
		}
	}
	// Compile score expression
	if score != "" {
		r.scoreFunc, err = expr.Compile(score, expr.Env(map[string]any{
			"item":  int64(0),
			"score": float64(0),
		}), expr.AsFloat64())
		if err != nil {
			return nil, errors.Annotatef(err, "compile score %q", score)
		}
	}
	return r, nil
}

// RescorerFromConfig returns nil if neither expression is configured.
func RescorerFromConfig(cfg config.RecommenderConfig) (topitems.IDRescorer, error) {
	if cfg.Filter == "" && cfg.Score == "" {
		return nil, nil
	}
	r, err := NewExpressionRescorer(cfg.Filter, cfg.Score)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return r, nil
}

func (r *ExpressionRescorer) IsFiltered(itemID int64) bool {
	if r.filterFunc == nil {
		return false
	}
	result, err := expr.Run(r.filterFunc, map[string]any{
		"item": itemID,
	})
	if err != nil {
		log.Logger().Error("evaluate filter function", zap.Int64("item", itemID), zap.Error(err))
		return true
	}
	return !result.(bool)
}

func (r *ExpressionRescorer) Rescore(itemID int64, original float64) float64 {
	if r.scoreFunc == nil {
		return original
	}
	result, err := expr.Run(r.scoreFunc, map[string]any{
		"item":  itemID,
		"score": original,
	})
	if err != nil {
		log.Logger().Error("evaluate score function", zap.Int64("item", itemID), zap.Error(err))
		return original
	}
	return result.(float64)
}
