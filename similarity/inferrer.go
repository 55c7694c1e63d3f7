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
	"github.com/gorse-io/taste/common/cache"
	"github.com/gorse-io/taste/common/stats"
	"github.com/gorse-io/taste/dataset"
	"github.com/juju/errors"
)

// PreferenceInferrer fills in a preference the user has not expressed.
type PreferenceInferrer interface {
	InferPreference(userID, itemID int64) (float32, error)
	Refresh()
}

// AveragingPreferenceInferrer infers the mean preference of the user.
type AveragingPreferenceInferrer struct {
	model    dataset.DataModel
	averages *cache.Cache[int64, float32]
}

func NewAveragingPreferenceInferrer(model dataset.DataModel) *AveragingPreferenceInferrer {
	return &AveragingPreferenceInferrer{
		model:    model,
		averages: cache.New[int64, float32]("user_average", model.NumUsers(), model.Generation),
	}
}

func (a *AveragingPreferenceInferrer) InferPreference(userID, _ int64) (float32, error) {
	return a.averages.GetOrCompute(userID, func() (float32, error) {
		prefs, err := a.model.PreferencesFromUser(userID)
		if err != nil {
			return 0, errors.Trace(err)
		}
		average := stats.NewRunningAverage()
		for _, value := range prefs.Values() {
			average.AddDatum(float64(value))
		}
		return float32(average.Average()), nil
	})
}

func (a *AveragingPreferenceInferrer) Refresh() {
	a.averages.Clear()
}
