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

package neighborhood

import (
	"testing"

	"github.com/gorse-io/taste/common/util"
	"github.com/gorse-io/taste/config"
	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/similarity"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func newModel(t *testing.T) *dataset.GenericDataModel {
	model, err := dataset.NewGenericDataModel([]dataset.Preference{
		{UserID: 1, ItemID: 1, Value: 1}, {UserID: 2, ItemID: 1, Value: 2}, {UserID: 3, ItemID: 1, Value: 3}, {UserID: 4, ItemID: 1, Value: 4}, {UserID: 5, ItemID: 1, Value: 5},
	})
	assert.NoError(t, err)
	return model
}

func newSimilarity() *similarity.GenericUserSimilarity {
	return similarity.NewGenericUserSimilarity([]dataset.UserUserSimilarity{
		{UserID1: 1, UserID2: 2, Similarity: 0.9}, {UserID1: 1, UserID2: 3, Similarity: 0.1}, {UserID1: 1, UserID2: 4, Similarity: 0.5}, {UserID1: 1, UserID2: 5, Similarity: 0.7},
		{UserID1: 2, UserID2: 3, Similarity: 0.2}, {UserID1: 2, UserID2: 4, Similarity: -0.4}, {UserID1: 2, UserID2: 5, Similarity: 0.3},
	})
}

func TestNearestNUserNeighborhood(t *testing.T) {
	model := newModel(t)
	nb, err := NewNearestNUserNeighborhood(3, -1, newSimilarity(), model, 1, nil)
	assert.NoError(t, err)
	neighbors, err := nb.UserNeighborhood(1)
	assert.NoError(t, err)
	assert.Equal(t, []int64{2, 5, 4}, neighbors)

	// the size is capped to the number of users
	nb, err = NewNearestNUserNeighborhood(10, -1, newSimilarity(), model, 1, nil)
	assert.NoError(t, err)
	neighbors, err = nb.UserNeighborhood(1)
	assert.NoError(t, err)
	assert.Equal(t, []int64{2, 5, 4, 3}, neighbors)

	nb, err = NewNearestNUserNeighborhood(3, 0.6, newSimilarity(), model, 1, nil)
	assert.NoError(t, err)
	neighbors, err = nb.UserNeighborhood(1)
	assert.NoError(t, err)
	assert.Equal(t, []int64{2, 5}, neighbors)

	// users 4 and 5 have no similarity to user 3
	neighbors, err = nb.UserNeighborhood(3)
	assert.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestNearestNInvalid(t *testing.T) {
	model := newModel(t)
	_, err := NewNearestNUserNeighborhood(0, -1, newSimilarity(), model, 1, nil)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = NewNearestNUserNeighborhood(1, -1, newSimilarity(), model, 1.5, nil)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = NewNearestNUserNeighborhood(1, -1, newSimilarity(), model, 0.5, nil)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = NewNearestNUserNeighborhood(1, -1, nil, model, 1, nil)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestSampling(t *testing.T) {
	model := newModel(t)
	nb, err := NewNearestNUserNeighborhood(4, -1, newSimilarity(), model, 0.5, util.NewRand(0))
	assert.NoError(t, err)
	full := []int64{2, 5, 4, 3}
	for i := 0; i < 10; i++ {
		neighbors, err := nb.UserNeighborhood(1)
		assert.NoError(t, err)
		// a sample keeps the exact order
		assert.Equal(t, lo.Filter(full, func(id int64, _ int) bool { return lo.Contains(neighbors, id) }), neighbors)
	}
}

func TestThresholdUserNeighborhood(t *testing.T) {
	model := newModel(t)
	nb, err := NewThresholdUserNeighborhood(0.5, newSimilarity(), model, 1, nil)
	assert.NoError(t, err)
	neighbors, err := nb.UserNeighborhood(1)
	assert.NoError(t, err)
	assert.Equal(t, []int64{2, 5, 4}, neighbors)

	nb, err = NewThresholdUserNeighborhood(-0.5, newSimilarity(), model, 1, nil)
	assert.NoError(t, err)
	neighbors, err = nb.UserNeighborhood(2)
	assert.NoError(t, err)
	assert.Equal(t, []int64{1, 5, 3, 4}, neighbors)
}

type countingNeighborhood struct {
	delegate UserNeighborhood
	calls    int
}

func (c *countingNeighborhood) UserNeighborhood(userID int64) ([]int64, error) {
	c.calls++
	return c.delegate.UserNeighborhood(userID)
}

func (c *countingNeighborhood) Refresh() {
	c.delegate.Refresh()
}

func TestCachingUserNeighborhood(t *testing.T) {
	model := newModel(t)
	delegate := &countingNeighborhood{delegate: lo.Must(NewNearestNUserNeighborhood(2, -1, newSimilarity(), model, 1, nil))}
	nb := NewCachingUserNeighborhood(delegate, model)
	for i := 0; i < 3; i++ {
		neighbors, err := nb.UserNeighborhood(1)
		assert.NoError(t, err)
		assert.Equal(t, []int64{2, 5}, neighbors)
	}
	assert.Equal(t, 1, delegate.calls)

	assert.NoError(t, model.SetPreference(6, 1, 1))
	_, err := nb.UserNeighborhood(1)
	assert.NoError(t, err)
	assert.Equal(t, 2, delegate.calls)

	nb.Refresh()
	_, err = nb.UserNeighborhood(1)
	assert.NoError(t, err)
	assert.Equal(t, 3, delegate.calls)
}

func TestFromConfig(t *testing.T) {
	model := newModel(t)
	cfg := config.GetDefaultConfig().Neighborhood
	nb, err := FromConfig(cfg, newSimilarity(), model, nil)
	assert.NoError(t, err)
	assert.IsType(t, &CachingUserNeighborhood{}, nb)

	cfg.Cache = false
	cfg.Type = config.Threshold
	nb, err = FromConfig(cfg, newSimilarity(), model, nil)
	assert.NoError(t, err)
	assert.IsType(t, &ThresholdUserNeighborhood{}, nb)

	cfg.Type = "unknown"
	_, err = FromConfig(cfg, newSimilarity(), model, nil)
	assert.True(t, errors.Is(err, errors.NotSupported))
}
