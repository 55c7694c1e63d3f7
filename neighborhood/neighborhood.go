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
	"iter"
	"math"
	"math/rand"
	"slices"

	"github.com/gorse-io/taste/common/cache"
	"github.com/gorse-io/taste/config"
	"github.com/gorse-io/taste/dataset"
	"github.com/gorse-io/taste/recommend/topitems"
	"github.com/gorse-io/taste/similarity"
	"github.com/juju/errors"
)

// UserNeighborhood finds users similar to a user, excluding the user.
type UserNeighborhood interface {
	UserNeighborhood(userID int64) ([]int64, error)
	Refresh()
}

// sampler keeps each user with a fixed probability. The neighborhood found from a sample
// approximates the exact one.
type sampler struct {
	rate float64
	rng  *rand.Rand
}

func newSampler(rate float64, rng *rand.Rand) (sampler, error) {
	if math.IsNaN(rate) || rate <= 0 || rate > 1 {
		return sampler{}, errors.NotValidf("sampling rate %v", rate)
	}
	if rate < 1 && rng == nil {
		return sampler{}, errors.NotValidf("sampling without random source")
	}
	return sampler{rate: rate, rng: rng}, nil
}

func (s sampler) sample(ids []int64) iter.Seq[int64] {
	if s.rate >= 1 {
		return slices.Values(ids)
	}
	return func(yield func(int64) bool) {
		for _, id := range ids {
			if s.rng.Float64() < s.rate && !yield(id) {
				return
			}
		}
	}
}

// NearestNUserNeighborhood keeps the n most similar users whose similarity reaches a
// floor.
type NearestNUserNeighborhood struct {
	n             int
	minSimilarity float64
	similarity    similarity.UserSimilarity
	model         dataset.DataModel
	sampler       sampler
}

// NewNearestNUserNeighborhood creates a neighborhood of n users. Candidates are sampled
// with samplingRate in (0, 1] using rng, which may be nil if samplingRate is 1.
func NewNearestNUserNeighborhood(n int, minSimilarity float64, similarity similarity.UserSimilarity,
	model dataset.DataModel, samplingRate float64, rng *rand.Rand) (*NearestNUserNeighborhood, error) {
	if n < 1 {
		return nil, errors.NotValidf("neighborhood size %d", n)
	}
	if similarity == nil || model == nil {
		return nil, errors.NotValidf("nil similarity or model")
	}
	s, err := newSampler(samplingRate, rng)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &NearestNUserNeighborhood{
		n:             n,
		minSimilarity: minSimilarity,
		similarity:    similarity,
		model:         model,
		sampler:       s,
	}, nil
}

func (nb *NearestNUserNeighborhood) UserNeighborhood(userID int64) ([]int64, error) {
	n := min(nb.n, nb.model.NumUsers())
	users, err := topitems.TopUsers(n, nb.sampler.sample(nb.model.UserIDs()), nil, func(candidate int64) (float64, error) {
		if candidate == userID {
			return math.NaN(), nil
		}
		sim, err := nb.similarity.UserSimilarity(userID, candidate)
		if err != nil {
			return math.NaN(), errors.Trace(err)
		}
		if sim >= nb.minSimilarity {
			return sim, nil
		}
		return math.NaN(), nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	ids := make([]int64, len(users))
	for i, user := range users {
		ids[i] = user.UserID
	}
	return ids, nil
}

func (nb *NearestNUserNeighborhood) Refresh() {
	nb.similarity.Refresh()
}

// ThresholdUserNeighborhood keeps every user whose similarity reaches a threshold, most
// similar first.
type ThresholdUserNeighborhood struct {
	threshold  float64
	similarity similarity.UserSimilarity
	model      dataset.DataModel
	sampler    sampler
}

func NewThresholdUserNeighborhood(threshold float64, similarity similarity.UserSimilarity,
	model dataset.DataModel, samplingRate float64, rng *rand.Rand) (*ThresholdUserNeighborhood, error) {
	if math.IsNaN(threshold) {
		return nil, errors.NotValidf("NaN threshold")
	}
	if similarity == nil || model == nil {
		return nil, errors.NotValidf("nil similarity or model")
	}
	s, err := newSampler(samplingRate, rng)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &ThresholdUserNeighborhood{
		threshold:  threshold,
		similarity: similarity,
		model:      model,
		sampler:    s,
	}, nil
}

func (nb *ThresholdUserNeighborhood) UserNeighborhood(userID int64) ([]int64, error) {
	var neighbors []dataset.SimilarUser
	for candidate := range nb.sampler.sample(nb.model.UserIDs()) {
		if candidate == userID {
			continue
		}
		sim, err := nb.similarity.UserSimilarity(userID, candidate)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if !math.IsNaN(sim) && sim >= nb.threshold {
			neighbors = append(neighbors, dataset.SimilarUser{UserID: candidate, Similarity: sim})
		}
	}
	slices.SortFunc(neighbors, dataset.CompareSimilarUsers)
	ids := make([]int64, len(neighbors))
	for i, neighbor := range neighbors {
		ids[i] = neighbor.UserID
	}
	return ids, nil
}

func (nb *ThresholdUserNeighborhood) Refresh() {
	nb.similarity.Refresh()
}

// CachingUserNeighborhood memoizes another neighborhood per user until the model changes.
type CachingUserNeighborhood struct {
	neighborhood UserNeighborhood
	neighbors    *cache.Cache[int64, []int64]
}

func NewCachingUserNeighborhood(neighborhood UserNeighborhood, model dataset.DataModel) *CachingUserNeighborhood {
	return &CachingUserNeighborhood{
		neighborhood: neighborhood,
		neighbors:    cache.New[int64, []int64]("user_neighborhood", model.NumUsers(), model.Generation),
	}
}

func (c *CachingUserNeighborhood) UserNeighborhood(userID int64) ([]int64, error) {
	return c.neighbors.GetOrCompute(userID, func() ([]int64, error) {
		neighbors, err := c.neighborhood.UserNeighborhood(userID)
		return neighbors, errors.Trace(err)
	})
}

func (c *CachingUserNeighborhood) Refresh() {
	c.neighbors.Clear()
	c.neighborhood.Refresh()
}

// FromConfig creates a neighborhood from configuration.
func FromConfig(cfg config.NeighborhoodConfig, sim similarity.UserSimilarity, model dataset.DataModel, rng *rand.Rand) (UserNeighborhood, error) {
	var (
		nb  UserNeighborhood
		err error
	)
	switch cfg.Type {
	case config.Nearest:
		nb, err = wrap(NewNearestNUserNeighborhood(cfg.Size, cfg.MinSimilarity, sim, model, cfg.SamplingRate, rng))
	case config.Threshold:
		nb, err = wrap(NewThresholdUserNeighborhood(cfg.Threshold, sim, model, cfg.SamplingRate, rng))
	default:
		return nil, errors.NotSupportedf("neighborhood %q", cfg.Type)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Cache {
		nb = NewCachingUserNeighborhood(nb, model)
	}
	return nb, nil
}

func wrap[T UserNeighborhood](nb T, err error) (UserNeighborhood, error) {
	if err != nil {
		return nil, err
	}
	return nb, nil
}
