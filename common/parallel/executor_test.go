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

package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSequentialExecutor(t *testing.T) {
	var order []int
	err := NewSequentialExecutor().Execute(context.Background(), 5, func(_ context.Context, jobId int) error {
		order = append(order, jobId)
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)

	boom := errors.New("boom")
	order = nil
	err = NewSequentialExecutor().Execute(context.Background(), 5, func(_ context.Context, jobId int) error {
		order = append(order, jobId)
		if jobId == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestPoolExecutor(t *testing.T) {
	var sum atomic.Int64
	executor := NewPoolExecutor(4, 0)
	assert.Equal(t, 4, executor.Workers())
	err := executor.Execute(context.Background(), 1000, func(_ context.Context, jobId int) error {
		sum.Add(int64(jobId))
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(999*1000/2), sum.Load())
	assert.Positive(t, NewPoolExecutor(0, 0).Workers())
}

func TestPoolExecutorFail(t *testing.T) {
	boom := errors.New("boom")
	err := NewPoolExecutor(4, 0).Execute(context.Background(), 1000, func(_ context.Context, jobId int) error {
		if jobId == 10 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestPoolExecutorTimeout(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		err := NewPoolExecutor(2, time.Second).Execute(context.Background(), 100, func(_ context.Context, jobId int) error {
			time.Sleep(time.Second)
			return nil
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestPoolExecutorCancelRunningJobs(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		start := time.Now()
		// each job takes a minute unless its context is done first
		slow := func(ctx context.Context, jobId int) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Minute):
				return nil
			}
		}
		err := NewPoolExecutor(2, time.Second).Execute(context.Background(), 4, slow)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, time.Second, time.Since(start))

		boom := errors.New("boom")
		start = time.Now()
		err = NewPoolExecutor(2, 0).Execute(context.Background(), 2, func(ctx context.Context, jobId int) error {
			if jobId == 0 {
				time.Sleep(time.Second)
				return boom
			}
			return slow(ctx, jobId)
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, time.Second, time.Since(start))
	})
}

func TestSequentialExecutorContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var seen []int
	err := NewSequentialExecutor().Execute(ctx, 5, func(jobCtx context.Context, jobId int) error {
		seen = append(seen, jobId)
		if jobId == 1 {
			cancel()
		}
		return jobCtx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int{0, 1}, seen)
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(0)
	limiter.Wait(1000)
	limiter = NewRateLimiter(1000)
	limiter.Wait(1)
}
