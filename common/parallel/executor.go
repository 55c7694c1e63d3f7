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
	"runtime"
	"time"

	"github.com/juju/errors"
	"golang.org/x/sync/errgroup"
)

// Executor runs a batch of independent jobs and blocks until all of them finish.
// The first failing job aborts the batch and its error is returned. Jobs receive a
// context which is canceled once the batch is aborted or times out, and should stop
// early when it is done.
type Executor interface {
	Execute(ctx context.Context, nJobs int, job func(ctx context.Context, jobId int) error) error
}

// SequentialExecutor runs jobs one by one in the calling goroutine.
type SequentialExecutor struct{}

func NewSequentialExecutor() *SequentialExecutor {
	return &SequentialExecutor{}
}

func (e *SequentialExecutor) Execute(ctx context.Context, nJobs int, job func(ctx context.Context, jobId int) error) error {
	return Parallel(ctx, nJobs, 1, func(_, jobId int) error {
		return job(ctx, jobId)
	})
}

// PoolExecutor runs jobs on a bounded number of goroutines. A positive timeout bounds
// the whole batch.
type PoolExecutor struct {
	workers int
	timeout time.Duration
}

// NewPoolExecutor creates an executor with the given number of workers. Non-positive
// workers means one worker per CPU.
func NewPoolExecutor(workers int, timeout time.Duration) *PoolExecutor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &PoolExecutor{workers: workers, timeout: timeout}
}

func (e *PoolExecutor) Workers() int {
	return e.workers
}

func (e *PoolExecutor) Execute(ctx context.Context, nJobs int, job func(ctx context.Context, jobId int) error) error {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := 0; i < nJobs; i++ {
		if groupCtx.Err() != nil {
			break
		}
		jobId := i
		g.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			return runJob(func(_, jobId int) error { return job(groupCtx, jobId) }, 0, jobId)
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Trace(err)
	}
	if err := ctx.Err(); err != nil {
		return errors.Annotate(err, "executor terminated before all jobs finished")
	}
	return nil
}
