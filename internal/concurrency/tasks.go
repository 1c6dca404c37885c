package concurrency

import (
	"context"
	"runtime"

	qerrors "github.com/23skdu/quiver/internal/errors"
	"golang.org/x/sync/errgroup"
)

// Task is a unit of work run by RunWithConcurrency.
type Task func(ctx context.Context) error

// DefaultConcurrency is the number of workers used when none is configured.
func DefaultConcurrency() int {
	return runtime.GOMAXPROCS(0)
}

// RunWithConcurrency runs tasks with at most concurrency in flight and waits
// for all of them. The first failure cancels the remaining tasks. Panics in a
// task are recovered and returned as errors.
func RunWithConcurrency(ctx context.Context, concurrency int, tasks []Task) error {
	if concurrency < 1 {
		concurrency = DefaultConcurrency()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, task := range tasks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = qerrors.FromPanic("task", r)
				}
			}()
			return task(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return qerrors.NewCancelledError("run_tasks", err)
	}
	return nil
}

// ParallelRange splits [0, n) into contiguous batches and runs fn on each.
func ParallelRange(ctx context.Context, concurrency int, n int64, fn func(ctx context.Context, start, end int64) error) error {
	if n <= 0 {
		return nil
	}
	if concurrency < 1 {
		concurrency = DefaultConcurrency()
	}
	batch := (n + int64(concurrency)*4 - 1) / (int64(concurrency) * 4)
	if batch < 1024 {
		batch = 1024
	}
	tasks := make([]Task, 0, (n+batch-1)/batch)
	for start := int64(0); start < n; start += batch {
		end := min(start+batch, n)
		tasks = append(tasks, func(ctx context.Context) error {
			return fn(ctx, start, end)
		})
	}
	return RunWithConcurrency(ctx, concurrency, tasks)
}
