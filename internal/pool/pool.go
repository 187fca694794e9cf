// Package pool runs an ordered list of tasks through a fixed number of
// workers and returns results aligned with the input.
package pool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Worker handles one task. It must encode its own failures in R; the pool
// has no error path and never stops early.
type Worker[T, R any] func(ctx context.Context, index int, task T) R

// Run executes worker once per task using min(concurrency, len(tasks))
// goroutines. Each goroutine claims the next unclaimed index from a shared
// atomic cursor until the list is exhausted. results[i] always belongs to
// tasks[i], regardless of completion order. Run returns after every task has
// produced a result.
func Run[T, R any](ctx context.Context, tasks []T, concurrency int, worker Worker[T, R]) []R {
	results := make([]R, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	workers := min(max(concurrency, 1), len(tasks))

	var cursor atomic.Int64
	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			for {
				i := int(cursor.Add(1) - 1)
				if i >= len(tasks) {
					return nil
				}
				results[i] = worker(ctx, i, tasks[i])
			}
		})
	}
	_ = g.Wait()

	return results
}
