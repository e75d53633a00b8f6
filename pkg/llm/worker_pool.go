package llm

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const defaultMaxConcurrent = 8

// WorkerPool bounds how many model calls are in flight at once. The pool is
// shared: every caller draws from the same set of slots.
type WorkerPool struct {
	slots  chan struct{}
	logger *zap.Logger
}

// NewWorkerPool creates a pool allowing maxConcurrent simultaneous calls.
// Non-positive values fall back to the default of 8.
func NewWorkerPool(maxConcurrent int, logger *zap.Logger) *WorkerPool {
	if maxConcurrent < 1 {
		maxConcurrent = defaultMaxConcurrent
	}
	return &WorkerPool{
		slots:  make(chan struct{}, maxConcurrent),
		logger: logger.Named("llm-worker-pool"),
	}
}

// WorkItem is one model call to run through the pool.
type WorkItem[T any] struct {
	ID  string
	Run func(ctx context.Context) (T, error)
}

// WorkResult pairs an item ID with its outcome.
type WorkResult[T any] struct {
	ID     string
	Result T
	Err    error
}

// Process runs every item, at most the pool's limit in flight, and returns
// results in submission order. Items that cannot acquire a slot before the
// context ends report the context error; everything else still runs.
func Process[T any](ctx context.Context, pool *WorkerPool, items []WorkItem[T]) []WorkResult[T] {
	if len(items) == 0 {
		return nil
	}

	results := make([]WorkResult[T], len(items))
	var wg sync.WaitGroup
	for idx, item := range items {
		wg.Add(1)
		go func(idx int, item WorkItem[T]) {
			defer wg.Done()

			select {
			case pool.slots <- struct{}{}:
				defer func() { <-pool.slots }()
			case <-ctx.Done():
				results[idx] = WorkResult[T]{ID: item.ID, Err: ctx.Err()}
				return
			}

			out, err := item.Run(ctx)
			results[idx] = WorkResult[T]{ID: item.ID, Result: out, Err: err}
		}(idx, item)
	}
	wg.Wait()

	return results
}
