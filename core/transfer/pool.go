package transfer

import (
	"context"
	"sync"

	"github.com/vbrik/cta-data-relay/core/reconcile"
)

// Result is the outcome of one work item.
type Result struct {
	Key string
	// Err is nil or a *StageError.
	Err *StageError
	// Bytes counts payload bytes moved for the item.
	Bytes int64
	// AlreadyPresent is set when the destination already held the object.
	AlreadyPresent bool
}

// Pool runs work items on a fixed set of goroutines.
type Pool struct {
	workers int
}

// NewPool creates a pool with the specified number of workers.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Execute runs fn for every item and returns results in item order.
// Once ctx is done no further item is started; items never started are
// reported as cancelled at StagePending. fn receives ctx and decides itself
// where it may stop.
func (p *Pool) Execute(ctx context.Context, items []reconcile.WorkItem, fn func(context.Context, reconcile.WorkItem) Result) []Result {
	results := make([]Result, len(items))
	if len(items) == 0 {
		return results
	}
	started := make([]bool, len(items))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for range min(p.workers, len(items)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := checkpoint(ctx, items[i].Key, StagePending); err != nil {
					continue
				}
				started[i] = true
				results[i] = fn(ctx, items[i])
				results[i].Key = items[i].Key
			}
		}()
	}

dispatch:
	for i := range items {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	for i := range items {
		if !started[i] {
			results[i] = Result{Key: items[i].Key, Err: checkpoint(ctx, items[i].Key, StagePending)}
			if results[i].Err == nil {
				results[i].Err = fail(items[i].Key, StagePending, ErrCancelled, context.Canceled)
			}
		}
	}
	return results
}
