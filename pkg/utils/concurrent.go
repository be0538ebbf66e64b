package utils

import (
	"context"
	"os"
	"strconv"
	"sync"
)

// DefaultWorkerLimit bounds concurrent workers when no explicit limit is
// configured. Overridable through the COALESCE_WORKERS environment variable.
const DefaultWorkerLimit = 8

// WorkerLimit returns the configured worker bound.
func WorkerLimit() int {
	val := os.Getenv("COALESCE_WORKERS")
	if val == "" {
		return DefaultWorkerLimit
	}
	limit, err := strconv.Atoi(val)
	if err != nil || limit <= 0 {
		return DefaultWorkerLimit
	}
	return limit
}

// ConcurrentExecutor runs functions concurrently behind a semaphore.
// Blocking strategies fan out through it during candidate generation.
type ConcurrentExecutor struct {
	semaphore chan struct{}
}

// NewConcurrentExecutor creates an executor with the given concurrency bound.
func NewConcurrentExecutor(maxConcurrency int) *ConcurrentExecutor {
	if maxConcurrency <= 0 {
		maxConcurrency = WorkerLimit()
	}
	return &ConcurrentExecutor{semaphore: make(chan struct{}, maxConcurrency)}
}

// Execute runs the functions concurrently and returns their errors by index.
// Panics are recovered and surfaced as PanicError.
func (e *ConcurrentExecutor) Execute(ctx context.Context, functions ...func() error) []error {
	if len(functions) == 0 {
		return nil
	}
	results := make([]error, len(functions))
	var wg sync.WaitGroup
	for i, fn := range functions {
		wg.Add(1)
		go func(index int, function func() error) {
			defer wg.Done()
			defer RecoverWithCallback(func(err error) {
				results[index] = err
			})

			select {
			case e.semaphore <- struct{}{}:
				defer func() { <-e.semaphore }()
			case <-ctx.Done():
				results[index] = ctx.Err()
				return
			}

			results[index] = function()
		}(i, fn)
	}
	wg.Wait()
	return results
}

// Worker processes one item into one result.
type Worker[T any, R any] func(ctx context.Context, item T) (R, error)

// WorkerPool processes a slice of items with a fixed number of workers.
// The scoring engine uses it to run one bulk fetch plus CPU-only scoring
// per candidate-pair batch. Workers stop consuming when the context is
// cancelled; in-flight items complete.
type WorkerPool[T any, R any] struct {
	numWorkers int
	worker     Worker[T, R]
}

// NewWorkerPool creates a pool with the given worker count.
func NewWorkerPool[T any, R any](numWorkers int, worker Worker[T, R]) *WorkerPool[T, R] {
	if numWorkers <= 0 {
		numWorkers = WorkerLimit()
	}
	return &WorkerPool[T, R]{numWorkers: numWorkers, worker: worker}
}

// ProcessItems runs all items through the pool, returning results and
// errors by input index. Panics in workers are recovered as PanicError.
func (wp *WorkerPool[T, R]) ProcessItems(ctx context.Context, items []T) ([]R, []error) {
	if len(items) == 0 {
		return nil, nil
	}

	type indexed struct {
		item  T
		index int
	}
	itemsChan := make(chan indexed, len(items))
	for i, item := range items {
		itemsChan <- indexed{item: item, index: i}
	}
	close(itemsChan)

	results := make([]R, len(items))
	errors := make([]error, len(items))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := 0; i < wp.numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case item, ok := <-itemsChan:
					if !ok {
						return
					}
					func() {
						defer RecoverWithCallback(func(err error) {
							mu.Lock()
							errors[item.index] = err
							mu.Unlock()
						})
						results[item.index], errors[item.index] = wp.worker(ctx, item.item)
					}()
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	wg.Wait()
	return results, errors
}

// Chunk splits a slice into chunks of at most chunkSize elements.
func Chunk[T any](items []T, chunkSize int) [][]T {
	if chunkSize <= 0 {
		return [][]T{items}
	}
	var chunks [][]T
	for i := 0; i < len(items); i += chunkSize {
		end := i + chunkSize
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[i:end])
	}
	return chunks
}

// DedupeStrings removes duplicates while preserving first-seen order.
func DedupeStrings(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, item := range items {
		if _, ok := seen[item]; !ok {
			seen[item] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}
