package bulk

import (
	"context"
	"sync"
)

// Operation is applied to a single item. i is the item's position.
type Operation[T any] func(ctx context.Context, i int, item T) error

type Result[T any] struct {
	Index int
	Item  T
	Error error
}

// ProcessConcurrent fans items out to a fixed number of workers. Results are
// returned in input order. Items not yet started when ctx is cancelled get
// ctx.Err().
func ProcessConcurrent[T any](ctx context.Context, items []T, workers int, op Operation[T]) []Result[T] {
	if workers <= 0 {
		workers = 1
	}
	results := make([]Result[T], len(items))
	jobs := make(chan int, len(items))
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				var err error
				if cerr := ctx.Err(); cerr != nil {
					err = cerr
				} else {
					err = op(ctx, idx, items[idx])
				}
				results[idx] = Result[T]{Index: idx, Item: items[idx], Error: err}
			}
		}()
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	return results
}

// Repeat runs op n times across workers and reports per-run results.
func Repeat(ctx context.Context, n, workers int, op func(ctx context.Context, i int) error) []Result[int] {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return ProcessConcurrent(ctx, idx, workers, func(ctx context.Context, i int, _ int) error {
		return op(ctx, i)
	})
}

// Summary counts successes and collects failures.
func Summary[T any](results []Result[T]) (succeeded int, errs []error) {
	for _, r := range results {
		if r.Error != nil {
			errs = append(errs, r.Error)
			continue
		}
		succeeded++
	}
	return succeeded, errs
}
