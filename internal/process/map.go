package process

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Map applies fn to every item with at most workers running at once and
// returns the results in input order. fn must not fail; it encodes failures
// in its result. With workers <= 1 items run sequentially on the caller's
// goroutine.
//
// Items not yet started when ctx is cancelled are still passed to fn, which
// is expected to check ctx and return a cancelled result.
func Map[T, R any](ctx context.Context, items []T, workers int, fn func(context.Context, T) R) []R {
	results := make([]R, len(items))
	if workers <= 1 {
		for i, item := range items {
			results[i] = fn(ctx, item)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			results[i] = fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
