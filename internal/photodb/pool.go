package photodb

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// forEach runs fn for every item on at most workers goroutines.
// fn reports per-item outcomes itself and never fails the group, so one bad
// file cannot stop the batch. Cancelling ctx stops scheduling new items;
// items already running finish. The returned error is ctx.Err() if the batch
// was interrupted.
func forEach[T any](ctx context.Context, workers int, items []T, fn func(context.Context, T)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			fn(gctx, item)
			return nil
		})
	}

	_ = g.Wait()
	return ctx.Err()
}
