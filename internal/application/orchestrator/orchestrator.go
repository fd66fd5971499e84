// Package orchestrator runs the backend calls behind a card request: joined
// fan-out, bounded fan-out over a list, and small dependency plans.
package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultLimit bounds Collect when the caller passes a non-positive limit.
const DefaultLimit = 4

// Join runs calls concurrently and waits for all of them. The first error
// cancels the context seen by the others and is returned.
func Join(ctx context.Context, calls ...func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, call := range calls {
		g.Go(func() error {
			return call(gctx)
		})
	}
	return g.Wait()
}

// Collect maps fn over inputs with at most limit calls in flight. Results keep
// input order. An empty input returns an empty, non-nil slice without calling
// fn. On the first error the remaining calls see a cancelled context and the
// error is returned with no partial results.
func Collect[In, Out any](ctx context.Context, limit int, inputs []In, fn func(ctx context.Context, in In) (Out, error)) ([]Out, error) {
	out := make([]Out, len(inputs))
	if len(inputs) == 0 {
		return out, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := fn(gctx, in)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Each is Collect for calls that produce nothing.
func Each[In any](ctx context.Context, limit int, inputs []In, fn func(ctx context.Context, in In) error) error {
	_, err := Collect(ctx, limit, inputs, func(ctx context.Context, in In) (struct{}, error) {
		return struct{}{}, fn(ctx, in)
	})
	return err
}
