// Package source fetches submission catalogs from origin sites and writes
// tag changes back to them.
package source

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"tagsync/internal/model"
)

// Error categories. Every error returned by a Source wraps one of them.
var (
	// ErrTransport is a network failure or a non-2xx response.
	ErrTransport = errors.New("transport error")
	// ErrAuth means the origin rejected the configured credentials.
	// It wraps ErrTransport.
	ErrAuth = fmt.Errorf("%w: credentials rejected", ErrTransport)
	// ErrParse means a response no longer has the expected structure.
	ErrParse = errors.New("parse error")
)

// Source is an origin site holding submissions for one account.
type Source interface {
	// Site returns the site this source talks to.
	Site() model.Site
	// FetchAll returns the complete current catalog. It never modifies
	// the origin.
	FetchAll(ctx context.Context) ([]model.Submission, error)
	// SetTags replaces the tags of submission id with exactly tags.
	SetTags(ctx context.Context, id int64, tags []string) error
}

const defaultWorkers = 4

// fetchDetails runs fetch for every item on at most workers goroutines.
// Results keep the order of items. The first failure cancels the
// remaining fetches and is returned.
func fetchDetails[T any](
	ctx context.Context,
	workers int,
	items []T,
	fetch func(ctx context.Context, item T) (model.Submission, error),
) ([]model.Submission, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([]model.Submission, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			sub, err := fetch(gctx, item)
			if err != nil {
				return err
			}
			out[i] = sub
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return out, nil
}
