// Package catalog drives the load, query and apply workflows over the
// configured sources and the local store.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"tagsync/internal/filter"
	"tagsync/internal/model"
	"tagsync/internal/source"
	"tagsync/internal/storage"
)

// ErrNoSource is returned when a submission belongs to a site without a
// configured source.
var ErrNoSource = errors.New("no source configured for site")

// Service composes the sources and the store.
type Service struct {
	store   storage.Storage
	sources []source.Source
	bySite  map[model.Site]source.Source
	log     *slog.Logger
}

// New creates a Service. Sources are loaded in site order regardless of the
// order they are passed in.
func New(store storage.Storage, sources []source.Source, log *slog.Logger) *Service {
	s := &Service{
		store:  store,
		bySite: make(map[model.Site]source.Source, len(sources)),
		log:    log,
	}
	for _, src := range sources {
		s.bySite[src.Site()] = src
	}
	for _, site := range model.Sites {
		if src, ok := s.bySite[site]; ok {
			s.sources = append(s.sources, src)
		}
	}
	return s
}

// SiteCount is the number of submissions loaded from one site.
type SiteCount struct {
	Site  model.Site
	Count int
}

// Load fetches the full catalog of every source and replaces the store
// contents with it. Nothing is written unless every source succeeds.
func (s *Service) Load(ctx context.Context) ([]SiteCount, error) {
	var all []model.Submission
	counts := make([]SiteCount, 0, len(s.sources))

	for _, src := range s.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.log.Info("loading submissions", "site", src.Site())

		subs, err := src.FetchAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", src.Site(), err)
		}
		s.log.Info("loaded submissions", "site", src.Site(), "count", len(subs))

		all = append(all, subs...)
		counts = append(counts, SiteCount{Site: src.Site(), Count: len(subs)})
	}

	if err := s.store.ReplaceAll(ctx, all); err != nil {
		return nil, fmt.Errorf("save catalog: %w", err)
	}
	return counts, nil
}

// Query returns the stored submissions matching query.
func (s *Service) Query(ctx context.Context, query string) ([]model.Submission, error) {
	subs, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return filter.Filter(subs, filter.ParseQuery(query)), nil
}

// Change describes a tag update for one submission.
type Change struct {
	Submission model.Submission
	Tags       []string
	Added      []string
	Removed    []string
}

// Apply applies change to every stored submission matching query. With
// dryRun set nothing is written and the planned changes are returned.
// Otherwise each change is written back to its site and then to the store,
// one submission at a time. On failure the changes applied so far are
// returned along with the error; they are not rolled back.
func (s *Service) Apply(ctx context.Context, query, change string, dryRun bool) ([]Change, error) {
	matches, err := s.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	var changes []Change
	for _, sub := range matches {
		tags := filter.ApplyChange(sub.Tags, change)
		if slices.Equal(sub.Tags, tags) {
			s.log.Debug("tags unchanged", "site", sub.Site, "id", sub.ID)
			continue
		}
		added, removed := filter.Diff(sub.Tags, tags)
		c := Change{Submission: sub, Tags: tags, Added: added, Removed: removed}

		if dryRun {
			changes = append(changes, c)
			continue
		}

		if err := s.update(ctx, c); err != nil {
			return changes, err
		}
		changes = append(changes, c)
	}
	return changes, nil
}

func (s *Service) update(ctx context.Context, c Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sub := c.Submission
	src, ok := s.bySite[sub.Site]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSource, sub.Key())
	}

	if err := src.SetTags(ctx, sub.ID, c.Tags); err != nil {
		return fmt.Errorf("set tags on %s: %w", sub.Key(), err)
	}
	if err := s.store.UpdateTags(ctx, sub.Site, sub.ID, c.Tags); err != nil {
		return fmt.Errorf("store tags of %s: %w", sub.Key(), err)
	}
	s.log.Info("updated tags", "site", sub.Site, "id", sub.ID, "added", len(c.Added), "removed", len(c.Removed))
	return nil
}
