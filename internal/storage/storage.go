// Package storage defines the catalog persistence interface and its
// implementations.
package storage

import (
	"context"
	"errors"

	"tagsync/internal/model"
)

// ErrStorage wraps every persistence failure.
var ErrStorage = errors.New("storage error")

// Storage is the local mirror of all submissions, keyed by site and id.
type Storage interface {
	// ReplaceAll atomically replaces the whole catalog with subs.
	ReplaceAll(ctx context.Context, subs []model.Submission) error
	// ListAll returns every submission that can be decoded.
	ListAll(ctx context.Context) ([]model.Submission, error)
	// UpdateTags overwrites the tags of one submission.
	UpdateTags(ctx context.Context, site model.Site, id int64, tags []string) error

	Close() error
}
