package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Entry is the durable metadata of one cache entry. The payload itself
// lives in a file at Path; an Entry exists only once that file is fully
// written.
type Entry struct {
	Key       string
	Kind      string
	Identity  string
	Page      int // -1 when the resource is not paged
	Path      string
	Size      int64
	FetchedAt time.Time
}

// ListEntryOptions configures entry listing queries.
type ListEntryOptions struct {
	Kind   string
	Limit  int
	Offset int
}

// Index defines the persistence interface for cache entry metadata.
type Index interface {
	PutEntry(ctx context.Context, e *Entry) error
	GetEntry(ctx context.Context, key string) (*Entry, error)
	DeleteEntry(ctx context.Context, key string) error
	// ListEntries returns entries oldest-fetched first.
	ListEntries(ctx context.Context, opts ListEntryOptions) ([]Entry, error)
	CountEntries(ctx context.Context) (int, error)

	// Lifecycle
	Close() error
}
