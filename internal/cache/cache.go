package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lu-zhengda/loreterm/internal/store"
)

// Fetcher retrieves the payload for a key on a cache miss.
type Fetcher func(ctx context.Context) ([]byte, error)

// Option configures a Cache.
type Option func(*Cache)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces time.Now for retrieval timestamps and GC ages.
func WithClock(clock func() time.Time) Option {
	return func(c *Cache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// Cache stores raw archive payloads on disk, compressed, with their
// metadata in a store.Index. Only successful fetches are stored. For a
// given key at most one fetch is in flight; concurrent callers share its
// result.
type Cache struct {
	dir    string
	index  store.Index
	logger *slog.Logger
	clock  func() time.Time

	flights singleflight.Group

	// mu serializes payload writes with garbage collection so GC never
	// sees a payload file whose index entry is not yet written.
	mu sync.Mutex
}

// New creates a cache rooted at dir. The directory is created if needed;
// failing to create it is an error because nothing could ever be stored.
func New(dir string, index store.Index, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(filepath.Join(dir, objectsDir), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	c := &Cache{
		dir:    dir,
		index:  index,
		logger: slog.New(slog.DiscardHandler),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string { return c.dir }

// GetOrFetch returns the stored payload for key, or calls fetch once and
// stores its result. Fetch errors are returned unchanged and never
// cached. If ctx ends while a shared fetch is running, the caller returns
// early and the fetch completes in the background.
func (c *Cache) GetOrFetch(ctx context.Context, key Key, fetch Fetcher) ([]byte, error) {
	if data, ok := c.lookup(ctx, key); ok {
		return data, nil
	}
	return c.flight(ctx, key.String(), func(bg context.Context) ([]byte, error) {
		if data, ok := c.lookup(bg, key); ok {
			return data, nil
		}
		return c.fetchAndStore(bg, key, fetch)
	})
}

// Refetch fetches key without consulting the stored payload and replaces
// it. On failure the previous entry is left in place. Refetch shares the
// in-flight fetch of GetOrFetch for the same key, so a refresh never
// starts a second remote fetch.
func (c *Cache) Refetch(ctx context.Context, key Key, fetch Fetcher) ([]byte, error) {
	return c.flight(ctx, key.String(), func(bg context.Context) ([]byte, error) {
		return c.fetchAndStore(bg, key, fetch)
	})
}

// Lookup returns the stored payload for key without fetching.
func (c *Cache) Lookup(ctx context.Context, key Key) ([]byte, bool) {
	return c.lookup(ctx, key)
}

// Invalidate removes key from the cache and reports whether an entry was
// removed. Removing an absent key is not an error.
func (c *Cache) Invalidate(ctx context.Context, key Key) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.index.GetEntry(ctx, key.String())
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &Error{Op: "invalidate", Key: key.String(), Err: err}
	}
	if err := c.remove(ctx, *e); err != nil {
		return false, err
	}
	return true, nil
}

// InvalidateKind removes every entry of kind and returns how many were removed.
func (c *Cache) InvalidateKind(ctx context.Context, kind Kind) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.index.ListEntries(ctx, store.ListEntryOptions{Kind: string(kind)})
	if err != nil {
		return 0, &Error{Op: "invalidate", Key: string(kind), Err: err}
	}
	n := 0
	for _, e := range entries {
		if err := c.remove(ctx, e); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Len returns the number of stored entries.
func (c *Cache) Len(ctx context.Context) (int, error) {
	n, err := c.index.CountEntries(ctx)
	if err != nil {
		return 0, &Error{Op: "count", Err: err}
	}
	return n, nil
}

func (c *Cache) flight(ctx context.Context, name string, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	bg := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(name, func() (any, error) {
		return fn(bg)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// Shared callers each get their own copy.
		return bytes.Clone(res.Val.([]byte)), nil
	}
}

func (c *Cache) fetchAndStore(ctx context.Context, key Key, fetch Fetcher) ([]byte, error) {
	data, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.put(ctx, key, data); err != nil {
		c.logger.Warn("cache write failed, serving uncached", "key", key.String(), "error", err)
	}
	return data, nil
}

func (c *Cache) lookup(ctx context.Context, key Key) ([]byte, bool) {
	e, err := c.index.GetEntry(ctx, key.String())
	if errors.Is(err, store.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("cache index read failed", "error", &Error{Op: "lookup", Key: key.String(), Err: err})
		return nil, false
	}

	compressed, err := os.ReadFile(filepath.Join(c.dir, e.Path))
	if err == nil {
		var data []byte
		if data, err = decodePayload(compressed); err == nil {
			c.logger.Debug("cache hit", "key", e.Key, "age", c.clock().Sub(e.FetchedAt))
			return data, true
		}
	}
	c.logger.Warn("dropping unreadable cache entry", "error", &Error{Op: "read", Key: e.Key, Err: err})
	c.mu.Lock()
	err = c.remove(ctx, *e)
	c.mu.Unlock()
	if err != nil {
		c.logger.Warn("failed to drop unreadable cache entry", "key", e.Key, "error", err)
	}
	return nil, false
}

func (c *Cache) put(ctx context.Context, key Key, data []byte) error {
	rel := objectPath(key)
	compressed := encodePayload(data)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := store.WriteFileAtomic(filepath.Join(c.dir, rel), compressed); err != nil {
		return &Error{Op: "write", Key: key.String(), Err: err}
	}
	e := &store.Entry{
		Key:       key.String(),
		Kind:      string(key.Kind),
		Identity:  key.Identity,
		Page:      key.Page,
		Path:      rel,
		Size:      int64(len(compressed)),
		FetchedAt: c.clock(),
	}
	if err := c.index.PutEntry(ctx, e); err != nil {
		os.Remove(filepath.Join(c.dir, rel))
		return &Error{Op: "index", Key: key.String(), Err: err}
	}
	c.logger.Debug("cache store", "key", e.Key, "bytes", len(data), "stored", e.Size)
	return nil
}

// remove deletes the index entry first, then the payload file. Callers
// hold c.mu.
func (c *Cache) remove(ctx context.Context, e store.Entry) error {
	if err := c.index.DeleteEntry(ctx, e.Key); err != nil {
		return &Error{Op: "remove", Key: e.Key, Err: err}
	}
	if err := removeFile(filepath.Join(c.dir, e.Path)); err != nil {
		return &Error{Op: "remove", Key: e.Key, Err: err}
	}
	return nil
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
