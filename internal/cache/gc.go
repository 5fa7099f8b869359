package cache

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/lu-zhengda/loreterm/internal/store"
)

// GCPolicy bounds the cache. A zero field disables that bound.
type GCPolicy struct {
	MaxEntries int
	MaxAge     time.Duration
}

// GCStats reports what a garbage collection run did.
type GCStats struct {
	Scanned   int
	Expired   int
	Evicted   int
	Orphans   int
	Remaining int
}

// Removed is the number of index entries deleted.
func (s GCStats) Removed() int { return s.Expired + s.Evicted }

// RunGC removes entries older than policy.MaxAge, then the oldest entries
// beyond policy.MaxEntries, and finally payload files no entry refers to.
// Payloads already returned to callers are unaffected. Running it again
// with nothing to remove changes nothing.
func (c *Cache) RunGC(ctx context.Context, policy GCPolicy) (GCStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stats GCStats
	entries, err := c.index.ListEntries(ctx, store.ListEntryOptions{})
	if err != nil {
		return stats, &Error{Op: "gc", Err: err}
	}
	stats.Scanned = len(entries)

	now := c.clock()
	kept := entries[:0:0]
	for _, e := range entries {
		if policy.MaxAge > 0 && now.Sub(e.FetchedAt) > policy.MaxAge {
			if err := c.remove(ctx, e); err != nil {
				return stats, err
			}
			stats.Expired++
			continue
		}
		kept = append(kept, e)
	}

	// Entries are oldest-fetched first, so the excess is a prefix.
	if policy.MaxEntries > 0 && len(kept) > policy.MaxEntries {
		excess := len(kept) - policy.MaxEntries
		for _, e := range kept[:excess] {
			if err := c.remove(ctx, e); err != nil {
				return stats, err
			}
			stats.Evicted++
		}
		kept = kept[excess:]
	}
	stats.Remaining = len(kept)

	live := make(map[string]bool, len(kept))
	for _, e := range kept {
		live[filepath.Clean(e.Path)] = true
	}
	orphans, err := c.sweepOrphans(live)
	stats.Orphans = orphans
	if err != nil {
		return stats, &Error{Op: "gc", Err: err}
	}

	c.logger.Info("cache gc",
		"scanned", stats.Scanned, "expired", stats.Expired, "evicted", stats.Evicted,
		"orphans", stats.Orphans, "remaining", stats.Remaining)
	return stats, nil
}

// sweepOrphans deletes payload and temp files under objects/ that no live
// entry refers to. Callers hold c.mu.
func (c *Cache) sweepOrphans(live map[string]bool) (int, error) {
	root := filepath.Join(c.dir, objectsDir)
	n := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(c.dir, path)
		if err != nil {
			return err
		}
		if live[rel] {
			return nil
		}
		if !strings.HasSuffix(rel, ".zst") && !strings.HasSuffix(rel, ".tmp") {
			return nil
		}
		if err := removeFile(path); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}
