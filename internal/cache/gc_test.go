package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lu-zhengda/loreterm/internal/store"
)

func fill(t *testing.T, c *Cache, clock *fakeClock, n int) []Key {
	t.Helper()
	var calls atomic.Int32
	keys := make([]Key, n)
	for i := range n {
		keys[i] = ThreadKey(fmt.Sprintf("m%02d@x", i))
		if _, err := c.GetOrFetch(context.Background(), keys[i], constFetcher(&calls, keys[i].String())); err != nil {
			t.Fatalf("GetOrFetch() error: %v", err)
		}
		clock.Advance(time.Minute)
	}
	return keys
}

func TestRunGC_MaxEntriesKeepsNewest(t *testing.T) {
	c, clock := newTestCache(t)
	ctx := context.Background()
	const maxEntries = 10
	keys := fill(t, c, clock, maxEntries+5)

	stats, err := c.RunGC(ctx, GCPolicy{MaxEntries: maxEntries})
	if err != nil {
		t.Fatalf("RunGC() error: %v", err)
	}
	if stats.Evicted != 5 || stats.Remaining != maxEntries {
		t.Errorf("stats = %+v, want 5 evicted, %d remaining", stats, maxEntries)
	}
	if n, _ := c.Len(ctx); n != maxEntries {
		t.Errorf("Len() = %d, want %d", n, maxEntries)
	}
	for i, k := range keys {
		_, ok := c.Lookup(ctx, k)
		if want := i >= 5; ok != want {
			t.Errorf("key %d present = %v, want %v", i, ok, want)
		}
	}
}

func TestRunGC_MaxAge(t *testing.T) {
	c, clock := newTestCache(t)
	ctx := context.Background()
	fill(t, c, clock, 4) // fetched at t0, t0+1m, t0+2m, t0+3m; clock now t0+4m

	stats, err := c.RunGC(ctx, GCPolicy{MaxAge: 150 * time.Second})
	if err != nil {
		t.Fatalf("RunGC() error: %v", err)
	}
	if stats.Expired != 2 || stats.Remaining != 2 {
		t.Errorf("stats = %+v, want 2 expired, 2 remaining", stats)
	}
}

func TestRunGC_Idempotent(t *testing.T) {
	c, clock := newTestCache(t)
	ctx := context.Background()
	fill(t, c, clock, 3)
	policy := GCPolicy{MaxEntries: 2, MaxAge: time.Hour}

	if _, err := c.RunGC(ctx, policy); err != nil {
		t.Fatalf("RunGC() error: %v", err)
	}
	stats, err := c.RunGC(ctx, policy)
	if err != nil {
		t.Fatalf("RunGC() error: %v", err)
	}
	if stats.Removed() != 0 || stats.Orphans != 0 || stats.Remaining != 2 {
		t.Errorf("second run stats = %+v, want nothing removed", stats)
	}
}

func TestRunGC_ZeroPolicyKeepsAll(t *testing.T) {
	c, clock := newTestCache(t)
	fill(t, c, clock, 3)

	stats, err := c.RunGC(context.Background(), GCPolicy{})
	if err != nil {
		t.Fatalf("RunGC() error: %v", err)
	}
	if stats.Removed() != 0 || stats.Remaining != 3 {
		t.Errorf("stats = %+v, want all kept", stats)
	}
}

func TestRunGC_SweepsOrphans(t *testing.T) {
	c, clock := newTestCache(t)
	fill(t, c, clock, 1)

	stray := filepath.Join(c.Dir(), objectsDir, "zz", "stray.zst")
	tmp := filepath.Join(c.Dir(), objectsDir, "zz", ".x.123.tmp")
	os.MkdirAll(filepath.Dir(stray), 0o700)
	os.WriteFile(stray, []byte("x"), 0o600)
	os.WriteFile(tmp, []byte("x"), 0o600)

	stats, err := c.RunGC(context.Background(), GCPolicy{})
	if err != nil {
		t.Fatalf("RunGC() error: %v", err)
	}
	if stats.Orphans != 2 {
		t.Errorf("Orphans = %d, want 2", stats.Orphans)
	}
	if _, err := os.Stat(stray); !os.IsNotExist(err) {
		t.Error("orphan payload not removed")
	}
}

func TestRunGC_HeldPayloadUnaffected(t *testing.T) {
	c, clock := newTestCache(t)
	ctx := context.Background()
	key := ThreadKey("held@x")
	var calls atomic.Int32
	held, _ := c.GetOrFetch(ctx, key, constFetcher(&calls, "snapshot"))
	clock.Advance(time.Hour)

	if _, err := c.RunGC(ctx, GCPolicy{MaxAge: time.Minute}); err != nil {
		t.Fatalf("RunGC() error: %v", err)
	}
	if string(held) != "snapshot" {
		t.Errorf("held payload = %q after GC", held)
	}
	if _, ok := c.Lookup(ctx, key); ok {
		t.Error("expired entry still stored")
	}
}

var _ store.Index = failingIndex{}
