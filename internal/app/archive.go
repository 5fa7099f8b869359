package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lu-zhengda/loreterm/internal/cache"
	"github.com/lu-zhengda/loreterm/internal/domain"
	"github.com/lu-zhengda/loreterm/internal/provider"
	"github.com/lu-zhengda/loreterm/internal/provider/lore"
)

var _ provider.PatchProvider = (*Archive)(nil)

// Archive serves archive requests from the cache, fetching raw payloads
// through the lore client on a miss. Payloads are stored as received and
// parsed on every read, so a parser fix applies to cached data too.
type Archive struct {
	client *lore.Client
	cache  *cache.Cache
	logger *slog.Logger
}

func NewArchive(client *lore.Client, c *cache.Cache, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Archive{client: client, cache: c, logger: logger}
}

// ListMailingLists walks the cached list index pages until an empty one.
func (a *Archive) ListMailingLists(ctx context.Context, prefix string) ([]domain.MailingList, error) {
	var all []domain.MailingList
	for page := range lore.MaxListPages {
		key := cache.ListsKey(page)
		body, err := a.cache.GetOrFetch(ctx, key, func(ctx context.Context) ([]byte, error) {
			return a.client.ListIndexPage(ctx, page)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list mailing lists: %w", err)
		}
		lists, err := lore.ParseListIndex(body)
		if err != nil {
			a.drop(ctx, key, err)
			return nil, fmt.Errorf("failed to list mailing lists: %w", err)
		}
		if len(lists) == 0 {
			break
		}
		all = append(all, lists...)
	}
	return lore.FilterLists(all, prefix, a.client.ListLimit()), nil
}

func (a *Archive) FetchPatchsetPage(ctx context.Context, list domain.MailingListID, page int) ([]domain.PatchsetSummary, error) {
	return a.feed(ctx, list, page, a.cache.GetOrFetch)
}

// RefetchPatchsetPage bypasses the cache and replaces the stored page.
func (a *Archive) RefetchPatchsetPage(ctx context.Context, list domain.MailingListID, page int) ([]domain.PatchsetSummary, error) {
	return a.feed(ctx, list, page, a.cache.Refetch)
}

func (a *Archive) FetchPatchsetDetail(ctx context.Context, messageID string) (*domain.Patchset, error) {
	return a.thread(ctx, messageID, a.cache.GetOrFetch)
}

// RefetchPatchsetDetail bypasses the cache and replaces the stored thread.
func (a *Archive) RefetchPatchsetDetail(ctx context.Context, messageID string) (*domain.Patchset, error) {
	return a.thread(ctx, messageID, a.cache.Refetch)
}

type getFunc func(ctx context.Context, key cache.Key, fetch cache.Fetcher) ([]byte, error)

func (a *Archive) feed(ctx context.Context, list domain.MailingListID, page int, get getFunc) ([]domain.PatchsetSummary, error) {
	if list.IsZero() {
		return nil, fmt.Errorf("failed to fetch patchsets: empty mailing list")
	}
	if page < 0 {
		return nil, fmt.Errorf("failed to fetch patchsets of %s: negative page %d", list, page)
	}
	key := cache.FeedKey(list.String(), page)
	body, err := get(ctx, key, func(ctx context.Context) ([]byte, error) {
		return a.client.FeedPage(ctx, list, page)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch patchsets of %s page %d: %w", list, page, err)
	}
	out, err := lore.ParseFeed(body, list)
	if err != nil {
		a.drop(ctx, key, err)
		return nil, fmt.Errorf("failed to fetch patchsets of %s page %d: %w", list, page, err)
	}
	return out, nil
}

func (a *Archive) thread(ctx context.Context, messageID string, get getFunc) (*domain.Patchset, error) {
	key := cache.ThreadKey(messageID)
	if key.Identity == "" {
		return nil, fmt.Errorf("failed to fetch patchset: empty message-id")
	}
	body, err := get(ctx, key, func(ctx context.Context) ([]byte, error) {
		return a.client.Thread(ctx, key.Identity)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch patchset %s: %w", key.Identity, err)
	}
	ps, err := lore.ParseThread(body, key.Identity)
	if err != nil {
		a.drop(ctx, key, err)
		return nil, fmt.Errorf("failed to fetch patchset %s: %w", key.Identity, err)
	}
	return ps, nil
}

// drop removes a stored payload that no longer parses, so the next
// request goes back to the archive.
func (a *Archive) drop(ctx context.Context, key cache.Key, cause error) {
	a.logger.Warn("dropping unparseable cache entry", "key", key.String(), "error", cause)
	if _, err := a.cache.Invalidate(ctx, key); err != nil {
		a.logger.Warn("failed to invalidate cache entry", "key", key.String(), "error", err)
	}
}
