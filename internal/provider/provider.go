package provider

import (
	"context"

	"github.com/lu-zhengda/loreterm/internal/domain"
)

// PatchProvider retrieves patch series from a public mail archive. All
// operations are read-only.
type PatchProvider interface {
	// ListMailingLists returns the archived lists whose name starts with
	// prefix, sorted by name. An empty prefix returns a bounded default set.
	ListMailingLists(ctx context.Context, prefix string) ([]domain.MailingList, error)

	// FetchPatchsetPage returns the representative mails of one feed page.
	// An empty page is a valid result.
	FetchPatchsetPage(ctx context.Context, list domain.MailingListID, page int) ([]domain.PatchsetSummary, error)

	// FetchPatchsetDetail returns the whole series identified by the
	// message-id of its representative mail.
	FetchPatchsetDetail(ctx context.Context, messageID string) (*domain.Patchset, error)
}
