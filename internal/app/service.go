package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/lu-zhengda/loreterm/internal/action"
	"github.com/lu-zhengda/loreterm/internal/cache"
	"github.com/lu-zhengda/loreterm/internal/config"
	"github.com/lu-zhengda/loreterm/internal/domain"
	"github.com/lu-zhengda/loreterm/internal/provider/lore"
	"github.com/lu-zhengda/loreterm/internal/store"
	"github.com/lu-zhengda/loreterm/internal/store/sqlite"
)

// SecretStore supplies the SMTP password for a sender identity.
type SecretStore interface {
	LoadSMTPPassword(identity string) (string, error)
}

// Options overrides the collaborators Open would otherwise build from
// the configuration.
type Options struct {
	DataDir    string
	CacheDir   string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Secrets    SecretStore
	Applier    action.Applier
	// Mailer replaces git send-email. When nil, a SendEmail is built per
	// reply with the password stored for the replier identity.
	Mailer action.Mailer
	// Identity replaces git config as the identity fallback when
	// reply.identity is empty.
	Identity func(ctx context.Context) (string, error)
}

// Service owns the handle-scoped stores of one session and exposes the
// operations the CLI and TUI need.
type Service struct {
	cfg       *config.Config
	index     *sqlite.DB
	cache     *cache.Cache
	archive   *Archive
	bookmarks *store.BookmarkStore
	reviews   *store.ReviewLog
	secrets   SecretStore
	applier   action.Applier
	mailer    action.Mailer
	identity  func(ctx context.Context) (string, error)
	logger    *slog.Logger
}

// Open creates the storage directories, opens the cache index, bookmark
// store and review log, and builds the archive client. Failing to create
// any of the stores is an error.
func Open(cfg *config.Config, opts Options) (*Service, error) {
	if cfg == nil {
		d := config.Default()
		cfg = &d
	}
	if opts.DataDir == "" {
		opts.DataDir = config.DataDir()
	}
	if opts.CacheDir == "" {
		opts.CacheDir = config.CacheDir()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout, err := cfg.Archive.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	for _, dir := range []string{opts.DataDir, opts.CacheDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	index, err := sqlite.New(filepath.Join(opts.CacheDir, "index.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache index: %w", err)
	}
	c, err := cache.New(opts.CacheDir, index, cache.WithLogger(logger.With("component", "cache")))
	if err != nil {
		index.Close()
		return nil, err
	}
	bookmarks, err := store.OpenBookmarks(filepath.Join(opts.DataDir, "bookmarks.cbor"))
	if err != nil {
		index.Close()
		return nil, err
	}
	reviews, err := store.OpenReviewLog(filepath.Join(opts.DataDir, "reviews.cbor"))
	if err != nil {
		index.Close()
		return nil, err
	}

	clientOpts := []lore.Option{
		lore.WithTimeout(timeout),
		lore.WithRetries(cfg.Archive.Retries),
		lore.WithListLimit(cfg.Archive.DefaultListLimit),
		lore.WithLogger(logger.With("component", "lore")),
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, lore.WithHTTPClient(opts.HTTPClient))
	}
	client := lore.New(cfg.Archive.BaseURL, clientOpts...)

	s := &Service{
		cfg:       cfg,
		index:     index,
		cache:     c,
		archive:   NewArchive(client, c, logger.With("component", "archive")),
		bookmarks: bookmarks,
		reviews:   reviews,
		secrets:   opts.Secrets,
		applier:   opts.Applier,
		mailer:    opts.Mailer,
		identity:  opts.Identity,
		logger:    logger,
	}
	if s.secrets == nil {
		s.secrets = store.NewKeyringSecretStore()
	}
	if s.applier == nil {
		s.applier = &action.GitApplier{Git: cfg.Apply.Git, Logger: logger.With("component", "apply")}
	}
	if s.identity == nil {
		s.identity = func(ctx context.Context) (string, error) { return action.GitIdentity(ctx, "") }
	}
	return s, nil
}

// Close releases the cache index.
func (s *Service) Close() error {
	return s.index.Close()
}

func (s *Service) Config() *config.Config { return s.cfg }

func (s *Service) Archive() *Archive { return s.archive }

func (s *Service) Lists(ctx context.Context, prefix string) ([]domain.MailingList, error) {
	return s.archive.ListMailingLists(ctx, prefix)
}

// Feed returns one page of a list's patchsets. With refresh the page is
// fetched again and replaces the cached copy.
func (s *Service) Feed(ctx context.Context, list string, page int, refresh bool) ([]domain.PatchsetSummary, error) {
	id := domain.NewMailingListID(list)
	if refresh {
		return s.archive.RefetchPatchsetPage(ctx, id, page)
	}
	return s.archive.FetchPatchsetPage(ctx, id, page)
}

func (s *Service) Patchset(ctx context.Context, messageID string, refresh bool) (*domain.Patchset, error) {
	if refresh {
		return s.archive.RefetchPatchsetDetail(ctx, messageID)
	}
	return s.archive.FetchPatchsetDetail(ctx, messageID)
}

// --- bookmarks ---

func (s *Service) Bookmark(sum domain.PatchsetSummary) error {
	return s.bookmarks.Add(store.Bookmark{
		MessageID: sum.MessageID,
		Title:     sum.Title,
		List:      sum.List,
		AddedAt:   time.Now(),
	})
}

func (s *Service) Unbookmark(messageID string) error {
	return s.bookmarks.Remove(messageID)
}

// ToggleBookmark flips the bookmark on sum and reports whether it is now set.
func (s *Service) ToggleBookmark(sum domain.PatchsetSummary) (bool, error) {
	if s.bookmarks.Contains(sum.MessageID) {
		return false, s.Unbookmark(sum.MessageID)
	}
	return true, s.Bookmark(sum)
}

func (s *Service) IsBookmarked(messageID string) bool {
	return s.bookmarks.Contains(messageID)
}

func (s *Service) Bookmarks() []store.Bookmark {
	return s.bookmarks.List()
}

func (s *Service) Reviews() []store.Review {
	return s.reviews.List()
}

// --- actions ---

// Apply applies the patchset to the named targets, or to the default
// targets when names is empty.
func (s *Service) Apply(ctx context.Context, ps *domain.Patchset, names []string) []domain.ActionOutcome {
	p := action.NewPipeline(s.applier, nil,
		action.WithLogger(s.logger.With("component", "pipeline")),
		action.WithParallelism(s.cfg.Apply.Parallelism),
	)
	return p.ApplyNamed(ctx, ps, s.cfg, names)
}

// ReplyParams selects the messages of a patchset to tag. Numbers are
// series positions, 0 being the cover letter; no numbers means every
// patch.
type ReplyParams struct {
	Patchset *domain.Patchset
	Numbers  []int
	Tag      domain.TagKind
	DryRun   bool
}

// Reply resolves the replier identity and the selected messages, then
// runs the reply action. Selection and identity problems are returned as
// errors before any message is composed.
func (s *Service) Reply(ctx context.Context, params ReplyParams) ([]domain.ActionOutcome, error) {
	ids, err := SelectMessages(params.Patchset, params.Numbers)
	if err != nil {
		return nil, err
	}
	identity, err := s.Identity(ctx)
	if err != nil {
		return nil, err
	}
	mailer := s.mailer
	if mailer == nil {
		mailer = s.sendEmail(identity, params.DryRun)
	}
	p := action.NewPipeline(s.applier, mailer,
		action.WithLogger(s.logger.With("component", "pipeline")),
		action.WithReviewLog(s.reviews),
	)
	return p.Reply(ctx, action.ReplyRequest{
		Patchset:   params.Patchset,
		MessageIDs: ids,
		Tag:        params.Tag,
		Identity:   identity,
		DryRun:     params.DryRun,
	}), nil
}

// sendEmail builds the git send-email mailer. The keyring is only read
// for a live send, so a dry run never prompts for an unlock.
func (s *Service) sendEmail(identity string, dryRun bool) *action.SendEmail {
	var password string
	if !dryRun {
		var err error
		password, err = s.secrets.LoadSMTPPassword(identity)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("failed to load smtp password", "identity", identity, "error", err)
		}
	}
	return &action.SendEmail{
		Git:      s.cfg.Apply.Git,
		Args:     s.cfg.Reply.SendEmailArgs,
		Password: password,
		Logger:   s.logger.With("component", "send-email"),
	}
}

// Identity returns reply.identity, or git's user identity when unset.
func (s *Service) Identity(ctx context.Context) (string, error) {
	if id := strings.TrimSpace(s.cfg.Reply.Identity); id != "" {
		return id, nil
	}
	id, err := s.identity(ctx)
	if err != nil {
		return "", fmt.Errorf("no replier identity: set reply.identity or git user.email: %w", err)
	}
	return id, nil
}

// SelectMessages maps series positions to message-ids. No numbers selects
// every patch, or the cover letter of a series without patches.
func SelectMessages(ps *domain.Patchset, numbers []int) ([]string, error) {
	if ps == nil {
		return nil, fmt.Errorf("no patchset")
	}
	if len(numbers) == 0 {
		var ids []string
		for _, m := range ps.Patches() {
			ids = append(ids, m.MessageID)
		}
		if len(ids) == 0 {
			if c, ok := ps.Cover(); ok {
				ids = append(ids, c.MessageID)
			}
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("patchset %s has nothing to reply to", ps.MessageID)
		}
		return ids, nil
	}

	ids := make([]string, 0, len(numbers))
	for _, n := range numbers {
		i := slices.IndexFunc(ps.Messages, func(m domain.Message) bool { return m.Number == n })
		if i < 0 {
			return nil, fmt.Errorf("patchset %s has no message %d/%d", ps.MessageID, n, ps.Total)
		}
		if !slices.Contains(ids, ps.Messages[i].MessageID) {
			ids = append(ids, ps.Messages[i].MessageID)
		}
	}
	return ids, nil
}

// --- cache maintenance ---

// GC runs garbage collection with the configured policy.
func (s *Service) GC(ctx context.Context) (cache.GCStats, error) {
	maxAge, err := s.cfg.Cache.MaxAgeDuration()
	if err != nil {
		return cache.GCStats{}, err
	}
	stats, err := s.cache.RunGC(ctx, cache.GCPolicy{MaxEntries: s.cfg.Cache.MaxEntries, MaxAge: maxAge})
	if err != nil {
		return stats, err
	}
	s.logger.Info("cache gc", "scanned", stats.Scanned, "expired", stats.Expired, "evicted", stats.Evicted,
		"orphans", stats.Orphans, "remaining", stats.Remaining)
	return stats, nil
}

// Invalidate removes cached entries. With a message-id only that thread
// is dropped; otherwise every entry of kind is, or everything when kind
// is empty.
func (s *Service) Invalidate(ctx context.Context, kind cache.Kind, messageID string) (int, error) {
	if messageID != "" {
		removed, err := s.cache.Invalidate(ctx, cache.ThreadKey(messageID))
		if err != nil || !removed {
			return 0, err
		}
		return 1, nil
	}
	kinds := []cache.Kind{kind}
	if kind == "" {
		kinds = []cache.Kind{cache.KindLists, cache.KindFeed, cache.KindThread}
	}
	total := 0
	for _, k := range kinds {
		n, err := s.cache.InvalidateKind(ctx, k)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
