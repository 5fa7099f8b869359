package lore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/klauspost/compress/gzip"

	"github.com/lu-zhengda/loreterm/internal/domain"
)

const (
	DefaultBaseURL = "https://lore.kernel.org"

	// PageSize is the number of entries the archive returns per page, both
	// for the list index and for patch feeds.
	PageSize = 200

	// DefaultRetries is how many times a transport failure is retried.
	DefaultRetries = 2
	// DefaultRetryDelay is the constant pause between attempts.
	DefaultRetryDelay = 500 * time.Millisecond
	DefaultTimeout    = 30 * time.Second
	// DefaultListLimit bounds ListMailingLists for an empty prefix.
	DefaultListLimit = 50

	// MaxListPages caps how many index pages are walked.
	MaxListPages = 20

	patchQuery = "((s:patch OR s:rfc) AND NOT s:re:)"
	userAgent  = "loreterm"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRetries sets how many times a transport failure is retried. Zero
// disables retries.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.retryDelay = d
		}
	}
}

func WithListLimit(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.listLimit = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client talks to a public-inbox archive such as lore.kernel.org. It
// implements provider.PatchProvider without any caching; the raw fetch
// methods are exposed separately so a cache can sit between transport and
// parsing.
type Client struct {
	baseURL    string
	http       *http.Client
	retries    int
	retryDelay time.Duration
	listLimit  int
	logger     *slog.Logger
}

// New creates a client for the archive at baseURL. An empty baseURL means
// DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: DefaultTimeout},
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
		listLimit:  DefaultListLimit,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the archive endpoint the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// ListLimit returns the bound applied to an empty-prefix list query.
func (c *Client) ListLimit() int { return c.listLimit }

// ListIndexPage fetches one page of the archive's list index.
func (c *Client) ListIndexPage(ctx context.Context, page int) ([]byte, error) {
	u := c.baseURL + "/?o=" + strconv.Itoa(page*PageSize)
	return c.get(ctx, "list index", u, false)
}

// FeedPage fetches one page of a list's patch feed as Atom. A list the
// archive does not know yields an empty body.
func (c *Client) FeedPage(ctx context.Context, list domain.MailingListID, page int) ([]byte, error) {
	if list.IsZero() {
		return nil, fmt.Errorf("failed to fetch feed: empty mailing list")
	}
	if page < 0 {
		return nil, fmt.Errorf("failed to fetch feed: negative page %d", page)
	}
	q := url.Values{}
	q.Set("x", "A")
	q.Set("q", patchQuery)
	q.Set("o", strconv.Itoa(page*PageSize))
	u := c.baseURL + "/" + url.PathEscape(list.String()) + "/?" + q.Encode()
	return c.get(ctx, "feed", u, true)
}

// Thread fetches the whole thread containing messageID as an mboxrd
// stream, decompressed.
func (c *Client) Thread(ctx context.Context, messageID string) ([]byte, error) {
	messageID = trimMessageID(messageID)
	if messageID == "" {
		return nil, fmt.Errorf("failed to fetch thread: empty message-id")
	}
	u := c.baseURL + "/all/" + url.PathEscape(messageID) + "/t.mbox.gz"
	body, err := c.get(ctx, "thread", u, false)
	if err != nil {
		return nil, err
	}
	if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
		return body, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ProtocolError{Op: "thread", URL: u, Err: err}
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, &ProtocolError{Op: "thread", URL: u, Err: err}
	}
	return out, nil
}

// ListMailingLists walks the list index and returns the lists matching prefix.
func (c *Client) ListMailingLists(ctx context.Context, prefix string) ([]domain.MailingList, error) {
	var all []domain.MailingList
	for page := 0; page < MaxListPages; page++ {
		body, err := c.ListIndexPage(ctx, page)
		if err != nil {
			return nil, err
		}
		lists, err := ParseListIndex(body)
		if err != nil {
			return nil, err
		}
		if len(lists) == 0 {
			break
		}
		all = append(all, lists...)
	}
	return FilterLists(all, prefix, c.listLimit), nil
}

func (c *Client) FetchPatchsetPage(ctx context.Context, list domain.MailingListID, page int) ([]domain.PatchsetSummary, error) {
	body, err := c.FeedPage(ctx, list, page)
	if err != nil {
		return nil, err
	}
	return ParseFeed(body, list)
}

func (c *Client) FetchPatchsetDetail(ctx context.Context, messageID string) (*domain.Patchset, error) {
	body, err := c.Thread(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return ParseThread(body, messageID)
}

// get performs a GET with bounded constant-delay retries on transport
// failures. With notFoundEmpty a 404 returns an empty body instead of a
// ProtocolError.
func (c *Client) get(ctx context.Context, op, u string, notFoundEmpty bool) ([]byte, error) {
	attempt := 0
	fetch := func() ([]byte, error) {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, backoff.Permanent(&ProtocolError{Op: op, URL: u, Err: err})
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, &TransportError{Op: op, URL: u, Err: err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound && notFoundEmpty:
			return nil, nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return nil, &TransportError{Op: op, URL: u, Status: resp.StatusCode}
		case resp.StatusCode != http.StatusOK:
			return nil, backoff.Permanent(&ProtocolError{Op: op, URL: u, Status: resp.StatusCode})
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &TransportError{Op: op, URL: u, Err: err}
		}
		return body, nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), uint64(c.retries)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("retrying archive request", "op", op, "url", u, "attempt", attempt, "wait", wait, "error", err)
	}

	start := time.Now()
	body, err := backoff.RetryNotifyWithData(fetch, policy, notify)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) {
			c.logger.Error("archive request failed", "op", op, "url", u, "attempts", attempt, "error", err)
		}
		return nil, err
	}
	c.logger.Debug("archive request", "op", op, "url", u, "bytes", len(body), "attempts", attempt, "elapsed", time.Since(start))
	return body, nil
}

func trimMessageID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "<>")
}
