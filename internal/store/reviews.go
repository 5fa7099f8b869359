package store

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lu-zhengda/loreterm/internal/domain"
)

// Review records a tag reply that was sent for a message.
type Review struct {
	MessageID string         `cbor:"1,keyasint"`
	Kind      domain.TagKind `cbor:"2,keyasint"`
	Identity  string         `cbor:"3,keyasint"`
	SentAt    time.Time      `cbor:"4,keyasint"`
}

func (r Review) key() domain.Trailer {
	return domain.Trailer{Kind: r.Kind, Identity: r.Identity}
}

type reviewFile struct {
	Version int      `cbor:"1,keyasint"`
	Reviews []Review `cbor:"2,keyasint"`
}

// ReviewLog remembers which (message, tag, identity) replies were sent
// from this machine, so a tag is not sent twice before the archive has
// picked up the reply.
type ReviewLog struct {
	path string

	mu      sync.Mutex
	reviews map[string]map[domain.Trailer]Review
}

func OpenReviewLog(path string) (*ReviewLog, error) {
	var f reviewFile
	if err := loadCBOR(path, &f); err != nil {
		return nil, fmt.Errorf("failed to open review log: %w", err)
	}
	l := &ReviewLog{path: path, reviews: make(map[string]map[domain.Trailer]Review)}
	for _, r := range f.Reviews {
		l.put(r)
	}
	return l, nil
}

// Record adds an entry for a sent tag and persists the log. Recording an
// existing entry is a no-op.
func (l *ReviewLog) Record(messageID string, kind domain.TagKind, identity string) error {
	r := Review{MessageID: messageID, Kind: kind, Identity: strings.TrimSpace(identity), SentAt: time.Now().UTC()}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.reviews[r.MessageID][r.key()]; ok {
		return nil
	}
	l.put(r)
	if err := saveCBOR(l.path, reviewFile{Version: 1, Reviews: l.all()}); err != nil {
		delete(l.reviews[r.MessageID], r.key())
		return fmt.Errorf("failed to save review log: %w", err)
	}
	return nil
}

// Has reports whether kind by identity was already sent for messageID.
func (l *ReviewLog) Has(messageID string, kind domain.TagKind, identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.reviews[messageID][domain.Trailer{Kind: kind, Identity: strings.TrimSpace(identity)}]
	return ok
}

// List returns every recorded review ordered by message-id, then kind.
func (l *ReviewLog) List() []Review {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.all()
}

func (l *ReviewLog) put(r Review) {
	if l.reviews[r.MessageID] == nil {
		l.reviews[r.MessageID] = make(map[domain.Trailer]Review)
	}
	l.reviews[r.MessageID][r.key()] = r
}

func (l *ReviewLog) all() []Review {
	var out []Review
	for _, m := range l.reviews {
		for _, r := range m {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b Review) int {
		if c := strings.Compare(a.MessageID, b.MessageID); c != 0 {
			return c
		}
		if c := strings.Compare(string(a.Kind), string(b.Kind)); c != 0 {
			return c
		}
		return strings.Compare(a.Identity, b.Identity)
	})
	return out
}
