package store

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lu-zhengda/loreterm/internal/domain"
)

// Bookmark flags a patchset. Identity is the patchset's message-id; Title
// and List are kept so bookmarks can be listed without a fetch.
type Bookmark struct {
	MessageID string               `cbor:"1,keyasint"`
	Title     string               `cbor:"2,keyasint,omitempty"`
	List      domain.MailingListID `cbor:"3,keyasint"`
	AddedAt   time.Time            `cbor:"4,keyasint"`
}

type bookmarkFile struct {
	Version   int        `cbor:"1,keyasint"`
	Bookmarks []Bookmark `cbor:"2,keyasint"`
}

const bookmarkFileVersion = 1

// BookmarkStore is a durable set of bookmarked patchsets. Every mutation
// rewrites the whole file before returning. The store assumes it is the
// only writer of its file.
type BookmarkStore struct {
	path string

	mu    sync.Mutex
	items map[string]Bookmark
}

// OpenBookmarks loads the bookmark file at path. A missing file is an
// empty store.
func OpenBookmarks(path string) (*BookmarkStore, error) {
	var f bookmarkFile
	if err := loadCBOR(path, &f); err != nil {
		return nil, fmt.Errorf("failed to open bookmarks: %w", err)
	}
	s := &BookmarkStore{path: path, items: make(map[string]Bookmark, len(f.Bookmarks))}
	for _, b := range f.Bookmarks {
		s.items[b.MessageID] = b
	}
	return s, nil
}

// Add bookmarks b. Adding an already bookmarked id is a no-op.
func (s *BookmarkStore) Add(b Bookmark) error {
	b.MessageID = strings.Trim(strings.TrimSpace(b.MessageID), "<>")
	if b.MessageID == "" {
		return fmt.Errorf("failed to add bookmark: empty message-id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[b.MessageID]; ok {
		return nil
	}
	if b.AddedAt.IsZero() {
		b.AddedAt = time.Now().UTC()
	}
	s.items[b.MessageID] = b
	if err := s.flush(); err != nil {
		delete(s.items, b.MessageID)
		return err
	}
	return nil
}

// Remove drops messageID. Removing an id that is not bookmarked is a no-op.
func (s *BookmarkStore) Remove(messageID string) error {
	messageID = strings.Trim(strings.TrimSpace(messageID), "<>")

	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.items[messageID]
	if !ok {
		return nil
	}
	delete(s.items, messageID)
	if err := s.flush(); err != nil {
		s.items[messageID] = old
		return err
	}
	return nil
}

func (s *BookmarkStore) Contains(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[strings.Trim(strings.TrimSpace(messageID), "<>")]
	return ok
}

// List returns the bookmarks sorted by message-id.
func (s *BookmarkStore) List() []Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted()
}

func (s *BookmarkStore) sorted() []Bookmark {
	out := make([]Bookmark, 0, len(s.items))
	for _, b := range s.items {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b Bookmark) int { return strings.Compare(a.MessageID, b.MessageID) })
	return out
}

func (s *BookmarkStore) flush() error {
	if err := saveCBOR(s.path, bookmarkFile{Version: bookmarkFileVersion, Bookmarks: s.sorted()}); err != nil {
		return fmt.Errorf("failed to save bookmarks: %w", err)
	}
	return nil
}
