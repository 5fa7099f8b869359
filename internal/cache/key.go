package cache

import (
	"strconv"
	"strings"
)

// Kind is the type of archive resource a cache entry holds.
type Kind string

const (
	KindLists  Kind = "lists"
	KindFeed   Kind = "feed"
	KindThread Kind = "thread"
)

// Key identifies a cached resource. Page is -1 for resources that are
// not paged.
type Key struct {
	Kind     Kind
	Identity string
	Page     int
}

func ListsKey(page int) Key {
	return Key{Kind: KindLists, Page: page}
}

func FeedKey(list string, page int) Key {
	return Key{Kind: KindFeed, Identity: list, Page: page}
}

func ThreadKey(messageID string) Key {
	return Key{Kind: KindThread, Identity: strings.Trim(strings.TrimSpace(messageID), "<>"), Page: -1}
}

// String is the canonical form used as the index key.
func (k Key) String() string {
	s := string(k.Kind) + "/" + k.Identity
	if k.Page >= 0 {
		s += "/" + strconv.Itoa(k.Page)
	}
	return s
}
