package lore

import (
	"bytes"
	"encoding/xml"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/lu-zhengda/loreterm/internal/domain"
)

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title   string `xml:"title"`
	Updated string `xml:"updated"`
	Author  struct {
		Name  string `xml:"name"`
		Email string `xml:"email"`
	} `xml:"author"`
	Link struct {
		Href string `xml:"href,attr"`
	} `xml:"link"`
	InReplyTo *struct {
		Href string `xml:"href,attr"`
	} `xml:"http://purl.org/syndication/thread/1.0 in-reply-to"`
}

// ParseFeed decodes one Atom feed page and returns its representative
// entries in feed order. An entry is representative when it is a cover
// letter, a single patch, or a first patch whose parent is not a cover
// letter of the same version on the same page. An empty body is an empty
// feed.
func ParseFeed(data []byte, list domain.MailingListID) ([]domain.PatchsetSummary, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var feed atomFeed
	if err := xml.Unmarshal(data, &feed); err != nil {
		return nil, &ProtocolError{Op: "feed", Err: err}
	}

	all := make([]domain.PatchsetSummary, 0, len(feed.Entries))
	byID := make(map[string]domain.PatchsetSummary, len(feed.Entries))
	for _, e := range feed.Entries {
		id := messageIDFromHref(e.Link.Href)
		if id == "" {
			continue
		}
		if _, dup := byID[id]; dup {
			continue
		}
		subj := parseSubject(e.Title)
		s := domain.PatchsetSummary{
			MessageID: id,
			Title:     subj.Title,
			Version:   subj.Version,
			Number:    subj.Number,
			Total:     subj.Total,
			Author:    domain.Address{Name: strings.TrimSpace(e.Author.Name), Email: strings.TrimSpace(e.Author.Email)},
			List:      list,
		}
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Updated)); err == nil {
			s.Updated = t
		}
		if e.InReplyTo != nil {
			s.InReplyTo = messageIDFromHref(e.InReplyTo.Href)
		}
		all = append(all, s)
		byID[id] = s
	}

	out := make([]domain.PatchsetSummary, 0, len(all))
	for _, s := range all {
		if s.Number < 0 || s.Number > 1 {
			continue
		}
		if s.Number == 1 && s.InReplyTo != "" {
			if parent, ok := byID[s.InReplyTo]; ok && parent.IsCover() && parent.Version == s.Version {
				continue
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// messageIDFromHref extracts the message-id from an archive permalink such
// as "https://lore.kernel.org/netdev/20240101.1234-1-dev@example.com/".
func messageIDFromHref(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	seg := path.Base(strings.TrimRight(u.EscapedPath(), "/"))
	if seg == "." || seg == "/" {
		return ""
	}
	id, err := url.PathUnescape(seg)
	if err != nil {
		return ""
	}
	return id
}
