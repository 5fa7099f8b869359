package cli

import (
	"time"

	"github.com/lu-zhengda/loreterm/internal/cache"
	"github.com/lu-zhengda/loreterm/internal/domain"
	"github.com/lu-zhengda/loreterm/internal/store"
)

// ---------------------------------------------------------------------------
// Mailing list JSON type (lists)
// ---------------------------------------------------------------------------

type jsonList struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func toJSONLists(lists []domain.MailingList) []jsonList {
	out := make([]jsonList, 0, len(lists))
	for _, l := range lists {
		out = append(out, jsonList{Name: l.ID.String(), Description: l.Description})
	}
	return out
}

// ---------------------------------------------------------------------------
// Patchset summary JSON type (feed)
// ---------------------------------------------------------------------------

type jsonSummary struct {
	MessageID  string      `json:"message_id"`
	Title      string      `json:"title"`
	Version    int         `json:"version"`
	Number     int         `json:"number"`
	Total      int         `json:"total"`
	Author     jsonAddress `json:"author"`
	Updated    string      `json:"updated"`
	List       string      `json:"list"`
	Bookmarked bool        `json:"bookmarked"`
}

func toJSONSummaries(sums []domain.PatchsetSummary, bookmarked func(string) bool) []jsonSummary {
	out := make([]jsonSummary, 0, len(sums))
	for _, s := range sums {
		out = append(out, jsonSummary{
			MessageID:  s.MessageID,
			Title:      s.Title,
			Version:    s.Version,
			Number:     s.Number,
			Total:      s.Total,
			Author:     toJSONAddress(s.Author),
			Updated:    s.Updated.Format(time.RFC3339),
			List:       s.List.String(),
			Bookmarked: bookmarked(s.MessageID),
		})
	}
	return out
}

// ---------------------------------------------------------------------------
// Patchset detail JSON type (show)
// ---------------------------------------------------------------------------

type jsonPatchset struct {
	MessageID string              `json:"message_id"`
	Title     string              `json:"title"`
	Version   int                 `json:"version"`
	Total     int                 `json:"total"`
	Author    jsonAddress         `json:"author"`
	Updated   string              `json:"updated"`
	List      string              `json:"list"`
	Messages  []jsonMessage       `json:"messages"`
	Replies   int                 `json:"replies"`
	Tags      map[string][]string `json:"tags,omitempty"`
}

type jsonMessage struct {
	MessageID string        `json:"message_id"`
	Number    int           `json:"number"`
	Subject   string        `json:"subject"`
	From      jsonAddress   `json:"from"`
	To        []jsonAddress `json:"to,omitempty"`
	CC        []jsonAddress `json:"cc,omitempty"`
	Date      string        `json:"date"`
	Tags      []string      `json:"tags,omitempty"`
	Body      string        `json:"body,omitempty"`
}

func toJSONPatchset(ps *domain.Patchset, withBody bool) jsonPatchset {
	ledger := domain.NewTagLedger(ps)
	msgs := make([]jsonMessage, 0, len(ps.Messages))
	for _, m := range ps.Messages {
		jm := jsonMessage{
			MessageID: m.MessageID,
			Number:    m.Number,
			Subject:   m.Subject,
			From:      toJSONAddress(m.From),
			To:        toJSONAddresses(m.To),
			CC:        toJSONAddresses(m.CC),
			Date:      m.Date.Format(time.RFC3339),
		}
		for _, t := range ledger.Tags(m.MessageID) {
			jm.Tags = append(jm.Tags, t.String())
		}
		if withBody {
			jm.Body = m.Body
		}
		msgs = append(msgs, jm)
	}
	tags := make(map[string][]string)
	for _, kind := range domain.TagKinds {
		if ids := ledger.Identities(kind); len(ids) > 0 {
			tags[string(kind)] = ids
		}
	}
	return jsonPatchset{
		MessageID: ps.MessageID,
		Title:     ps.Title,
		Version:   ps.Version,
		Total:     ps.Total,
		Author:    toJSONAddress(ps.Author),
		Updated:   ps.Updated.Format(time.RFC3339),
		List:      ps.List.String(),
		Messages:  msgs,
		Replies:   len(ps.Replies),
		Tags:      tags,
	}
}

// ---------------------------------------------------------------------------
// Address JSON type (shared)
// ---------------------------------------------------------------------------

type jsonAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

func toJSONAddress(a domain.Address) jsonAddress {
	return jsonAddress{Name: a.Name, Email: a.Email}
}

func toJSONAddresses(addrs []domain.Address) []jsonAddress {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]jsonAddress, len(addrs))
	for i, a := range addrs {
		out[i] = toJSONAddress(a)
	}
	return out
}

// ---------------------------------------------------------------------------
// Bookmark JSON type (bookmark ls)
// ---------------------------------------------------------------------------

type jsonBookmark struct {
	MessageID string `json:"message_id"`
	Title     string `json:"title,omitempty"`
	List      string `json:"list,omitempty"`
	AddedAt   string `json:"added_at"`
}

func toJSONBookmarks(bookmarks []store.Bookmark) []jsonBookmark {
	out := make([]jsonBookmark, 0, len(bookmarks))
	for _, b := range bookmarks {
		out = append(out, jsonBookmark{
			MessageID: b.MessageID,
			Title:     b.Title,
			List:      b.List.String(),
			AddedAt:   b.AddedAt.Format(time.RFC3339),
		})
	}
	return out
}

// ---------------------------------------------------------------------------
// Outcome JSON type (apply, reply)
// ---------------------------------------------------------------------------

type jsonOutcome struct {
	Subject string `json:"subject"`
	Result  string `json:"result"`
	OK      bool   `json:"ok"`
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func toJSONOutcomes(outcomes []domain.ActionOutcome) []jsonOutcome {
	out := make([]jsonOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		jo := jsonOutcome{
			Subject: o.Subject,
			Result:  o.Kind.String(),
			OK:      o.OK(),
			Detail:  o.Detail,
			Message: string(o.Message),
		}
		if o.Err != nil {
			jo.Error = o.Err.Error()
		}
		out = append(out, jo)
	}
	return out
}

// ---------------------------------------------------------------------------
// Cache JSON types (cache gc, cache invalidate)
// ---------------------------------------------------------------------------

type jsonGCStats struct {
	Scanned   int `json:"scanned"`
	Expired   int `json:"expired"`
	Evicted   int `json:"evicted"`
	Orphans   int `json:"orphans"`
	Remaining int `json:"remaining"`
}

func toJSONGCStats(s cache.GCStats) jsonGCStats {
	return jsonGCStats{
		Scanned:   s.Scanned,
		Expired:   s.Expired,
		Evicted:   s.Evicted,
		Orphans:   s.Orphans,
		Remaining: s.Remaining,
	}
}

type jsonAction struct {
	OK        bool   `json:"ok"`
	Action    string `json:"action"`
	MessageID string `json:"message_id,omitempty"`
	Count     int    `json:"count,omitempty"`
}
