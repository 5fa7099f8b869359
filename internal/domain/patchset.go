package domain

import (
	"slices"
	"time"
)

// PatchsetSummary is one row of a mailing list's patch feed. It describes
// the representative mail of a series: the cover letter when there is
// one, otherwise the first patch.
type PatchsetSummary struct {
	MessageID string
	Title     string
	Version   int
	Number    int
	Total     int
	Author    Address
	Updated   time.Time
	List      MailingListID
	InReplyTo string
}

// IsCover reports whether the summary describes a cover letter (0/N).
func (s PatchsetSummary) IsCover() bool {
	return s.Number == 0
}

// Patchset is an immutable snapshot of a series. Messages holds the cover
// letter and patches in series order; every other mail of the thread is in
// Replies. A refetch produces a new Patchset.
type Patchset struct {
	MessageID string
	Title     string
	Version   int
	Total     int
	Updated   time.Time
	Author    Address
	List      MailingListID
	Messages  []Message
	Replies   []Message
}

// Message is a single mail of a patchset thread.
type Message struct {
	MessageID  string
	InReplyTo  string
	References []string
	Subject    string
	From       Address
	To         []Address
	CC         []Address
	Date       time.Time
	// Number is the position in the series: 0 for the cover letter,
	// 1..Total for patches, -1 for mails that are not part of the series.
	Number   int
	Body     string
	Raw      []byte
	Trailers []Trailer
}

// IsPatch reports whether the message carries a diff of the series.
func (m *Message) IsPatch() bool {
	return m.Number > 0
}

// Summary returns the feed-level view of the patchset.
func (p *Patchset) Summary() PatchsetSummary {
	s := PatchsetSummary{
		MessageID: p.MessageID,
		Title:     p.Title,
		Version:   p.Version,
		Total:     p.Total,
		Author:    p.Author,
		Updated:   p.Updated,
		List:      p.List,
		Number:    1,
	}
	if c, ok := p.Cover(); ok && c.MessageID == p.MessageID {
		s.Number = 0
	}
	return s
}

// Cover returns the cover letter if the series has one.
func (p *Patchset) Cover() (*Message, bool) {
	for i := range p.Messages {
		if p.Messages[i].Number == 0 {
			return &p.Messages[i], true
		}
	}
	return nil, false
}

// Patches returns the patch messages sorted by their number in the series,
// independent of how Messages happens to be ordered.
func (p *Patchset) Patches() []Message {
	out := make([]Message, 0, len(p.Messages))
	for _, m := range p.Messages {
		if m.IsPatch() {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b Message) int { return a.Number - b.Number })
	return out
}

// Message looks up a series message or reply by message-id.
func (p *Patchset) Message(messageID string) (*Message, bool) {
	for i := range p.Messages {
		if p.Messages[i].MessageID == messageID {
			return &p.Messages[i], true
		}
	}
	for i := range p.Replies {
		if p.Replies[i].MessageID == messageID {
			return &p.Replies[i], true
		}
	}
	return nil, false
}

// MessageCount returns the number of mails in the thread.
func (p *Patchset) MessageCount() int {
	return len(p.Messages) + len(p.Replies)
}
