package domain

import (
	"slices"
	"strings"
)

// TagLedger records which reviewer tags already exist on a patchset. It is
// derived from message trailers and never persisted.
//
// A trailer counts for the series message it was written on, or for the
// nearest series ancestor of the reply that carries it. Trailers given in
// reply to the cover letter apply to the cover and to every patch.
type TagLedger struct {
	byKind    map[TagKind]map[string]struct{}
	byMessage map[string]map[Trailer]struct{}
}

// NewTagLedger derives the ledger for ps.
func NewTagLedger(ps *Patchset) *TagLedger {
	l := &TagLedger{
		byKind:    make(map[TagKind]map[string]struct{}),
		byMessage: make(map[string]map[Trailer]struct{}),
	}
	if ps == nil {
		return l
	}

	series := make(map[string]*Message, len(ps.Messages))
	for i := range ps.Messages {
		series[ps.Messages[i].MessageID] = &ps.Messages[i]
	}
	parents := make(map[string]string, ps.MessageCount())
	for _, m := range ps.Messages {
		parents[m.MessageID] = m.InReplyTo
	}
	for _, m := range ps.Replies {
		parents[m.MessageID] = m.InReplyTo
	}

	for i := range ps.Messages {
		l.attribute(ps, &ps.Messages[i], ps.Messages[i].Trailers)
	}
	for _, r := range ps.Replies {
		if len(r.Trailers) == 0 {
			continue
		}
		if owner := seriesAncestor(r.InReplyTo, parents, series); owner != nil {
			l.attribute(ps, owner, r.Trailers)
		}
	}
	return l
}

// seriesAncestor walks the in-reply-to chain starting at id until it
// reaches a series message. Cycles end the walk.
func seriesAncestor(id string, parents map[string]string, series map[string]*Message) *Message {
	seen := make(map[string]bool)
	for id != "" && !seen[id] {
		if m, ok := series[id]; ok {
			return m
		}
		seen[id] = true
		id = parents[id]
	}
	return nil
}

func (l *TagLedger) attribute(ps *Patchset, owner *Message, trailers []Trailer) {
	for _, t := range trailers {
		l.add(owner.MessageID, t)
		if owner.Number != 0 {
			continue
		}
		for _, m := range ps.Messages {
			if m.IsPatch() {
				l.add(m.MessageID, t)
			}
		}
	}
}

func (l *TagLedger) add(messageID string, t Trailer) {
	t.Identity = strings.TrimSpace(t.Identity)
	if l.byKind[t.Kind] == nil {
		l.byKind[t.Kind] = make(map[string]struct{})
	}
	l.byKind[t.Kind][t.Identity] = struct{}{}
	if l.byMessage[messageID] == nil {
		l.byMessage[messageID] = make(map[Trailer]struct{})
	}
	l.byMessage[messageID][t] = struct{}{}
}

// Has reports whether messageID already carries exactly (kind, identity).
// Identity comparison is exact after trimming surrounding whitespace.
func (l *TagLedger) Has(messageID string, kind TagKind, identity string) bool {
	_, ok := l.byMessage[messageID][Trailer{Kind: kind, Identity: strings.TrimSpace(identity)}]
	return ok
}

// MessagesWith returns, sorted, the ids of the messages carrying (kind, identity).
func (l *TagLedger) MessagesWith(kind TagKind, identity string) []string {
	want := Trailer{Kind: kind, Identity: strings.TrimSpace(identity)}
	var out []string
	for id, tags := range l.byMessage {
		if _, ok := tags[want]; ok {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// Identities returns the distinct identities that issued kind, sorted.
func (l *TagLedger) Identities(kind TagKind) []string {
	out := make([]string, 0, len(l.byKind[kind]))
	for id := range l.byKind[kind] {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Tags returns the trailers applied to messageID, sorted by kind then identity.
func (l *TagLedger) Tags(messageID string) []Trailer {
	out := make([]Trailer, 0, len(l.byMessage[messageID]))
	for t := range l.byMessage[messageID] {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b Trailer) int {
		if c := strings.Compare(string(a.Kind), string(b.Kind)); c != 0 {
			return c
		}
		return strings.Compare(a.Identity, b.Identity)
	})
	return out
}
