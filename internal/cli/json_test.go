package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lu-zhengda/loreterm/internal/domain"
	"github.com/lu-zhengda/loreterm/internal/store"
)

func TestToJSONLists(t *testing.T) {
	got := toJSONLists([]domain.MailingList{
		{ID: domain.NewMailingListID("netdev"), Description: "Netdev List"},
		{ID: domain.NewMailingListID("linux-mm")},
	})
	want := []jsonList{{Name: "netdev", Description: "Netdev List"}, {Name: "linux-mm"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("toJSONLists() mismatch (-want +got):\n%s", diff)
	}
}

func TestToJSONLists_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := fprintJSON(&buf, toJSONLists(nil)); err != nil {
		t.Fatalf("fprintJSON() error = %v", err)
	}
	if got := buf.String(); got != "[]\n" {
		t.Errorf("got %q, want %q", got, "[]\n")
	}
}

func TestToJSONSummaries(t *testing.T) {
	sums := []domain.PatchsetSummary{
		{
			MessageID: "cover.1@example.com",
			Title:     "net: tidy up foo",
			Version:   2,
			Total:     2,
			Author:    domain.Address{Name: "Dev", Email: "dev@example.com"},
			Updated:   time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
			List:      domain.NewMailingListID("netdev"),
		},
	}

	got := toJSONSummaries(sums, func(id string) bool { return id == "cover.1@example.com" })

	if len(got) != 1 {
		t.Fatalf("got %d summaries, want 1", len(got))
	}
	if got[0].Updated != "2024-01-01T10:00:00Z" {
		t.Errorf("updated = %q", got[0].Updated)
	}
	if got[0].List != "netdev" || !got[0].Bookmarked || got[0].Author.Email != "dev@example.com" {
		t.Errorf("summary = %+v", got[0])
	}
}

func TestToJSONPatchset(t *testing.T) {
	ps := &domain.Patchset{
		MessageID: "c@x",
		Title:     "tidy",
		Version:   1,
		Total:     1,
		List:      domain.NewMailingListID("netdev"),
		Messages: []domain.Message{
			{MessageID: "c@x", Number: 0, Subject: "[PATCH 0/1] tidy", Body: "cover"},
			{MessageID: "p1@x", Number: 1, Subject: "[PATCH 1/1] one", Body: "diff"},
		},
		Replies: []domain.Message{
			{MessageID: "r@x", InReplyTo: "p1@x", Number: -1, Trailers: []domain.Trailer{{Kind: domain.TagAckedBy, Identity: "bob@example.com"}}},
		},
	}

	got := toJSONPatchset(ps, false)

	if got.Replies != 1 || len(got.Messages) != 2 {
		t.Fatalf("patchset = %+v", got)
	}
	if diff := cmp.Diff([]string{"Acked-by: bob@example.com"}, got.Messages[1].Tags); diff != "" {
		t.Errorf("patch tags mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string][]string{"Acked-by": {"bob@example.com"}}, got.Tags); diff != "" {
		t.Errorf("tag summary mismatch (-want +got):\n%s", diff)
	}
	if got.Messages[1].Body != "" {
		t.Error("body included without withBody")
	}
	if toJSONPatchset(ps, true).Messages[1].Body != "diff" {
		t.Error("body missing with withBody")
	}
}

func TestToJSONOutcomes(t *testing.T) {
	outcomes := []domain.ActionOutcome{
		domain.Applied("linux", "2 patches applied"),
		domain.AppliedWithConflicts("net", "unmerged: a.c"),
		domain.Skipped("p2@x", "already tagged"),
		domain.Failed("ghost", errors.New("target not configured")),
	}

	var buf bytes.Buffer
	if err := fprintJSON(&buf, toJSONOutcomes(outcomes)); err != nil {
		t.Fatalf("fprintJSON() error = %v", err)
	}
	var parsed []jsonOutcome
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	want := []jsonOutcome{
		{Subject: "linux", Result: "applied", OK: true, Detail: "2 patches applied"},
		{Subject: "net", Result: "conflicts", OK: true, Detail: "unmerged: a.c"},
		{Subject: "p2@x", Result: "skipped", Detail: "already tagged"},
		{Subject: "ghost", Result: "failed", Error: "target not configured"},
	}
	if diff := cmp.Diff(want, parsed); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}
}

func TestToJSONBookmarks(t *testing.T) {
	got := toJSONBookmarks([]store.Bookmark{{
		MessageID: "c@x",
		Title:     "tidy",
		List:      domain.NewMailingListID("netdev"),
		AddedAt:   time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC),
	}})
	want := []jsonBookmark{{MessageID: "c@x", Title: "tidy", List: "netdev", AddedAt: "2025-01-15T08:00:00Z"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("toJSONBookmarks() mismatch (-want +got):\n%s", diff)
	}
}

func TestToJSONAddresses_Empty(t *testing.T) {
	if got := toJSONAddresses(nil); got != nil {
		t.Errorf("toJSONAddresses(nil) = %v, want nil", got)
	}
}
