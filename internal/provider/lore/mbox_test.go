package lore

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lu-zhengda/loreterm/internal/domain"
)

func TestSplitMbox(t *testing.T) {
	data := "From a@z Thu Jan  1 00:00:00 1970\nSubject: one\n\n>From here\n>>From there\n" +
		"From b@z Thu Jan  1 00:00:00 1970\nSubject: two\n\nbody\n"
	got := SplitMbox([]byte(data))
	if len(got) != 2 {
		t.Fatalf("SplitMbox() returned %d messages, want 2", len(got))
	}
	if want := "Subject: one\n\nFrom here\n>From there\n"; string(got[0]) != want {
		t.Errorf("message 0 = %q, want %q", got[0], want)
	}
	if want := "Subject: two\n\nbody\n"; string(got[1]) != want {
		t.Errorf("message 1 = %q, want %q", got[1], want)
	}
}

func TestSplitMbox_NoSeparator(t *testing.T) {
	got := SplitMbox([]byte("Subject: bare\n\nbody\n"))
	if len(got) != 1 {
		t.Fatalf("SplitMbox() returned %d messages, want 1", len(got))
	}
}

func TestParseMessage_Encodings(t *testing.T) {
	raw := "From: =?UTF-8?q?J=C3=B6rg?= <joerg@example.com>\n" +
		"Subject: =?UTF-8?q?[PATCH]_caf=C3=A9?=\n" +
		"Message-Id: <enc@example.com>\n" +
		"References: <a@x> <b@x>\n" +
		"Content-Type: text/plain; charset=utf-8\n" +
		"Content-Transfer-Encoding: quoted-printable\n\n" +
		"Acked-by: J=C3=B6rg <joerg@example.com>\n"
	m, err := ParseMessage([]byte(raw))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if m.From.Name != "Jörg" {
		t.Errorf("From.Name = %q, want Jörg", m.From.Name)
	}
	if m.Subject != "[PATCH] café" {
		t.Errorf("Subject = %q", m.Subject)
	}
	if m.InReplyTo != "b@x" {
		t.Errorf("InReplyTo = %q, want b@x (last reference)", m.InReplyTo)
	}
	want := []domain.Trailer{{Kind: domain.TagAckedBy, Identity: "Jörg <joerg@example.com>"}}
	if diff := cmp.Diff(want, m.Trailers); diff != "" {
		t.Errorf("Trailers mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMessage_Multipart(t *testing.T) {
	raw := "Message-Id: <mp@example.com>\n" +
		"Content-Type: multipart/mixed; boundary=XX\n\n" +
		"--XX\nContent-Type: text/html\n\n<p>html</p>\n" +
		"--XX\nContent-Type: text/plain\nContent-Transfer-Encoding: base64\n\n" +
		"VGVzdGVkLWJ5OiBib2JA\nZXhhbXBsZS5jb20K\n" +
		"--XX--\n"
	m, err := ParseMessage([]byte(raw))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if m.Body != "Tested-by: bob@example.com\n" {
		t.Errorf("Body = %q", m.Body)
	}
	if len(m.Trailers) != 1 || m.Trailers[0].Kind != domain.TagTestedBy {
		t.Errorf("Trailers = %v", m.Trailers)
	}
}

func TestParseMessage_NoMessageID(t *testing.T) {
	if _, err := ParseMessage([]byte("Subject: x\n\nbody\n")); err == nil {
		t.Error("ParseMessage() without Message-Id should fail")
	}
}

func TestParseThread(t *testing.T) {
	data, err := os.ReadFile("testdata/thread.mbox")
	if err != nil {
		t.Fatal(err)
	}
	ps, err := ParseThread(data, "<cover.1@example.com>")
	if err != nil {
		t.Fatalf("ParseThread() error = %v", err)
	}

	if ps.MessageID != "cover.1@example.com" || ps.Title != "net: tidy up foo" || ps.Version != 2 || ps.Total != 2 {
		t.Errorf("patchset header = %q %q v%d /%d", ps.MessageID, ps.Title, ps.Version, ps.Total)
	}
	if got := ps.List.String(); got != "netdev" {
		t.Errorf("List = %q, want netdev", got)
	}
	if want := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC); !ps.Updated.Equal(want) {
		t.Errorf("Updated = %v, want %v", ps.Updated, want)
	}

	var ids []string
	for _, m := range ps.Messages {
		ids = append(ids, m.MessageID)
	}
	if diff := cmp.Diff([]string{"cover.1@example.com", "patch.1@example.com", "patch.2@example.com"}, ids); diff != "" {
		t.Errorf("series order mismatch (-want +got):\n%s", diff)
	}
	if len(ps.Replies) != 1 || ps.Replies[0].MessageID != "reply.1@example.com" {
		t.Fatalf("Replies = %v, want only reply.1 (message without id dropped)", ps.Replies)
	}

	p2, _ := ps.Message("patch.2@example.com")
	if !strings.Contains(p2.Body, "\nFrom the changelog") {
		t.Errorf("mboxrd quoting not undone in body: %q", p2.Body)
	}

	ledger := domain.NewTagLedger(ps)
	if !ledger.Has("patch.2@example.com", domain.TagReviewedBy, "Alice Reviewer <alice@example.com>") {
		t.Error("reply trailer not attributed to patch 2")
	}
}

func TestParseThread_RootMissing(t *testing.T) {
	data, err := os.ReadFile("testdata/thread.mbox")
	if err != nil {
		t.Fatal(err)
	}
	_, err = ParseThread(data, "absent@example.com")
	var pe *ProtocolError
	if !asProtocolError(err, &pe) {
		t.Errorf("ParseThread() error = %v, want ProtocolError", err)
	}
}
