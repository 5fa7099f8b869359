package action

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lu-zhengda/loreterm/internal/domain"
)

type fakeApplier struct {
	mu        sync.Mutex
	calls     map[string][][]byte
	fail      map[string]error
	conflicts map[string][]string
	missing   error
}

func (f *fakeApplier) Available() error { return f.missing }

func (f *fakeApplier) Apply(_ context.Context, t domain.TreeTarget, patches [][]byte) (ApplyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string][][]byte)
	}
	f.calls[t.Name] = patches
	if err := f.fail[t.Name]; err != nil {
		return ApplyResult{}, err
	}
	return ApplyResult{Applied: len(patches), Conflicts: f.conflicts[t.Name]}, nil
}

type sentMail struct {
	msg    []byte
	dryRun bool
}

type fakeMailer struct {
	sent    []sentMail
	missing error
	fail    error
}

func (f *fakeMailer) Available() error { return f.missing }

func (f *fakeMailer) Send(_ context.Context, msg []byte, dryRun bool) error {
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, sentMail{msg: msg, dryRun: dryRun})
	return nil
}

type fakeRegistry []domain.TreeTarget

func (r fakeRegistry) Target(name string) (domain.TreeTarget, bool) {
	for _, t := range r {
		if t.Name == name {
			return t, true
		}
	}
	return domain.TreeTarget{}, false
}

func (r fakeRegistry) AllTargets() []domain.TreeTarget { return r }

type memReviews map[string]bool

func (m memReviews) Has(id string, kind domain.TagKind, identity string) bool {
	return m[id+"|"+string(kind)+"|"+identity]
}

func (m memReviews) Record(id string, kind domain.TagKind, identity string) error {
	m[id+"|"+string(kind)+"|"+identity] = true
	return nil
}

// testPatchset stores its messages out of series order.
func testPatchset() *domain.Patchset {
	msg := func(id string, n int, subject, body string, trailers ...domain.Trailer) domain.Message {
		return domain.Message{
			MessageID: id,
			InReplyTo: "cover@x",
			Subject:   subject,
			From:      domain.Address{Name: "Dev", Email: "dev@example.com"},
			To:        []domain.Address{{Email: "list@vger.kernel.org"}},
			Number:    n,
			Body:      body,
			Raw:       []byte("Subject: " + subject + "\n\n" + body),
			Trailers:  trailers,
		}
	}
	return &domain.Patchset{
		MessageID: "cover@x",
		Title:     "tidy",
		Version:   1,
		Total:     3,
		Messages: []domain.Message{
			msg("p3@x", 3, "[PATCH 3/3] three", "third\n"),
			{MessageID: "cover@x", Number: 0, Subject: "[PATCH 0/3] tidy", From: domain.Address{Email: "dev@example.com"}, Body: "cover\n"},
			msg("p1@x", 1, "[PATCH 1/3] one", "first\n"),
			msg("p2@x", 2, "[PATCH 2/3] two", "second\n\nReviewed-by: alice@example.com\n",
				domain.Trailer{Kind: domain.TagReviewedBy, Identity: "alice@example.com"}),
		},
	}
}

func TestApply_SeriesOrder(t *testing.T) {
	ap := &fakeApplier{}
	p := NewPipeline(ap, &fakeMailer{})
	ps := testPatchset()

	outcomes := p.Apply(context.Background(), ps, []domain.TreeTarget{{Name: "linux", Path: "/src/linux"}})

	if len(outcomes) != 1 || outcomes[0].Kind != domain.OutcomeApplied {
		t.Fatalf("outcomes = %v", outcomes)
	}
	var subjects []string
	for _, raw := range ap.calls["linux"] {
		line, _, _ := strings.Cut(string(raw), "\n")
		subjects = append(subjects, line)
	}
	want := []string{"Subject: [PATCH 1/3] one", "Subject: [PATCH 2/3] two", "Subject: [PATCH 3/3] three"}
	if diff := cmp.Diff(want, subjects); diff != "" {
		t.Errorf("apply order mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_ContinueOnError(t *testing.T) {
	ap := &fakeApplier{
		fail:      map[string]error{"A": &ToolError{Tool: "git am", Detail: "patch does not apply"}},
		conflicts: map[string][]string{"C": {"net/foo.c"}},
	}
	targets := []domain.TreeTarget{{Name: "A", Path: "/a"}, {Name: "B", Path: "/b"}, {Name: "C", Path: "/c"}}

	for _, parallel := range []int{1, 3} {
		p := NewPipeline(ap, &fakeMailer{}, WithParallelism(parallel))
		outcomes := p.Apply(context.Background(), testPatchset(), targets)

		if len(outcomes) != 3 {
			t.Fatalf("parallel=%d: got %d outcomes, want 3", parallel, len(outcomes))
		}
		if outcomes[0].Subject != "A" || outcomes[0].Kind != domain.OutcomeFailed {
			t.Errorf("parallel=%d: A = %v, want failed", parallel, outcomes[0])
		}
		if outcomes[1].Subject != "B" || outcomes[1].Kind != domain.OutcomeApplied {
			t.Errorf("parallel=%d: B = %v, want applied", parallel, outcomes[1])
		}
		if outcomes[2].Kind != domain.OutcomeAppliedWithConflicts || !strings.Contains(outcomes[2].Detail, "net/foo.c") {
			t.Errorf("parallel=%d: C = %v, want conflicts", parallel, outcomes[2])
		}
	}
}

func TestApply_ToolMissing(t *testing.T) {
	ap := &fakeApplier{missing: &ToolError{Tool: "git am", Missing: true}}
	p := NewPipeline(ap, &fakeMailer{})

	outcomes := p.Apply(context.Background(), testPatchset(), []domain.TreeTarget{{Name: "A", Path: "/a"}, {Name: "B", Path: "/b"}})
	for _, o := range outcomes {
		if o.Kind != domain.OutcomeFailed || !IsToolMissing(o.Err) {
			t.Errorf("%s: %v, want tool missing", o.Subject, o)
		}
	}
	if len(ap.calls) != 0 {
		t.Errorf("applier invoked %d times with tool missing", len(ap.calls))
	}
}

func TestApply_NoPatches(t *testing.T) {
	ps := &domain.Patchset{MessageID: "c@x", Messages: []domain.Message{{MessageID: "c@x", Number: 0}}}
	outcomes := NewPipeline(&fakeApplier{}, &fakeMailer{}).Apply(context.Background(), ps, []domain.TreeTarget{{Name: "A", Path: "/a"}})
	if outcomes[0].Kind != domain.OutcomeSkipped {
		t.Errorf("outcome = %v, want skipped", outcomes[0])
	}
}

func TestApplyNamed_UnknownTarget(t *testing.T) {
	ap := &fakeApplier{}
	p := NewPipeline(ap, &fakeMailer{})
	reg := fakeRegistry{{Name: "linux", Path: "/src/linux"}, {Name: "nopath"}}

	outcomes := p.ApplyNamed(context.Background(), testPatchset(), reg, []string{"ghost", "linux", "nopath"})

	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	if !errors.Is(outcomes[0].Err, ErrTargetNotConfigured) || outcomes[0].Subject != "ghost" {
		t.Errorf("ghost = %v, want ErrTargetNotConfigured", outcomes[0])
	}
	if outcomes[1].Kind != domain.OutcomeApplied {
		t.Errorf("linux = %v, want applied", outcomes[1])
	}
	if !errors.Is(outcomes[2].Err, ErrTargetNotConfigured) {
		t.Errorf("nopath = %v, want ErrTargetNotConfigured", outcomes[2])
	}
	if _, ok := ap.calls["ghost"]; ok {
		t.Error("applier invoked for unknown target")
	}
}

func TestApplyNamed_AllTargets(t *testing.T) {
	p := NewPipeline(&fakeApplier{}, &fakeMailer{})

	outcomes := p.ApplyNamed(context.Background(), testPatchset(), fakeRegistry{{Name: "a", Path: "/a"}, {Name: "b", Path: "/b"}}, nil)
	if len(outcomes) != 2 {
		t.Errorf("got %d outcomes, want 2", len(outcomes))
	}

	outcomes = p.ApplyNamed(context.Background(), testPatchset(), fakeRegistry{}, nil)
	if len(outcomes) != 1 || !errors.Is(outcomes[0].Err, ErrTargetNotConfigured) {
		t.Errorf("empty registry outcomes = %v", outcomes)
	}
}

func TestReply_SkipsAlreadyTagged(t *testing.T) {
	m := &fakeMailer{}
	p := NewPipeline(&fakeApplier{}, m)

	outcomes := p.Reply(context.Background(), ReplyRequest{
		Patchset:   testPatchset(),
		MessageIDs: []string{"p1@x", "p2@x"},
		Tag:        domain.TagReviewedBy,
		Identity:   "alice@example.com",
		DryRun:     true,
	})

	if outcomes[0].Kind != domain.OutcomeApplied || len(outcomes[0].Message) == 0 {
		t.Errorf("P1 = %v, want a composed reply", outcomes[0])
	}
	if outcomes[1].Kind != domain.OutcomeSkipped || outcomes[1].Detail != "already tagged" {
		t.Errorf("P2 = %v, want skipped: already tagged", outcomes[1])
	}
	if len(m.sent) != 1 {
		t.Errorf("mailer called %d times, want 1", len(m.sent))
	}
}

func TestReply_DryRunIdenticalContent(t *testing.T) {
	req := ReplyRequest{
		Patchset:   testPatchset(),
		MessageIDs: []string{"p1@x", "p3@x"},
		Tag:        domain.TagAckedBy,
		Identity:   "Bob <bob@example.com>",
	}

	dry := &fakeMailer{}
	req.DryRun = true
	dryOut := NewPipeline(&fakeApplier{}, dry).Reply(context.Background(), req)

	live := &fakeMailer{}
	req.DryRun = false
	liveOut := NewPipeline(&fakeApplier{}, live).Reply(context.Background(), req)

	if len(dry.sent) != 2 || len(live.sent) != 2 {
		t.Fatalf("sent dry=%d live=%d, want 2 each", len(dry.sent), len(live.sent))
	}
	for i := range dry.sent {
		if !bytes.Equal(dry.sent[i].msg, live.sent[i].msg) {
			t.Errorf("message %d differs between dry run and live:\n%s\n---\n%s", i, dry.sent[i].msg, live.sent[i].msg)
		}
		if !dry.sent[i].dryRun || live.sent[i].dryRun {
			t.Errorf("message %d dispatch flags = %v/%v, want true/false", i, dry.sent[i].dryRun, live.sent[i].dryRun)
		}
		if !bytes.Equal(dryOut[i].Message, liveOut[i].Message) {
			t.Errorf("outcome %d message differs", i)
		}
	}
	if dryOut[0].Detail != "dry run" || liveOut[0].Detail != "sent" {
		t.Errorf("details = %q / %q", dryOut[0].Detail, liveOut[0].Detail)
	}
}

func TestReply_ReviewLog(t *testing.T) {
	reviews := memReviews{}
	m := &fakeMailer{}
	p := NewPipeline(&fakeApplier{}, m, WithReviewLog(reviews))
	req := ReplyRequest{
		Patchset:   testPatchset(),
		MessageIDs: []string{"p1@x"},
		Tag:        domain.TagTestedBy,
		Identity:   "carol@example.com",
		DryRun:     true,
	}

	p.Reply(context.Background(), req)
	if len(reviews) != 0 {
		t.Fatal("dry run recorded a review")
	}

	req.DryRun = false
	p.Reply(context.Background(), req)
	if !reviews.Has("p1@x", domain.TagTestedBy, "carol@example.com") {
		t.Fatal("live send not recorded")
	}

	outcomes := p.Reply(context.Background(), req)
	if outcomes[0].Kind != domain.OutcomeSkipped {
		t.Errorf("third reply = %v, want skipped", outcomes[0])
	}
	if len(m.sent) != 2 {
		t.Errorf("mailer called %d times, want 2", len(m.sent))
	}
}

func TestReply_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mailer  *fakeMailer
		req     ReplyRequest
		check   func(domain.ActionOutcome) bool
		wantMsg bool
	}{
		{
			name:    "mailer missing",
			mailer:  &fakeMailer{missing: &ToolError{Tool: "git send-email", Missing: true}},
			req:     ReplyRequest{MessageIDs: []string{"p1@x"}, Tag: domain.TagAckedBy, Identity: "a@x"},
			check:   func(o domain.ActionOutcome) bool { return IsToolMissing(o.Err) },
			wantMsg: true,
		},
		{
			name:    "mailer fails",
			mailer:  &fakeMailer{fail: &ToolError{Tool: "git send-email", Detail: "smtp refused"}},
			req:     ReplyRequest{MessageIDs: []string{"p1@x"}, Tag: domain.TagAckedBy, Identity: "a@x"},
			check:   func(o domain.ActionOutcome) bool { return strings.Contains(o.Err.Error(), "smtp refused") },
			wantMsg: true,
		},
		{
			name:   "unknown message",
			mailer: &fakeMailer{},
			req:    ReplyRequest{MessageIDs: []string{"nope@x"}, Tag: domain.TagAckedBy, Identity: "a@x"},
			check:  func(o domain.ActionOutcome) bool { return strings.Contains(o.Err.Error(), "not part of patchset") },
		},
		{
			name:   "bad tag",
			mailer: &fakeMailer{},
			req:    ReplyRequest{MessageIDs: []string{"p1@x"}, Tag: "Signed-off-by", Identity: "a@x"},
			check:  func(o domain.ActionOutcome) bool { return o.Err != nil },
		},
		{
			name:   "bad identity",
			mailer: &fakeMailer{},
			req:    ReplyRequest{MessageIDs: []string{"p1@x"}, Tag: domain.TagAckedBy, Identity: "not an address"},
			check:  func(o domain.ActionOutcome) bool { return strings.Contains(o.Err.Error(), "identity") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Patchset = testPatchset()
			outcomes := NewPipeline(&fakeApplier{}, tt.mailer).Reply(context.Background(), tt.req)
			o := outcomes[0]
			if o.Kind != domain.OutcomeFailed || !tt.check(o) {
				t.Errorf("outcome = %v", o)
			}
			if got := len(o.Message) > 0; got != tt.wantMsg {
				t.Errorf("outcome carries message = %v, want %v", got, tt.wantMsg)
			}
		})
	}
}

func TestOutcomesErr(t *testing.T) {
	if err := OutcomesErr([]domain.ActionOutcome{domain.Applied("a", ""), domain.Skipped("b", "x")}); err != nil {
		t.Errorf("OutcomesErr() = %v, want nil", err)
	}
	err := OutcomesErr([]domain.ActionOutcome{domain.Failed("a", ErrTargetNotConfigured), domain.Applied("b", "")})
	if !errors.Is(err, ErrTargetNotConfigured) {
		t.Errorf("OutcomesErr() = %v, want wrapping ErrTargetNotConfigured", err)
	}
}
