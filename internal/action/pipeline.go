package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lu-zhengda/loreterm/internal/domain"
)

// TargetRegistry resolves configured target trees.
type TargetRegistry interface {
	Target(name string) (domain.TreeTarget, bool)
	AllTargets() []domain.TreeTarget
}

// ReviewLog remembers tags sent from this machine.
type ReviewLog interface {
	Has(messageID string, kind domain.TagKind, identity string) bool
	Record(messageID string, kind domain.TagKind, identity string) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithParallelism sets how many targets are applied concurrently.
func WithParallelism(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.parallelism = n
		}
	}
}

func WithReviewLog(log ReviewLog) Option {
	return func(p *Pipeline) {
		p.reviews = log
	}
}

// Pipeline runs the apply and reply actions. Every action yields one
// outcome per target or message; a failure never stops its siblings.
type Pipeline struct {
	applier     Applier
	mailer      Mailer
	reviews     ReviewLog
	logger      *slog.Logger
	parallelism int
}

func NewPipeline(applier Applier, mailer Mailer, opts ...Option) *Pipeline {
	p := &Pipeline{
		applier:     applier,
		mailer:      mailer,
		logger:      slog.New(slog.DiscardHandler),
		parallelism: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply applies the patches of ps, in series order, to every target.
// Outcomes are returned in the order of targets.
func (p *Pipeline) Apply(ctx context.Context, ps *domain.Patchset, targets []domain.TreeTarget) []domain.ActionOutcome {
	outcomes := make([]domain.ActionOutcome, len(targets))
	if len(targets) == 0 {
		return outcomes
	}

	patches := ps.Patches()
	if len(patches) == 0 {
		for i, t := range targets {
			outcomes[i] = domain.Skipped(t.Name, "series has no patches")
		}
		return outcomes
	}
	raw := make([][]byte, len(patches))
	for i, m := range patches {
		raw[i] = m.Raw
	}

	if err := p.applier.Available(); err != nil {
		for i, t := range targets {
			outcomes[i] = domain.Failed(t.Name, err)
		}
		p.logger.Error("apply tool missing", "patchset", ps.MessageID, "error", err)
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(p.parallelism)
	for i, t := range targets {
		g.Go(func() error {
			outcomes[i] = p.applyOne(ctx, t, raw)
			return nil
		})
	}
	g.Wait()

	for _, o := range outcomes {
		p.logger.Info("apply outcome", "patchset", ps.MessageID, "target", o.Subject, "kind", o.Kind.String(), "detail", o.Detail, "error", o.Err)
	}
	return outcomes
}

func (p *Pipeline) applyOne(ctx context.Context, t domain.TreeTarget, raw [][]byte) domain.ActionOutcome {
	if t.Path == "" {
		return domain.Failed(t.Name, fmt.Errorf("%w: %s has no path", ErrTargetNotConfigured, t.Name))
	}
	if err := ctx.Err(); err != nil {
		return domain.Failed(t.Name, err)
	}
	res, err := p.applier.Apply(ctx, t, raw)
	if err != nil {
		return domain.Failed(t.Name, err)
	}
	if len(res.Conflicts) > 0 {
		return domain.AppliedWithConflicts(t.Name, "unmerged: "+strings.Join(res.Conflicts, ", "))
	}
	return domain.Applied(t.Name, fmt.Sprintf("%d patches applied", len(raw)))
}

// ApplyNamed resolves target names through reg before anything is run,
// then applies ps to the resolved targets. Unknown names yield a failed
// outcome wrapping ErrTargetNotConfigured; the other targets still run.
// No names means every configured target.
func (p *Pipeline) ApplyNamed(ctx context.Context, ps *domain.Patchset, reg TargetRegistry, names []string) []domain.ActionOutcome {
	if len(names) == 0 {
		targets := reg.AllTargets()
		if len(targets) == 0 {
			return []domain.ActionOutcome{domain.Failed("targets", fmt.Errorf("%w: no targets configured", ErrTargetNotConfigured))}
		}
		return p.Apply(ctx, ps, targets)
	}

	outcomes := make([]domain.ActionOutcome, len(names))
	var (
		resolved []domain.TreeTarget
		slots    []int
	)
	for i, name := range names {
		t, ok := reg.Target(name)
		if !ok {
			outcomes[i] = domain.Failed(name, fmt.Errorf("%w: %s", ErrTargetNotConfigured, name))
			continue
		}
		resolved = append(resolved, t)
		slots = append(slots, i)
	}
	for j, o := range p.Apply(ctx, ps, resolved) {
		outcomes[slots[j]] = o
	}
	return outcomes
}

// ReplyRequest selects messages of a patchset to answer with a tag.
type ReplyRequest struct {
	Patchset   *domain.Patchset
	MessageIDs []string
	Tag        domain.TagKind
	Identity   string
	// DryRun composes and validates every reply and runs the mail tool
	// in its no-send mode. It must be set explicitly.
	DryRun bool
}

// Reply composes one reply per selected message and hands it to the
// mailer. Messages already carrying the (tag, identity) pair, according
// to the thread or to the review log, are skipped. Outcomes follow the
// order of MessageIDs and carry the composed mail.
func (p *Pipeline) Reply(ctx context.Context, req ReplyRequest) []domain.ActionOutcome {
	outcomes := make([]domain.ActionOutcome, len(req.MessageIDs))
	identity := strings.TrimSpace(req.Identity)

	if _, err := domain.ParseTagKind(string(req.Tag)); err != nil {
		for i, id := range req.MessageIDs {
			outcomes[i] = domain.Failed(id, err)
		}
		return outcomes
	}

	ledger := domain.NewTagLedger(req.Patchset)
	var (
		mailerChecked bool
		mailerErr     error
	)
	for i, id := range req.MessageIDs {
		outcomes[i] = p.replyOne(ctx, req, ledger, id, identity, func() error {
			if !mailerChecked {
				mailerErr, mailerChecked = p.mailer.Available(), true
			}
			return mailerErr
		})
		o := outcomes[i]
		p.logger.Info("reply outcome", "message", id, "tag", string(req.Tag), "dry_run", req.DryRun,
			"kind", o.Kind.String(), "detail", o.Detail, "error", o.Err)
	}
	return outcomes
}

func (p *Pipeline) replyOne(ctx context.Context, req ReplyRequest, ledger *domain.TagLedger, id, identity string, available func() error) domain.ActionOutcome {
	msg, ok := req.Patchset.Message(id)
	if !ok {
		return domain.Failed(id, fmt.Errorf("message %s is not part of patchset %s", id, req.Patchset.MessageID))
	}
	if ledger.Has(id, req.Tag, identity) || (p.reviews != nil && p.reviews.Has(id, req.Tag, identity)) {
		return domain.Skipped(id, ErrAlreadyTagged.Error())
	}

	composed, err := ComposeReply(msg, req.Tag, identity)
	if err != nil {
		return domain.Failed(id, err)
	}
	fail := func(err error) domain.ActionOutcome {
		o := domain.Failed(id, err)
		o.Message = composed
		return o
	}
	if err := available(); err != nil {
		return fail(err)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if err := p.mailer.Send(ctx, composed, req.DryRun); err != nil {
		return fail(err)
	}

	detail := "sent"
	if req.DryRun {
		detail = "dry run"
	} else if p.reviews != nil {
		if err := p.reviews.Record(id, req.Tag, identity); err != nil {
			p.logger.Warn("failed to record review", "message", id, "error", err)
		}
	}
	o := domain.Applied(id, detail)
	o.Message = composed
	return o
}

// OutcomesErr joins the errors of failed outcomes, or returns nil.
func OutcomesErr(outcomes []domain.ActionOutcome) error {
	var errs []error
	for _, o := range outcomes {
		if o.Kind == domain.OutcomeFailed {
			errs = append(errs, fmt.Errorf("%s: %w", o.Subject, o.Err))
		}
	}
	return errors.Join(errs...)
}
