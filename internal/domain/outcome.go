package domain

import "fmt"

// OutcomeKind tags the variant of an ActionOutcome.
type OutcomeKind int

const (
	OutcomeApplied OutcomeKind = iota
	OutcomeAppliedWithConflicts
	OutcomeSkipped
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeApplied:
		return "applied"
	case OutcomeAppliedWithConflicts:
		return "conflicts"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ActionOutcome is the result of one action against one target tree or one
// message. Subject names that target or message. Detail holds the conflict
// description or skip reason; Err is set only for OutcomeFailed.
type ActionOutcome struct {
	Subject string
	Kind    OutcomeKind
	Detail  string
	Err     error
	// Message is the composed mail for reply outcomes.
	Message []byte
}

func Applied(subject, detail string) ActionOutcome {
	return ActionOutcome{Subject: subject, Kind: OutcomeApplied, Detail: detail}
}

func AppliedWithConflicts(subject, detail string) ActionOutcome {
	return ActionOutcome{Subject: subject, Kind: OutcomeAppliedWithConflicts, Detail: detail}
}

func Skipped(subject, reason string) ActionOutcome {
	return ActionOutcome{Subject: subject, Kind: OutcomeSkipped, Detail: reason}
}

func Failed(subject string, err error) ActionOutcome {
	return ActionOutcome{Subject: subject, Kind: OutcomeFailed, Err: err}
}

// OK reports whether the action took effect, possibly with conflicts.
func (o ActionOutcome) OK() bool {
	return o.Kind == OutcomeApplied || o.Kind == OutcomeAppliedWithConflicts
}

func (o ActionOutcome) String() string {
	switch o.Kind {
	case OutcomeFailed:
		return fmt.Sprintf("%s: failed: %v", o.Subject, o.Err)
	case OutcomeApplied:
		if o.Detail == "" {
			return o.Subject + ": applied"
		}
		return fmt.Sprintf("%s: %s", o.Subject, o.Detail)
	default:
		return fmt.Sprintf("%s: %s: %s", o.Subject, o.Kind, o.Detail)
	}
}
