package app

import "sync"

// Ticket identifies one asynchronous request within a scope, such as the
// feed view or the detail view.
type Ticket struct {
	Scope string
	Seq   uint64
}

// Tracker suppresses stale results. Issuing a ticket for a scope makes
// every earlier ticket of that scope stale; the work behind a stale
// ticket still runs to completion but its result should be dropped.
type Tracker struct {
	mu      sync.Mutex
	seq     uint64
	current map[string]uint64
}

func NewTracker() *Tracker {
	return &Tracker{current: make(map[string]uint64)}
}

// Issue returns a new ticket for scope and makes it the current one.
func (t *Tracker) Issue(scope string) Ticket {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.current[scope] = t.seq
	return Ticket{Scope: scope, Seq: t.seq}
}

// Current reports whether tk is still the latest ticket of its scope.
func (t *Tracker) Current(tk Ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tk.Seq != 0 && t.current[tk.Scope] == tk.Seq
}

// Abandon makes every outstanding ticket of scope stale.
func (t *Tracker) Abandon(scope string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.current, scope)
}
