package lore

import "fmt"

// TransportError is a network-level failure: a timeout, a reset connection
// or a server-side (5xx) status. Transport errors are retried a bounded
// number of times before being surfaced.
type TransportError struct {
	Op     string
	URL    string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("lore %s: %s: status %d", e.Op, e.URL, e.Status)
	}
	return fmt.Sprintf("lore %s: %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError means the archive answered with something that is not the
// expected document. It is never retried.
type ProtocolError struct {
	Op     string
	URL    string
	Status int
	Err    error
}

func (e *ProtocolError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("lore %s: %s: status %d: %v", e.Op, e.URL, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("lore %s: %s: unexpected status %d", e.Op, e.URL, e.Status)
	default:
		return fmt.Sprintf("lore %s: %s: %v", e.Op, e.URL, e.Err)
	}
}

func (e *ProtocolError) Unwrap() error { return e.Err }
