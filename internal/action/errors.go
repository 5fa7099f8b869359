package action

import (
	"errors"
	"fmt"
)

var (
	// ErrTargetNotConfigured means a target name is absent from the config
	// registry or has no path.
	ErrTargetNotConfigured = errors.New("target not configured")

	// ErrAlreadyTagged is the skip reason for a message that already
	// carries the requested (tag, identity) pair.
	ErrAlreadyTagged = errors.New("already tagged")
)

// ToolError reports a missing or failing external tool. Missing is set
// when the tool could not be found at all, before anything was invoked.
type ToolError struct {
	Tool    string
	Missing bool
	Detail  string
	Err     error
}

func (e *ToolError) Error() string {
	if e.Missing {
		if e.Err != nil {
			return fmt.Sprintf("%s is not available: %v", e.Tool, e.Err)
		}
		return fmt.Sprintf("%s is not available", e.Tool)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s failed: %s", e.Tool, e.Detail)
	}
	return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// IsToolMissing reports whether err is a ToolError for a tool that is not
// installed.
func IsToolMissing(err error) bool {
	var te *ToolError
	return errors.As(err, &te) && te.Missing
}
