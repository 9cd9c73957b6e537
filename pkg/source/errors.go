package source

import (
	"errors"
	"fmt"
)

// ErrSourceUnavailable means the channel has no usable credential. The
// orchestrator skips the channel; it never fails the run.
var ErrSourceUnavailable = errors.New("source credentials missing or invalid")

// UpstreamError wraps a vendor API failure: a non-2xx response, a malformed
// payload, or a transport error that survived the retry budget.
type UpstreamError struct {
	Op        string // short description of the call that failed
	Status    int    // HTTP status, 0 for transport errors
	Transient bool   // true for timeouts, 5xx and rate limits
	Err       error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: upstream returned status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: upstream call failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable upstream condition.
func IsTransient(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Transient
}
