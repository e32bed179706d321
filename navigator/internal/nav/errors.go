package nav

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrReadinessTimeout means the document state could not be read in time.
	// The result is treated as not ready.
	ErrReadinessTimeout = errors.New("nav: readiness check timed out")
	// ErrNotReady means the document is still loading.
	ErrNotReady = errors.New("nav: document not ready")
	// ErrBlankPage means the page never left about:blank.
	ErrBlankPage = errors.New("nav: page is still about:blank")
)

// TimeoutError reports that every attempt hit its timeout and the fallback,
// if any, did not accept the page.
type TimeoutError struct {
	URL      string
	Attempts int
	Timeout  time.Duration
	Err      error // last attempt error
	Fallback error // why the readiness fallback rejected, nil when not tried
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("nav: %s: timed out after %d attempt(s) of %s", e.URL, e.Attempts, e.Timeout)
	if e.Fallback != nil {
		msg += ": " + e.Fallback.Error()
	}
	return msg
}

func (e *TimeoutError) Unwrap() []error {
	var errs []error
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Fallback != nil {
		errs = append(errs, e.Fallback)
	}
	return errs
}

// Error reports a navigation failure other than a timeout. It aborts the
// retry loop immediately.
type Error struct {
	URL     string
	Attempt int
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("nav: %s: attempt %d: %v", e.URL, e.Attempt, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
