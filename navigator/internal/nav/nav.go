// Package nav loads a URL in a browser session with bounded retries and an
// optional degraded acceptance when the network never goes idle.
package nav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Davasny/n8n-helpers/navigator/internal/browser"
	"github.com/Davasny/n8n-helpers/observability"
)

// Fallback decides what happens when the final attempt times out.
type Fallback string

const (
	// FallbackSoft accepts the page when document.readyState is interactive
	// or complete and the page left about:blank.
	FallbackSoft Fallback = "soft"
	// FallbackHard always reports the timeout.
	FallbackHard Fallback = "hard"
)

const blankURL = "about:blank"

// Session is what Navigate needs from a browser session.
type Session interface {
	Page() browser.Page
	Touch()
}

// Options bounds a navigation.
type Options struct {
	MaxTries          int
	AttemptTimeout    time.Duration
	ReadyStateTimeout time.Duration
	Fallback          Fallback
}

func (o *Options) defaults() {
	if o.MaxTries <= 0 {
		o.MaxTries = 3
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = 10 * time.Second
	}
	if o.ReadyStateTimeout <= 0 {
		o.ReadyStateTimeout = 5 * time.Second
	}
	if o.Fallback == "" {
		o.Fallback = FallbackSoft
	}
}

// Result is a loaded page.
type Result struct {
	Content  string
	Attempts int
	// Degraded is set when the page was accepted by the readiness fallback.
	Degraded   bool
	ReadyState string
	FinalURL   string
}

// Navigator runs navigations. It is safe for concurrent use; callers
// serialise access to a shared page themselves.
type Navigator struct {
	opts    Options
	log     *slog.Logger
	metrics *observability.Metrics
}

type Option func(*Navigator)

func WithLogger(l *slog.Logger) Option { return func(n *Navigator) { n.log = l } }

func WithMetrics(m *observability.Metrics) Option { return func(n *Navigator) { n.metrics = m } }

func New(opts Options, o ...Option) *Navigator {
	opts.defaults()
	n := &Navigator{opts: opts, log: slog.Default()}
	for _, fn := range o {
		fn(n)
	}
	return n
}

// Options returns the effective options.
func (n *Navigator) Options() Options { return n.opts }

// Navigate loads url in the session's page.
//
// Each attempt waits for network idle up to AttemptTimeout. A timeout before
// the last attempt retries at once. Any other failure aborts with *Error. A
// timeout on the last attempt returns *TimeoutError unless the soft fallback
// accepts the page. On success the document content is read and the session
// touched exactly once.
func (n *Navigator) Navigate(ctx context.Context, sess Session, url string) (*Result, error) {
	start := time.Now()
	res, err := n.navigate(ctx, sess, url)
	result := "ok"
	switch {
	case err != nil:
		result = "error"
		var te *TimeoutError
		if errors.As(err, &te) {
			result = "timeout"
		}
	case res.Degraded:
		result = "degraded"
	}
	n.metrics.NavFinished(result, time.Since(start))
	return res, err
}

func (n *Navigator) navigate(ctx context.Context, sess Session, url string) (*Result, error) {
	page := sess.Page()
	maxTries := n.opts.MaxTries

	for attempt := 1; attempt <= maxTries; attempt++ {
		r := page.Goto(ctx, url, n.opts.AttemptTimeout)
		n.metrics.NavAttempt(r.Outcome.String())

		switch r.Outcome {
		case browser.OutcomeSuccess:
			return n.finish(ctx, sess, url, &Result{Attempts: attempt})

		case browser.OutcomeTimeout:
			if attempt < maxTries {
				n.log.Warn("nav: attempt timed out, retrying",
					"url", url, "attempt", attempt, "max_tries", maxTries, "timeout", n.opts.AttemptTimeout)
				continue
			}
			terr := &TimeoutError{URL: url, Attempts: attempt, Timeout: n.opts.AttemptTimeout, Err: r.Err}
			if n.opts.Fallback != FallbackSoft {
				n.log.Warn("nav: timed out", "url", url, "attempts", attempt)
				return nil, terr
			}
			state, finalURL, ferr := n.checkReady(ctx, page)
			if ferr != nil {
				terr.Fallback = ferr
				n.log.Warn("nav: timed out, fallback rejected", "url", url, "attempts", attempt, "reason", ferr)
				return nil, terr
			}
			n.log.Info("nav: accepted after timeout", "url", url, "ready_state", state, "final_url", finalURL)
			return n.finish(ctx, sess, url, &Result{
				Attempts:   attempt,
				Degraded:   true,
				ReadyState: state,
				FinalURL:   finalURL,
			})

		default:
			n.log.Warn("nav: attempt failed", "url", url, "attempt", attempt, "error", r.Err)
			return nil, &Error{URL: url, Attempt: attempt, Err: r.Err}
		}
	}
	// Unreachable with MaxTries >= 1.
	return nil, &TimeoutError{URL: url, Attempts: maxTries, Timeout: n.opts.AttemptTimeout}
}

type readyResult struct {
	state string
	err   error
}

// checkReady races the document state against ReadyStateTimeout. The
// evaluation runs in its own goroutine so a page that ignores ctx cannot
// stall the request.
func (n *Navigator) checkReady(ctx context.Context, page browser.Page) (string, string, error) {
	rctx, cancel := context.WithTimeout(ctx, n.opts.ReadyStateTimeout)
	defer cancel()

	ch := make(chan readyResult, 1)
	go func() {
		s, err := page.ReadyState(rctx)
		ch <- readyResult{s, err}
	}()

	var state string
	select {
	case <-rctx.Done():
		return "", "", ErrReadinessTimeout
	case r := <-ch:
		if r.err != nil {
			if rctx.Err() != nil {
				return "", "", ErrReadinessTimeout
			}
			return "", "", fmt.Errorf("nav: read ready state: %w", r.err)
		}
		state = r.state
	}

	if state != "interactive" && state != "complete" {
		return state, "", fmt.Errorf("%w: readyState %q", ErrNotReady, state)
	}
	current, err := page.URL(rctx)
	if err != nil {
		return state, "", fmt.Errorf("nav: read url: %w", err)
	}
	if current == "" || current == blankURL {
		return state, current, ErrBlankPage
	}
	return state, current, nil
}

func (n *Navigator) finish(ctx context.Context, sess Session, url string, res *Result) (*Result, error) {
	page := sess.Page()
	content, err := page.Content(ctx)
	if err != nil {
		return nil, &Error{URL: url, Attempt: res.Attempts, Err: fmt.Errorf("read content: %w", err)}
	}
	res.Content = content
	if res.FinalURL == "" {
		if u, err := page.URL(ctx); err == nil {
			res.FinalURL = u
		}
	}
	sess.Touch()
	return res, nil
}
