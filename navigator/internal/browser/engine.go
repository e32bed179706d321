// Package browser abstracts the headless browser behind small interfaces so
// the session and navigation layers can be driven by go-rod in production and
// by scripted fakes in tests.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Outcome classifies a single navigation attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTimeout
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// NavResult is the tagged result of Page.Goto. Err is nil on success.
type NavResult struct {
	Outcome Outcome
	Err     error
}

// Page is one browser tab.
type Page interface {
	// Goto navigates to url and waits for the network to go idle, bounded by
	// timeout. Expiry of that bound yields OutcomeTimeout; anything else that
	// goes wrong yields OutcomeFailed.
	Goto(ctx context.Context, url string, timeout time.Duration) NavResult
	Content(ctx context.Context) (string, error)
	ReadyState(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	SetUserAgent(ctx context.Context, ua string) error
	Close() error
}

// Browser is a connected browser process or remote endpoint.
type Browser interface {
	Close() error
}

// Engine opens a browser and its single page.
type Engine interface {
	Connect(ctx context.Context, opts LaunchOptions) (Browser, Page, error)
}

// LaunchOptions configures Engine.Connect.
type LaunchOptions struct {
	Headless bool
	// RemoteURL is the WebSocket URL of an external Chrome. Empty launches
	// a local one.
	RemoteURL string
	// Bin overrides the Chrome binary used for local launches.
	Bin              string
	Stealth          bool
	IgnoreCertErrors bool
	// XVFB runs a headful local Chrome inside a virtual display (xvfb-run).
	XVFB bool
	// ResourceBlocking lists resource kinds to fail: images, fonts, media,
	// stylesheets.
	ResourceBlocking []string
	// IdleWindow is how long the network must stay quiet for a navigation to
	// count as settled. Default: 500ms.
	IdleWindow time.Duration
	Logger     *slog.Logger
}

func (o *LaunchOptions) defaults() {
	if o.IdleWindow <= 0 {
		o.IdleWindow = 500 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// ConnectionError reports that the browser could not be launched or reached.
type ConnectionError struct {
	Remote string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Remote != "" {
		return fmt.Sprintf("browser: connect %s: %v", e.Remote, e.Err)
	}
	return fmt.Sprintf("browser: launch: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
