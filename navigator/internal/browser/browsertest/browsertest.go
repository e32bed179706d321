// Package browsertest provides scriptable in-memory implementations of the
// browser interfaces for tests.
package browsertest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Davasny/n8n-helpers/navigator/internal/browser"
)

// ErrTimeout is the error carried by scripted timeout outcomes.
var ErrTimeout = errors.New("browsertest: navigation timeout")

// Success, Timeout and Failed build scripted navigation outcomes.
func Success() browser.NavResult { return browser.NavResult{Outcome: browser.OutcomeSuccess} }

func Timeout() browser.NavResult {
	return browser.NavResult{Outcome: browser.OutcomeTimeout, Err: ErrTimeout}
}

func Failed(err error) browser.NavResult {
	return browser.NavResult{Outcome: browser.OutcomeFailed, Err: err}
}

// Engine hands out a fresh Browser and Page per Connect.
type Engine struct {
	// ConnectErr makes Connect fail.
	ConnectErr error
	// ConnectDelay holds Connect back, to exercise concurrent acquisition.
	ConnectDelay time.Duration
	// NewPage customises each page; n counts from 1. Nil yields NewPage().
	NewPage func(n int) *Page

	mu       sync.Mutex
	connects int
	browsers []*Browser
	pages    []*Page
	lastOpts browser.LaunchOptions
}

func (e *Engine) Connect(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, browser.Page, error) {
	if e.ConnectDelay > 0 {
		select {
		case <-time.After(e.ConnectDelay):
		case <-ctx.Done():
			return nil, nil, &browser.ConnectionError{Err: ctx.Err()}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.connects++
	e.lastOpts = opts
	if e.ConnectErr != nil {
		return nil, nil, &browser.ConnectionError{Remote: opts.RemoteURL, Err: e.ConnectErr}
	}
	p := NewPage()
	if e.NewPage != nil {
		p = e.NewPage(e.connects)
	}
	b := &Browser{}
	e.browsers = append(e.browsers, b)
	e.pages = append(e.pages, p)
	return b, p, nil
}

// Connects returns the number of Connect calls.
func (e *Engine) Connects() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connects
}

// Page returns the i-th page handed out (0-based).
func (e *Engine) Page(i int) *Page {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pages[i]
}

// Browser returns the i-th browser handed out (0-based).
func (e *Engine) Browser(i int) *Browser {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.browsers[i]
}

// LastOptions returns the options of the most recent Connect.
func (e *Engine) LastOptions() browser.LaunchOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastOpts
}

// Browser records Close calls.
type Browser struct {
	CloseErr error

	mu     sync.Mutex
	closes int
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	return b.CloseErr
}

func (b *Browser) Closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes
}

// Page replays scripted behaviour. Fields must be set before use.
type Page struct {
	// Outcomes are consumed one per Goto; the last one repeats. Empty means
	// success.
	Outcomes []browser.NavResult
	// GotoFunc overrides Outcomes entirely.
	GotoFunc func(ctx context.Context, url string, timeout time.Duration) browser.NavResult

	HTML       string
	ContentErr error

	State      string
	StateErr   error
	StateDelay time.Duration

	// CurrentURL is reported by URL. Empty reports the last Goto target.
	CurrentURL string

	Shot    []byte
	ShotErr error

	UAErr    error
	CloseErr error

	mu         sync.Mutex
	gotos      []string
	timeouts   []time.Duration
	userAgents []string
	shots      int
	closes     int
}

// NewPage returns a page that navigates successfully, reports a complete
// document and renders a tiny PNG.
func NewPage() *Page {
	return &Page{
		HTML:  "<html><head><title>ok</title></head><body>ok</body></html>",
		State: "complete",
		Shot:  []byte("\x89PNG\r\n\x1a\nfake"),
	}
}

func (p *Page) Goto(ctx context.Context, url string, timeout time.Duration) browser.NavResult {
	p.mu.Lock()
	n := len(p.gotos)
	p.gotos = append(p.gotos, url)
	p.timeouts = append(p.timeouts, timeout)
	fn := p.GotoFunc
	var res browser.NavResult
	switch {
	case fn != nil:
	case len(p.Outcomes) == 0:
		res = Success()
	case n < len(p.Outcomes):
		res = p.Outcomes[n]
	default:
		res = p.Outcomes[len(p.Outcomes)-1]
	}
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, url, timeout)
	}
	return res
}

func (p *Page) Content(ctx context.Context) (string, error) {
	if p.ContentErr != nil {
		return "", p.ContentErr
	}
	return p.HTML, nil
}

func (p *Page) ReadyState(ctx context.Context) (string, error) {
	if p.StateDelay > 0 {
		select {
		case <-time.After(p.StateDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if p.StateErr != nil {
		return "", p.StateErr
	}
	return p.State, nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CurrentURL != "" {
		return p.CurrentURL, nil
	}
	if len(p.gotos) == 0 {
		return "about:blank", nil
	}
	return p.gotos[len(p.gotos)-1], nil
}

func (p *Page) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	p.mu.Lock()
	p.shots++
	p.mu.Unlock()
	if p.ShotErr != nil {
		return nil, p.ShotErr
	}
	return p.Shot, nil
}

func (p *Page) SetUserAgent(ctx context.Context, ua string) error {
	p.mu.Lock()
	p.userAgents = append(p.userAgents, ua)
	p.mu.Unlock()
	return p.UAErr
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return p.CloseErr
}

// Gotos returns the navigated URLs in order.
func (p *Page) Gotos() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.gotos...)
}

// Timeouts returns the per-attempt timeouts passed to Goto.
func (p *Page) Timeouts() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.timeouts...)
}

func (p *Page) UserAgents() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.userAgents...)
}

func (p *Page) Screenshots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shots
}

func (p *Page) Closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}
