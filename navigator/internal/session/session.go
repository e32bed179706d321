// Package session owns the single shared browser session: lazy creation,
// reuse across requests, idle reclamation and teardown.
//
// Lifecycle:
//
//	absent → initializing → ready → (idle-expired | explicit shutdown | failure) → absent
//
// A session is handed out by Acquire and returned by Release. The idle timer
// only runs while no request holds the session, and fires at the deadline set
// by the most recent Acquire or Touch.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Davasny/n8n-helpers/idgen"
	"github.com/Davasny/n8n-helpers/navigator/internal/browser"
	"github.com/Davasny/n8n-helpers/observability"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("session: manager closed")

// Reason labels why a session was shut down.
type Reason string

const (
	ReasonIdle       Reason = "idle"
	ReasonFailure    Reason = "failure"
	ReasonPerRequest Reason = "per_request"
	ReasonExplicit   Reason = "explicit"
	ReasonClose      Reason = "close"
)

// Config configures a Manager.
type Config struct {
	Launch      browser.LaunchOptions
	IdleTimeout time.Duration
	// UserAgent is applied once to every new session. Empty keeps the
	// browser default.
	UserAgent string
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now for deadline computation.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.log = l } }

func WithMetrics(mt *observability.Metrics) Option { return func(m *Manager) { m.metrics = mt } }

// WithIDGenerator sets the session id generator. Default: "sess_" + UUIDv7.
func WithIDGenerator(gen idgen.Generator) Option { return func(m *Manager) { m.newID = gen } }

// Manager holds at most one live session.
type Manager struct {
	cfg     Config
	engine  browser.Engine
	log     *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
	newID   idgen.Generator
	sf      singleflight.Group

	mu       sync.Mutex
	current  *Session
	creating bool
	closed   bool
}

// NewManager creates a Manager. No browser is started until Acquire.
func NewManager(engine browser.Engine, cfg Config, opts ...Option) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	m := &Manager{
		cfg:    cfg,
		engine: engine,
		log:    slog.Default(),
		now:    time.Now,
		newID:  idgen.Prefixed("sess_", idgen.Default),
	}
	for _, o := range opts {
		o(m)
	}
	if m.cfg.Launch.Logger == nil {
		m.cfg.Launch.Logger = m.log
	}
	return m
}

// Session is a live browser plus its page.
type Session struct {
	id        string
	createdAt time.Time
	browser   browser.Browser
	page      browser.Page
	m         *Manager
	lock      chan struct{}
	once      sync.Once

	// guarded by m.mu
	inflight int
	deadline time.Time
	timer    *time.Timer
	timerSeq uint64
}

func (s *Session) ID() string             { return s.id }
func (s *Session) CreatedAt() time.Time   { return s.createdAt }
func (s *Session) Page() browser.Page     { return s.page }
func (s *Session) Touch()                 { s.m.touch(s) }
func (s *Session) Shutdown(reason Reason) { s.m.Shutdown(s, reason) }

// Lock serialises use of the shared page. It gives up when ctx is done.
func (s *Session) Lock(ctx context.Context) error {
	select {
	case s.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) Unlock() { <-s.lock }

// Acquire returns the current session, creating it if needed, and marks it
// in use until Release. Every use restarts the idle deadline. Concurrent callers share one creation attempt. A
// failed creation installs nothing and returns a *browser.ConnectionError.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrClosed
		}
		if s := m.current; s != nil {
			s.inflight++
			s.deadline = m.now().Add(m.cfg.IdleTimeout)
			m.disarmLocked(s)
			m.mu.Unlock()
			return s, nil
		}
		m.mu.Unlock()

		ch := m.sf.DoChan("session", func() (any, error) { return m.create() })
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-ch:
			if r.Err != nil {
				return nil, r.Err
			}
		}
		// Take the reference under the lock; the new session may already
		// be gone if another caller shut it down.
	}
}

// create connects the browser on a detached context so one caller giving
// up does not abort a creation others are waiting on.
func (m *Manager) create() (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.current != nil {
		s := m.current
		m.mu.Unlock()
		return s, nil
	}
	m.creating = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.creating = false
		m.mu.Unlock()
	}()

	ctx := context.Background()
	start := m.now()
	b, p, err := m.engine.Connect(ctx, m.cfg.Launch)
	if err != nil {
		m.metrics.ConnectFailed()
		m.log.Error("session: connect failed", "remote", m.cfg.Launch.RemoteURL, "error", err)
		var ce *browser.ConnectionError
		if !errors.As(err, &ce) {
			err = &browser.ConnectionError{Remote: m.cfg.Launch.RemoteURL, Err: err}
		}
		return nil, err
	}

	if m.cfg.UserAgent != "" {
		if err := p.SetUserAgent(ctx, m.cfg.UserAgent); err != nil {
			m.metrics.ConnectFailed()
			m.log.Error("session: set user agent failed", "error", err)
			if cerr := closeAll(p, b); cerr != nil {
				m.log.Warn("session: teardown after setup failure", "error", cerr)
			}
			return nil, &browser.ConnectionError{Remote: m.cfg.Launch.RemoteURL, Err: fmt.Errorf("set user agent: %w", err)}
		}
	}

	s := &Session{
		id:        m.newID(),
		createdAt: m.now(),
		browser:   b,
		page:      p,
		m:         m,
		lock:      make(chan struct{}, 1),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if cerr := closeAll(p, b); cerr != nil {
			m.log.Warn("session: teardown after close during setup", "error", cerr)
		}
		return nil, ErrClosed
	}
	m.current = s
	s.deadline = m.now().Add(m.cfg.IdleTimeout)
	m.armLocked(s)
	m.mu.Unlock()

	m.metrics.SessionCreated()
	m.log.Info("session: created", "session_id", s.id, "connect_ms", m.now().Sub(start).Milliseconds())
	return s, nil
}

// Release ends one use of s. When nobody holds it any more the idle timer
// is armed for the remaining time to its deadline.
func (m *Manager) Release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.inflight > 0 {
		s.inflight--
	}
	if s.inflight == 0 && m.current == s {
		m.armLocked(s)
	}
}

// Touch pushes the idle deadline of the current session to now + idle timeout.
func (m *Manager) Touch() {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s != nil {
		m.touch(s)
	}
}

func (m *Manager) touch(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.deadline = m.now().Add(m.cfg.IdleTimeout)
	if s.inflight == 0 && m.current == s {
		m.armLocked(s)
	}
}

// Deadline returns the idle deadline of the current session, or the zero
// time when there is none.
func (m *Manager) Deadline() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return time.Time{}
	}
	return m.current.deadline
}

// Current returns the live session or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) armLocked(s *Session) {
	m.disarmLocked(s)
	seq := s.timerSeq
	d := s.deadline.Sub(m.now())
	if d < 0 {
		d = 0
	}
	s.timer = time.AfterFunc(d, func() { m.expire(s, seq) })
}

func (m *Manager) disarmLocked(s *Session) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerSeq++
}

func (m *Manager) expire(s *Session, seq uint64) {
	m.mu.Lock()
	if s.timerSeq != seq || m.current != s || s.inflight > 0 {
		m.mu.Unlock()
		return
	}
	// Detach under the same lock as the check so no Acquire can pick it up.
	m.current = nil
	m.mu.Unlock()

	m.log.Info("session: idle timeout", "session_id", s.id, "idle_timeout", m.cfg.IdleTimeout)
	m.Shutdown(s, ReasonIdle)
}

// Shutdown tears s down. Repeated calls are no-ops. The manager forgets s
// only if it is still the current session. Page and browser close errors are
// logged, never returned.
func (m *Manager) Shutdown(s *Session, reason Reason) {
	if s == nil {
		return
	}
	s.once.Do(func() {
		m.mu.Lock()
		m.disarmLocked(s)
		if m.current == s {
			m.current = nil
		}
		m.mu.Unlock()

		if err := closeAll(s.page, s.browser); err != nil {
			m.log.Warn("session: teardown errors", "session_id", s.id, "error", err)
		}
		m.metrics.SessionRetired(string(reason))
		m.log.Info("session: shut down", "session_id", s.id, "reason", string(reason),
			"age", m.now().Sub(s.createdAt).Round(time.Millisecond).String())
	})
}

// Close shuts the current session down and refuses further Acquire calls.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	s := m.current
	m.mu.Unlock()
	m.Shutdown(s, ReasonClose)
}

// closeAll closes the page and then the browser, attempting both.
func closeAll(p browser.Page, b browser.Browser) error {
	var errs []error
	if p != nil {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close page: %w", err))
		}
	}
	if b != nil {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	return errors.Join(errs...)
}
