// Package navigator is the managed browser navigation service: it owns the
// shared browser session, drives navigations with retries and a readiness
// fallback, and keeps diagnostic screenshots of failed visits.
//
// Usage:
//
//	svc, err := navigator.New(cfg, navigator.WithLogger(logger))
//	defer svc.Close()
//	svc.RegisterHTTP(r)        // GET /goto, /goto/screenshots, ...
//	svc.RegisterMCP(mcpServer) // goto, list_screenshots
package navigator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Davasny/n8n-helpers/article"
	"github.com/Davasny/n8n-helpers/guard"
	"github.com/Davasny/n8n-helpers/idgen"
	"github.com/Davasny/n8n-helpers/kit"
	"github.com/Davasny/n8n-helpers/navigator/internal/browser"
	"github.com/Davasny/n8n-helpers/navigator/internal/nav"
	"github.com/Davasny/n8n-helpers/navigator/internal/session"
	"github.com/Davasny/n8n-helpers/navigator/internal/shots"
	"github.com/Davasny/n8n-helpers/observability"
	"github.com/Davasny/n8n-helpers/shield"
)

// Output formats for Goto.
const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
)

// ErrInvalidFormat is returned for an unknown output format.
var ErrInvalidFormat = errors.New("navigator: format must be html or markdown")

// GotoRequest asks for the content of URL.
type GotoRequest struct {
	URL    string `json:"url"`
	Format string `json:"format,omitempty"`
}

// GotoResponse is the body of a successful /goto.
type GotoResponse struct {
	PageContent string `json:"pageContent"`
}

// Failure wraps an error raised after a browser session was obtained.
// ScreenshotID names the diagnostic capture; it is empty when the capture
// itself failed.
type Failure struct {
	Err          error
	ScreenshotID string
}

func (f *Failure) Error() string { return f.Err.Error() }
func (f *Failure) Unwrap() error { return f.Err }

// Service is the navigation service.
type Service struct {
	cfg      *Config
	log      *slog.Logger
	policy   *guard.HostPolicy
	sessions *session.Manager
	nav      *nav.Navigator
	shots    *shots.Store
	index    *shots.Index
	limiter  *shield.RateLimiter
	stopGC   chan struct{}

	closeOnce sync.Once
}

type options struct {
	engine   browser.Engine
	metrics  *observability.Metrics
	logger   *slog.Logger
	resolver guard.Resolver
	now      func() time.Time
	ids      idgen.Generator
}

// Option configures New.
type Option func(*options)

// WithEngine replaces the go-rod engine.
func WithEngine(e browser.Engine) Option { return func(o *options) { o.engine = e } }

func WithMetrics(m *observability.Metrics) Option { return func(o *options) { o.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithResolver replaces the DNS resolver used by the private-address check.
func WithResolver(r guard.Resolver) Option { return func(o *options) { o.resolver = r } }

// WithClock replaces time.Now for session deadlines and capture timestamps.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithSessionIDs replaces the session id generator.
func WithSessionIDs(gen idgen.Generator) Option { return func(o *options) { o.ids = gen } }

// New builds the service. Nothing is launched until the first Goto.
func New(cfg *Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	if o.engine == nil {
		o.engine = browser.NewRodEngine()
	}

	policy, err := guard.NewHostPolicy(cfg.Targets.AllowedHosts, cfg.Targets.BlockPrivate)
	if err != nil {
		return nil, err
	}
	if o.resolver != nil {
		policy.WithResolver(o.resolver)
	}

	sessOpts := []session.Option{session.WithLogger(o.logger), session.WithMetrics(o.metrics)}
	if o.now != nil {
		sessOpts = append(sessOpts, session.WithClock(o.now))
	}
	if o.ids != nil {
		sessOpts = append(sessOpts, session.WithIDGenerator(o.ids))
	}
	sessions := session.NewManager(o.engine, session.Config{
		Launch: browser.LaunchOptions{
			Headless:         cfg.Browser.Headless(),
			RemoteURL:        cfg.Browser.Remote,
			Bin:              cfg.Browser.Bin,
			Stealth:          cfg.Browser.Stealth,
			IgnoreCertErrors: cfg.Browser.IgnoreCertErrors,
			XVFB:             cfg.Browser.XVFB,
			ResourceBlocking: cfg.Browser.ResourceBlocking,
			IdleWindow:       cfg.Navigation.IdleWindow,
			Logger:           o.logger,
		},
		IdleTimeout: cfg.Session.IdleTimeout,
		UserAgent:   cfg.Browser.UserAgent,
	}, sessOpts...)

	s := &Service{
		cfg:      cfg,
		log:      o.logger,
		policy:   policy,
		sessions: sessions,
		nav: nav.New(nav.Options{
			MaxTries:          cfg.Navigation.MaxTries,
			AttemptTimeout:    cfg.Navigation.AttemptTimeout,
			ReadyStateTimeout: cfg.Navigation.ReadyStateTimeout,
			Fallback:          nav.Fallback(cfg.Navigation.Fallback),
		}, nav.WithLogger(o.logger), nav.WithMetrics(o.metrics)),
		stopGC: make(chan struct{}),
	}

	storeOpts := []shots.Option{shots.WithLogger(o.logger), shots.WithMetrics(o.metrics)}
	if o.now != nil {
		storeOpts = append(storeOpts, shots.WithClock(o.now))
	}
	if cfg.Screenshots.IndexDB != "" {
		ix, err := shots.OpenIndex(cfg.Screenshots.IndexDB)
		if err != nil {
			return nil, fmt.Errorf("navigator: screenshot index: %w", err)
		}
		s.index = ix
		storeOpts = append(storeOpts, shots.WithIndex(ix))
	}
	s.shots = shots.NewStore(cfg.Screenshots.Dir, storeOpts...)

	if cfg.RateLimit.GotoRPS > 0 {
		s.limiter = shield.NewRateLimiter(cfg.RateLimit.GotoRPS, cfg.RateLimit.Burst)
		s.limiter.TrustProxy = cfg.RateLimit.TrustProxy
		s.limiter.StartGC(s.stopGC, time.Minute, 10*time.Minute)
	}
	return s, nil
}

// Goto navigates the shared page to req.URL and returns the document.
//
// On a navigation failure a full-page screenshot is captured, the session is
// torn down and a *Failure is returned. A failure caused by the caller going
// away skips both and returns the context error. Under the per_request policy the
// session is also torn down after a success.
func (s *Service) Goto(ctx context.Context, req GotoRequest) (*GotoResponse, error) {
	u, err := s.policy.Check(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	format, err := parseFormat(req.Format)
	if err != nil {
		return nil, err
	}
	target := u.String()
	log := s.logFor(ctx).With("url", target)

	sess, err := s.acquire(ctx)
	if err != nil {
		log.Error("goto: no browser session", "error", err)
		return nil, err
	}
	defer s.sessions.Release(sess)
	defer sess.Unlock()

	res, err := s.nav.Navigate(ctx, sess, target)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			// The caller left; the session is still healthy for the next one.
			log.Warn("goto: caller gone", "error", err)
			return nil, fmt.Errorf("goto: %w", cerr)
		}
		id := s.captureFailure(ctx, sess, target)
		sess.Shutdown(session.ReasonFailure)
		log.Error("goto: navigation failed", "error", err, "screenshot_id", id)
		return nil, &Failure{Err: err, ScreenshotID: id}
	}
	if s.cfg.Session.Policy == PolicyPerRequest {
		sess.Shutdown(session.ReasonPerRequest)
	}
	log.Info("goto: done", "attempts", res.Attempts, "degraded", res.Degraded, "final_url", res.FinalURL)

	content := res.Content
	if format == FormatMarkdown {
		base := res.FinalURL
		if base == "" {
			base = target
		}
		if content, err = article.Markdown(res.Content, base); err != nil {
			return nil, err
		}
	}
	return &GotoResponse{PageContent: content}, nil
}

// acquire returns the live session with its page lock held. A session
// retired while this caller waited for the lock is released and replaced, as
// often as it takes; only ctx bounds the wait.
func (s *Service) acquire(ctx context.Context) (*session.Session, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sess, err := s.sessions.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		if err := sess.Lock(ctx); err != nil {
			s.sessions.Release(sess)
			return nil, err
		}
		if s.sessions.Current() == sess {
			return sess, nil
		}
		sess.Unlock()
		s.sessions.Release(sess)
	}
}

// captureFailure screenshots the page on a context detached from the
// request so a cancelled caller still leaves evidence.
func (s *Service) captureFailure(ctx context.Context, sess *session.Session, url string) string {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Screenshots.CaptureTimeout)
	defer cancel()
	return s.shots.Capture(cctx, sess.Page(), url)
}

// Screenshots lists stored screenshot ids, oldest first.
func (s *Service) Screenshots() ([]string, error) { return s.shots.List() }

// Screenshot returns the PNG bytes of id.
func (s *Service) Screenshot(id string) ([]byte, error) { return s.shots.Get(id) }

// ScreenshotMeta returns the indexed metadata of id.
func (s *Service) ScreenshotMeta(ctx context.Context, id string) (*shots.Meta, error) {
	return s.shots.Meta(ctx, id)
}

// SessionStats reports the shared session state.
func (s *Service) SessionStats() session.Stats { return s.sessions.Stats() }

// Close shuts the browser session down and releases the index.
func (s *Service) Close() error {
	s.closeOnce.Do(func() { close(s.stopGC) })
	s.sessions.Close()
	if s.index != nil {
		return s.index.Close()
	}
	return nil
}

// logFor prefers the per-request HTTP logger. Other transports get the
// service logger tagged with the transport and trace id from the context.
func (s *Service) logFor(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(shield.LoggerKey).(*slog.Logger); ok {
		return l
	}
	l := s.log.With("transport", kit.GetTransport(ctx))
	if id := kit.GetTraceID(ctx); id != "" {
		l = l.With("trace_id", id)
	}
	return l
}

func parseFormat(f string) (string, error) {
	switch f {
	case "", FormatHTML:
		return FormatHTML, nil
	case FormatMarkdown:
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFormat, f)
}
