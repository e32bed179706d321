package nav

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Davasny/n8n-helpers/navigator/internal/browser"
	"github.com/Davasny/n8n-helpers/navigator/internal/browser/browsertest"
)

type fakeSession struct {
	page    *browsertest.Page
	touches int
}

func (s *fakeSession) Page() browser.Page { return s.page }
func (s *fakeSession) Touch()             { s.touches++ }

func newNavigator(fallback Fallback) *Navigator {
	return New(Options{
		MaxTries:          3,
		AttemptTimeout:    7 * time.Second,
		ReadyStateTimeout: 50 * time.Millisecond,
		Fallback:          fallback,
	}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func session(outcomes ...browser.NavResult) *fakeSession {
	p := browsertest.NewPage()
	p.Outcomes = outcomes
	return &fakeSession{page: p}
}

const target = "https://example.com/"

func TestNavigate_FirstAttempt(t *testing.T) {
	s := session()
	res, err := newNavigator(FallbackSoft).Navigate(context.Background(), s, target)
	if err != nil {
		t.Fatal(err)
	}
	if res.Attempts != 1 || res.Degraded {
		t.Fatalf("result: got %+v", res)
	}
	if res.Content != s.page.HTML {
		t.Fatalf("content: got %q", res.Content)
	}
	if res.FinalURL != target {
		t.Fatalf("final url: got %q, want %q", res.FinalURL, target)
	}
	if s.touches != 1 {
		t.Fatalf("touches: got %d, want 1", s.touches)
	}
	if got := s.page.Timeouts(); len(got) != 1 || got[0] != 7*time.Second {
		t.Fatalf("attempt timeouts: got %v", got)
	}
}

func TestNavigate_RetriesTimeouts(t *testing.T) {
	s := session(browsertest.Timeout(), browsertest.Timeout(), browsertest.Success())
	res, err := newNavigator(FallbackHard).Navigate(context.Background(), s, target)
	if err != nil {
		t.Fatal(err)
	}
	if res.Attempts != 3 {
		t.Fatalf("attempts: got %d, want 3", res.Attempts)
	}
	if got := len(s.page.Gotos()); got != 3 {
		t.Fatalf("gotos: got %d, want 3", got)
	}
	if s.touches != 1 {
		t.Fatalf("touches: got %d, want 1", s.touches)
	}
}

func TestNavigate_HardFallbackNeverExceedsMaxTries(t *testing.T) {
	s := session(browsertest.Timeout())
	_, err := newNavigator(FallbackHard).Navigate(context.Background(), s, target)

	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("err: got %v, want TimeoutError", err)
	}
	if te.Attempts != 3 || te.Fallback != nil {
		t.Fatalf("timeout error: got %+v", te)
	}
	if !errors.Is(err, browsertest.ErrTimeout) {
		t.Fatal("TimeoutError must unwrap the attempt error")
	}
	if got := len(s.page.Gotos()); got != 3 {
		t.Fatalf("gotos: got %d, want 3", got)
	}
	if s.touches != 0 {
		t.Fatalf("touches: got %d, want 0", s.touches)
	}
}

func TestNavigate_NonTimeoutAbortsImmediately(t *testing.T) {
	boom := errors.New("net::ERR_NAME_NOT_RESOLVED")
	s := session(browsertest.Failed(boom))
	_, err := newNavigator(FallbackSoft).Navigate(context.Background(), s, target)

	var ne *Error
	if !errors.As(err, &ne) {
		t.Fatalf("err: got %v, want *Error", err)
	}
	if ne.Attempt != 1 || !errors.Is(err, boom) {
		t.Fatalf("error: got %+v", ne)
	}
	if got := len(s.page.Gotos()); got != 1 {
		t.Fatalf("gotos: got %d, want 1", got)
	}
}

func TestNavigate_FailureAfterTimeout(t *testing.T) {
	boom := errors.New("target closed")
	s := session(browsertest.Timeout(), browsertest.Failed(boom))
	_, err := newNavigator(FallbackSoft).Navigate(context.Background(), s, target)
	var ne *Error
	if !errors.As(err, &ne) || ne.Attempt != 2 {
		t.Fatalf("err: got %v, want *Error at attempt 2", err)
	}
	if got := len(s.page.Gotos()); got != 2 {
		t.Fatalf("gotos: got %d, want 2", got)
	}
}

func TestNavigate_SoftFallbackAccepts(t *testing.T) {
	for _, state := range []string{"interactive", "complete"} {
		s := session(browsertest.Timeout())
		s.page.State = state
		res, err := newNavigator(FallbackSoft).Navigate(context.Background(), s, target)
		if err != nil {
			t.Fatalf("%s: %v", state, err)
		}
		if !res.Degraded || res.ReadyState != state || res.Attempts != 3 {
			t.Fatalf("%s: result %+v", state, res)
		}
		if res.Content == "" {
			t.Fatalf("%s: empty content", state)
		}
		if s.touches != 1 {
			t.Fatalf("%s: touches: got %d, want 1", state, s.touches)
		}
	}
}

func TestNavigate_SoftFallbackRejectsLoading(t *testing.T) {
	s := session(browsertest.Timeout())
	s.page.State = "loading"
	_, err := newNavigator(FallbackSoft).Navigate(context.Background(), s, target)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("err: got %v, want TimeoutError", err)
	}
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("err: got %v, want ErrNotReady", err)
	}
	if s.touches != 0 {
		t.Fatal("rejected navigation must not touch")
	}
}

func TestNavigate_SoftFallbackRejectsBlankPage(t *testing.T) {
	s := session(browsertest.Timeout())
	s.page.State = "complete"
	s.page.CurrentURL = "about:blank"
	_, err := newNavigator(FallbackSoft).Navigate(context.Background(), s, target)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("err: got %v, want TimeoutError", err)
	}
	if !errors.Is(err, ErrBlankPage) {
		t.Fatalf("err: got %v, want ErrBlankPage", err)
	}
}

func TestNavigate_ReadinessTimeoutRejects(t *testing.T) {
	s := session(browsertest.Timeout())
	s.page.StateDelay = time.Second
	start := time.Now()
	_, err := newNavigator(FallbackSoft).Navigate(context.Background(), s, target)
	if !errors.Is(err, ErrReadinessTimeout) {
		t.Fatalf("err: got %v, want ErrReadinessTimeout", err)
	}
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("err: got %T, want TimeoutError", err)
	}
	if d := time.Since(start); d > 500*time.Millisecond {
		t.Fatalf("readiness check not bounded: took %v", d)
	}
}

func TestNavigate_ReadinessErrorRejects(t *testing.T) {
	s := session(browsertest.Timeout())
	s.page.StateErr = errors.New("execution context destroyed")
	_, err := newNavigator(FallbackSoft).Navigate(context.Background(), s, target)
	var te *TimeoutError
	if !errors.As(err, &te) || te.Fallback == nil {
		t.Fatalf("err: got %v, want TimeoutError with fallback reason", err)
	}
}

func TestNavigate_ContentError(t *testing.T) {
	s := session()
	s.page.ContentErr = errors.New("page crashed")
	_, err := newNavigator(FallbackSoft).Navigate(context.Background(), s, target)
	var ne *Error
	if !errors.As(err, &ne) {
		t.Fatalf("err: got %v, want *Error", err)
	}
	if s.touches != 0 {
		t.Fatal("failed content read must not touch")
	}
}

func TestNew_Defaults(t *testing.T) {
	o := New(Options{}).Options()
	if o.MaxTries != 3 || o.AttemptTimeout != 10*time.Second || o.ReadyStateTimeout != 5*time.Second || o.Fallback != FallbackSoft {
		t.Fatalf("defaults: got %+v", o)
	}
}
