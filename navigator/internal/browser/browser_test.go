package browser

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

func TestOutcomeString(t *testing.T) {
	cases := map[Outcome]string{
		OutcomeSuccess: "success",
		OutcomeTimeout: "timeout",
		OutcomeFailed:  "failed",
		Outcome(9):     "outcome(9)",
	}
	for o, want := range cases {
		if got := o.String(); got != want {
			t.Fatalf("String(%d): got %q, want %q", int(o), got, want)
		}
	}
}

func TestClassify_AttemptDeadline(t *testing.T) {
	parent := context.Background()
	attempt, cancel := context.WithTimeout(parent, time.Nanosecond)
	defer cancel()
	<-attempt.Done()

	res := classify(parent, attempt, attempt.Err())
	if res.Outcome != OutcomeTimeout {
		t.Fatalf("outcome: got %v, want timeout", res.Outcome)
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("err: got %v", res.Err)
	}
}

func TestClassify_CallerCancelled(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	attempt, cancel := context.WithTimeout(parent, time.Hour)
	defer cancel()
	cancelParent()

	res := classify(parent, attempt, attempt.Err())
	if res.Outcome != OutcomeFailed {
		t.Fatalf("outcome: got %v, want failed", res.Outcome)
	}
}

func TestClassify_NavigationError(t *testing.T) {
	parent := context.Background()
	attempt, cancel := context.WithTimeout(parent, time.Hour)
	defer cancel()

	res := classify(parent, attempt, errors.New("net::ERR_NAME_NOT_RESOLVED"))
	if res.Outcome != OutcomeFailed {
		t.Fatalf("outcome: got %v, want failed", res.Outcome)
	}
}

func TestBlockedTypes(t *testing.T) {
	got := blockedTypes([]string{"images", " Fonts ", "scripts"})
	if !got[proto.NetworkResourceTypeImage] || !got[proto.NetworkResourceTypeFont] {
		t.Fatalf("blocked: got %v", got)
	}
	if got[proto.NetworkResourceTypeStylesheet] || got[proto.NetworkResourceTypeScript] {
		t.Fatalf("unexpected blocked type: %v", got)
	}
	if len(got) != 2 {
		t.Fatalf("len: got %d, want 2", len(got))
	}
}

func TestConnectionError(t *testing.T) {
	inner := errors.New("connection refused")
	err := error(&ConnectionError{Remote: "ws://chrome:9222", Err: inner})
	if !errors.Is(err, inner) {
		t.Fatal("ConnectionError must unwrap")
	}
	if !strings.Contains(err.Error(), "ws://chrome:9222") {
		t.Fatalf("message: got %q", err)
	}
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatal("errors.As failed")
	}
	if got := (&ConnectionError{Err: inner}).Error(); !strings.HasPrefix(got, "browser: launch:") {
		t.Fatalf("local message: got %q", got)
	}
}

func TestRodEngine_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewRodEngine().Connect(ctx, LaunchOptions{})
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("err: got %v, want ConnectionError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err: got %v, want context.Canceled", err)
	}
}
