package guard

import (
	"context"
	"errors"
	"net"
	"testing"
)

func TestCheck_Schemes(t *testing.T) {
	p, err := NewHostPolicy(nil, false)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		url     string
		wantErr error
	}{
		{"https://example.com", nil},
		{"http://example.com/path?q=1", nil},
		{"", ErrEmptyURL},
		{"   ", ErrEmptyURL},
		{"ftp://example.com/data", ErrUnsafeScheme},
		{"javascript:alert(1)", ErrUnsafeScheme},
		{"example.com", ErrUnsafeScheme},
		{"https:///nohost", ErrNoHost},
	}
	for _, tt := range tests {
		_, err := p.Check(context.Background(), tt.url)
		if tt.wantErr == nil {
			if err != nil {
				t.Errorf("Check(%q): unexpected error %v", tt.url, err)
			}
			continue
		}
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("Check(%q): got %v, want %v", tt.url, err, tt.wantErr)
		}
		if !IsValidation(err) {
			t.Errorf("Check(%q): IsValidation(%v) = false", tt.url, err)
		}
	}
}

func TestCheck_AllowList(t *testing.T) {
	p, err := NewHostPolicy([]string{"example.com", "*.example.org", "**.internal.test"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.Patterns(); len(got) != 3 {
		t.Fatalf("Patterns: got %v", got)
	}
	allowed := []string{
		"https://example.com/",
		"https://EXAMPLE.com/",
		"https://www.example.org/",
		"https://a.b.internal.test/",
	}
	for _, u := range allowed {
		if _, err := p.Check(context.Background(), u); err != nil {
			t.Errorf("Check(%q): unexpected error %v", u, err)
		}
	}
	denied := []string{
		"https://evil.com/",
		"https://a.b.example.org/",
		"https://example.org.evil.com/",
	}
	for _, u := range denied {
		if _, err := p.Check(context.Background(), u); !errors.Is(err, ErrHostNotAllowed) {
			t.Errorf("Check(%q): got %v, want ErrHostNotAllowed", u, err)
		}
	}
}

func TestCheck_BlockPrivate(t *testing.T) {
	p, err := NewHostPolicy(nil, true)
	if err != nil {
		t.Fatal(err)
	}
	p.WithResolver(func(_ context.Context, host string) ([]string, error) {
		switch host {
		case "intranet.corp":
			return []string{"10.1.2.3"}, nil
		case "public.test":
			return []string{"93.184.216.34"}, nil
		}
		return nil, &net.DNSError{Err: "no such host", Name: host}
	})

	blocked := []string{
		"http://127.0.0.1/admin",
		"http://10.0.0.1/internal",
		"http://192.168.1.1/api",
		"http://[::1]/api",
		"http://172.16.0.1/secret",
		"http://localhost:3000/",
		"http://intranet.corp/",
	}
	for _, u := range blocked {
		if _, err := p.Check(context.Background(), u); !errors.Is(err, ErrPrivateAddress) {
			t.Errorf("Check(%q): got %v, want ErrPrivateAddress", u, err)
		}
	}
	for _, u := range []string{"http://public.test/", "http://unresolvable.test/", "http://8.8.8.8/"} {
		if _, err := p.Check(context.Background(), u); err != nil {
			t.Errorf("Check(%q): unexpected error %v", u, err)
		}
	}
}

func TestNewHostPolicy_BadPattern(t *testing.T) {
	if _, err := NewHostPolicy([]string{"[unclosed"}, false); err == nil {
		t.Fatal("expected error for invalid glob")
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"127.0.0.1", true},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"192.168.0.1", true},
		{"169.254.1.1", true},
		{"0.0.0.0", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"::1", true},
	}
	for _, tt := range tests {
		ip := net.ParseIP(tt.ip)
		if ip == nil {
			t.Fatalf("failed to parse IP %q", tt.ip)
		}
		if got := isPrivateIP(ip); got != tt.private {
			t.Errorf("isPrivateIP(%s) = %v, want %v", tt.ip, got, tt.private)
		}
	}
}
