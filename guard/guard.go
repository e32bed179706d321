// Package guard validates navigation targets before they reach the browser:
// scheme, host allow-list and private address blocking.
package guard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

var (
	// ErrEmptyURL is returned when no target URL was supplied.
	ErrEmptyURL = errors.New("guard: url must not be empty")

	// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
	ErrUnsafeScheme = errors.New("guard: only http and https schemes are allowed")

	// ErrNoHost is returned when a URL is not absolute.
	ErrNoHost = errors.New("guard: url has no host")

	// ErrHostNotAllowed is returned when the host matches no allow-list pattern.
	ErrHostNotAllowed = errors.New("guard: host is not in the allow-list")

	// ErrPrivateAddress is returned when a URL targets a private or loopback address.
	ErrPrivateAddress = errors.New("guard: url targets a private or loopback address")
)

// IsValidation reports whether err was produced by input validation in this
// package, as opposed to an infrastructure failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyURL) ||
		errors.Is(err, ErrUnsafeScheme) ||
		errors.Is(err, ErrNoHost) ||
		errors.Is(err, ErrHostNotAllowed) ||
		errors.Is(err, ErrPrivateAddress) ||
		errors.Is(err, errBadURL)
}

var errBadURL = errors.New("guard: invalid url")

// Resolver looks up the addresses of a host name.
type Resolver func(ctx context.Context, host string) ([]string, error)

// HostPolicy decides which navigation targets are acceptable.
// The zero value accepts every absolute http(s) URL.
type HostPolicy struct {
	patterns     []string
	allow        []glob.Glob
	blockPrivate bool
	resolve      Resolver
}

// NewHostPolicy compiles the allow-list patterns. Patterns are globs over
// the dot-separated host name: "*.example.com" matches one label,
// "**.example.com" matches any depth. An empty list allows every host.
func NewHostPolicy(allowed []string, blockPrivate bool) (*HostPolicy, error) {
	p := &HostPolicy{
		blockPrivate: blockPrivate,
		resolve:      net.DefaultResolver.LookupHost,
	}
	for _, pat := range allowed {
		pat = strings.ToLower(strings.TrimSpace(pat))
		if pat == "" {
			continue
		}
		g, err := glob.Compile(pat, '.')
		if err != nil {
			return nil, fmt.Errorf("guard: compile host pattern %q: %w", pat, err)
		}
		p.patterns = append(p.patterns, pat)
		p.allow = append(p.allow, g)
	}
	return p, nil
}

// WithResolver replaces the DNS resolver used for private-address checks.
func (p *HostPolicy) WithResolver(r Resolver) *HostPolicy {
	p.resolve = r
	return p
}

// Patterns returns the normalised allow-list.
func (p *HostPolicy) Patterns() []string {
	return append([]string(nil), p.patterns...)
}

// Check parses rawURL and applies the policy. It returns the parsed URL.
func (p *HostPolicy) Check(ctx context.Context, rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, ErrEmptyURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, ErrUnsafeScheme
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, ErrNoHost
	}

	if len(p.allow) > 0 && !p.allowed(host) {
		return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
	}

	if p.blockPrivate {
		if err := p.checkAddress(ctx, host); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func (p *HostPolicy) allowed(host string) bool {
	for _, g := range p.allow {
		if g.Match(host) {
			return true
		}
	}
	return false
}

func (p *HostPolicy) checkAddress(ctx context.Context, host string) error {
	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return ErrPrivateAddress
		}
		return nil
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return ErrPrivateAddress
	}
	if p.resolve == nil {
		return nil
	}
	addrs, err := p.resolve(ctx, host)
	if err != nil {
		// Unresolvable hosts fail later at navigation time with a clearer error.
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isPrivateIP(ip) {
			return ErrPrivateAddress
		}
	}
	return nil
}

var privateRanges = mustCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"100.64.0.0/10",
	"169.254.0.0/16",
	"fc00::/7",
)

func mustCIDRs(specs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(specs))
	for _, s := range specs {
		_, n, err := net.ParseCIDR(s)
		if err != nil {
			panic("guard: bad CIDR " + s)
		}
		nets = append(nets, n)
	}
	return nets
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, n := range privateRanges {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
