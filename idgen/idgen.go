// Package idgen generates the identifiers used across the helpers service:
// diagnostic artifact names and browser session ids.
//
// Identifiers default to UUIDv7 (RFC 9562): globally unique, URL-path-safe,
// and lexically sortable by creation time, so a sorted directory listing is
// also a chronological one.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
// google/uuid keeps v7 values strictly increasing within a process, even
// when several are created in the same millisecond.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID
// (e.g. "sess_" for browser sessions).
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is the service-wide generator.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// ParseV7 validates a version 7 UUID in canonical lowercase form, which is
// the only shape an artifact identifier can take.
func ParseV7(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("idgen: invalid UUID: %w", err)
	}
	if u.Version() != 7 {
		return "", fmt.Errorf("idgen: UUID version %d, want 7", u.Version())
	}
	if u.String() != s {
		return "", fmt.Errorf("idgen: %q is not in canonical form", s)
	}
	return s, nil
}

// Valid reports whether s is a canonical UUIDv7.
func Valid(s string) bool {
	_, err := ParseV7(s)
	return err == nil
}
