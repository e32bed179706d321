package idgen

import (
	"sort"
	"strings"
	"testing"
)

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	parts := strings.Split(id, "-")
	if len(parts) != 5 {
		t.Fatalf("UUIDv7: expected 5 parts, got %d in %q", len(parts), id)
	}
	if len(id) != 36 {
		t.Fatalf("UUIDv7: expected length 36, got %d", len(id))
	}
	if id[14] != '7' {
		t.Fatalf("UUIDv7: version nibble %q, want '7'", id[14])
	}
}

func TestUUIDv7_Monotonic(t *testing.T) {
	gen := UUIDv7()
	ids := make([]string, 200)
	for i := range ids {
		ids[i] = gen()
	}
	if !sort.StringsAreSorted(ids) {
		t.Fatal("UUIDv7: sequential ids are not lexically sorted")
	}
	seen := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		if _, ok := seen[id]; ok {
			t.Fatalf("UUIDv7: duplicate at iteration %d", i)
		}
		seen[id] = struct{}{}
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("sess_", UUIDv7())()
	if !strings.HasPrefix(id, "sess_") {
		t.Fatalf("Prefixed: expected prefix 'sess_', got %q", id)
	}
	if len(id) != 5+36 {
		t.Fatalf("Prefixed: expected length 41, got %d", len(id))
	}
}

func TestDefault_IsUUIDv7(t *testing.T) {
	id := New()
	if !Valid(id) {
		t.Fatalf("New: default should produce a valid UUIDv7, got %q", id)
	}
}

func TestParseV7_RejectsOtherVersions(t *testing.T) {
	// Version 4.
	if _, err := ParseV7("9b2d6c0e-3f7a-4c1e-8d2b-0a1b2c3d4e5f"); err == nil {
		t.Fatal("ParseV7: expected error for v4 UUID")
	}
}

func TestParseV7_RejectsNonCanonical(t *testing.T) {
	id := New()
	if _, err := ParseV7(strings.ToUpper(id)); err == nil {
		t.Fatal("ParseV7: expected error for uppercase form")
	}
	if _, err := ParseV7("{" + id + "}"); err == nil {
		t.Fatal("ParseV7: expected error for braced form")
	}
}

func TestValid(t *testing.T) {
	for _, s := range []string{"", "..", "../etc/passwd", "abc.png"} {
		if Valid(s) {
			t.Fatalf("Valid(%q): got true", s)
		}
	}
}
