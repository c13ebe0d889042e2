package xid

import (
	"regexp"
	"testing"
)

func TestNewFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^S-[0-9A-F]{8}$`)
	seen := make(map[string]bool, 64)
	for i := 0; i < 64; i++ {
		id := New("S")
		if !pattern.MatchString(id) {
			t.Fatalf("unexpected document number %q", id)
		}
		seen[id] = true
	}
	if len(seen) < 60 {
		t.Fatalf("expected mostly unique numbers, got %d distinct", len(seen))
	}
}
