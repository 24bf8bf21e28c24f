package factory

import (
	"testing"
	"time"
)

func TestNewRunIDMonotonicWithinSameMillisecond(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a, err := NewRunID(now)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewRunID(now)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("expected distinct run IDs even for identical timestamps")
	}
	if a >= b {
		t.Errorf("expected run IDs to increase within the same millisecond, got %q then %q", a, b)
	}
	if len(a) != 26 || len(b) != 26 {
		t.Errorf("expected 26-character ULIDs, got %d and %d", len(a), len(b))
	}
}
