package factorylog

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestEventWritesOneJSONLinePerCall(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.Event(map[string]any{"event": "thing_happened", "n": 1})
	l.Event(map[string]any{"event": "other_thing", "n": 2})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	for _, line := range lines {
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("line %q is not valid JSON: %v", line, err)
		}
		if _, ok := m["ts"]; !ok {
			t.Errorf("line %q is missing a ts field", line)
		}
	}
}

func TestNilLoggerEventIsANoOp(t *testing.T) {
	var l *Logger
	l.Event(map[string]any{"event": "should not panic"})
}

func TestAttemptStartAndRunEnd(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.AttemptStart("run-1", 1)
	l.RunEnd("run-1", "PASS", 1)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first["event"] != "attempt_start" || first["attempt"] != float64(1) {
		t.Errorf("first event = %+v", first)
	}
}
