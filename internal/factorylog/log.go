// Package factorylog implements the factory's progress log: one JSON
// object per line, written to stderr (or any io.Writer), so an operator
// or a wrapping Planner process can tail a run without parsing human
// prose. Mirrors the teacher's engine.appendProgress convention
// (internal/attractor/engine/engine.go) rather than adopting a
// structured-logging library the teacher never reaches for either.
package factorylog

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Logger appends newline-delimited JSON progress events to an
// io.Writer. Safe for concurrent use.
type Logger struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// New returns a Logger writing to out.
func New(out io.Writer) *Logger {
	return &Logger{out: out, now: time.Now}
}

// Event appends one JSON line built from fields, with a "ts" field
// stamped in automatically. A marshal failure is reported on its own
// line rather than silently dropped, since a progress log with gaps is
// worse than one with a visible error entry.
func (l *Logger) Event(fields map[string]any) {
	if l == nil {
		return
	}
	stamped := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		stamped[k] = v
	}
	stamped["ts"] = l.now().UTC().Format(time.RFC3339Nano)

	b, err := json.Marshal(stamped)
	if err != nil {
		b = []byte(fmt.Sprintf(`{"event":"log_marshal_error","error":%q}`, err.Error()))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(b)
	_, _ = l.out.Write([]byte("\n"))
}

// AttemptStart logs the start of one attempt.
func (l *Logger) AttemptStart(runID string, attemptIndex int) {
	l.Event(map[string]any{"event": "attempt_start", "run_id": runID, "attempt": attemptIndex})
}

// AttemptEnd logs the stage reached and whether the attempt produced a
// FailureBrief.
func (l *Logger) AttemptEnd(runID string, attemptIndex int, stage string, failed bool) {
	l.Event(map[string]any{
		"event":   "attempt_end",
		"run_id":  runID,
		"attempt": attemptIndex,
		"stage":   stage,
		"failed":  failed,
	})
}

// RunEnd logs the terminal verdict of a run.
func (l *Logger) RunEnd(runID, verdict string, totalAttempts int) {
	l.Event(map[string]any{
		"event":          "run_end",
		"run_id":         runID,
		"verdict":        verdict,
		"total_attempts": totalAttempts,
	})
}
