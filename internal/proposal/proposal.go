// Package proposal defines the LLM's write proposal — the only channel
// through which an LLM can express an intended change to the repository
// — and the parser that turns a raw completion string into a validated
// WriteProposal or rejects it outright.
package proposal

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/factoryrun/factory/internal/workorder"
)

const (
	// MaxFileContentBytes bounds any single FileWrite's content.
	MaxFileContentBytes = 200 * 1024
	// MaxTotalContentBytes bounds the sum of all FileWrite contents in a
	// WriteProposal.
	MaxTotalContentBytes = 500 * 1024
)

// FileWrite is one file the LLM proposes to write, along with the
// SHA-256 hash of the content it believes it is editing.
type FileWrite struct {
	Path       string `json:"path"`
	BaseSHA256 string `json:"base_sha256"`
	Content    string `json:"content"`
}

// WriteProposal is the full LLM output for one attempt.
type WriteProposal struct {
	Summary string      `json:"summary"`
	Writes  []FileWrite `json:"writes"`
}

// Parse strips optional markdown code fences from raw, parses it as a
// single JSON object, and validates it against the WriteProposal schema:
// path safety, per-file and total size limits, and a non-empty writes
// list. The raw response is never needed by the caller on success; on
// failure the caller is expected to persist raw itself as an artifact.
func Parse(raw string) (*WriteProposal, error) {
	body := stripCodeFences(raw)
	var p WriteProposal
	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("llm response is not a valid WriteProposal JSON object: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the WriteProposal schema: non-empty writes, path
// safety per write, and the per-file/total size limits.
func (p *WriteProposal) Validate() error {
	if len(p.Writes) == 0 {
		return fmt.Errorf("writes must be non-empty")
	}
	total := 0
	for i, w := range p.Writes {
		if err := workorder.ValidatePath(w.Path); err != nil {
			return fmt.Errorf("writes[%d]: %w", i, err)
		}
		if w.BaseSHA256 == "" {
			return fmt.Errorf("writes[%d]: base_sha256 is required", i)
		}
		size := len(w.Content)
		if size > MaxFileContentBytes {
			return fmt.Errorf("writes[%d] (%s): content is %d bytes, exceeds the %d byte per-file limit", i, w.Path, size, MaxFileContentBytes)
		}
		total += size
	}
	if total > MaxTotalContentBytes {
		return fmt.Errorf("total proposal content is %d bytes, exceeds the %d byte limit", total, MaxTotalContentBytes)
	}
	return nil
}

// stripCodeFences removes a single leading/trailing ```(json)? fence if
// present, since LLMs frequently wrap JSON output in markdown fences
// despite being asked for a bare object.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
