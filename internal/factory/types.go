// Package factory implements the core state machine: SE (proposer), TR
// (applier), PO (verifier), and Finalize, driving one work order through
// a bounded retry loop against a git workspace.
package factory

import (
	"time"

	"github.com/factoryrun/factory/internal/failure"
	"github.com/factoryrun/factory/internal/workorder"
	"github.com/factoryrun/factory/internal/workspace"
)

// Verdict is the terminal outcome of a run.
type Verdict string

const (
	PASS  Verdict = "PASS"
	FAIL  Verdict = "FAIL"
	ERROR Verdict = "ERROR"
)

// Config holds every operator-facing knob, all of which come from CLI
// flags or an optional config file (SPEC_FULL.md §4.8); the factory
// itself never reads flags or environment variables directly.
type Config struct {
	MaxAttempts       int                  `json:"max_attempts"`
	LLMModel          string               `json:"llm_model"`
	LLMTemperature    float64              `json:"llm_temperature"`
	TimeoutSeconds    int                  `json:"timeout_seconds"`
	Branch            string               `json:"branch"`
	BranchMode        workspace.BranchMode `json:"branch_mode"`
	Push              bool                 `json:"push"`
	PushRemote        string               `json:"push_remote,omitempty"`
	AllowVerifyExempt bool                 `json:"allow_verify_exempt"`
	ProtectedBranches []string             `json:"protected_branches,omitempty"`
}

// CommandTimeout returns the per-command subprocess timeout.
func (c Config) CommandTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CommandResult mirrors runner.Result in a form suitable for JSON
// artifacts (runner.Result embeds a time.Duration, which CommandResult
// renders as milliseconds).
type CommandResult struct {
	Command         string   `json:"command"`
	Argv            []string `json:"argv"`
	ExitCode        int      `json:"exit_code"`
	DurationMS      int64    `json:"duration_ms"`
	StdoutPath      string   `json:"stdout_path"`
	StderrPath      string   `json:"stderr_path"`
	StdoutTruncated bool     `json:"stdout_truncated"`
	StderrTruncated bool     `json:"stderr_truncated"`
}

// VerifyOutcome is the artifact produced by PO's global verify step.
type VerifyOutcome struct {
	Exempt bool           `json:"verify_exempt"`
	Result *CommandResult `json:"result,omitempty"`
}

// AcceptanceOutcome is the artifact produced by PO's acceptance phase.
type AcceptanceOutcome struct {
	Results []CommandResult `json:"results"`
}

// WriteResult is TR's artifact: which files were touched, whether the
// batch succeeded, and any per-file errors encountered while applying.
type WriteResult struct {
	WriteOK      bool     `json:"write_ok"`
	TouchedFiles []string `json:"touched_files"`
	Errors       []string `json:"errors,omitempty"`
}

// AttemptRecord is the immutable, append-only record of one attempt.
type AttemptRecord struct {
	AttemptIndex      int                `json:"attempt_index"`
	BaselineCommit    string             `json:"baseline_commit"`
	ProposalPath      string             `json:"proposal_path,omitempty"`
	TouchedFiles      []string           `json:"touched_files,omitempty"`
	WriteOK           bool               `json:"write_ok"`
	VerifyResults     *VerifyOutcome     `json:"verify_results,omitempty"`
	AcceptanceResults *AcceptanceOutcome `json:"acceptance_results,omitempty"`
	FailureBrief      *failure.Brief     `json:"failure_brief"`
	RepoDrift         []string           `json:"repo_drift,omitempty"`
}

// RunSummary is the top-level artifact, present under <out>/<run_id>/
// regardless of verdict — including the exit-2 and exit-130 paths.
type RunSummary struct {
	RunID             string          `json:"run_id"`
	WorkOrderID       string          `json:"work_order_id"`
	Verdict           Verdict         `json:"verdict"`
	TotalAttempts     int             `json:"total_attempts"`
	BaselineCommit    string          `json:"baseline_commit"`
	RepoTreeHashAfter string          `json:"repo_tree_hash_after,omitempty"`
	Config            Config          `json:"config"`
	Attempts          []AttemptRecord `json:"attempts"`
	Error             string          `json:"error,omitempty"`
	ErrorTraceback    string          `json:"error_traceback,omitempty"`
	RollbackFailed    bool            `json:"rollback_failed,omitempty"`
}

// RunDocument is the frozen record of what a run was asked to do,
// written once at the start of the run as run.json.
type RunDocument struct {
	RunID          string               `json:"run_id"`
	WorkOrder      *workorder.WorkOrder `json:"work_order"`
	BaselineCommit string               `json:"baseline_commit"`
	Config         Config               `json:"config"`
}
