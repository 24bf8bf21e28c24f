package factory

import (
	"fmt"
	"strings"

	"github.com/factoryrun/factory/internal/failure"
	"github.com/factoryrun/factory/internal/hashutil"
	"github.com/factoryrun/factory/internal/workorder"
	"github.com/factoryrun/factory/internal/workspace"
)

// finalizeOutcome carries everything Finalize learned about the state of
// the working tree after committing or rolling back one attempt.
type finalizeOutcome struct {
	Drift      []string
	CommitSHA  string
	Committed  bool
	TreeHash   string
	PushFailed bool
}

// finalizer applies the write-ahead failure brief, then either rolls the
// working tree back to baseline or commits the touched files, depending
// on the stage classification of the attempt's outcome.
type finalizer struct {
	ws    *workspace.Controller
	wo    *workorder.WorkOrder
	cfg   Config
	paths attemptPaths
}

// run finalizes one attempt. brief is the attempt's FailureBrief, or nil
// on a clean PASS. The failure brief artifact is written first,
// unconditionally, before any git mutation — if the process is killed
// mid-finalize, the on-disk brief already reflects what happened.
func (f *finalizer) run(baseline string, attemptIndex int, touchedFiles []string, brief *failure.Brief) (*finalizeOutcome, error) {
	if err := hashutil.WriteJSONAtomic(f.paths.failureBrief(), brief); err != nil {
		return nil, fmt.Errorf("finalize: write failure_brief artifact: %w", err)
	}

	if brief != nil && brief.Stage.RequiresRollback() {
		if err := f.ws.Rollback(baseline); err != nil {
			return nil, fmt.Errorf("finalize: rollback to baseline: %w", err)
		}
		return &finalizeOutcome{}, nil
	}

	if brief != nil {
		// Non-rollback failure (preflight, exception, llm_output_invalid,
		// write_scope_violation, stale_context): TR never touched the
		// working tree, or only touched paths that are about to be
		// discarded on the next retry's rollback-free re-attempt. Clean
		// any debris a verify/acceptance command may have left and leave
		// the rest of the tree untouched for the next attempt to inspect.
		if err := f.ws.CleanUntracked(); err != nil {
			return nil, fmt.Errorf("finalize: clean untracked debris: %w", err)
		}
		return &finalizeOutcome{}, nil
	}

	drift, err := f.ws.DetectDrift(baseline, touchedFiles)
	if err != nil {
		return nil, fmt.Errorf("finalize: detect drift: %w", err)
	}

	sha, committed, err := f.ws.ScopedCommit(touchedFiles, commitMessage(f.wo.ID, attemptIndex, touchedFiles))
	if err != nil {
		return nil, fmt.Errorf("finalize: commit touched files: %w", err)
	}
	if err := f.ws.CleanUntracked(); err != nil {
		return nil, fmt.Errorf("finalize: clean untracked debris: %w", err)
	}

	treeHash, err := f.ws.TreeHash(baseline, touchedFiles)
	if err != nil {
		return nil, fmt.Errorf("finalize: compute tree hash: %w", err)
	}

	pushFailed := false
	if f.cfg.Push {
		if err := f.ws.Push(f.cfg.Branch); err != nil {
			pushFailed = true
		}
	}

	return &finalizeOutcome{
		Drift:      drift,
		CommitSHA:  sha,
		Committed:  committed,
		TreeHash:   treeHash,
		PushFailed: pushFailed,
	}, nil
}

// commitMessage builds the deterministic commit message: a subject line
// naming the work order and attempt, and a body listing every file the
// commit touches.
func commitMessage(workOrderID string, attemptIndex int, touchedFiles []string) string {
	subject := fmt.Sprintf("factory: apply work order %s (attempt %d)", workOrderID, attemptIndex)
	if len(touchedFiles) == 0 {
		return subject
	}
	var body strings.Builder
	body.WriteString(subject)
	body.WriteString("\n\n")
	for _, f := range touchedFiles {
		body.WriteString("- ")
		body.WriteString(f)
		body.WriteString("\n")
	}
	return strings.TrimRight(body.String(), "\n")
}
