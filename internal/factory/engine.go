package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/factoryrun/factory/internal/factorylog"
	"github.com/factoryrun/factory/internal/failure"
	"github.com/factoryrun/factory/internal/hashutil"
	"github.com/factoryrun/factory/internal/llm"
	"github.com/factoryrun/factory/internal/workorder"
	"github.com/factoryrun/factory/internal/workspace"
)

// Engine drives one work order through the SE -> TR -> PO -> Finalize
// loop, up to Config.MaxAttempts times, against one repository.
type Engine struct {
	RepoRoot string
	OutDir   string
	WO       *workorder.WorkOrder
	LLM      llm.Client
	Config   Config
	Now      func() time.Time
	Log      *factorylog.Logger
}

// Run executes the full state machine and returns the completed
// RunSummary. Once a run has a RunSummary to write (baseline resolved,
// run document persisted), Run never lets a failure escape silently: an
// infrastructure error, a context cancellation (SIGINT/SIGTERM), or even
// a panic anywhere in the call stack below is caught by the emergency
// handler below, which attempts workspace.Rollback(baseline), marks the
// summary ERROR, and persists it before returning — so run_summary.json
// exists and the repository is clean on every exit path, not just PASS
// and FAIL. Only errors raised before that point (bad repo root, dirty
// working tree, cannot resolve a baseline commit) return with no summary at all, since no
// run-scoped artifacts exist yet to finalize.
func (e *Engine) Run(ctx context.Context) (summary *RunSummary, err error) {
	now := e.Now
	if now == nil {
		now = time.Now
	}
	runID, err := NewRunID(now())
	if err != nil {
		return nil, err
	}
	paths := NewPaths(e.OutDir, runID)

	ws := workspace.New(e.RepoRoot)
	if !ws.IsGitRepo() || !ws.HasCommits() {
		return nil, fmt.Errorf("engine: %s is not a git repository with at least one commit", e.RepoRoot)
	}
	if e.Config.ProtectedBranches != nil {
		ws.ProtectedBranches = e.Config.ProtectedBranches
	}
	if e.Config.PushRemote != "" {
		ws.Remote = e.Config.PushRemote
	}
	if err := ws.EnsureIdentity("", ""); err != nil {
		return nil, fmt.Errorf("engine: ensure git identity: %w", err)
	}
	clean, err := ws.IsClean()
	if err != nil {
		return nil, fmt.Errorf("engine: check working tree: %w", err)
	}
	if !clean {
		return nil, fmt.Errorf("engine: %s has uncommitted or untracked changes; a clean working tree is required", e.RepoRoot)
	}

	releaseLock, err := acquireRepoLock(e.RepoRoot)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	defer releaseLock()

	baseline, err := ws.BaselineCommit()
	if err != nil {
		return nil, fmt.Errorf("engine: resolve baseline commit: %w", err)
	}
	if err := ws.EnsureWorkingBranch(e.Config.Branch, baseline, e.Config.BranchMode); err != nil {
		return nil, fmt.Errorf("engine: ensure working branch: %w", err)
	}

	summary = &RunSummary{
		RunID:          runID,
		WorkOrderID:    e.WO.ID,
		BaselineCommit: baseline,
		Config:         e.Config,
	}

	// Emergency handler (spec.md §5): from here on, summary exists and
	// must be written no matter how Run exits. It must never itself
	// raise.
	defer func() {
		if r := recover(); r != nil {
			summary.Verdict = ERROR
			summary.Error = fmt.Sprintf("panic: %v", r)
			summary.ErrorTraceback = string(debug.Stack())
			if rbErr := ws.Rollback(baseline); rbErr != nil {
				summary.RollbackFailed = true
			}
			e.Log.RunEnd(runID, string(summary.Verdict), summary.TotalAttempts)
			err = fmt.Errorf("engine: %s", summary.Error)
			if perr := e.persist(paths, summary); perr != nil {
				err = fmt.Errorf("engine: emergency persist after %s: %w", summary.Error, perr)
			}
		}
	}()

	doc := &RunDocument{RunID: runID, WorkOrder: e.WO, BaselineCommit: baseline, Config: e.Config}
	if err := hashutil.WriteJSONAtomic(paths.RunDocumentPath(), doc); err != nil {
		return e.emergencyAbort(ws, baseline, paths, summary, runID, fmt.Errorf("engine: write run document: %w", err))
	}

	if brief := checkPreconditions(e.RepoRoot, e.WO.Preconditions); brief != nil {
		record := AttemptRecord{AttemptIndex: 1, BaselineCommit: baseline, FailureBrief: brief}
		summary.Attempts = append(summary.Attempts, record)
		summary.Verdict = FAIL
		summary.TotalAttempts = 1
		return summary, e.persist(paths, summary)
	}

	var previousBrief *failure.Brief
	maxAttempts := e.Config.MaxAttempts
	for attemptIndex := 1; attemptIndex <= maxAttempts; attemptIndex++ {
		if cerr := ctx.Err(); cerr != nil {
			return e.emergencyAbort(ws, baseline, paths, summary, runID, fmt.Errorf("run canceled before attempt %d: %w", attemptIndex, cerr))
		}

		attemptDir := paths.AttemptDir(attemptIndex)
		if err := os.MkdirAll(attemptDir, 0o755); err != nil {
			return e.emergencyAbort(ws, baseline, paths, summary, runID, fmt.Errorf("create attempt directory: %w", err))
		}
		ap := newAttemptPaths(attemptDir)

		e.Log.AttemptStart(runID, attemptIndex)
		record, outcome, err := e.runAttempt(ctx, ws, baseline, attemptIndex, ap, previousBrief)
		if err != nil {
			return e.emergencyAbort(ws, baseline, paths, summary, runID, err)
		}
		record.RepoDrift = outcome.Drift
		summary.Attempts = append(summary.Attempts, *record)
		summary.TotalAttempts = attemptIndex

		if record.FailureBrief == nil {
			e.Log.AttemptEnd(runID, attemptIndex, "", false)
			summary.Verdict = PASS
			summary.RepoTreeHashAfter = outcome.TreeHash
			e.Log.RunEnd(runID, string(summary.Verdict), summary.TotalAttempts)
			return summary, e.persist(paths, summary)
		}
		e.Log.AttemptEnd(runID, attemptIndex, string(record.FailureBrief.Stage), true)

		if !record.FailureBrief.Stage.Retryable() || attemptIndex == maxAttempts {
			summary.Verdict = FAIL
			e.Log.RunEnd(runID, string(summary.Verdict), summary.TotalAttempts)
			return summary, e.persist(paths, summary)
		}
		previousBrief = record.FailureBrief
	}

	summary.Verdict = FAIL
	e.Log.RunEnd(runID, string(summary.Verdict), summary.TotalAttempts)
	return summary, e.persist(paths, summary)
}

// emergencyAbort is the non-panic half of the emergency handler: an
// infrastructure error or a canceled context, as opposed to a recovered
// panic. It attempts rollback, marks the summary ERROR, persists it, and
// returns the original cause so the caller still sees a non-nil error.
func (e *Engine) emergencyAbort(ws *workspace.Controller, baseline string, paths Paths, summary *RunSummary, runID string, cause error) (*RunSummary, error) {
	summary.Verdict = ERROR
	summary.Error = cause.Error()
	summary.ErrorTraceback = string(debug.Stack())
	if rbErr := ws.Rollback(baseline); rbErr != nil {
		summary.RollbackFailed = true
	}
	e.Log.RunEnd(runID, string(summary.Verdict), summary.TotalAttempts)
	if perr := e.persist(paths, summary); perr != nil {
		return summary, fmt.Errorf("engine: emergency persist after %v: %w", cause, perr)
	}
	return summary, cause
}

// runAttempt runs SE, TR, and PO for one attempt and finalizes the
// working tree, returning the completed AttemptRecord.
func (e *Engine) runAttempt(ctx context.Context, ws *workspace.Controller, baseline string, attemptIndex int, ap attemptPaths, previousBrief *failure.Brief) (*AttemptRecord, *finalizeOutcome, error) {
	record := &AttemptRecord{AttemptIndex: attemptIndex, BaselineCommit: baseline}
	fz := &finalizer{ws: ws, wo: e.WO, cfg: e.Config, paths: ap}

	se := &proposer{repoRoot: e.RepoRoot, wo: e.WO, llmc: e.LLM, cfg: e.Config, paths: ap}
	prop, brief, err := se.run(ctx, previousBrief)
	if err != nil {
		return nil, nil, err
	}
	if brief != nil {
		record.FailureBrief = brief
		outcome, err := fz.run(baseline, attemptIndex, nil, brief)
		if err != nil {
			return nil, nil, err
		}
		return record, outcome, nil
	}
	record.ProposalPath = ap.proposedWrites()

	tr := &applier{repoRoot: e.RepoRoot, wo: e.WO, paths: ap}
	writeResult, brief, err := tr.run(prop)
	if err != nil {
		return nil, nil, err
	}
	record.WriteOK = writeResult.WriteOK
	record.TouchedFiles = writeResult.TouchedFiles
	if brief != nil {
		record.FailureBrief = brief
		outcome, err := fz.run(baseline, attemptIndex, writeResult.TouchedFiles, brief)
		if err != nil {
			return nil, nil, err
		}
		return record, outcome, nil
	}

	po := &verifier{repoRoot: e.RepoRoot, wo: e.WO, cfg: e.Config, paths: ap}
	verifyOutcome, acceptanceOutcome, brief, err := po.run(ctx)
	if err != nil {
		return nil, nil, err
	}
	record.VerifyResults = verifyOutcome
	record.AcceptanceResults = acceptanceOutcome
	record.FailureBrief = brief

	outcome, err := fz.run(baseline, attemptIndex, writeResult.TouchedFiles, brief)
	if err != nil {
		return nil, nil, err
	}
	return record, outcome, nil
}

func (e *Engine) persist(paths Paths, summary *RunSummary) error {
	return hashutil.WriteJSONAtomic(paths.RunSummaryPath(), summary)
}

// checkPreconditions evaluates every precondition before SE is ever
// invoked. A violation is non-retryable: the work order describes a
// repository state that does not hold, and no number of LLM attempts can
// fix that.
func checkPreconditions(repoRoot string, conditions []workorder.Condition) *failure.Brief {
	for _, c := range conditions {
		full := filepath.Join(repoRoot, c.Path)
		_, err := os.Stat(full)
		exists := err == nil
		switch c.Kind {
		case workorder.FileExists:
			if !exists {
				return failure.New(failure.StagePreflight, fmt.Sprintf("precondition failed: %q does not exist", c.Path))
			}
		case workorder.FileAbsent:
			if exists {
				return failure.New(failure.StagePreflight, fmt.Sprintf("precondition failed: %q exists", c.Path))
			}
		}
	}
	return nil
}
