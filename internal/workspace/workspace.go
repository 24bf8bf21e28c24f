// Package workspace is the only component besides TR's file writes that
// mutates the working tree. It wraps internal/gitutil with the
// business-level operations the factory state machine needs: preflight
// predicates, branch setup, rollback, scoped commit, drift detection,
// and tree hashing.
package workspace

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/factoryrun/factory/internal/gitutil"
)

// BranchMode selects how EnsureWorkingBranch treats an existing branch.
type BranchMode string

const (
	BranchCreate BranchMode = "create"
	BranchReuse  BranchMode = "reuse"
)

// DefaultProtectedBranches mirrors common default-branch names; a config
// file's protected_branches list of glob patterns (e.g. "release/*")
// replaces it rather than adding to it.
var DefaultProtectedBranches = []string{"main", "master"}

// Controller is the workspace controller for one repository.
type Controller struct {
	RepoRoot          string
	Remote            string
	ProtectedBranches []string
}

// New constructs a Controller with default protected-branch patterns and
// "origin" as the push remote.
func New(repoRoot string) *Controller {
	return &Controller{
		RepoRoot:          repoRoot,
		Remote:            "origin",
		ProtectedBranches: append([]string{}, DefaultProtectedBranches...),
	}
}

func (c *Controller) IsGitRepo() bool {
	return gitutil.IsRepo(c.RepoRoot)
}

func (c *Controller) HasCommits() bool {
	return gitutil.HasCommits(c.RepoRoot)
}

func (c *Controller) IsClean() (bool, error) {
	return gitutil.IsClean(c.RepoRoot)
}

// IsProtectedBranch matches name against the glob pattern list. Glob
// matching is safe here specifically because the pattern list is
// operator/CLI configuration, never work-order or LLM-controlled data —
// work-order paths are never allowed to contain glob characters at all
// (workorder.ValidatePath).
func (c *Controller) IsProtectedBranch(name string) bool {
	for _, pattern := range c.ProtectedBranches {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
		if pattern == name {
			return true
		}
	}
	return false
}

func (c *Controller) BaselineCommit() (string, error) {
	return gitutil.HeadSHA(c.RepoRoot)
}

// EnsureWorkingBranch checks out branch, creating it at baseline when
// mode is BranchCreate or when it does not yet exist, or switching to
// its current tip when mode is BranchReuse and it already exists.
func (c *Controller) EnsureWorkingBranch(branch, baseline string, mode BranchMode) error {
	if c.IsProtectedBranch(branch) {
		return fmt.Errorf("refusing to use protected branch %q as a commit target", branch)
	}
	exists := gitutil.BranchExists(c.RepoRoot, branch)
	if mode == BranchCreate || !exists {
		if err := gitutil.CreateBranchAt(c.RepoRoot, branch, baseline); err != nil {
			return fmt.Errorf("create branch %q at %s: %w", branch, baseline, err)
		}
	}
	if err := gitutil.CheckoutBranch(c.RepoRoot, branch); err != nil {
		return fmt.Errorf("checkout branch %q: %w", branch, err)
	}
	return nil
}

// EnsureIdentity sets repo-local committer identity so commits succeed
// without relying on the operator's global git config.
func (c *Controller) EnsureIdentity(name, email string) error {
	return gitutil.EnsureIdentity(c.RepoRoot, name, email)
}

// Rollback hard-resets to baseline and removes all untracked (including
// gitignored) files. Idempotent: calling it twice, or calling it when no
// writes were ever applied, leaves the tree in the same state.
func (c *Controller) Rollback(baseline string) error {
	if err := gitutil.ResetHard(c.RepoRoot, baseline); err != nil {
		return fmt.Errorf("reset to baseline %s: %w", baseline, err)
	}
	if err := gitutil.CleanUntracked(c.RepoRoot); err != nil {
		return fmt.Errorf("clean untracked files: %w", err)
	}
	return nil
}

// ScopedCommit stages and commits exactly the given paths.
func (c *Controller) ScopedCommit(paths []string, message string) (sha string, committed bool, err error) {
	return gitutil.ScopedCommit(c.RepoRoot, paths, message)
}

// CleanUntracked removes verification-artifact debris (untracked and
// gitignored files) after a successful commit.
func (c *Controller) CleanUntracked() error {
	return gitutil.CleanUntracked(c.RepoRoot)
}

// DetectDrift enumerates modified or untracked paths that are not in
// touchedFiles — side effects a verify/acceptance command left behind
// that the proposal itself did not declare.
func (c *Controller) DetectDrift(baseline string, touchedFiles []string) ([]string, error) {
	touched := make(map[string]bool, len(touchedFiles))
	for _, p := range touchedFiles {
		touched[p] = true
	}

	modified, err := gitutil.DiffNameOnly(c.RepoRoot, baseline)
	if err != nil {
		return nil, fmt.Errorf("diff against baseline: %w", err)
	}
	untracked, err := gitutil.UntrackedFiles(c.RepoRoot)
	if err != nil {
		return nil, fmt.Errorf("list untracked files: %w", err)
	}

	seen := make(map[string]bool)
	var drift []string
	for _, p := range append(modified, untracked...) {
		if touched[p] || seen[p] {
			continue
		}
		seen[p] = true
		drift = append(drift, p)
	}
	return drift, nil
}

// TreeHash stages exactly touchedFiles on top of baseline's tree in a
// scratch index and returns the resulting tree object hash — a
// "what changed" hash over touched_files only. See DESIGN.md for why
// this implementation picked that scope over a whole-repo tree hash.
func (c *Controller) TreeHash(baseline string, touchedFiles []string) (string, error) {
	return gitutil.TreeHashForPaths(c.RepoRoot, baseline, touchedFiles)
}

// Push pushes branch to the configured remote. Best-effort: a push
// failure is returned to the caller but must never change a PASS
// verdict.
func (c *Controller) Push(branch string) error {
	return gitutil.PushBranch(c.RepoRoot, c.Remote, branch)
}
