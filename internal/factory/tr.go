package factory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/factoryrun/factory/internal/failure"
	"github.com/factoryrun/factory/internal/hashutil"
	"github.com/factoryrun/factory/internal/proposal"
	"github.com/factoryrun/factory/internal/workorder"
)

// applier applies a validated WriteProposal to the working tree. Every
// check that can reject the whole batch runs before any file is touched;
// once writes start, a later per-file I/O failure is the only way a
// partial batch can land (and that is itself a classified failure mode).
type applier struct {
	repoRoot string
	wo       *workorder.WorkOrder
	paths    attemptPaths
}

func (a *applier) run(prop *proposal.WriteProposal) (*WriteResult, *failure.Brief, error) {
	if brief := a.checkScope(prop); brief != nil {
		return a.reject(brief)
	}
	if brief := a.checkContainment(prop); brief != nil {
		return a.reject(brief)
	}
	if brief := a.checkBaseHashes(prop); brief != nil {
		return a.reject(brief)
	}

	result := &WriteResult{WriteOK: true}
	for _, w := range prop.Writes {
		full := filepath.Join(a.repoRoot, w.Path)
		if err := hashutil.WriteFileAtomic(full, []byte(w.Content), 0o644); err != nil {
			result.WriteOK = false
			result.TouchedFiles = append(result.TouchedFiles, w.Path)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", w.Path, err))
			if err := hashutil.WriteJSONAtomic(a.paths.writeResult(), result); err != nil {
				return nil, nil, fmt.Errorf("tr: write write_result artifact: %w", err)
			}
			brief := failure.New(failure.StageWriteFailed, fmt.Sprintf("failed writing %s: %v", w.Path, err))
			return result, brief, nil
		}
		result.TouchedFiles = append(result.TouchedFiles, w.Path)
	}

	if err := hashutil.WriteJSONAtomic(a.paths.writeResult(), result); err != nil {
		return nil, nil, fmt.Errorf("tr: write write_result artifact: %w", err)
	}
	return result, nil, nil
}

func (a *applier) reject(brief *failure.Brief) (*WriteResult, *failure.Brief, error) {
	result := &WriteResult{WriteOK: false}
	if err := hashutil.WriteJSONAtomic(a.paths.writeResult(), result); err != nil {
		return nil, nil, fmt.Errorf("tr: write write_result artifact: %w", err)
	}
	return result, brief, nil
}

// checkScope rejects duplicate paths within one proposal and any path
// outside allowed_files, before any write is attempted.
func (a *applier) checkScope(prop *proposal.WriteProposal) *failure.Brief {
	seen := make(map[string]bool, len(prop.Writes))
	for _, w := range prop.Writes {
		if seen[w.Path] {
			return failure.New(failure.StageWriteScope, fmt.Sprintf("duplicate write for path %q in the same proposal", w.Path))
		}
		seen[w.Path] = true
		if !a.wo.AllowsPath(w.Path) {
			return failure.New(failure.StageWriteScope, fmt.Sprintf("path %q is not in allowed_files", w.Path))
		}
	}
	return nil
}

// checkContainment resolves symlinks along each write's path and
// confirms the real location still falls inside the repository root.
// allowed_files is a string-level check against the declared path; it
// says nothing about a symlinked directory planted under that path by a
// prior acceptance command redirecting the write elsewhere on disk. Do
// not trust any string-level prefix check for this.
func (a *applier) checkContainment(prop *proposal.WriteProposal) *failure.Brief {
	repoReal, err := filepath.EvalSymlinks(a.repoRoot)
	if err != nil {
		return failure.New(failure.StageWriteScope, fmt.Sprintf("could not resolve repository root: %v", err))
	}
	for _, w := range prop.Writes {
		full := filepath.Join(a.repoRoot, w.Path)
		real, err := resolveRealPath(full)
		if err != nil {
			return failure.New(failure.StageWriteScope, fmt.Sprintf("path %q: %v", w.Path, err))
		}
		rel, err := filepath.Rel(repoReal, real)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return failure.New(failure.StageWriteScope, fmt.Sprintf("path %q resolves outside the repository root", w.Path))
		}
	}
	return nil
}

// resolveRealPath resolves symlinks along path's existing ancestor
// directories and rejoins the non-existent suffix (the file itself, and
// any directories a write will create, never exist yet). It never
// touches path's final component as a symlink target, since the atomic
// writer replaces rather than follows a symlink there.
func resolveRealPath(path string) (string, error) {
	dir := filepath.Dir(path)
	suffix := []string{filepath.Base(path)}
	for {
		if _, err := os.Stat(dir); err == nil {
			break
		} else if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no existing ancestor directory found")
		}
		suffix = append(suffix, filepath.Base(dir))
		dir = parent
	}
	realDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", err
	}
	for i := len(suffix) - 1; i >= 0; i-- {
		realDir = filepath.Join(realDir, suffix[i])
	}
	return realDir, nil
}

// checkBaseHashes rejects the whole batch if any write's declared
// base_sha256 no longer matches the file's actual current content — the
// LLM proposed a change against content that has since moved (usually
// because a previous attempt's rollback or commit changed it). All or
// nothing: accepting a partially-stale batch would silently clobber
// content the LLM never saw.
func (a *applier) checkBaseHashes(prop *proposal.WriteProposal) *failure.Brief {
	for _, w := range prop.Writes {
		full := filepath.Join(a.repoRoot, w.Path)
		b, err := os.ReadFile(full)
		var actual string
		switch {
		case err == nil:
			actual = hashutil.SHA256Hex(b)
		case os.IsNotExist(err):
			actual = hashutil.EmptySHA256Hex
		default:
			return failure.New(failure.StageStaleContext, fmt.Sprintf("could not read %q to verify base_sha256: %v", w.Path, err))
		}
		if actual != w.BaseSHA256 {
			return failure.New(failure.StageStaleContext, fmt.Sprintf("path %q base_sha256 %s does not match current content hash %s", w.Path, w.BaseSHA256, actual))
		}
	}
	return nil
}
