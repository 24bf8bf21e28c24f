package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/factoryrun/factory/internal/failure"
	"github.com/factoryrun/factory/internal/hashutil"
	"github.com/factoryrun/factory/internal/runner"
	"github.com/factoryrun/factory/internal/sandboxenv"
	"github.com/factoryrun/factory/internal/workorder"
	"gopkg.in/yaml.v3"
)

// verifyScriptPath is the conventional location PO looks for a
// repo-provided global verification script.
const verifyScriptPath = "scripts/verify.sh"

// verifier runs the global verify step, the postcondition gate, and the
// work order's acceptance commands, in that order, stopping at the first
// failure.
type verifier struct {
	repoRoot string
	wo       *workorder.WorkOrder
	cfg      Config
	paths    attemptPaths
}

func (v *verifier) run(ctx context.Context) (*VerifyOutcome, *AcceptanceOutcome, *failure.Brief, error) {
	verifyOutcome, brief, err := v.runVerify(ctx)
	if err != nil || brief != nil {
		return verifyOutcome, nil, brief, err
	}

	if brief := v.checkPostconditions(); brief != nil {
		return verifyOutcome, nil, brief, nil
	}

	acceptanceOutcome, brief, err := v.runAcceptance(ctx)
	return verifyOutcome, acceptanceOutcome, brief, err
}

// runVerify runs scripts/verify.sh when present, unless the work order is
// verify_exempt and the operator allowed that exemption for this run, in
// which case the global verify step is replaced (not skipped) by a
// lightweight syntax/compile pass over the tree. A missing script is not
// itself a failure: the work order's acceptance commands and
// postconditions are expected to carry the full weight of verification
// when a repo has no standalone verify script.
func (v *verifier) runVerify(ctx context.Context) (*VerifyOutcome, *failure.Brief, error) {
	if v.wo.VerifyExempt && v.cfg.AllowVerifyExempt {
		brief := lightweightSyntaxCheck(v.repoRoot)
		outcome := &VerifyOutcome{Exempt: true}
		if err := hashutil.WriteJSONAtomic(v.paths.verifyResult(), outcome); err != nil {
			return nil, nil, fmt.Errorf("po: write verify_result artifact: %w", err)
		}
		return outcome, brief, nil
	}

	full := filepath.Join(v.repoRoot, verifyScriptPath)
	if _, err := os.Stat(full); err != nil {
		outcome := &VerifyOutcome{Exempt: false}
		if err := hashutil.WriteJSONAtomic(v.paths.verifyResult(), outcome); err != nil {
			return nil, nil, fmt.Errorf("po: write verify_result artifact: %w", err)
		}
		return outcome, nil, nil
	}

	res, err := runner.Run(ctx, []string{verifyScriptPath}, v.repoRoot, sandboxenv.Build(nil), v.cfg.CommandTimeout(), v.paths.dir, "verify")
	if err != nil {
		return nil, nil, fmt.Errorf("po: run verify script: %w", err)
	}
	outcome := &VerifyOutcome{Result: toCommandResult(verifyScriptPath, res)}
	if err := hashutil.WriteJSONAtomic(v.paths.verifyResult(), outcome); err != nil {
		return nil, nil, fmt.Errorf("po: write verify_result artifact: %w", err)
	}
	if res.ExitCode != 0 {
		brief := failure.New(failure.StageVerifyFailed, res.StderrExcerpt).WithCommand(verifyScriptPath, res.ExitCode)
		return outcome, brief, nil
	}
	return outcome, nil, nil
}

// lightweightSyntaxCheck walks the tree and parses every recognized
// source file, returning a FailureBrief on the first syntax error found.
// This is what verify_exempt replaces the global verify step with — it
// never executes repo-provided code, unlike scripts/verify.sh.
func lightweightSyntaxCheck(repoRoot string) *failure.Brief {
	fset := token.NewFileSet()
	var brief *failure.Brief
	_ = filepath.WalkDir(repoRoot, func(path string, d fs.DirEntry, err error) error {
		if brief != nil {
			return fs.SkipAll
		}
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return fs.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".go":
			if _, perr := parser.ParseFile(fset, path, nil, parser.AllErrors); perr != nil {
				brief = failure.New(failure.StageVerifyFailed, fmt.Sprintf("syntax check failed for %s: %v", relPath(repoRoot, path), perr))
			}
		case ".json":
			b, rerr := os.ReadFile(path)
			if rerr == nil && !json.Valid(b) {
				brief = failure.New(failure.StageVerifyFailed, fmt.Sprintf("syntax check failed for %s: invalid JSON", relPath(repoRoot, path)))
			}
		case ".yaml", ".yml":
			b, rerr := os.ReadFile(path)
			if rerr == nil {
				var v any
				if yerr := yaml.Unmarshal(b, &v); yerr != nil {
					brief = failure.New(failure.StageVerifyFailed, fmt.Sprintf("syntax check failed for %s: %v", relPath(repoRoot, path), yerr))
				}
			}
		}
		return nil
	})
	return brief
}

func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}

func (v *verifier) checkPostconditions() *failure.Brief {
	for _, c := range v.wo.Postconditions {
		full := filepath.Join(v.repoRoot, c.Path)
		_, err := os.Stat(full)
		exists := err == nil
		switch c.Kind {
		case workorder.FileExists:
			if !exists {
				return failure.New(failure.StageAcceptanceFailed, fmt.Sprintf("postcondition failed: %q does not exist", c.Path))
			}
		case workorder.FileAbsent:
			if exists {
				return failure.New(failure.StageAcceptanceFailed, fmt.Sprintf("postcondition failed: %q still exists", c.Path))
			}
		}
	}
	return nil
}

func (v *verifier) runAcceptance(ctx context.Context) (*AcceptanceOutcome, *failure.Brief, error) {
	outcome := &AcceptanceOutcome{}
	for i, cmdStr := range v.wo.AcceptanceCommands {
		argv, err := runner.SplitArgv(cmdStr)
		if err != nil {
			brief := failure.New(failure.StageAcceptanceFailed, err.Error()).WithCommand(cmdStr, -1)
			if werr := hashutil.WriteJSONAtomic(v.paths.acceptanceResult(), outcome); werr != nil {
				return nil, nil, fmt.Errorf("po: write acceptance_result artifact: %w", werr)
			}
			return outcome, brief, nil
		}
		label := fmt.Sprintf("acceptance_%d", i)
		res, err := runner.Run(ctx, argv, v.repoRoot, sandboxenv.Build(nil), v.cfg.CommandTimeout(), v.paths.dir, label)
		if err != nil {
			return nil, nil, fmt.Errorf("po: run acceptance command %q: %w", cmdStr, err)
		}
		outcome.Results = append(outcome.Results, *toCommandResult(cmdStr, res))
		if res.ExitCode != 0 {
			if err := hashutil.WriteJSONAtomic(v.paths.acceptanceResult(), outcome); err != nil {
				return nil, nil, fmt.Errorf("po: write acceptance_result artifact: %w", err)
			}
			brief := failure.New(failure.StageAcceptanceFailed, res.StderrExcerpt).WithCommand(cmdStr, res.ExitCode)
			return outcome, brief, nil
		}
	}
	if err := hashutil.WriteJSONAtomic(v.paths.acceptanceResult(), outcome); err != nil {
		return nil, nil, fmt.Errorf("po: write acceptance_result artifact: %w", err)
	}
	return outcome, nil, nil
}

func toCommandResult(command string, res *runner.Result) *CommandResult {
	return &CommandResult{
		Command:         command,
		Argv:            res.Argv,
		ExitCode:        res.ExitCode,
		DurationMS:      res.Duration.Milliseconds(),
		StdoutPath:      res.StdoutPath,
		StderrPath:      res.StderrPath,
		StdoutTruncated: res.StdoutTruncated,
		StderrTruncated: res.StderrTruncated,
	}
}
