package factory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/factoryrun/factory/internal/workorder"
)

func newVerifier(t *testing.T, repoRoot string, wo *workorder.WorkOrder) *verifier {
	t.Helper()
	attemptDir := filepath.Join(t.TempDir(), "attempt_1")
	if err := os.MkdirAll(attemptDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return &verifier{repoRoot: repoRoot, wo: wo, cfg: Config{TimeoutSeconds: 5}, paths: newAttemptPaths(attemptDir)}
}

func TestVerifierPostconditionFailure(t *testing.T) {
	repoRoot := t.TempDir()
	wo := &workorder.WorkOrder{
		Postconditions:     []workorder.Condition{{Kind: workorder.FileExists, Path: "out.txt"}},
		AcceptanceCommands: []string{"true"},
	}
	v := newVerifier(t, repoRoot, wo)
	_, _, brief, err := v.run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if brief == nil || brief.Stage != "acceptance_failed" {
		t.Fatalf("brief = %+v, want acceptance_failed", brief)
	}
}

func TestVerifierAcceptanceStopsAtFirstFailure(t *testing.T) {
	repoRoot := t.TempDir()
	wo := &workorder.WorkOrder{
		AcceptanceCommands: []string{"false", "true"},
	}
	v := newVerifier(t, repoRoot, wo)
	_, acceptance, brief, err := v.run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if brief == nil || brief.Stage != "acceptance_failed" {
		t.Fatalf("brief = %+v, want acceptance_failed", brief)
	}
	if len(acceptance.Results) != 1 {
		t.Fatalf("expected exactly one acceptance result (stop at first failure), got %d", len(acceptance.Results))
	}
}

func TestVerifyExemptRunsLightweightCheckInsteadOfSkipping(t *testing.T) {
	repoRoot := t.TempDir()
	mustWriteFile(t, repoRoot, "broken.go", "package broken\n\nfunc( {\n")
	wo := &workorder.WorkOrder{VerifyExempt: true, AcceptanceCommands: []string{"true"}}
	v := newVerifier(t, repoRoot, wo)
	v.cfg.AllowVerifyExempt = true

	outcome, _, brief, err := v.run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Exempt {
		t.Error("expected Exempt = true")
	}
	if brief == nil || brief.Stage != "verify_failed" {
		t.Fatalf("brief = %+v, want verify_failed from the lightweight syntax check", brief)
	}
}

func TestVerifyExemptPassesWithSyntacticallyValidTree(t *testing.T) {
	repoRoot := t.TempDir()
	mustWriteFile(t, repoRoot, "fine.go", "package fine\n")
	mustWriteFile(t, repoRoot, "data.json", `{"ok":true}`)
	wo := &workorder.WorkOrder{
		VerifyExempt:       true,
		Postconditions:     []workorder.Condition{{Kind: workorder.FileExists, Path: "fine.go"}},
		AcceptanceCommands: []string{"true"},
	}
	v := newVerifier(t, repoRoot, wo)
	v.cfg.AllowVerifyExempt = true

	outcome, _, brief, err := v.run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Exempt {
		t.Error("expected Exempt = true")
	}
	if brief != nil {
		t.Fatalf("unexpected brief: %+v", brief)
	}
}

func TestVerifierAllAcceptanceCommandsPass(t *testing.T) {
	repoRoot := t.TempDir()
	mustWriteFile(t, repoRoot, "out.txt", "ok")
	wo := &workorder.WorkOrder{
		Postconditions:     []workorder.Condition{{Kind: workorder.FileExists, Path: "out.txt"}},
		AcceptanceCommands: []string{"true", "true"},
	}
	v := newVerifier(t, repoRoot, wo)
	_, acceptance, brief, err := v.run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if brief != nil {
		t.Fatalf("unexpected brief: %+v", brief)
	}
	if len(acceptance.Results) != 2 {
		t.Errorf("expected 2 acceptance results, got %d", len(acceptance.Results))
	}
}
