package workorder

import (
	"os"
	"path/filepath"
	"testing"
)

func writeWorkOrder(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadValidWorkOrder(t *testing.T) {
	dir := t.TempDir()
	p := writeWorkOrder(t, dir, "wo.json", `{
		"id": "wo-1",
		"allowed_files": ["hello.txt"],
		"postconditions": [{"kind": "file_exists", "path": "hello.txt"}],
		"acceptance_commands": ["python -c pass"]
	}`)
	wo, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if wo.ID != "wo-1" {
		t.Errorf("ID = %q, want wo-1", wo.ID)
	}
	if !wo.AllowsPath("hello.txt") {
		t.Error("expected hello.txt to be allowed")
	}
}

func TestLoadRejectsMissingAcceptanceCommands(t *testing.T) {
	dir := t.TempDir()
	p := writeWorkOrder(t, dir, "wo.json", `{"id": "wo-1", "allowed_files": []}`)
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for missing acceptance_commands")
	}
}

func TestLoadRejectsPostconditionNotInAllowedFiles(t *testing.T) {
	dir := t.TempDir()
	p := writeWorkOrder(t, dir, "wo.json", `{
		"id": "wo-1",
		"allowed_files": ["a.txt"],
		"postconditions": [{"kind": "file_exists", "path": "b.txt"}],
		"acceptance_commands": ["true"]
	}`)
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for postcondition outside allowed_files")
	}
}

func TestLoadRejectsBadConditionKind(t *testing.T) {
	dir := t.TempDir()
	p := writeWorkOrder(t, dir, "wo.json", `{
		"id": "wo-1",
		"allowed_files": ["a.txt"],
		"postconditions": [{"kind": "file_absent", "path": "a.txt"}],
		"acceptance_commands": ["true"]
	}`)
	if _, err := Load(p); err == nil {
		t.Fatal("expected Validate to reject a non-file_exists postcondition kind")
	}
}

func TestValidatePathRejectsTraversal(t *testing.T) {
	cases := []string{"../etc/passwd", "/etc/passwd", "a/../../b", "a*.txt", "a\x00b"}
	for _, p := range cases {
		if err := ValidatePath(p); err == nil {
			t.Errorf("ValidatePath(%q) = nil, want error", p)
		}
	}
}

func TestValidatePathAcceptsNormalRelative(t *testing.T) {
	cases := []string{"hello.txt", "src/main.go", "a/b/c.txt"}
	for _, p := range cases {
		if err := ValidatePath(p); err != nil {
			t.Errorf("ValidatePath(%q) = %v, want nil", p, err)
		}
	}
}

func TestValidateRejectsDuplicateAllowedFiles(t *testing.T) {
	wo := &WorkOrder{
		ID:                 "wo-1",
		AllowedFiles:       []string{"a.txt", "a.txt"},
		AcceptanceCommands: []string{"true"},
	}
	if err := wo.Validate(); err == nil {
		t.Fatal("expected error for duplicate allowed_files entries")
	}
}

func TestValidateRejectsTooManyContextFiles(t *testing.T) {
	files := make([]string, 11)
	for i := range files {
		files[i] = "f.txt"
	}
	wo := &WorkOrder{
		ID:                 "wo-1",
		AllowedFiles:       []string{"a.txt"},
		ContextFiles:       files,
		AcceptanceCommands: []string{"true"},
	}
	if err := wo.Validate(); err == nil {
		t.Fatal("expected error for more than 10 context_files")
	}
}
