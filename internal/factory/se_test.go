package factory

import (
	"strings"
	"testing"
)

func TestAssembleContextTruncatesDeterministically(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, dir, "a.txt", strings.Repeat("a", 10))
	mustWriteFile(t, dir, "b.txt", strings.Repeat("b", 10))

	blob, truncated, err := assembleContext(dir, []string{"a.txt", "b.txt"}, 15)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(blob, strings.Repeat("a", 10)) {
		t.Error("expected a.txt to be included in full")
	}
	if !strings.Contains(blob, strings.Repeat("b", 5)) {
		t.Error("expected b.txt to be truncated to the remaining 5 bytes")
	}
	if len(truncated) != 1 || truncated[0] != "b.txt" {
		t.Errorf("truncated = %v, want [b.txt]", truncated)
	}
}

func TestAssembleContextSkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, dir, "present.txt", "hi")
	blob, _, err := assembleContext(dir, []string{"missing.txt", "present.txt"}, 100)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(blob, "present.txt") {
		t.Error("expected present.txt in blob")
	}
	if strings.Contains(blob, "missing.txt") {
		t.Error("missing.txt should not appear in blob")
	}
}

func TestCurrentHashesSentinelForMissingFile(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, dir, "exists.txt", "x")
	hashes, err := currentHashes(dir, []string{"exists.txt", "missing.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if hashes["missing.txt"] != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("missing.txt hash = %s, want empty-file sentinel", hashes["missing.txt"])
	}
	if hashes["exists.txt"] == "" {
		t.Error("exists.txt should have a non-empty hash")
	}
}
