package factory

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileConfigAppliesOnlyToZeroFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "llm_model: claude-test\nmax_attempts: 7\ntimeout_seconds: 120\nprotected_branches:\n  - main\npush:\n  remote: upstream\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	cfg := Config{MaxAttempts: 3}
	fc.ApplyDefaults(&cfg)

	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3 (CLI flag should win over file)", cfg.MaxAttempts)
	}
	if cfg.LLMModel != "claude-test" {
		t.Errorf("LLMModel = %q, want claude-test (file should fill unset flag)", cfg.LLMModel)
	}
	if cfg.TimeoutSeconds != 120 {
		t.Errorf("TimeoutSeconds = %d, want 120", cfg.TimeoutSeconds)
	}
	if len(cfg.ProtectedBranches) != 1 || cfg.ProtectedBranches[0] != "main" {
		t.Errorf("ProtectedBranches = %v", cfg.ProtectedBranches)
	}
	if cfg.PushRemote != "upstream" {
		t.Errorf("PushRemote = %q, want upstream", cfg.PushRemote)
	}
}

func TestNilFileConfigApplyDefaultsIsANoOp(t *testing.T) {
	var fc *FileConfig
	cfg := Config{MaxAttempts: 5}
	fc.ApplyDefaults(&cfg)
	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts changed to %d", cfg.MaxAttempts)
	}
}
