package factory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the shape of an optional YAML config file supplying
// defaults for flags the operator didn't pass on the command line.
// Zero values mean "not set" and are left for the CLI's built-in
// defaults to fill in.
type FileConfig struct {
	LLMModel          string   `yaml:"llm_model"`
	MaxAttempts       int      `yaml:"max_attempts"`
	TimeoutSeconds    int      `yaml:"timeout_seconds"`
	ProtectedBranches []string `yaml:"protected_branches"`
	Push              struct {
		Remote string `yaml:"remote"`
	} `yaml:"push"`
}

// LoadFileConfig reads and parses a YAML config file.
func LoadFileConfig(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &fc, nil
}

// ApplyDefaults fills zero-valued fields of cfg from fc. Fields already
// set (by a CLI flag) are left untouched — CLI flags always win.
func (fc *FileConfig) ApplyDefaults(cfg *Config) {
	if fc == nil {
		return
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = fc.LLMModel
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = fc.MaxAttempts
	}
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = fc.TimeoutSeconds
	}
	if len(cfg.ProtectedBranches) == 0 {
		cfg.ProtectedBranches = fc.ProtectedBranches
	}
	if cfg.PushRemote == "" {
		cfg.PushRemote = fc.Push.Remote
	}
}
