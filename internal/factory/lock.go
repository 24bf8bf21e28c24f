package factory

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/factoryrun/factory/internal/procutil"
)

// repoLockPath returns the advisory lock file path for repoRoot. Kept
// inside .git/ so it never shows up as an untracked file in the working
// tree and never trips DetectDrift.
func repoLockPath(repoRoot string) string {
	return filepath.Join(repoRoot, ".git", "factory.lock")
}

// acquireRepoLock writes an advisory lock file recording the current
// process's PID. If a lock file already exists and names a PID that is
// still alive, acquisition fails so two overlapping runs against the
// same repo don't race each other's rollback. A lock file naming a dead
// PID is treated as abandoned and is overwritten.
func acquireRepoLock(repoRoot string) (func(), error) {
	path := repoLockPath(repoRoot)
	if existing, err := os.ReadFile(path); err == nil {
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(existing))); perr == nil && procutil.PIDAlive(pid) {
			return nil, fmt.Errorf("repo is locked by a running factory process (pid %d): %s", pid, path)
		}
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return nil, fmt.Errorf("write repo lock: %w", err)
	}
	release := func() {
		_ = os.Remove(path)
	}
	return release, nil
}
