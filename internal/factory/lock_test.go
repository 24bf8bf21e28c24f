package factory

import (
	"os"
	"strconv"
	"testing"
)

func TestAcquireRepoLockRejectsLiveHolder(t *testing.T) {
	dir := initTestRepo(t)
	release, err := acquireRepoLock(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	if _, err := acquireRepoLock(dir); err == nil {
		t.Fatal("expected second acquisition to fail while the first is held")
	}
}

func TestAcquireRepoLockReclaimsAbandonedLock(t *testing.T) {
	dir := initTestRepo(t)
	if err := os.WriteFile(repoLockPath(dir), []byte(strconv.Itoa(1<<30)), 0o644); err != nil {
		t.Fatal(err)
	}

	release, err := acquireRepoLock(dir)
	if err != nil {
		t.Fatalf("expected abandoned lock to be reclaimed, got: %v", err)
	}
	release()
	if _, err := os.Stat(repoLockPath(dir)); !os.IsNotExist(err) {
		t.Error("expected lock file to be removed after release")
	}
}
