package hashutil

import (
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// WriteFileAtomic writes data to path by writing a temp file in the same
// directory, fsyncing it, and renaming it into place. The rename is the
// only operation observers of path can see, so a crash mid-write never
// leaves a partially-written artifact visible.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*"+filepath.Ext(path))
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	tmpPath = ""
	return nil
}

// WriteJSONAtomic canonically serializes v and writes it atomically.
func WriteJSONAtomic(path string, v any) error {
	b, err := CanonicalJSONIndent(v)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, b, 0o644)
}

// ContentAddress computes a non-contractual BLAKE3 digest of b. No artifact
// is named or deduplicated by it: the runner names captured output files by
// command label. It never appears in any FailureBrief, AttemptRecord, or
// other field the harness's write/verify contract is defined over (those
// are always SHA-256, per base_sha256's explicit algorithm requirement).
func ContentAddress(b []byte) string {
	sum := blake3.Sum256(b)
	return "b3-" + hex.EncodeToString(sum[:])
}
