// Package hashutil implements the hashing and canonical-serialization
// kernel shared by every stage of the factory: SHA-256 content hashing
// (the contractual hash family per the work order's base_sha256 field),
// canonical JSON encoding, and atomic file writes.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// EmptySHA256Hex is the well-known SHA-256 hash of the empty byte string,
// used as the base_sha256 sentinel for files that do not yet exist.
const EmptySHA256Hex = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// SHA256Hex returns the lowercase hex-encoded SHA-256 digest of b.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// CanonicalJSON marshals v with sorted object keys and a trailing
// newline, suitable as a hash input or a stable artifact serialization.
// encoding/json already sorts map keys and struct fields are emitted in
// declaration order, which is sufficient determinism for this harness's
// own types (they are not arbitrary user maps with unstable key order
// beyond what json.Marshal already guarantees).
func CanonicalJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(b)+1)
	out = append(out, b...)
	out = append(out, '\n')
	return out, nil
}

// CanonicalJSONIndent is CanonicalJSON with two-space indentation, used
// for on-disk artifacts that are meant to be human-readable.
func CanonicalJSONIndent(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(b)+1)
	out = append(out, b...)
	out = append(out, '\n')
	return out, nil
}
