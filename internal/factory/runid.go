package factory

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// runIDEntropy is shared by every NewRunID call so that IDs generated
// within the same millisecond still increase strictly; ulid.Monotonic is
// not safe for concurrent use, hence the mutex.
var (
	runIDEntropyMu sync.Mutex
	runIDEntropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewRunID returns a new sortable run identifier. ULID was chosen over a
// plain UUID specifically because artifact directories sort lexically by
// run_id, and a resumed or re-listed <out>/ tree should read newest-last
// without needing to stat mtimes — see SPEC_FULL.md's run ID scheme
// decision.
func NewRunID(now time.Time) (string, error) {
	runIDEntropyMu.Lock()
	defer runIDEntropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(now), runIDEntropy)
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id.String(), nil
}
