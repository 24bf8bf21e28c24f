// Package failure defines the bounded diagnostic (FailureBrief) that
// surfaces every non-PASS outcome from any factory stage and seeds the
// next attempt's prompt.
package failure

// Stage identifies which factory node produced a FailureBrief.
type Stage string

const (
	StagePreflight        Stage = "preflight"
	StageException        Stage = "exception"
	StageLLMOutputInvalid Stage = "llm_output_invalid"
	StageWriteScope       Stage = "write_scope_violation"
	StageStaleContext     Stage = "stale_context"
	StageWriteFailed      Stage = "write_failed"
	StageVerifyFailed     Stage = "verify_failed"
	StageAcceptanceFailed Stage = "acceptance_failed"
)

// primaryErrorExcerptLimit bounds FailureBrief.PrimaryErrorExcerpt.
const primaryErrorExcerptLimit = 2000

// classification captures the two booleans spec.md §7 assigns to each
// stage: whether the state machine may re-enter SE for another attempt,
// and whether Finalize must roll the working tree back to baseline.
type classification struct {
	retryable bool
	rollback  bool
}

var classifications = map[Stage]classification{
	StagePreflight:        {retryable: false, rollback: false},
	StageException:        {retryable: true, rollback: false},
	StageLLMOutputInvalid: {retryable: true, rollback: false},
	StageWriteScope:       {retryable: true, rollback: false},
	StageStaleContext:     {retryable: true, rollback: false},
	StageWriteFailed:      {retryable: false, rollback: true},
	StageVerifyFailed:     {retryable: true, rollback: true},
	StageAcceptanceFailed: {retryable: true, rollback: true},
}

// Retryable reports whether the state machine may attempt SE again after
// a FailureBrief with this stage.
func (s Stage) Retryable() bool {
	return classifications[s].retryable
}

// RequiresRollback reports whether Finalize must reset the working tree
// to baseline after a FailureBrief with this stage.
func (s Stage) RequiresRollback() bool {
	return classifications[s].rollback
}

// Brief is the bounded diagnostic produced by any factory stage on
// failure. Exactly one Brief exists per failing attempt.
type Brief struct {
	Stage               Stage  `json:"stage"`
	Command             string `json:"command,omitempty"`
	ExitCode            *int   `json:"exit_code,omitempty"`
	PrimaryErrorExcerpt string `json:"primary_error_excerpt"`
	ConstraintsReminder string `json:"constraints_reminder,omitempty"`
}

// New builds a Brief, truncating the excerpt to the contractual bound.
func New(stage Stage, excerpt string) *Brief {
	return &Brief{Stage: stage, PrimaryErrorExcerpt: truncate(excerpt, primaryErrorExcerptLimit)}
}

// WithCommand attaches the failing command and exit code.
func (b *Brief) WithCommand(command string, exitCode int) *Brief {
	b.Command = command
	ec := exitCode
	b.ExitCode = &ec
	return b
}

// WithConstraintsReminder attaches free text reiterating the work order's
// constraints, carried into the next SE prompt.
func (b *Brief) WithConstraintsReminder(reminder string) *Brief {
	b.ConstraintsReminder = reminder
	return b
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
