package failure

import "testing"

func TestClassificationTableMatchesSpec(t *testing.T) {
	cases := []struct {
		stage     Stage
		retryable bool
		rollback  bool
	}{
		{StagePreflight, false, false},
		{StageException, true, false},
		{StageLLMOutputInvalid, true, false},
		{StageWriteScope, true, false},
		{StageStaleContext, true, false},
		{StageWriteFailed, false, true},
		{StageVerifyFailed, true, true},
		{StageAcceptanceFailed, true, true},
	}
	for _, c := range cases {
		if got := c.stage.Retryable(); got != c.retryable {
			t.Errorf("%s.Retryable() = %v, want %v", c.stage, got, c.retryable)
		}
		if got := c.stage.RequiresRollback(); got != c.rollback {
			t.Errorf("%s.RequiresRollback() = %v, want %v", c.stage, got, c.rollback)
		}
	}
}

func TestNewTruncatesExcerpt(t *testing.T) {
	long := make([]byte, 3000)
	for i := range long {
		long[i] = 'x'
	}
	b := New(StageVerifyFailed, string(long))
	if len(b.PrimaryErrorExcerpt) != 2000 {
		t.Errorf("excerpt length = %d, want 2000", len(b.PrimaryErrorExcerpt))
	}
}

func TestWithCommand(t *testing.T) {
	b := New(StageAcceptanceFailed, "boom").WithCommand("pytest", 1)
	if b.Command != "pytest" {
		t.Errorf("Command = %q, want pytest", b.Command)
	}
	if b.ExitCode == nil || *b.ExitCode != 1 {
		t.Errorf("ExitCode = %v, want 1", b.ExitCode)
	}
}
