// Package llm defines the single capability the factory core depends on:
// given a prompt, return a completion, or fail synchronously. Transport,
// provider selection, and retries are the Planner/caller's concern; the
// core only ever calls Complete once per attempt.
package llm

import (
	"context"
	"time"
)

// Request is the full set of parameters SE passes to the LLM for one
// completion call.
type Request struct {
	Prompt      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Client is the single-capability LLM transport. Implementations may
// wrap any provider; the factory never inspects provider-specific
// response fields.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Func adapts a plain function to Client, the same pattern the teacher
// uses for ProviderAdapter test doubles — useful for tests and for
// wrapping a single closed-over provider call without defining a named
// type.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
