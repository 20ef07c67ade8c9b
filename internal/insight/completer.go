// Package insight turns a bounded context bundle into typed insights by
// prompting a generative model and parsing its structured answer.
package insight

import (
	"context"
)

// CallOptions are per-call model parameters.
type CallOptions struct {
	Temperature float64
	MaxTokens   int
}

// Completer is the model capability the synthesizer depends on.
// Implementations must honor ctx cancellation and deadlines.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts CallOptions) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, prompt string, opts CallOptions) (string, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, prompt string, opts CallOptions) (string, error) {
	return f(ctx, prompt, opts)
}
