// Package ai defines the text-completion interface the draft generator uses
// and provides Gemini and Anthropic implementations plus a fallback wrapper.
package ai

import (
	"context"
	"errors"
)

// Prompt is a single-turn completion request.
type Prompt struct {
	// System sets the model's role. May be empty.
	System string
	// User is the instruction text.
	User string
	// MaxTokens caps the output length. Zero uses the client default.
	MaxTokens int
}

// Completer turns a prompt into plain text.
//
// Implementations must be safe to call concurrently. An empty completion is
// reported as ErrEmptyCompletion, never as ("", nil).
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// ErrEmptyCompletion is returned when the provider answered without text.
var ErrEmptyCompletion = errors.New("ai: empty completion")

const defaultMaxTokens = 512

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, p Prompt) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, p Prompt) (string, error) { return f(ctx, p) }
