package ai

import (
	"context"
	"fmt"
	"log/slog"
)

// fallbackCompleter calls the primary Completer first; if that returns an
// error it logs the failure and tries the secondary.
type fallbackCompleter struct {
	primary   Completer
	secondary Completer
	logger    *slog.Logger
}

// NewFallbackCompleter returns a Completer that calls primary and, on
// failure, falls back to secondary. If primary is nil it goes straight to
// secondary; if secondary is nil and primary fails, the primary error is
// returned.
func NewFallbackCompleter(primary, secondary Completer, logger *slog.Logger) Completer {
	return &fallbackCompleter{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

func (f *fallbackCompleter) Complete(ctx context.Context, p Prompt) (string, error) {
	if f.primary != nil {
		text, err := f.primary.Complete(ctx, p)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		f.logger.Warn("ai: primary completer failed, trying secondary", "error", err)
		if f.secondary == nil {
			return "", fmt.Errorf("ai: primary failed and no secondary configured: %w", err)
		}
	}

	return f.secondary.Complete(ctx, p)
}
