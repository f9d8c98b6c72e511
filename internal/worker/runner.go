// Package worker runs scheduled background jobs. The only job today is the
// monthly usage reset; the HTTP reset endpoint remains as a manual trigger.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// ─── RUNNER ───────────────────────────────────────────────────────────────────

// RunnerConfig holds tuning parameters for the Runner. Zero fields take the
// values of DefaultRunnerConfig.
type RunnerConfig struct {
	// PollInterval is how often the job runs. Default: 1h.
	PollInterval time.Duration

	// JobTimeout is the per-attempt context deadline. Default: 2 minutes.
	JobTimeout time.Duration

	// MaxRetries is the number of attempts per tick. Default: 3.
	MaxRetries int

	// BaseBackoff is the first retry delay; it doubles per attempt. Default: 2s.
	BaseBackoff time.Duration
}

// DefaultRunnerConfig returns safe production defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		PollInterval: time.Hour,
		JobTimeout:   2 * time.Minute,
		MaxRetries:   3,
		BaseBackoff:  2 * time.Second,
	}
}

// Runner executes a Job on a fixed interval with retries.
type Runner struct {
	job    Job
	cfg    RunnerConfig
	logger *slog.Logger
}

// NewRunner constructs a Runner. Call Start to begin.
func NewRunner(job Job, cfg RunnerConfig, logger *slog.Logger) *Runner {
	def := DefaultRunnerConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	return &Runner{job: job, cfg: cfg, logger: logger.With("job", job.Name())}
}

// Start runs the job immediately and then on every tick. It blocks until ctx
// is cancelled. Call it in a goroutine from main:
//
//	go runner.Start(ctx)
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("worker: starting", "poll_interval", r.cfg.PollInterval)
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("worker: stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce executes the job up to MaxRetries times and reports whether an
// attempt succeeded.
func (r *Runner) RunOnce(ctx context.Context) bool {
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		jobCtx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout)
		lastErr = r.job.Run(jobCtx)
		cancel()

		if lastErr == nil {
			return true
		}

		r.logger.Warn("worker: job attempt failed",
			"attempt", attempt,
			"max", r.cfg.MaxRetries,
			"error", lastErr,
		)

		if attempt < r.cfg.MaxRetries {
			// 2s, 4s, 8s with the default base.
			backoff := r.cfg.BaseBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return false
			case <-time.After(backoff):
			}
		}
	}

	r.logger.Error("worker: job failed, will retry next tick", "error", lastErr)
	return false
}
