package worker

import (
	"context"
	"log/slog"
)

// Job is one unit of scheduled work. Run is retried by the Runner when it
// returns an error.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// UsageResetter is the subset of *quota.Tracker the reset job needs.
type UsageResetter interface {
	ResetIfDue(ctx context.Context) (int64, bool, error)
}

// ResetJob zeroes free-tier usage once per calendar month. Runs after the
// first in a month are no-ops.
type ResetJob struct {
	tracker UsageResetter
	logger  *slog.Logger
}

// NewResetJob returns a ResetJob over tracker.
func NewResetJob(tracker UsageResetter, logger *slog.Logger) *ResetJob {
	return &ResetJob{tracker: tracker, logger: logger}
}

func (j *ResetJob) Name() string { return "usage_reset" }

// Run resets usage if the current month has not been reset yet.
func (j *ResetJob) Run(ctx context.Context) error {
	n, ran, err := j.tracker.ResetIfDue(ctx)
	if err != nil {
		return err
	}
	if ran {
		j.logger.Info("job: monthly usage reset", "profiles_reset", n)
		return nil
	}
	j.logger.Debug("job: usage already reset this month")
	return nil
}
