package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type flakyJob struct {
	failures int
	calls    int
}

func (j *flakyJob) Name() string { return "flaky" }

func (j *flakyJob) Run(context.Context) error {
	j.calls++
	if j.calls <= j.failures {
		return errors.New("transient")
	}
	return nil
}

func fastConfig() RunnerConfig {
	return RunnerConfig{PollInterval: time.Hour, JobTimeout: time.Second, MaxRetries: 3, BaseBackoff: time.Millisecond}
}

func TestRunOnce_RetriesUntilSuccess(t *testing.T) {
	job := &flakyJob{failures: 2}
	if !NewRunner(job, fastConfig(), discardLogger()).RunOnce(context.Background()) {
		t.Error("RunOnce = false, want true")
	}
	if job.calls != 3 {
		t.Errorf("calls = %d, want 3", job.calls)
	}
}

func TestRunOnce_GivesUpAfterMaxRetries(t *testing.T) {
	job := &flakyJob{failures: 10}
	if NewRunner(job, fastConfig(), discardLogger()).RunOnce(context.Background()) {
		t.Error("RunOnce = true, want false")
	}
	if job.calls != 3 {
		t.Errorf("calls = %d, want 3", job.calls)
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	job := &flakyJob{}
	done := make(chan struct{})
	go func() {
		NewRunner(job, fastConfig(), discardLogger()).Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

type stubResetter struct {
	ran bool
	err error
}

func (s stubResetter) ResetIfDue(context.Context) (int64, bool, error) {
	if s.err != nil {
		return 0, false, s.err
	}
	if s.ran {
		return 12, true, nil
	}
	return 0, false, nil
}

func TestResetJob(t *testing.T) {
	for _, tc := range []struct {
		name    string
		r       stubResetter
		wantErr bool
	}{
		{"reset ran", stubResetter{ran: true}, false},
		{"already reset", stubResetter{}, false},
		{"store error", stubResetter{err: errors.New("db down")}, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := NewResetJob(tc.r, discardLogger()).Run(context.Background())
			if (err != nil) != tc.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
