package quota

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nyashahama/smartsendr-backend/internal/db"
	"github.com/nyashahama/smartsendr-backend/internal/store"
)

// ─── STUBS ────────────────────────────────────────────────────────────────────

type stubQuerier struct {
	db.Querier

	mu         sync.Mutex
	counts     map[uuid.UUID]int32
	statuses   map[uuid.UUID]string
	profileErr error
	statusErr  error
	incErr     error
	incCalls   int
}

func newStubQuerier() *stubQuerier {
	return &stubQuerier{
		counts:   make(map[uuid.UUID]int32),
		statuses: make(map[uuid.UUID]string),
	}
}

func (q *stubQuerier) GetProfile(_ context.Context, id uuid.UUID) (db.Profile, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.profileErr != nil {
		return db.Profile{}, q.profileErr
	}
	n, ok := q.counts[id]
	if !ok {
		return db.Profile{}, sql.ErrNoRows
	}
	return db.Profile{ID: id, EmailCount: n}, nil
}

func (q *stubQuerier) GetActiveSubscriptionStatus(_ context.Context, id uuid.UUID) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.statusErr != nil {
		return "", q.statusErr
	}
	s, ok := q.statuses[id]
	if !ok {
		return "", sql.ErrNoRows
	}
	return s, nil
}

func (q *stubQuerier) IncrementEmailCount(_ context.Context, p db.IncrementEmailCountParams) (int32, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.incCalls++
	if q.incErr != nil {
		return 0, q.incErr
	}
	q.counts[p.ID] += p.Count
	return q.counts[p.ID], nil
}

type stubResetter struct {
	resetPeriods []store.ResetUsageParams
	done         bool
	resetErr     error
}

func (r *stubResetter) ResetUsage(_ context.Context, p store.ResetUsageParams) (int64, error) {
	if r.resetErr != nil {
		return 0, r.resetErr
	}
	r.resetPeriods = append(r.resetPeriods, p)
	r.done = true
	return 3, nil
}

func (r *stubResetter) PeriodAlreadyReset(_ context.Context, _ time.Time) (bool, error) {
	return r.done, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTracker(q *stubQuerier, r *stubResetter) *Tracker {
	var resetter Resetter
	if r != nil {
		resetter = r
	}
	t := NewTracker(q, resetter, discardLogger())
	t.now = func() time.Time { return time.Date(2026, time.May, 10, 12, 0, 0, 0, time.UTC) }
	return t
}

// ─── CheckEmailLimit ──────────────────────────────────────────────────────────

func TestCheckEmailLimit(t *testing.T) {
	tests := []struct {
		name    string
		used    int32
		status  string
		n       int
		allowed bool
	}{
		{"fresh free user", 0, "", 1, true},
		{"exactly enough remaining", 20, "", 5, true},
		{"one short", 21, "", 5, false},
		{"at limit", 25, "", 1, false},
		{"premium at limit", 25, db.SubscriptionStatusActive, 100, true},
		{"trialing counts as premium", 40, db.SubscriptionStatusTrialing, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newStubQuerier()
			user := uuid.New()
			q.counts[user] = tt.used
			if tt.status != "" {
				q.statuses[user] = tt.status
			}

			check, err := newTestTracker(q, nil).CheckEmailLimit(context.Background(), user, tt.n)
			if err != nil {
				t.Fatalf("CheckEmailLimit: %v", err)
			}
			if check.Allowed != tt.allowed {
				t.Fatalf("allowed: got %v, want %v", check.Allowed, tt.allowed)
			}
			if !tt.allowed {
				if check.Message != LimitMessage() {
					t.Errorf("message: got %q", check.Message)
				}
				if !errors.Is(check.Err(), ErrLimitExceeded) {
					t.Errorf("Err() should match ErrLimitExceeded, got %v", check.Err())
				}
			} else if check.Err() != nil {
				t.Errorf("Err() should be nil when allowed, got %v", check.Err())
			}
		})
	}
}

func TestCheckEmailLimit_RejectsNonPositiveCount(t *testing.T) {
	if _, err := newTestTracker(newStubQuerier(), nil).CheckEmailLimit(context.Background(), uuid.New(), 0); err == nil {
		t.Error("expected error for n=0")
	}
}

func TestLimitMessage(t *testing.T) {
	want := "You have reached your limit of 25 emails per month. Please upgrade to a premium plan to continue."
	if got := LimitMessage(); got != want {
		t.Errorf("got %q", got)
	}
}

// ─── UsageStats ───────────────────────────────────────────────────────────────

func TestUsageStats_FailsOpenOnReadError(t *testing.T) {
	q := newStubQuerier()
	q.profileErr = errors.New("connection reset")

	stats := newTestTracker(q, nil).UsageStats(context.Background(), uuid.New())
	if stats.EmailsUsed != 0 || stats.EmailsRemaining != FreeMonthlyLimit || stats.IsPremium {
		t.Errorf("unexpected fail-open stats: %+v", stats)
	}
}

func TestUsageStats_SubscriptionErrorTreatedAsFree(t *testing.T) {
	q := newStubQuerier()
	user := uuid.New()
	q.counts[user] = 10
	q.statusErr = errors.New("timeout")

	stats := newTestTracker(q, nil).UsageStats(context.Background(), user)
	if stats.IsPremium {
		t.Error("expected free tier on subscription read error")
	}
	if stats.EmailsRemaining != 15 {
		t.Errorf("remaining: got %d, want 15", stats.EmailsRemaining)
	}
}

func TestUsageStats_RemainingNeverNegative(t *testing.T) {
	q := newStubQuerier()
	user := uuid.New()
	q.counts[user] = 30

	stats := newTestTracker(q, nil).UsageStats(context.Background(), user)
	if stats.EmailsRemaining != 0 {
		t.Errorf("remaining: got %d, want 0", stats.EmailsRemaining)
	}
}

// ─── IncrementEmailUsage ──────────────────────────────────────────────────────

func TestIncrementEmailUsage_FreeUser(t *testing.T) {
	q := newStubQuerier()
	user := uuid.New()
	q.counts[user] = 4

	if err := newTestTracker(q, nil).IncrementEmailUsage(context.Background(), user, 3); err != nil {
		t.Fatalf("IncrementEmailUsage: %v", err)
	}
	if q.counts[user] != 7 {
		t.Errorf("count: got %d, want 7", q.counts[user])
	}
}

func TestIncrementEmailUsage_PremiumIsNoop(t *testing.T) {
	q := newStubQuerier()
	user := uuid.New()
	q.counts[user] = 4
	q.statuses[user] = db.SubscriptionStatusActive

	if err := newTestTracker(q, nil).IncrementEmailUsage(context.Background(), user, 3); err != nil {
		t.Fatalf("IncrementEmailUsage: %v", err)
	}
	if q.incCalls != 0 {
		t.Errorf("premium increment should not touch the counter, got %d calls", q.incCalls)
	}
}

func TestIncrementEmailUsage_ZeroIsNoop(t *testing.T) {
	q := newStubQuerier()
	if err := newTestTracker(q, nil).IncrementEmailUsage(context.Background(), uuid.New(), 0); err != nil {
		t.Fatalf("IncrementEmailUsage: %v", err)
	}
	if q.incCalls != 0 {
		t.Errorf("expected no increment, got %d calls", q.incCalls)
	}
}

func TestIncrementEmailUsage_ConcurrentIncrementsAllLand(t *testing.T) {
	q := newStubQuerier()
	user := uuid.New()
	q.counts[user] = 0
	tr := newTestTracker(q, nil)

	var wg sync.WaitGroup
	for j := 0; j < 10; j++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tr.IncrementEmailUsage(context.Background(), user, 2)
		}()
	}
	wg.Wait()

	if q.counts[user] != 20 {
		t.Errorf("count: got %d, want 20", q.counts[user])
	}
}

// ─── Reset ────────────────────────────────────────────────────────────────────

func TestResetMonthlyUsage_Forces(t *testing.T) {
	r := &stubResetter{done: true}
	n, err := newTestTracker(newStubQuerier(), r).ResetMonthlyUsage(context.Background())
	if err != nil {
		t.Fatalf("ResetMonthlyUsage: %v", err)
	}
	if n != 3 {
		t.Errorf("n: got %d", n)
	}
	if len(r.resetPeriods) != 1 || !r.resetPeriods[0].Force {
		t.Errorf("expected one forced reset, got %+v", r.resetPeriods)
	}
}

func TestResetIfDue_RunsOncePerPeriod(t *testing.T) {
	r := &stubResetter{}
	tr := newTestTracker(newStubQuerier(), r)

	_, ran, err := tr.ResetIfDue(context.Background())
	if err != nil || !ran {
		t.Fatalf("first: ran=%v err=%v", ran, err)
	}
	_, ran, err = tr.ResetIfDue(context.Background())
	if err != nil || ran {
		t.Fatalf("second: ran=%v err=%v", ran, err)
	}
	if len(r.resetPeriods) != 1 {
		t.Errorf("resets: got %d, want 1", len(r.resetPeriods))
	}
	if r.resetPeriods[0].Force {
		t.Error("scheduled reset must not force")
	}
}

func TestResetIfDue_LostRaceIsNotAnError(t *testing.T) {
	r := &stubResetter{resetErr: store.ErrAlreadyReset}
	_, ran, err := newTestTracker(newStubQuerier(), r).ResetIfDue(context.Background())
	if err != nil || ran {
		t.Errorf("ran=%v err=%v", ran, err)
	}
}

// ─── FormatUsageMessage ───────────────────────────────────────────────────────

func TestFormatUsageMessage(t *testing.T) {
	tests := []struct {
		stats Stats
		want  string
	}{
		{Stats{IsPremium: true, EmailsUsed: 80, EmailsRemaining: Unlimited}, "Unlimited emails available"},
		{Stats{EmailsUsed: 5, EmailsRemaining: 20}, "5/25 emails used this month"},
		{Stats{EmailsUsed: 7, EmailsRemaining: Unlimited}, "7 emails used this month"},
	}
	for _, tt := range tests {
		if got := FormatUsageMessage(tt.stats); got != tt.want {
			t.Errorf("FormatUsageMessage(%+v) = %q, want %q", tt.stats, got, tt.want)
		}
	}
}
