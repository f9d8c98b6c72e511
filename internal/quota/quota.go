// Package quota enforces the free-tier monthly email allowance.
//
// Premium users (subscription status trialing or active) are never limited
// and never counted. Free users may send FreeMonthlyLimit AI emails per
// calendar month; the counter lives in profiles.email_count and is zeroed by
// the monthly reset.
package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nyashahama/smartsendr-backend/internal/db"
	"github.com/nyashahama/smartsendr-backend/internal/store"
)

// FreeMonthlyLimit is the number of AI emails a free user may send per month.
const FreeMonthlyLimit = 25

// freeContactsPerUpload caps a single CSV import for free users.
const freeContactsPerUpload = 50

// Unlimited is reported in Stats for premium users.
const Unlimited = -1

// Stats is a user's usage snapshot.
type Stats struct {
	EmailsUsed        int  `json:"emailsUsed"`
	EmailsRemaining   int  `json:"emailsRemaining"`
	ContactsUploaded  int  `json:"contactsUploaded"`
	ContactsRemaining int  `json:"contactsRemaining"`
	IsPremium         bool `json:"isPremium"`
}

// freeDefault is reported when usage cannot be read.
func freeDefault() Stats {
	return Stats{
		EmailsRemaining:   FreeMonthlyLimit,
		ContactsRemaining: freeContactsPerUpload,
	}
}

// Check is the outcome of CheckEmailLimit.
type Check struct {
	Allowed bool
	Message string // set when !Allowed
	Stats   Stats
}

// Err returns nil when the check passed and a *LimitError otherwise.
func (c Check) Err() error {
	if c.Allowed {
		return nil
	}
	return &LimitError{Message: c.Message, Stats: c.Stats}
}

// ErrLimitExceeded matches any *LimitError via errors.Is.
var ErrLimitExceeded = errors.New("quota: monthly email limit exceeded")

// LimitError carries the usage snapshot that caused a rejection.
type LimitError struct {
	Message string
	Stats   Stats
}

func (e *LimitError) Error() string { return e.Message }

func (e *LimitError) Is(target error) bool { return target == ErrLimitExceeded }

// Resetter zeroes usage counters for a period. *store.Store satisfies it.
type Resetter interface {
	ResetUsage(ctx context.Context, p store.ResetUsageParams) (int64, error)
	PeriodAlreadyReset(ctx context.Context, t time.Time) (bool, error)
}

// Tracker reads and records per-user email usage.
type Tracker struct {
	q        db.Querier
	resetter Resetter
	logger   *slog.Logger
	now      func() time.Time
}

// NewTracker returns a Tracker. resetter may be nil when the caller never
// resets usage (tests, read-only tools).
func NewTracker(q db.Querier, resetter Resetter, logger *slog.Logger) *Tracker {
	return &Tracker{q: q, resetter: resetter, logger: logger, now: time.Now}
}

// IsPremium reports whether the user holds a trialing or active subscription.
func (t *Tracker) IsPremium(ctx context.Context, userID uuid.UUID) (bool, error) {
	status, err := t.q.GetActiveSubscriptionStatus(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("quota: subscription status: %w", err)
	}
	return status == db.SubscriptionStatusTrialing || status == db.SubscriptionStatusActive, nil
}

// UsageStats returns the user's usage snapshot. Read failures are logged and
// reported as an unused free allowance so that a database hiccup never locks
// a user out.
func (t *Tracker) UsageStats(ctx context.Context, userID uuid.UUID) Stats {
	profile, err := t.q.GetProfile(ctx, userID)
	if err != nil {
		t.logger.Warn("quota: read profile failed, failing open", "user_id", userID, "error", err)
		return freeDefault()
	}

	premium, err := t.IsPremium(ctx, userID)
	if err != nil {
		t.logger.Warn("quota: read subscription failed, treating as free", "user_id", userID, "error", err)
	}

	used := int(profile.EmailCount)
	if premium {
		return Stats{
			EmailsUsed:        used,
			EmailsRemaining:   Unlimited,
			ContactsRemaining: Unlimited,
			IsPremium:         true,
		}
	}
	return Stats{
		EmailsUsed:        used,
		EmailsRemaining:   max(0, FreeMonthlyLimit-used),
		ContactsRemaining: freeContactsPerUpload,
	}
}

// CheckEmailLimit reports whether the user may send n more emails.
func (t *Tracker) CheckEmailLimit(ctx context.Context, userID uuid.UUID, n int) (Check, error) {
	if n < 1 {
		return Check{}, fmt.Errorf("quota: email count must be positive, got %d", n)
	}

	stats := t.UsageStats(ctx, userID)
	if stats.IsPremium || stats.EmailsRemaining >= n {
		return Check{Allowed: true, Stats: stats}, nil
	}
	return Check{
		Allowed: false,
		Message: LimitMessage(),
		Stats:   stats,
	}, nil
}

// IncrementEmailUsage adds n to a free user's counter. It is a no-op for
// premium users and for n <= 0.
func (t *Tracker) IncrementEmailUsage(ctx context.Context, userID uuid.UUID, n int) error {
	if n <= 0 {
		return nil
	}
	premium, err := t.IsPremium(ctx, userID)
	if err != nil {
		return err
	}
	if premium {
		return nil
	}

	if _, err := t.q.IncrementEmailCount(ctx, db.IncrementEmailCountParams{
		ID:    userID,
		Count: int32(n),
	}); err != nil {
		return fmt.Errorf("quota: increment usage: %w", err)
	}
	return nil
}

// ResetMonthlyUsage zeroes every user's counter unconditionally and records
// the current period.
func (t *Tracker) ResetMonthlyUsage(ctx context.Context) (int64, error) {
	if t.resetter == nil {
		return 0, errors.New("quota: no resetter configured")
	}
	n, err := t.resetter.ResetUsage(ctx, store.ResetUsageParams{
		PeriodStart: t.now(),
		Force:       true,
	})
	if err != nil {
		return 0, fmt.Errorf("quota: reset usage: %w", err)
	}
	t.logger.Info("quota: monthly usage reset", "profiles_reset", n)
	return n, nil
}

// ResetIfDue resets usage once per calendar month. It reports whether a reset
// ran; a period that was already reset returns (0, false, nil).
func (t *Tracker) ResetIfDue(ctx context.Context) (int64, bool, error) {
	if t.resetter == nil {
		return 0, false, errors.New("quota: no resetter configured")
	}
	now := t.now()
	done, err := t.resetter.PeriodAlreadyReset(ctx, now)
	if err != nil {
		return 0, false, err
	}
	if done {
		return 0, false, nil
	}

	n, err := t.resetter.ResetUsage(ctx, store.ResetUsageParams{PeriodStart: now})
	if errors.Is(err, store.ErrAlreadyReset) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("quota: scheduled reset: %w", err)
	}
	t.logger.Info("quota: scheduled usage reset", "period", store.PeriodStart(now).Format("2006-01"), "profiles_reset", n)
	return n, true, nil
}

// LimitMessage is the user-facing rejection text for free users.
func LimitMessage() string {
	return fmt.Sprintf("You have reached your limit of %d emails per month. Please upgrade to a premium plan to continue.", FreeMonthlyLimit)
}

// FormatUsageMessage renders stats for display.
func FormatUsageMessage(s Stats) string {
	if s.IsPremium {
		return "Unlimited emails available"
	}
	if s.EmailsRemaining == Unlimited {
		return fmt.Sprintf("%d emails used this month", s.EmailsUsed)
	}
	return fmt.Sprintf("%d/%d emails used this month", s.EmailsUsed, s.EmailsUsed+s.EmailsRemaining)
}
