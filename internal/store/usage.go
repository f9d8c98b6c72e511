package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nyashahama/smartsendr-backend/internal/db"
)

// ResetUsageParams selects the billing period being reset.
type ResetUsageParams struct {
	// PeriodStart is normalised to the first day of its UTC month.
	PeriodStart time.Time
	// Force resets even when the period was already recorded. The manual
	// reset endpoint sets it; the scheduler does not.
	Force bool
}

// ErrAlreadyReset is returned by ResetUsage when the period was already reset
// and Force is false. No counters are touched.
var ErrAlreadyReset = errors.New("store: usage already reset for period")

// PeriodStart returns the first instant of t's calendar month in UTC.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ResetUsage zeroes every profile's email_count and records the period in
// usage_resets within one transaction. It returns the number of profiles
// whose counter changed.
func (s *Store) ResetUsage(ctx context.Context, p ResetUsageParams) (int64, error) {
	period := PeriodStart(p.PeriodStart)
	var reset int64

	err := s.withTx(ctx, func(ctx context.Context, q db.Querier) error {
		n, err := q.ResetAllEmailCounts(ctx)
		if err != nil {
			return fmt.Errorf("ResetUsage: reset counters: %w", err)
		}
		reset = n

		_, err = q.InsertUsageReset(ctx, db.InsertUsageResetParams{
			PeriodStart:   period,
			ProfilesReset: n,
		})
		if errors.Is(err, sql.ErrNoRows) {
			if p.Force {
				return nil
			}
			return ErrAlreadyReset
		}
		if err != nil {
			return fmt.Errorf("ResetUsage: record period: %w", err)
		}
		return nil
	})

	if errors.Is(err, ErrAlreadyReset) {
		return 0, ErrAlreadyReset
	}
	if err != nil {
		return 0, err
	}
	return reset, nil
}

// PeriodAlreadyReset reports whether usage_resets holds a row for t's month.
func (s *Store) PeriodAlreadyReset(ctx context.Context, t time.Time) (bool, error) {
	latest, err := s.q.GetLatestUsageReset(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: latest usage reset: %w", err)
	}
	return !PeriodStart(latest.PeriodStart).Before(PeriodStart(t)), nil
}
