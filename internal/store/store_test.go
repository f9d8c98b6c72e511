package store_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/nyashahama/smartsendr-backend/internal/db"
	"github.com/nyashahama/smartsendr-backend/internal/store"
)

// ─── TEST INFRASTRUCTURE ──────────────────────────────────────────────────────

// openTestDB returns a migrated *sql.DB from DATABASE_URL. Skips if the env
// var is not set so the suite still passes without a Postgres instance.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping store integration tests")
	}
	if _, err := db.Migrate(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if err := pool.PingContext(context.Background()); err != nil {
		pool.Close()
		t.Fatalf("ping: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}

func seedProfile(t *testing.T, ctx context.Context, pool *sql.DB, q db.Querier) db.Profile {
	t.Helper()
	p, err := q.EnsureProfile(ctx, db.EnsureProfileParams{
		ID:    uuid.New(),
		Email: sql.NullString{String: "owner@example.com", Valid: true},
	})
	if err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	t.Cleanup(func() { _, _ = pool.ExecContext(ctx, "DELETE FROM profiles WHERE id=$1", p.ID) })
	return p
}

// farPeriod picks a month no real reset will ever record.
func farPeriod(t *testing.T) time.Time {
	t.Helper()
	return time.Date(1900+int(uuid.New().ID()%100), time.Month(1+uuid.New().ID()%12), 15, 0, 0, 0, 0, time.UTC)
}

// ─── ResetUsage ───────────────────────────────────────────────────────────────

func TestResetUsage_ZeroesCountersAndRecordsPeriod(t *testing.T) {
	pool := openTestDB(t)
	ctx := context.Background()
	q := db.New(pool)
	st := store.New(pool, q)

	p := seedProfile(t, ctx, pool, q)
	if _, err := q.IncrementEmailCount(ctx, db.IncrementEmailCountParams{ID: p.ID, Count: 7}); err != nil {
		t.Fatalf("increment: %v", err)
	}

	period := farPeriod(t)
	t.Cleanup(func() {
		_, _ = pool.ExecContext(ctx, "DELETE FROM usage_resets WHERE period_start=$1", store.PeriodStart(period))
	})

	n, err := st.ResetUsage(ctx, store.ResetUsageParams{PeriodStart: period})
	if err != nil {
		t.Fatalf("ResetUsage: %v", err)
	}
	if n < 1 {
		t.Errorf("expected at least one profile reset, got %d", n)
	}

	got, err := q.GetProfile(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got.EmailCount != 0 {
		t.Errorf("email_count: got %d, want 0", got.EmailCount)
	}
}

func TestResetUsage_SecondRunForPeriodReturnsErrAlreadyReset(t *testing.T) {
	pool := openTestDB(t)
	ctx := context.Background()
	q := db.New(pool)
	st := store.New(pool, q)

	period := farPeriod(t)
	t.Cleanup(func() {
		_, _ = pool.ExecContext(ctx, "DELETE FROM usage_resets WHERE period_start=$1", store.PeriodStart(period))
	})

	if _, err := st.ResetUsage(ctx, store.ResetUsageParams{PeriodStart: period}); err != nil {
		t.Fatalf("first reset: %v", err)
	}

	p := seedProfile(t, ctx, pool, q)
	if _, err := q.IncrementEmailCount(ctx, db.IncrementEmailCountParams{ID: p.ID, Count: 3}); err != nil {
		t.Fatalf("increment: %v", err)
	}

	_, err := st.ResetUsage(ctx, store.ResetUsageParams{PeriodStart: period})
	if !errors.Is(err, store.ErrAlreadyReset) {
		t.Fatalf("expected ErrAlreadyReset, got %v", err)
	}

	// The rolled-back transaction must leave the counter untouched.
	got, err := q.GetProfile(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got.EmailCount != 3 {
		t.Errorf("email_count: got %d, want 3", got.EmailCount)
	}

	if _, err := st.ResetUsage(ctx, store.ResetUsageParams{PeriodStart: period, Force: true}); err != nil {
		t.Fatalf("forced reset: %v", err)
	}
}

func TestPeriodStart(t *testing.T) {
	in := time.Date(2026, time.March, 31, 23, 59, 0, 0, time.FixedZone("x", -5*3600))
	want := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	if got := store.PeriodStart(in); !got.Equal(want) {
		t.Errorf("got %s, want %s", got, want)
	}
}

// ─── Billing ──────────────────────────────────────────────────────────────────

func TestLinkCustomer_CreatesOnceThenReuses(t *testing.T) {
	pool := openTestDB(t)
	ctx := context.Background()
	q := db.New(pool)
	st := store.New(pool, q)
	p := seedProfile(t, ctx, pool, q)

	calls := 0
	create := func(context.Context) (string, error) {
		calls++
		return "cus_" + p.ID.String(), nil
	}

	first, err := st.LinkCustomer(ctx, p.ID, create)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := st.LinkCustomer(ctx, p.ID, create)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first != second {
		t.Errorf("customer IDs differ: %s vs %s", first, second)
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}
}

func TestSyncSubscription_UnknownCustomer(t *testing.T) {
	pool := openTestDB(t)
	ctx := context.Background()
	st := store.New(pool, db.New(pool))

	_, err := st.SyncSubscription(ctx, store.SyncSubscriptionParams{
		SubscriptionID:   "sub_unknown_" + uuid.NewString(),
		StripeCustomerID: "cus_missing_" + uuid.NewString(),
		Status:           "active",
	})
	if !errors.Is(err, store.ErrUnknownCustomer) {
		t.Errorf("expected ErrUnknownCustomer, got %v", err)
	}
}

func TestSyncSubscription_ActiveMakesUserPremium(t *testing.T) {
	pool := openTestDB(t)
	ctx := context.Background()
	q := db.New(pool)
	st := store.New(pool, q)
	p := seedProfile(t, ctx, pool, q)

	custID := "cus_sync_" + p.ID.String()
	if _, err := st.LinkCustomer(ctx, p.ID, func(context.Context) (string, error) { return custID, nil }); err != nil {
		t.Fatalf("link: %v", err)
	}

	sub, err := st.SyncSubscription(ctx, store.SyncSubscriptionParams{
		SubscriptionID:   "sub_" + p.ID.String(),
		StripeCustomerID: custID,
		Status:           db.SubscriptionStatusActive,
		CurrentPeriodEnd: time.Now().Add(30 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("SyncSubscription: %v", err)
	}
	if sub.UserID != p.ID {
		t.Errorf("user mismatch: %s", sub.UserID)
	}

	status, err := q.GetActiveSubscriptionStatus(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetActiveSubscriptionStatus: %v", err)
	}
	if status != db.SubscriptionStatusActive {
		t.Errorf("status: got %q", status)
	}

	if _, err := st.SyncSubscription(ctx, store.SyncSubscriptionParams{
		SubscriptionID:   sub.ID,
		StripeCustomerID: custID,
		Status:           "canceled",
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := q.GetActiveSubscriptionStatus(ctx, p.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected no active subscription after cancel, got %v", err)
	}
}
