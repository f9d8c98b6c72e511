package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nyashahama/smartsendr-backend/internal/db"
)

// ─── INPUT TYPES ─────────────────────────────────────────────────────────────

// SyncSubscriptionParams is the subset of a Stripe subscription object that
// drives premium access.
type SyncSubscriptionParams struct {
	SubscriptionID    string
	StripeCustomerID  string
	Status            string
	PriceID           string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  time.Time // zero when unknown
}

// ─── ERRORS ──────────────────────────────────────────────────────────────────

// ErrUnknownCustomer is returned when a subscription event names a Stripe
// customer that was never linked to a user through checkout.
var ErrUnknownCustomer = errors.New("store: stripe customer not linked to any user")

// ─── METHODS ─────────────────────────────────────────────────────────────────

// LinkCustomer returns the Stripe customer ID already linked to userID, or
// calls create to make one and links it. Under serializable isolation two
// concurrent checkouts for the same user cannot both insert a mapping.
func (s *Store) LinkCustomer(ctx context.Context, userID uuid.UUID, create func(ctx context.Context) (string, error)) (string, error) {
	var customerID string

	err := s.withTx(ctx, func(ctx context.Context, q db.Querier) error {
		existing, err := q.GetCustomerByUserID(ctx, userID)
		if err == nil {
			customerID = existing.StripeCustomerID
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("LinkCustomer: get customer: %w", err)
		}

		id, err := create(ctx)
		if err != nil {
			return fmt.Errorf("LinkCustomer: create customer: %w", err)
		}

		if _, err := q.InsertCustomer(ctx, db.InsertCustomerParams{
			UserID:           userID,
			StripeCustomerID: id,
		}); err != nil {
			return fmt.Errorf("LinkCustomer: insert customer: %w", err)
		}
		customerID = id
		return nil
	})
	if err != nil {
		return "", err
	}
	return customerID, nil
}

// SyncSubscription resolves the owning user from the Stripe customer and
// upserts the subscription row.
func (s *Store) SyncSubscription(ctx context.Context, p SyncSubscriptionParams) (db.Subscription, error) {
	var sub db.Subscription

	err := s.withTx(ctx, func(ctx context.Context, q db.Querier) error {
		cust, err := q.GetCustomerByStripeID(ctx, p.StripeCustomerID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUnknownCustomer
		}
		if err != nil {
			return fmt.Errorf("SyncSubscription: get customer: %w", err)
		}

		sub, err = q.UpsertSubscription(ctx, db.UpsertSubscriptionParams{
			ID:                p.SubscriptionID,
			UserID:            cust.UserID,
			Status:            p.Status,
			PriceID:           sql.NullString{String: p.PriceID, Valid: p.PriceID != ""},
			CancelAtPeriodEnd: p.CancelAtPeriodEnd,
			CurrentPeriodEnd:  sql.NullTime{Time: p.CurrentPeriodEnd, Valid: !p.CurrentPeriodEnd.IsZero()},
		})
		if err != nil {
			return fmt.Errorf("SyncSubscription: upsert subscription: %w", err)
		}
		return nil
	})

	if errors.Is(err, ErrUnknownCustomer) {
		return db.Subscription{}, ErrUnknownCustomer
	}
	if err != nil {
		return db.Subscription{}, err
	}
	return sub, nil
}
