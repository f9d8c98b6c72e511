package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const getActiveSubscriptionStatus = `-- name: GetActiveSubscriptionStatus :one
SELECT status
FROM subscriptions
WHERE user_id = $1 AND status IN ('trialing', 'active')
ORDER BY updated_at DESC
LIMIT 1
`

// GetActiveSubscriptionStatus returns sql.ErrNoRows for free-tier users.
func (q *Queries) GetActiveSubscriptionStatus(ctx context.Context, userID uuid.UUID) (string, error) {
	var status string
	err := q.db.QueryRowContext(ctx, getActiveSubscriptionStatus, userID).Scan(&status)
	return status, err
}

const upsertSubscription = `-- name: UpsertSubscription :one
INSERT INTO subscriptions (id, user_id, status, price_id, cancel_at_period_end, current_period_end)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
SET status = EXCLUDED.status,
    price_id = EXCLUDED.price_id,
    cancel_at_period_end = EXCLUDED.cancel_at_period_end,
    current_period_end = EXCLUDED.current_period_end,
    updated_at = now()
RETURNING id, user_id, status, price_id, cancel_at_period_end, current_period_end, created_at, updated_at
`

type UpsertSubscriptionParams struct {
	ID                string
	UserID            uuid.UUID
	Status            string
	PriceID           sql.NullString
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  sql.NullTime
}

func (q *Queries) UpsertSubscription(ctx context.Context, arg UpsertSubscriptionParams) (Subscription, error) {
	var s Subscription
	err := q.db.QueryRowContext(ctx, upsertSubscription,
		arg.ID, arg.UserID, arg.Status, arg.PriceID, arg.CancelAtPeriodEnd, arg.CurrentPeriodEnd,
	).Scan(
		&s.ID,
		&s.UserID,
		&s.Status,
		&s.PriceID,
		&s.CancelAtPeriodEnd,
		&s.CurrentPeriodEnd,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return s, err
}

const getCustomerByUserID = `-- name: GetCustomerByUserID :one
SELECT user_id, stripe_customer_id, created_at
FROM customers
WHERE user_id = $1
`

func (q *Queries) GetCustomerByUserID(ctx context.Context, userID uuid.UUID) (Customer, error) {
	var c Customer
	err := q.db.QueryRowContext(ctx, getCustomerByUserID, userID).
		Scan(&c.UserID, &c.StripeCustomerID, &c.CreatedAt)
	return c, err
}

const getCustomerByStripeID = `-- name: GetCustomerByStripeID :one
SELECT user_id, stripe_customer_id, created_at
FROM customers
WHERE stripe_customer_id = $1
`

func (q *Queries) GetCustomerByStripeID(ctx context.Context, stripeCustomerID string) (Customer, error) {
	var c Customer
	err := q.db.QueryRowContext(ctx, getCustomerByStripeID, stripeCustomerID).
		Scan(&c.UserID, &c.StripeCustomerID, &c.CreatedAt)
	return c, err
}

const insertCustomer = `-- name: InsertCustomer :one
INSERT INTO customers (user_id, stripe_customer_id)
VALUES ($1, $2)
RETURNING user_id, stripe_customer_id, created_at
`

type InsertCustomerParams struct {
	UserID           uuid.UUID
	StripeCustomerID string
}

func (q *Queries) InsertCustomer(ctx context.Context, arg InsertCustomerParams) (Customer, error) {
	var c Customer
	err := q.db.QueryRowContext(ctx, insertCustomer, arg.UserID, arg.StripeCustomerID).
		Scan(&c.UserID, &c.StripeCustomerID, &c.CreatedAt)
	return c, err
}

const stripeEventColumns = `stripe_event_id, type, payload, processed_at, error, created_at`

func scanStripeEvent(row *sql.Row) (StripeEvent, error) {
	var e StripeEvent
	err := row.Scan(
		&e.StripeEventID,
		&e.Type,
		&e.Payload,
		&e.ProcessedAt,
		&e.Error,
		&e.CreatedAt,
	)
	return e, err
}

const upsertStripeEvent = `-- name: UpsertStripeEvent :one
INSERT INTO stripe_events (stripe_event_id, type, payload)
VALUES ($1, $2, $3)
ON CONFLICT (stripe_event_id) DO NOTHING
RETURNING ` + stripeEventColumns

type UpsertStripeEventParams struct {
	StripeEventID string
	Type          string
	Payload       json.RawMessage
}

// UpsertStripeEvent returns sql.ErrNoRows when the event was already recorded.
func (q *Queries) UpsertStripeEvent(ctx context.Context, arg UpsertStripeEventParams) (StripeEvent, error) {
	payload := pqtype.NullRawMessage{RawMessage: arg.Payload, Valid: len(arg.Payload) > 0}
	return scanStripeEvent(q.db.QueryRowContext(ctx, upsertStripeEvent, arg.StripeEventID, arg.Type, payload))
}

const markStripeEventProcessed = `-- name: MarkStripeEventProcessed :one
UPDATE stripe_events
SET processed_at = now(), error = NULL
WHERE stripe_event_id = $1
RETURNING ` + stripeEventColumns

func (q *Queries) MarkStripeEventProcessed(ctx context.Context, stripeEventID string) (StripeEvent, error) {
	return scanStripeEvent(q.db.QueryRowContext(ctx, markStripeEventProcessed, stripeEventID))
}

const markStripeEventFailed = `-- name: MarkStripeEventFailed :one
UPDATE stripe_events
SET error = $2
WHERE stripe_event_id = $1
RETURNING ` + stripeEventColumns

type MarkStripeEventFailedParams struct {
	StripeEventID string
	Error         sql.NullString
}

func (q *Queries) MarkStripeEventFailed(ctx context.Context, arg MarkStripeEventFailedParams) (StripeEvent, error) {
	return scanStripeEvent(q.db.QueryRowContext(ctx, markStripeEventFailed, arg.StripeEventID, arg.Error))
}
