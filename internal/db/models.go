package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// Subscription statuses that grant premium access.
const (
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusActive   = "active"
)

// ProviderGoogle is the provider key for Gmail tokens in user_tokens.
const ProviderGoogle = "google"

type Profile struct {
	ID         uuid.UUID
	Email      sql.NullString
	FullName   sql.NullString
	ResumePath sql.NullString
	EmailCount int32
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Contact struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Email     string
	Company   sql.NullString
	CreatedAt time.Time
	SentAt    sql.NullTime
}

type UserToken struct {
	UserID       uuid.UUID
	Provider     string
	AccessToken  string
	RefreshToken sql.NullString
	ExpiresAt    sql.NullTime
	UpdatedAt    time.Time
}

type Customer struct {
	UserID           uuid.UUID
	StripeCustomerID string
	CreatedAt        time.Time
}

type Subscription struct {
	ID                string
	UserID            uuid.UUID
	Status            string
	PriceID           sql.NullString
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  sql.NullTime
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type StripeEvent struct {
	StripeEventID string
	Type          string
	Payload       pqtype.NullRawMessage
	ProcessedAt   sql.NullTime
	Error         sql.NullString
	CreatedAt     time.Time
}

type UsageReset struct {
	PeriodStart   time.Time
	ProfilesReset int64
	ResetAt       time.Time
}
