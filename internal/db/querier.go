package db

import (
	"context"

	"github.com/google/uuid"
)

// Querier lists every single-statement query the application runs.
type Querier interface {
	// profiles
	GetProfile(ctx context.Context, id uuid.UUID) (Profile, error)
	EnsureProfile(ctx context.Context, arg EnsureProfileParams) (Profile, error)
	SetResumePath(ctx context.Context, arg SetResumePathParams) (Profile, error)
	ClearResumePathIfActive(ctx context.Context, arg ClearResumePathIfActiveParams) (int64, error)
	IncrementEmailCount(ctx context.Context, arg IncrementEmailCountParams) (int32, error)
	ResetAllEmailCounts(ctx context.Context) (int64, error)
	InsertUsageReset(ctx context.Context, arg InsertUsageResetParams) (UsageReset, error)
	GetLatestUsageReset(ctx context.Context) (UsageReset, error)

	// contacts
	GetContact(ctx context.Context, arg GetContactParams) (Contact, error)
	GetContactsByIDs(ctx context.Context, arg GetContactsByIDsParams) ([]Contact, error)
	ListContacts(ctx context.Context, userID uuid.UUID) ([]Contact, error)
	CreateContact(ctx context.Context, arg CreateContactParams) (Contact, error)
	MarkContactsSent(ctx context.Context, arg MarkContactsSentParams) (int64, error)

	// user_tokens
	GetUserToken(ctx context.Context, arg GetUserTokenParams) (UserToken, error)
	UpsertUserToken(ctx context.Context, arg UpsertUserTokenParams) (UserToken, error)
	UpdateUserTokenCredentials(ctx context.Context, arg UpdateUserTokenCredentialsParams) (UserToken, error)

	// billing
	GetActiveSubscriptionStatus(ctx context.Context, userID uuid.UUID) (string, error)
	UpsertSubscription(ctx context.Context, arg UpsertSubscriptionParams) (Subscription, error)
	GetCustomerByUserID(ctx context.Context, userID uuid.UUID) (Customer, error)
	GetCustomerByStripeID(ctx context.Context, stripeCustomerID string) (Customer, error)
	InsertCustomer(ctx context.Context, arg InsertCustomerParams) (Customer, error)
	UpsertStripeEvent(ctx context.Context, arg UpsertStripeEventParams) (StripeEvent, error)
	MarkStripeEventProcessed(ctx context.Context, stripeEventID string) (StripeEvent, error)
	MarkStripeEventFailed(ctx context.Context, arg MarkStripeEventFailedParams) (StripeEvent, error)
}
