// Package stripe defines the interface for Stripe API calls and webhook
// verification, and provides the event helpers the billing webhook uses.
package stripe

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nyashahama/smartsendr-backend/internal/db"
)

// ─── TYPES ────────────────────────────────────────────────────────────────────

// CreateCustomerParams holds the inputs for creating a Stripe Customer.
type CreateCustomerParams struct {
	Email  string
	UserID string // stored as metadata so the dashboard links back to the user
}

// CheckoutParams holds the inputs for a subscription Checkout Session.
type CheckoutParams struct {
	CustomerID string
	PriceID    string
	UserID     string
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the subset of a Stripe Checkout Session callers need.
type CheckoutSession struct {
	ID  string
	URL string
}

// Event is a parsed Stripe webhook event. DataRaw contains the raw JSON of the
// event's data.object so handlers can unmarshal only what they need.
type Event struct {
	ID      string
	Type    string
	DataRaw json.RawMessage
}

// Subscription event types the webhook syncs.
const (
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// ─── CLIENT INTERFACE ─────────────────────────────────────────────────────────

// Client is the interface the api package uses for all Stripe calls.
// The concrete implementation wraps the official stripe-go SDK.
// Tests inject a stub.
type Client interface {
	// CreateCustomer creates a Customer and returns its ID.
	CreateCustomer(ctx context.Context, p CreateCustomerParams) (string, error)

	// CreateCheckoutSession starts a hosted subscription checkout.
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (CheckoutSession, error)

	// VerifyWebhook validates the Stripe-Signature header and returns the
	// parsed event. Returns an error if the signature is invalid or expired.
	VerifyWebhook(payload []byte, sigHeader string, secret string) (Event, error)
}

// ─── HELPERS USED BY api/ ────────────────────────────────────────────────────

// ToUpsertParams converts a parsed Event and its raw payload into the params
// needed by db.Querier.UpsertStripeEvent.
func ToUpsertParams(event Event, rawPayload []byte) db.UpsertStripeEventParams {
	return db.UpsertStripeEventParams{
		StripeEventID: event.ID,
		Type:          event.Type,
		Payload:       json.RawMessage(rawPayload),
	}
}

// ToMarkFailedParams builds the params for db.Querier.MarkStripeEventFailed.
func ToMarkFailedParams(eventID string, err error) db.MarkStripeEventFailedParams {
	return db.MarkStripeEventFailedParams{
		StripeEventID: eventID,
		Error:         sql.NullString{String: err.Error(), Valid: true},
	}
}

// Subscription is the state of a subscription carried by an event.
type Subscription struct {
	ID                string
	CustomerID        string
	Status            string
	PriceID           string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  time.Time // zero when absent
}

// ExtractSubscription reads the subscription object of a
// customer.subscription.* event. The period end is read from the first item
// and falls back to the top-level field older API versions send.
func ExtractSubscription(event Event) (Subscription, error) {
	var obj struct {
		ID                string          `json:"id"`
		Customer          json.RawMessage `json:"customer"`
		Status            string          `json:"status"`
		CancelAtPeriodEnd bool            `json:"cancel_at_period_end"`
		CurrentPeriodEnd  int64           `json:"current_period_end"`
		Items             struct {
			Data []struct {
				CurrentPeriodEnd int64 `json:"current_period_end"`
				Price            struct {
					ID string `json:"id"`
				} `json:"price"`
			} `json:"data"`
		} `json:"items"`
	}
	if err := json.Unmarshal(event.DataRaw, &obj); err != nil {
		return Subscription{}, fmt.Errorf("stripe: unmarshal subscription: %w", err)
	}
	if obj.ID == "" {
		return Subscription{}, fmt.Errorf("stripe: subscription id is empty in event %s", event.ID)
	}

	customerID, err := objectID(obj.Customer)
	if err != nil || customerID == "" {
		return Subscription{}, fmt.Errorf("stripe: no customer on subscription in event %s", event.ID)
	}

	sub := Subscription{
		ID:                obj.ID,
		CustomerID:        customerID,
		Status:            obj.Status,
		CancelAtPeriodEnd: obj.CancelAtPeriodEnd,
	}
	periodEnd := obj.CurrentPeriodEnd
	if len(obj.Items.Data) > 0 {
		sub.PriceID = obj.Items.Data[0].Price.ID
		if end := obj.Items.Data[0].CurrentPeriodEnd; end > 0 {
			periodEnd = end
		}
	}
	if periodEnd > 0 {
		sub.CurrentPeriodEnd = time.Unix(periodEnd, 0).UTC()
	}
	return sub, nil
}

// objectID accepts either an ID string or an expanded object with an id.
func objectID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id, nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", err
	}
	return obj.ID, nil
}
