package stripe_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	stripeinternal "github.com/nyashahama/smartsendr-backend/internal/stripe"
)

// ─── ExtractSubscription ──────────────────────────────────────────────────────

func TestExtractSubscription_ItemPeriodEnd(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"id":                   "sub_123",
		"object":               "subscription",
		"customer":             "cus_abc",
		"status":               "active",
		"cancel_at_period_end": true,
		"items": map[string]any{
			"data": []map[string]any{{
				"current_period_end": 1767225600,
				"price":              map[string]any{"id": "price_premium"},
			}},
		},
	})
	event := stripeinternal.Event{ID: "evt_1", Type: stripeinternal.EventSubscriptionUpdated, DataRaw: raw}

	sub, err := stripeinternal.ExtractSubscription(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := stripeinternal.Subscription{
		ID:                "sub_123",
		CustomerID:        "cus_abc",
		Status:            "active",
		PriceID:           "price_premium",
		CancelAtPeriodEnd: true,
		CurrentPeriodEnd:  time.Unix(1767225600, 0).UTC(),
	}
	if sub != want {
		t.Errorf("got %+v, want %+v", sub, want)
	}
}

func TestExtractSubscription_LegacyPeriodEndAndExpandedCustomer(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"id":                 "sub_9",
		"customer":           map[string]any{"id": "cus_x", "object": "customer"},
		"status":             "canceled",
		"current_period_end": 1700000000,
	})
	sub, err := stripeinternal.ExtractSubscription(stripeinternal.Event{DataRaw: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.CustomerID != "cus_x" {
		t.Errorf("customer = %q", sub.CustomerID)
	}
	if !sub.CurrentPeriodEnd.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("period end = %v", sub.CurrentPeriodEnd)
	}
}

func TestExtractSubscription_Errors(t *testing.T) {
	cases := map[string]string{
		"malformed":   `{bad json`,
		"empty id":    `{"id":"","customer":"cus_1"}`,
		"no customer": `{"id":"sub_1"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := stripeinternal.ExtractSubscription(stripeinternal.Event{DataRaw: json.RawMessage(raw)}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// ─── DB PARAM HELPERS ─────────────────────────────────────────────────────────

func TestToUpsertParams(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	p := stripeinternal.ToUpsertParams(stripeinternal.Event{ID: "evt_1", Type: "customer.subscription.created"}, payload)
	if p.StripeEventID != "evt_1" || p.Type != "customer.subscription.created" || string(p.Payload) != string(payload) {
		t.Errorf("params = %+v", p)
	}
}

func TestToMarkFailedParams(t *testing.T) {
	p := stripeinternal.ToMarkFailedParams("evt_1", errors.New("boom"))
	if p.StripeEventID != "evt_1" || !p.Error.Valid || p.Error.String != "boom" {
		t.Errorf("params = %+v", p)
	}
}
