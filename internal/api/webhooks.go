package api

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/nyashahama/smartsendr-backend/internal/db"
	"github.com/nyashahama/smartsendr-backend/internal/email"
	"github.com/nyashahama/smartsendr-backend/internal/send"
	"github.com/nyashahama/smartsendr-backend/internal/store"
	stripeinternal "github.com/nyashahama/smartsendr-backend/internal/stripe"
)

// ─── POST /api/webhooks/stripe ────────────────────────────────────────────────

// handleStripeWebhook is the entry point for all Stripe webhook deliveries.
//
// Stripe delivers events at-least-once and may retry on non-2xx responses.
// Every event is recorded in stripe_events first, so replays are acked
// without being applied twice.
//
// The only events we act on are customer.subscription.created, .updated and
// .deleted; each one writes the subscription's current status.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	// ── 1. Read and size-limit the body ───────────────────────────────────────
	r.Body = http.MaxBytesReader(w, r.Body, 65536)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		respondErr(w, http.StatusBadRequest, "could not read request body")
		return
	}

	// ── 2. Verify the Stripe-Signature header ─────────────────────────────────
	sig := r.Header.Get("Stripe-Signature")
	event, err := s.stripe.VerifyWebhook(payload, sig, s.cfg.StripeWebhookSecret)
	if err != nil {
		s.logger.Warn("webhook: invalid signature", "error", err, logField(r))
		respondErr(w, http.StatusBadRequest, "invalid webhook signature")
		return
	}

	// ── 3. Idempotency: record the event, skip if already seen ────────────────
	// ON CONFLICT DO NOTHING returns zero rows for a duplicate event_id, which
	// surfaces as sql.ErrNoRows.
	_, err = s.q.UpsertStripeEvent(r.Context(), stripeinternal.ToUpsertParams(event, payload))
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Debug("webhook: duplicate event, skipping", "event_id", event.ID, logField(r))
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("upsert stripe event: %w", err))
		return
	}

	// ── 4. Dispatch by event type ─────────────────────────────────────────────
	var handlerErr error

	switch event.Type {
	case stripeinternal.EventSubscriptionCreated,
		stripeinternal.EventSubscriptionUpdated,
		stripeinternal.EventSubscriptionDeleted:
		handlerErr = s.onSubscriptionChanged(r, event)

	default:
		s.logger.Debug("webhook: unhandled event type", "type", event.Type, logField(r))
	}

	// ── 5. Mark event processed (or failed) ───────────────────────────────────
	if handlerErr != nil {
		s.logger.Error("webhook: handler error",
			"event_id", event.ID,
			"type", event.Type,
			"error", handlerErr,
			logField(r),
		)
		_, _ = s.q.MarkStripeEventFailed(r.Context(), stripeinternal.ToMarkFailedParams(event.ID, handlerErr))
		// Return 500 so Stripe retries delivery.
		respondErr(w, http.StatusInternalServerError, "webhook handler failed")
		return
	}

	_, _ = s.q.MarkStripeEventProcessed(r.Context(), event.ID)
	w.WriteHeader(http.StatusOK)
}

// ─── EVENT HANDLERS ───────────────────────────────────────────────────────────

func (s *Server) onSubscriptionChanged(r *http.Request, event stripeinternal.Event) error {
	sub, err := stripeinternal.ExtractSubscription(event)
	if err != nil {
		return fmt.Errorf("onSubscriptionChanged: %w", err)
	}

	row, err := s.billing.SyncSubscription(r.Context(), store.SyncSubscriptionParams{
		SubscriptionID:    sub.ID,
		StripeCustomerID:  sub.CustomerID,
		Status:            sub.Status,
		PriceID:           sub.PriceID,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
	})
	if errors.Is(err, store.ErrUnknownCustomer) {
		// Customer created outside our checkout; nothing to link it to.
		s.logger.Warn("webhook: subscription for unknown customer",
			"customer", sub.CustomerID, "subscription", sub.ID, logField(r))
		return nil
	}
	if err != nil {
		return fmt.Errorf("onSubscriptionChanged: sync: %w", err)
	}

	s.logger.Info("webhook: subscription synced",
		"user_id", row.UserID, "subscription", row.ID, "status", row.Status, logField(r))

	if event.Type == stripeinternal.EventSubscriptionCreated &&
		(row.Status == db.SubscriptionStatusActive || row.Status == db.SubscriptionStatusTrialing) {
		s.sendPremiumWelcome(r, row)
	}
	return nil
}

func (s *Server) sendPremiumWelcome(r *http.Request, sub db.Subscription) {
	profile, err := s.q.GetProfile(r.Context(), sub.UserID)
	if err != nil || !profile.Email.Valid {
		return
	}
	err = s.mailer.SendPremiumWelcome(r.Context(), email.PremiumWelcomeParams{
		To:   profile.Email.String,
		Name: send.SenderName(profile),
	})
	s.logAndIgnoreEmailErr(r, err, "send premium welcome")
}
