package api

import (
	"context"
	"fmt"
	"net/http"

	stripeinternal "github.com/nyashahama/smartsendr-backend/internal/stripe"
)

// ─── POST /api/billing/checkout ───────────────────────────────────────────────

type createCheckoutResponse struct {
	// URL is the hosted Stripe Checkout page the browser navigates to.
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

// handleCreateCheckout starts a premium subscription checkout.
//
// Race-safety: two concurrent calls for the same user are handled by
// store.LinkCustomer using a serializable transaction, so a user is linked to
// at most one Stripe customer.
func (s *Server) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	if s.cfg.SoftLaunch {
		respondErr(w, http.StatusServiceUnavailable, "Premium plans are not available yet.")
		return
	}
	user := currentUser(r)

	premium, err := s.quota.IsPremium(r.Context(), user.ID)
	if err != nil {
		s.respondInternalErr(w, r, err)
		return
	}
	if premium {
		respondErr(w, http.StatusConflict, "You already have an active subscription.")
		return
	}

	customerID, err := s.billing.LinkCustomer(r.Context(), user.ID, func(ctx context.Context) (string, error) {
		return s.stripe.CreateCustomer(ctx, stripeinternal.CreateCustomerParams{
			Email:  user.Email,
			UserID: user.ID.String(),
		})
	})
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("link stripe customer: %w", err))
		return
	}

	sess, err := s.stripe.CreateCheckoutSession(r.Context(), stripeinternal.CheckoutParams{
		CustomerID: customerID,
		PriceID:    s.cfg.StripePriceID,
		UserID:     user.ID.String(),
		SuccessURL: s.cfg.FrontendURL + "/dashboard?checkout=success",
		CancelURL:  s.cfg.FrontendURL + "/pricing?checkout=cancelled",
	})
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("create checkout session: %w", err))
		return
	}

	respond(w, http.StatusOK, createCheckoutResponse{URL: sess.URL, SessionID: sess.ID})
}
