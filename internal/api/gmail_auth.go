package api

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/nyashahama/smartsendr-backend/internal/token"
)

// stateTTL bounds the Google consent round trip.
const stateTTL = 10 * time.Minute

// ─── POST /api/refresh-gmail-token ────────────────────────────────────────────

type refreshTokenRequest struct {
	UserID string `json:"user_id"`
}

type refreshTokenResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleRefreshGmailToken forces a refresh of the caller's Gmail credentials.
// The body names the user explicitly and must match the session.
func (s *Server) handleRefreshGmailToken(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		respondErr(w, http.StatusBadRequest, "User ID is required")
		return
	}
	user := currentUser(r)
	if req.UserID != user.ID.String() {
		respondErr(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	tok, err := s.tokens.Refresh(r.Context(), user.ID)
	switch {
	case errors.Is(err, token.ErrNoRefreshToken):
		respondErr(w, http.StatusBadRequest, "No refresh token found")
		return
	case err != nil:
		s.logger.Error("gmail: token refresh failed", "user_id", user.ID, "error", err, logField(r))
		respondErr(w, http.StatusInternalServerError, "Failed to refresh token")
		return
	}

	respond(w, http.StatusOK, refreshTokenResponse{
		Success:   true,
		Message:   "Token refreshed successfully",
		ExpiresAt: tok.Expiry.UTC(),
	})
}

// ─── GET /api/auth/google/start ───────────────────────────────────────────────

// handleGoogleStart returns the consent URL. The browser navigates to it
// itself because the request carries a bearer token a redirect would drop.
func (s *Server) handleGoogleStart(w http.ResponseWriter, r *http.Request) {
	state, err := s.auth.SignState(currentUser(r).ID, stateTTL)
	if err != nil {
		s.respondInternalErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"url": s.tokens.AuthCodeURL(state)})
}

// ─── GET /api/auth/google/callback ────────────────────────────────────────────

// handleGoogleCallback completes the consent flow and sends the browser back
// to the dashboard with the outcome in the query string.
func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		s.redirectGmail(w, r, "error", e)
		return
	}

	userID, err := s.auth.ParseState(q.Get("state"))
	if err != nil {
		s.logger.Warn("gmail: invalid oauth state", "error", err, logField(r))
		s.redirectGmail(w, r, "error", "invalid_state")
		return
	}

	code := q.Get("code")
	if code == "" {
		s.redirectGmail(w, r, "error", "missing_code")
		return
	}

	if _, err := s.tokens.Connect(r.Context(), userID, code); err != nil {
		s.logger.Error("gmail: connect failed", "user_id", userID, "error", err, logField(r))
		s.redirectGmail(w, r, "error", "exchange_failed")
		return
	}

	s.logger.Info("gmail: connected", "user_id", userID, logField(r))
	s.redirectGmail(w, r, "connected", "")
}

func (s *Server) redirectGmail(w http.ResponseWriter, r *http.Request, status, reason string) {
	v := url.Values{"gmail": {status}}
	if reason != "" {
		v.Set("reason", reason)
	}
	http.Redirect(w, r, s.cfg.FrontendURL+"/dashboard?"+v.Encode(), http.StatusFound)
}
