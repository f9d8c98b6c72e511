package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/nyashahama/smartsendr-backend/internal/quota"
)

// ─── GET /api/usage ───────────────────────────────────────────────────────────

type usageResponse struct {
	UsageStats quota.Stats `json:"usageStats"`
	Message    string      `json:"message"`
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	stats := s.quota.UsageStats(r.Context(), currentUser(r).ID)
	respond(w, http.StatusOK, usageResponse{
		UsageStats: stats,
		Message:    quota.FormatUsageMessage(stats),
	})
}

// ─── GET|POST /api/reset-usage ────────────────────────────────────────────────

type resetUsageResponse struct {
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
	Reset         bool      `json:"reset"`
	ProfilesReset int64     `json:"profilesReset"`
}

// handleResetUsage zeroes monthly usage.
//
// POST requires the bearer secret and always resets. GET is the scheduler's
// entry point: a supplied header must still be correct, but a missing one is
// tolerated because the reset it runs happens at most once per month.
func (s *Server) handleResetUsage(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	authorized := header != "" && s.cfg.UsageResetToken != "" &&
		subtle.ConstantTimeCompare([]byte(header), []byte("Bearer "+s.cfg.UsageResetToken)) == 1

	if header != "" && !authorized {
		respondErr(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if r.Method == http.MethodPost {
		if !authorized {
			respondErr(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		n, err := s.quota.ResetMonthlyUsage(r.Context())
		if err != nil {
			s.logger.Error("usage: manual reset failed", "error", err, logField(r))
			respondErr(w, http.StatusInternalServerError, "Failed to reset usage")
			return
		}
		respond(w, http.StatusOK, resetUsageResponse{
			Message:       "Monthly usage reset successfully",
			Timestamp:     time.Now().UTC(),
			Reset:         true,
			ProfilesReset: n,
		})
		return
	}

	n, ran, err := s.quota.ResetIfDue(r.Context())
	if err != nil {
		s.logger.Error("usage: scheduled reset failed", "error", err, logField(r))
		respondErr(w, http.StatusInternalServerError, "Failed to reset usage")
		return
	}
	msg := "Monthly usage reset successfully"
	if !ran {
		msg = "Monthly usage already reset for this period"
	}
	respond(w, http.StatusOK, resetUsageResponse{
		Message:       msg,
		Timestamp:     time.Now().UTC(),
		Reset:         ran,
		ProfilesReset: n,
	})
}
