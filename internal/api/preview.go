package api

import (
	"errors"
	"net/http"

	"github.com/nyashahama/smartsendr-backend/internal/draft"
	"github.com/nyashahama/smartsendr-backend/internal/quota"
)

// upgradePreview replaces the preview text when the allowance is used up.
const upgradePreview = "Upgrade to send more emails."

type limitResponse struct {
	Error           string      `json:"error"`
	Preview         string      `json:"preview,omitempty"`
	UpgradeRequired bool        `json:"upgradeRequired"`
	UsageStats      quota.Stats `json:"usageStats"`
}

// respondLimit writes the 402 quota rejection.
func respondLimit(w http.ResponseWriter, le *quota.LimitError, preview string) {
	respond(w, http.StatusPaymentRequired, limitResponse{
		Error:           le.Message,
		Preview:         preview,
		UpgradeRequired: true,
		UsageStats:      le.Stats,
	})
}

// checkPreviewQuota rejects free users whose allowance is exhausted. Reports
// false when a response was written.
func (s *Server) checkPreviewQuota(w http.ResponseWriter, r *http.Request) bool {
	user := currentUser(r)
	check, err := s.quota.CheckEmailLimit(r.Context(), user.ID, 1)
	if err != nil {
		s.respondInternalErr(w, r, err)
		return false
	}
	var le *quota.LimitError
	if errors.As(check.Err(), &le) {
		respondLimit(w, le, upgradePreview)
		return false
	}
	return true
}

// ─── POST /api/generate-preview ───────────────────────────────────────────────

type generatePreviewRequest struct {
	ContactID string `json:"contactId"`
}

type generatePreviewResponse struct {
	Preview        string `json:"preview"`
	HasResume      bool   `json:"hasResume"`
	IsPersonalized bool   `json:"isPersonalized"`
	Variant        string `json:"variant"`
}

// handleGeneratePreview drafts one email for review. Generating a preview
// does not consume the allowance; only sent emails do.
func (s *Server) handleGeneratePreview(w http.ResponseWriter, r *http.Request) {
	var req generatePreviewRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ContactID == "" {
		respondErr(w, http.StatusBadRequest, "No contact ID provided.")
		return
	}
	contactID, err := parseUUID(req.ContactID)
	if err != nil {
		respondErr(w, http.StatusBadRequest, err.Error())
		return
	}

	if !s.checkPreviewQuota(w, r) {
		return
	}

	user := currentUser(r)
	d, hasResume, err := s.drafts.Preview(r.Context(), user.ID, contactID)
	switch {
	case errors.Is(err, draft.ErrContactNotFound):
		respondErr(w, http.StatusNotFound, "Failed to fetch contact or access denied.")
		return
	case err != nil:
		s.logger.Warn("preview: generation failed", "user_id", user.ID, "contact_id", contactID, "error", err, logField(r))
		respondErr(w, http.StatusInternalServerError, "Failed to generate preview.")
		return
	}

	respond(w, http.StatusOK, generatePreviewResponse{
		Preview:        d.Text,
		HasResume:      hasResume,
		IsPersonalized: d.Personalized,
		Variant:        d.Variant.String(),
	})
}

// ─── POST /api/preview-batch ──────────────────────────────────────────────────

type previewBatchRequest struct {
	ContactIDs []string `json:"contactIds"`
}

type previewBatchResponse struct {
	Drafts    []draft.EmailDraft `json:"drafts"`
	HasResume bool               `json:"hasResume"`
	Current   int                `json:"current"`
	Total     int                `json:"total"`
	Failed    int                `json:"failed"`
}

// handlePreviewBatch drafts every selected contact. Per-contact failures are
// returned as placeholder drafts with failed=true.
func (s *Server) handlePreviewBatch(w http.ResponseWriter, r *http.Request) {
	var req previewBatchRequest
	if !decode(w, r, &req) {
		return
	}
	ids, msg := parseContactIDs(req.ContactIDs)
	if msg != "" {
		respondErr(w, http.StatusBadRequest, msg)
		return
	}

	if !s.checkPreviewQuota(w, r) {
		return
	}

	sess, err := s.drafts.PreviewBatch(r.Context(), currentUser(r).ID, ids)
	if err != nil {
		s.respondInternalErr(w, r, err)
		return
	}

	drafts := sess.Drafts()
	failed := 0
	for _, d := range drafts {
		if d.Failed {
			failed++
		}
	}
	respond(w, http.StatusOK, previewBatchResponse{
		Drafts:    drafts,
		HasResume: sess.HasResume(),
		Current:   sess.Current(),
		Total:     len(drafts),
		Failed:    failed,
	})
}
