package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nyashahama/smartsendr-backend/internal/gmail"
	"github.com/nyashahama/smartsendr-backend/internal/quota"
	"github.com/nyashahama/smartsendr-backend/internal/send"
	"github.com/nyashahama/smartsendr-backend/internal/token"
)

const msgGmailNotConnected = "Gmail not connected. Please connect your Gmail account first."

// ─── POST /api/send-emails ────────────────────────────────────────────────────

type sendEmailsRequest struct {
	ContactIDs         []string          `json:"contactIds"`
	CustomMessage      string            `json:"customMessage"`
	IndividualMessages map[string]string `json:"individualMessages"`
}

type sendEmailsResponse struct {
	Message string        `json:"message"`
	Sent    int           `json:"sent"`
	Total   int           `json:"total"`
	Results []send.Result `json:"results"`
}

// handleSendEmails sends the batch from the caller's Gmail account. Batch
// preconditions (quota, Gmail connection) fail the whole request before any
// email goes out; individual delivery failures are reported per contact.
func (s *Server) handleSendEmails(w http.ResponseWriter, r *http.Request) {
	var req sendEmailsRequest
	if !decode(w, r, &req) {
		return
	}
	ids, msg := parseContactIDs(req.ContactIDs)
	if msg != "" {
		respondErr(w, http.StatusBadRequest, msg)
		return
	}
	individual := make(map[uuid.UUID]string, len(req.IndividualMessages))
	for k, v := range req.IndividualMessages {
		id, err := parseUUID(k)
		if err != nil {
			respondErr(w, http.StatusBadRequest, "individualMessages: "+err.Error())
			return
		}
		individual[id] = v
	}

	user := currentUser(r)
	out, err := s.sender.SendBatch(r.Context(), send.Request{
		UserID:             user.ID,
		ContactIDs:         ids,
		CustomMessage:      req.CustomMessage,
		IndividualMessages: individual,
	})

	var le *quota.LimitError
	switch {
	case errors.As(err, &le):
		respondLimit(w, le, "")
		return
	case errors.Is(err, token.ErrNotConnected):
		respondErr(w, http.StatusBadRequest, msgGmailNotConnected)
		return
	case errors.Is(err, token.ErrReauthRequired):
		respondErr(w, http.StatusBadRequest, gmail.MsgReconnect)
		return
	case errors.Is(err, send.ErrNoContacts):
		respondErr(w, http.StatusBadRequest, "No contacts selected.")
		return
	case err != nil:
		s.respondInternalErr(w, r, err)
		return
	}

	respond(w, http.StatusOK, sendEmailsResponse{
		Message: "Emails processed",
		Sent:    out.Sent,
		Total:   len(out.Results),
		Results: out.Results,
	})
}
