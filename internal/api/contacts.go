package api

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nyashahama/smartsendr-backend/internal/db"
	"github.com/nyashahama/smartsendr-backend/internal/quota"
)

// maxImportBytes caps an uploaded CSV.
const maxImportBytes = 2 << 20

type contactView struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Company   string     `json:"company,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	SentAt    *time.Time `json:"sentAt,omitempty"`
}

func toContactView(c db.Contact) contactView {
	v := contactView{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Company:   c.Company.String,
		CreatedAt: c.CreatedAt,
	}
	if c.SentAt.Valid {
		t := c.SentAt.Time
		v.SentAt = &t
	}
	return v
}

// ─── GET /api/contacts ────────────────────────────────────────────────────────

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	rows, err := s.q.ListContacts(r.Context(), currentUser(r).ID)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("list contacts: %w", err))
		return
	}
	out := make([]contactView, len(rows))
	for i, c := range rows {
		out[i] = toContactView(c)
	}
	respond(w, http.StatusOK, map[string]any{"contacts": out})
}

// ─── POST /api/contacts/import ────────────────────────────────────────────────

type skippedRow struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type importResponse struct {
	Imported int           `json:"imported"`
	Skipped  []skippedRow  `json:"skipped"`
	Contacts []contactView `json:"contacts"`
}

// handleImportContacts reads name,email,company rows from a CSV, either as
// the "file" form field or as a text/csv body. Invalid rows are skipped and
// reported. Free users may import a limited number of contacts per upload.
func (s *Server) handleImportContacts(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes+(1<<20))
	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(maxImportBytes); err != nil {
			respondErr(w, http.StatusBadRequest, "Could not read upload.")
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			respondErr(w, http.StatusBadRequest, "No file uploaded.")
			return
		}
		defer f.Close()
		src = f
	}

	parsed, skipped, err := parseContactsCSV(src)
	if err != nil {
		respondErr(w, http.StatusBadRequest, "Invalid CSV: "+err.Error())
		return
	}

	limit := s.quota.UsageStats(r.Context(), user.ID).ContactsRemaining
	if limit != quota.Unlimited && len(parsed) > limit {
		for _, p := range parsed[limit:] {
			skipped = append(skipped, skippedRow{Row: p.row, Reason: fmt.Sprintf("free plan imports at most %d contacts per upload", limit)})
		}
		parsed = parsed[:limit]
	}

	created := make([]contactView, 0, len(parsed))
	for _, p := range parsed {
		c, err := s.q.CreateContact(r.Context(), db.CreateContactParams{
			UserID:  user.ID,
			Name:    p.name,
			Email:   p.email,
			Company: sql.NullString{String: p.company, Valid: p.company != ""},
		})
		if err != nil {
			s.respondInternalErr(w, r, fmt.Errorf("create contact row %d: %w", p.row, err))
			return
		}
		created = append(created, toContactView(c))
	}

	if skipped == nil {
		skipped = []skippedRow{}
	}
	s.logger.Info("contacts: imported", "user_id", user.ID, "imported", len(created), "skipped", len(skipped), logField(r))
	respond(w, http.StatusCreated, importResponse{Imported: len(created), Skipped: skipped, Contacts: created})
}

type parsedContact struct {
	row                  int
	name, email, company string
}

// parseContactsCSV reads contacts. A header row naming an email column sets
// the column order; otherwise columns are name, email, company.
func parseContactsCSV(src io.Reader) ([]parsedContact, []skippedRow, error) {
	rd := csv.NewReader(src)
	rd.FieldsPerRecord = -1
	rd.TrimLeadingSpace = true

	records, err := rd.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, errors.New("file is empty")
	}

	nameCol, emailCol, companyCol := 0, 1, 2
	start := 0
	if cols, ok := headerColumns(records[0]); ok {
		nameCol, emailCol, companyCol = cols[0], cols[1], cols[2]
		start = 1
	}

	var (
		out     []parsedContact
		skipped []skippedRow
		seen    = map[string]bool{}
	)
	for i := start; i < len(records); i++ {
		rec := records[i]
		row := i + 1
		name, email, company := field(rec, nameCol), field(rec, emailCol), field(rec, companyCol)

		if name == "" && email == "" && company == "" {
			continue
		}
		if name == "" {
			skipped = append(skipped, skippedRow{Row: row, Reason: "name is required"})
			continue
		}
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email {
			skipped = append(skipped, skippedRow{Row: row, Reason: "invalid email address"})
			continue
		}
		key := strings.ToLower(email)
		if seen[key] {
			skipped = append(skipped, skippedRow{Row: row, Reason: "duplicate email in file"})
			continue
		}
		seen[key] = true
		out = append(out, parsedContact{row: row, name: name, email: email, company: company})
	}
	return out, skipped, nil
}

// headerColumns detects a header row and returns the name, email and company
// column indexes (-1 when absent).
func headerColumns(rec []string) ([3]int, bool) {
	cols := [3]int{-1, -1, -1}
	for i, h := range rec {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "name", "full name", "full_name":
			cols[0] = i
		case "email", "email address", "e-mail":
			cols[1] = i
		case "company", "organization", "organisation":
			cols[2] = i
		}
	}
	return cols, cols[1] >= 0
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
