package draft

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nyashahama/smartsendr-backend/internal/db"
	"github.com/nyashahama/smartsendr-backend/internal/resume"
)

// DefaultConcurrency is the number of drafts generated at once per batch.
const DefaultConcurrency = 4

// ErrNoContacts is returned for an empty batch.
var ErrNoContacts = errors.New("draft: no contacts selected")

// ErrContactNotFound is returned when a contact does not exist or belongs to
// another user.
var ErrContactNotFound = errors.New("contact not found")

// ResumeSource returns the plain text of a stored résumé.
type ResumeSource interface {
	Text(ctx context.Context, key string) (string, error)
}

// Orchestrator generates previews for the contacts of one user.
type Orchestrator struct {
	q       db.Querier
	gen     *Generator
	resumes ResumeSource
	width   int
	logger  *slog.Logger
}

// NewOrchestrator returns an Orchestrator. resumes may be nil, in which case
// drafts are never personalized. width < 1 uses DefaultConcurrency.
func NewOrchestrator(q db.Querier, gen *Generator, resumes ResumeSource, width int, logger *slog.Logger) *Orchestrator {
	if width < 1 {
		width = DefaultConcurrency
	}
	return &Orchestrator{q: q, gen: gen, resumes: resumes, width: width, logger: logger}
}

// Generator returns the underlying draft generator.
func (o *Orchestrator) Generator() *Generator { return o.gen }

// ResumeText loads the user's active résumé. Any failure is logged and
// reported as no résumé.
func (o *Orchestrator) ResumeText(ctx context.Context, userID uuid.UUID) (string, bool) {
	if o.resumes == nil {
		return "", false
	}
	profile, err := o.q.GetProfile(ctx, userID)
	if err != nil {
		o.logger.Warn("draft: read profile failed, continuing without resume", "user_id", userID, "error", err)
		return "", false
	}
	if !profile.ResumePath.Valid || profile.ResumePath.String == "" {
		return "", false
	}
	if !resume.OwnedBy(userID, profile.ResumePath.String) {
		o.logger.Warn("draft: resume path outside user prefix, ignoring", "user_id", userID, "path", profile.ResumePath.String)
		return "", false
	}
	text, err := o.resumes.Text(ctx, profile.ResumePath.String)
	if err != nil {
		o.logger.Warn("draft: read resume failed, continuing without resume",
			"user_id", userID, "path", profile.ResumePath.String, "error", err)
		return "", false
	}
	if text == "" {
		return "", false
	}
	return text, true
}

// Preview generates a single draft for one of the user's contacts.
func (o *Orchestrator) Preview(ctx context.Context, userID, contactID uuid.UUID) (Draft, bool, error) {
	row, err := o.q.GetContact(ctx, db.GetContactParams{ID: contactID, UserID: userID})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Draft{}, false, ErrContactNotFound
		}
		return Draft{}, false, fmt.Errorf("draft: get contact: %w", err)
	}
	resumeText, hasResume := o.ResumeText(ctx, userID)
	d, err := o.gen.GenerateDraft(ctx, FromRow(row), resumeText)
	return d, hasResume, err
}

// PreviewBatch generates one draft per distinct contact ID, in input order.
// A failure for one contact becomes a placeholder draft and never affects
// the others. Only a failure to load the batch itself is returned.
func (o *Orchestrator) PreviewBatch(ctx context.Context, userID uuid.UUID, contactIDs []uuid.UUID) (*BatchSession, error) {
	ids := dedupe(contactIDs)
	if len(ids) == 0 {
		return nil, ErrNoContacts
	}

	rows, err := o.q.GetContactsByIDs(ctx, db.GetContactsByIDsParams{UserID: userID, IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("draft: load contacts: %w", err)
	}
	byID := make(map[uuid.UUID]db.Contact, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}

	resumeText, _ := o.ResumeText(ctx, userID)

	drafts := make([]EmailDraft, len(ids))
	var g errgroup.Group
	g.SetLimit(o.width)
	for i, id := range ids {
		row, ok := byID[id]
		if !ok {
			drafts[i] = failedDraft(Contact{ID: id}, ErrContactNotFound)
			continue
		}
		c := FromRow(row)
		i := i
		g.Go(func() error {
			d, err := o.gen.GenerateDraft(ctx, c, resumeText)
			if err != nil {
				o.logger.Warn("draft: generation failed", "user_id", userID, "contact_id", c.ID, "error", err)
				drafts[i] = failedDraft(c, err)
				return nil
			}
			drafts[i] = okDraft(c, d)
			return nil
		})
	}
	_ = g.Wait()

	// The batch is résumé-backed only if some draft actually used it.
	hasResume := slices.ContainsFunc(drafts, func(d EmailDraft) bool { return d.IsPersonalized })

	o.logger.Info("draft: batch generated", "user_id", userID, "contacts", len(ids), "has_resume", hasResume)
	return NewBatchSession(drafts, hasResume), nil
}

// FromRow converts a contacts row.
func FromRow(r db.Contact) Contact {
	return Contact{
		ID:      r.ID,
		Name:    r.Name,
		Email:   r.Email,
		Company: r.Company.String,
	}
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
