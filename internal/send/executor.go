// Package send delivers a batch of outreach emails through the user's Gmail
// account and records the bookkeeping that follows.
package send

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/nyashahama/smartsendr-backend/internal/db"
	"github.com/nyashahama/smartsendr-backend/internal/draft"
	"github.com/nyashahama/smartsendr-backend/internal/gmail"
	"github.com/nyashahama/smartsendr-backend/internal/quota"
)

// DefaultSenderName is used when the profile has neither a name nor an email.
const DefaultSenderName = "SmartSendr User"

// ErrNoContacts is returned for an empty batch.
var ErrNoContacts = errors.New("send: no contacts selected")

// Request is one send-emails call.
type Request struct {
	UserID             uuid.UUID
	ContactIDs         []uuid.UUID
	CustomMessage      string
	IndividualMessages map[uuid.UUID]string
}

// NeedsDraft reports whether the contact's body will be AI-written: it has
// no non-blank individual message and the batch has no custom message.
func (r Request) NeedsDraft(id uuid.UUID) bool {
	if strings.TrimSpace(r.CustomMessage) != "" {
		return false
	}
	return strings.TrimSpace(r.IndividualMessages[id]) == ""
}

// DraftCount returns how many of ids need an AI draft. Only those count
// against the free allowance.
func (r Request) DraftCount(ids []uuid.UUID) int {
	n := 0
	for _, id := range ids {
		if r.NeedsDraft(id) {
			n++
		}
	}
	return n
}

// Result is the outcome for one input contact.
type Result struct {
	ContactID uuid.UUID `json:"contactId"`
	Contact   string    `json:"contact"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// Outcome is the batch result. Results align with the de-duplicated input.
type Outcome struct {
	Results []Result
	Sent    int
}

// ─── DEPENDENCIES ─────────────────────────────────────────────────────────────

// Quota is the subset of *quota.Tracker the executor needs.
type Quota interface {
	CheckEmailLimit(ctx context.Context, userID uuid.UUID, n int) (quota.Check, error)
	IncrementEmailUsage(ctx context.Context, userID uuid.UUID, n int) error
}

// Tokens is the subset of *token.Manager the executor needs.
type Tokens interface {
	EnsureValidToken(ctx context.Context, userID uuid.UUID) (*oauth2.Token, error)
}

// Drafter writes an AI body for contacts without a supplied message.
type Drafter interface {
	GenerateDraft(ctx context.Context, c draft.Contact, resumeText string) (draft.Draft, error)
}

// ResumeLoader returns the user's résumé text, or false when unavailable.
type ResumeLoader interface {
	ResumeText(ctx context.Context, userID uuid.UUID) (string, bool)
}

// Notifier tells the account owner how a batch went. Optional.
type Notifier interface {
	NotifyBatch(ctx context.Context, to, name string, sent, total int) error
}

// Executor runs send batches.
type Executor struct {
	q        db.Querier
	quota    Quota
	tokens   Tokens
	sender   gmail.Sender
	drafter  Drafter
	resumes  ResumeLoader
	notifier Notifier
	width    int
	logger   *slog.Logger
	now      func() time.Time
}

// Options wires an Executor.
type Options struct {
	Querier  db.Querier
	Quota    Quota
	Tokens   Tokens
	Sender   gmail.Sender
	Drafter  Drafter
	Resumes  ResumeLoader // may be nil
	Notifier Notifier     // may be nil
	// Concurrency bounds parallel sends. Values < 1 mean one at a time.
	Concurrency int
	Logger      *slog.Logger
}

// NewExecutor returns an Executor.
func NewExecutor(o Options) *Executor {
	width := o.Concurrency
	if width < 1 {
		width = 1
	}
	return &Executor{
		q:        o.Querier,
		quota:    o.Quota,
		tokens:   o.Tokens,
		sender:   o.Sender,
		drafter:  o.Drafter,
		resumes:  o.Resumes,
		notifier: o.Notifier,
		width:    width,
		logger:   o.Logger,
		now:      time.Now,
	}
}

// ─── SEND BATCH ───────────────────────────────────────────────────────────────

// SendBatch checks the batch preconditions, then attempts every contact once.
//
// A quota rejection is returned as *quota.LimitError and a token problem as
// an error matching token.ErrReauthRequired; in both cases nothing is sent.
// Per-contact failures are reported in the Outcome, never as an error.
func (e *Executor) SendBatch(ctx context.Context, req Request) (Outcome, error) {
	ids := dedupe(req.ContactIDs)
	if len(ids) == 0 {
		return Outcome{}, ErrNoContacts
	}
	drafts := req.DraftCount(ids)

	if drafts > 0 {
		check, err := e.quota.CheckEmailLimit(ctx, req.UserID, drafts)
		if err != nil {
			return Outcome{}, fmt.Errorf("send: quota check: %w", err)
		}
		if err := check.Err(); err != nil {
			e.logger.Info("send: batch rejected by quota", "user_id", req.UserID,
				"contacts", len(ids), "drafts", drafts, "emails_used", check.Stats.EmailsUsed)
			return Outcome{}, err
		}
	}

	tok, err := e.tokens.EnsureValidToken(ctx, req.UserID)
	if err != nil {
		return Outcome{}, fmt.Errorf("send: gmail token: %w", err)
	}

	rows, err := e.q.GetContactsByIDs(ctx, db.GetContactsByIDsParams{UserID: req.UserID, IDs: ids})
	if err != nil {
		return Outcome{}, fmt.Errorf("send: load contacts: %w", err)
	}
	byID := make(map[uuid.UUID]db.Contact, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}

	profile, senderName := e.loadSender(ctx, req.UserID)
	resolve := e.resolver(req)

	results := make([]Result, len(ids))
	generated := make([]bool, len(ids))
	var g errgroup.Group
	g.SetLimit(e.width)
	for i, id := range ids {
		row, ok := byID[id]
		if !ok {
			results[i] = Result{ContactID: id, Error: "contact not found"}
			continue
		}
		i := i
		g.Go(func() error {
			results[i], generated[i] = e.sendOne(ctx, req.UserID, tok, draft.FromRow(row), senderName, resolve)
			return nil
		})
	}
	_ = g.Wait()

	out := Outcome{Results: results}
	var (
		sentIDs []uuid.UUID
		counted int
	)
	for i, r := range results {
		if r.Success {
			out.Sent++
			sentIDs = append(sentIDs, r.ContactID)
			if generated[i] {
				counted++
			}
		}
	}

	e.record(ctx, req.UserID, counted, sentIDs)
	e.notify(ctx, profile, senderName, out.Sent, len(ids))

	e.logger.Info("send: batch processed", "user_id", req.UserID,
		"total", len(ids), "sent", out.Sent, "counted", counted)
	return out, nil
}

// sendOne delivers one contact's email. The bool reports whether the body
// was AI-drafted.
func (e *Executor) sendOne(ctx context.Context, userID uuid.UUID, tok *oauth2.Token, c draft.Contact, senderName string, resolve messageResolver) (Result, bool) {
	res := Result{ContactID: c.ID, Contact: c.Email}

	body, generated, err := resolve(ctx, c)
	if err != nil {
		e.logger.Warn("send: message generation failed", "user_id", userID, "contact_id", c.ID, "error", err)
		res.Error = "Failed to generate message: " + generationMessage(err)
		return res, generated
	}

	err = e.sender.Send(ctx, tok, gmail.Message{
		To:         c.Email,
		Company:    c.Company,
		Body:       body,
		SenderName: senderName,
	})
	if err != nil {
		e.logger.Warn("send: delivery failed", "user_id", userID, "contact_id", c.ID,
			"status", gmail.StatusCode(err), "error", err)
		res.Error = gmail.ClassifyError(err)
		return res, generated
	}
	res.Success = true
	return res, generated
}

// record applies the post-send bookkeeping. counted is the number of
// delivered AI drafts. Failures here are logged only; the emails are already
// delivered.
func (e *Executor) record(ctx context.Context, userID uuid.UUID, counted int, sentIDs []uuid.UUID) {
	if len(sentIDs) == 0 {
		return
	}
	if counted > 0 {
		if err := e.quota.IncrementEmailUsage(ctx, userID, counted); err != nil {
			e.logger.Error("send: increment usage failed", "user_id", userID, "counted", counted, "error", err)
		}
	}
	if _, err := e.q.MarkContactsSent(ctx, db.MarkContactsSentParams{
		UserID: userID,
		IDs:    sentIDs,
		SentAt: e.now().UTC(),
	}); err != nil {
		e.logger.Error("send: mark contacts sent failed", "user_id", userID, "sent", len(sentIDs), "error", err)
	}
}

func (e *Executor) notify(ctx context.Context, profile db.Profile, senderName string, sent, total int) {
	if e.notifier == nil || !profile.Email.Valid || profile.Email.String == "" {
		return
	}
	if err := e.notifier.NotifyBatch(ctx, profile.Email.String, senderName, sent, total); err != nil {
		e.logger.Warn("send: batch summary email failed", "user_id", profile.ID, "error", err)
	}
}

// loadSender loads the profile and derives the signature name.
func (e *Executor) loadSender(ctx context.Context, userID uuid.UUID) (db.Profile, string) {
	p, err := e.q.GetProfile(ctx, userID)
	if err != nil {
		e.logger.Warn("send: read profile failed, using default sender name", "user_id", userID, "error", err)
		return db.Profile{ID: userID}, DefaultSenderName
	}
	return p, SenderName(p)
}

// SenderName picks the signature: full name, then the local part of the
// account email, then DefaultSenderName.
func SenderName(p db.Profile) string {
	if name := strings.TrimSpace(p.FullName.String); p.FullName.Valid && name != "" {
		return name
	}
	if p.Email.Valid {
		if local, _, ok := strings.Cut(p.Email.String, "@"); ok && strings.TrimSpace(local) != "" {
			return strings.TrimSpace(local)
		}
	}
	return DefaultSenderName
}

// ─── MESSAGE RESOLUTION ───────────────────────────────────────────────────────

// messageResolver returns a contact's body and whether it was AI-drafted.
type messageResolver func(ctx context.Context, c draft.Contact) (string, bool, error)

// resolver picks the body for each contact: its individual message, then the
// shared custom message, then an AI draft. The résumé is loaded at most once.
func (e *Executor) resolver(req Request) messageResolver {
	var (
		once       sync.Once
		resumeText string
	)
	custom := strings.TrimSpace(req.CustomMessage)

	return func(ctx context.Context, c draft.Contact) (string, bool, error) {
		if msg, ok := req.IndividualMessages[c.ID]; ok && strings.TrimSpace(msg) != "" {
			return msg, false, nil
		}
		if custom != "" {
			return req.CustomMessage, false, nil
		}
		once.Do(func() {
			if e.resumes != nil {
				resumeText, _ = e.resumes.ResumeText(ctx, req.UserID)
			}
		})
		d, err := e.drafter.GenerateDraft(ctx, c, resumeText)
		if err != nil {
			return "", true, err
		}
		return d.Text, true, nil
	}
}

func generationMessage(err error) string {
	var ge *draft.GenerationError
	if errors.As(err, &ge) {
		return ge.Err.Error()
	}
	return err.Error()
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
