package draft

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// PreviewErrorPrefix starts the placeholder text of a failed draft.
const PreviewErrorPrefix = "Error generating preview: "

// ErrIndexOutOfRange is returned for a draft index outside the batch.
var ErrIndexOutOfRange = errors.New("draft: index out of range")

// EmailDraft is one slot of a batch preview.
type EmailDraft struct {
	ContactID      uuid.UUID `json:"contactId"`
	ContactName    string    `json:"contactName"`
	ContactEmail   string    `json:"contactEmail"`
	Company        string    `json:"company,omitempty"`
	Preview        string    `json:"preview"`
	EditedContent  string    `json:"editedContent"`
	IsPersonalized bool      `json:"isPersonalized"`
	Variant        string    `json:"variant,omitempty"`
	Failed         bool      `json:"failed"`
	Editing        bool      `json:"isEditing"`
}

func failedDraft(c Contact, err error) EmailDraft {
	msg := err.Error()
	var ge *GenerationError
	if errors.As(err, &ge) {
		msg = ge.Err.Error()
	}
	text := PreviewErrorPrefix + msg
	return EmailDraft{
		ContactID:     c.ID,
		ContactName:   c.Name,
		ContactEmail:  c.Email,
		Company:       c.Company,
		Preview:       text,
		EditedContent: text,
		Failed:        true,
	}
}

func okDraft(c Contact, d Draft) EmailDraft {
	return EmailDraft{
		ContactID:      c.ID,
		ContactName:    c.Name,
		ContactEmail:   c.Email,
		Company:        c.Company,
		Preview:        d.Text,
		EditedContent:  d.Text,
		IsPersonalized: d.Personalized,
		Variant:        d.Variant.String(),
	}
}

// BatchSession holds the drafts of one preview batch and the review cursor.
// Edits replace the backing slice, so a slice returned by Drafts is never
// modified afterwards.
type BatchSession struct {
	mu        sync.RWMutex
	drafts    []EmailDraft
	current   int
	hasResume bool
}

// NewBatchSession wraps drafts, positioned at the first one.
func NewBatchSession(drafts []EmailDraft, hasResume bool) *BatchSession {
	return &BatchSession{drafts: drafts, hasResume: hasResume}
}

// Len is the number of drafts.
func (s *BatchSession) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.drafts)
}

// HasResume reports whether résumé text was available for the batch.
func (s *BatchSession) HasResume() bool {
	return s.hasResume
}

// Drafts returns a snapshot of every draft in input order.
func (s *BatchSession) Drafts() []EmailDraft {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.drafts)
}

// Current returns the index under review.
func (s *BatchSession) Current() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Draft returns draft i.
func (s *BatchSession) Draft(i int) (EmailDraft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.drafts) {
		return EmailDraft{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(s.drafts))
	}
	return s.drafts[i], nil
}

// GoToPreview moves the cursor to i.
func (s *BatchSession) GoToPreview(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.drafts) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(s.drafts))
	}
	s.current = i
	return nil
}

// SetEditing toggles the editing flag of draft i.
func (s *BatchSession) SetEditing(i int, editing bool) error {
	return s.update(i, func(d *EmailDraft) { d.Editing = editing })
}

// Edit replaces the edited content of draft i and leaves every other draft
// untouched.
func (s *BatchSession) Edit(i int, text string) error {
	return s.update(i, func(d *EmailDraft) { d.EditedContent = text })
}

func (s *BatchSession) update(i int, fn func(*EmailDraft)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.drafts) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(s.drafts))
	}
	next := slices.Clone(s.drafts)
	fn(&next[i])
	s.drafts = next
	return nil
}

// EditedContents returns the final text per contact for every draft that
// generated successfully, keyed for use as per-contact send messages.
func (s *BatchSession) EditedContents() map[uuid.UUID]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]string, len(s.drafts))
	for _, d := range s.drafts {
		if d.Failed {
			continue
		}
		out[d.ContactID] = d.EditedContent
	}
	return out
}
