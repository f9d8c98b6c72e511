// Package draft turns contacts into editable cold-email drafts.
//
// Generator renders one draft per contact from a prompt template chosen by
// the available context. Orchestrator fans a batch of contacts out over the
// generator and gathers the results, in input order, into a BatchSession
// that the caller owns and edits.
package draft

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/nyashahama/smartsendr-backend/internal/ai"
)

// Contact is the recipient data a draft needs.
type Contact struct {
	ID      uuid.UUID
	Name    string
	Email   string
	Company string
}

// Draft is one generated email body.
type Draft struct {
	Text    string
	Variant Variant
	// Personalized is true when résumé text shaped the draft.
	Personalized bool
}

// GenerationError reports that no usable draft could be produced for one
// contact. Callers turn it into a placeholder rather than failing a batch.
type GenerationError struct {
	ContactID uuid.UUID
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("draft: generate for contact %s: %v", e.ContactID, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Generator produces drafts with an LLM.
type Generator struct {
	llm ai.Completer
}

// NewGenerator returns a Generator backed by llm.
func NewGenerator(llm ai.Completer) *Generator {
	return &Generator{llm: llm}
}

// GenerateDraft writes an email body for c. resumeText may be empty. Any
// failure is returned as *GenerationError.
func (g *Generator) GenerateDraft(ctx context.Context, c Contact, resumeText string) (Draft, error) {
	variant, prompt := BuildPrompt(c, resumeText)

	text, err := g.llm.Complete(ctx, prompt)
	if err != nil {
		return Draft{}, &GenerationError{ContactID: c.ID, Err: err}
	}

	text = clean(text)
	if text == "" {
		return Draft{}, &GenerationError{ContactID: c.ID, Err: ai.ErrEmptyCompletion}
	}

	return Draft{
		Text:         text,
		Variant:      variant,
		Personalized: variant == VariantResumeOnly || variant == VariantResumeAndCompany,
	}, nil
}

var subjectLine = regexp.MustCompile(`(?i)^\s*subject\s*:.*\n+`)

// clean strips fences and a leading subject line the model was told not to
// write.
func clean(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = subjectLine.ReplaceAllString(strings.TrimSpace(text), "")
	return strings.TrimSpace(text)
}
