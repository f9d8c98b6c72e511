package draft

import (
	"fmt"
	"strings"

	"github.com/nyashahama/smartsendr-backend/internal/ai"
)

// Variant names the prompt template chosen for a contact.
type Variant int

const (
	VariantGeneric Variant = iota
	VariantCompanyOnly
	VariantResumeOnly
	VariantResumeAndCompany
)

func (v Variant) String() string {
	switch v {
	case VariantGeneric:
		return "generic"
	case VariantCompanyOnly:
		return "company_only"
	case VariantResumeOnly:
		return "resume_only"
	case VariantResumeAndCompany:
		return "resume_and_company"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// MaxWords is the soft ceiling every template asks the model to respect.
const MaxWords = 120

// maxResumeChars bounds how much résumé text goes into a prompt.
const maxResumeChars = 6000

const systemPrompt = `You are an expert career assistant writing a cold email on behalf of a user.
You write in the first person as the user, addressed directly to the named recipient.
You never write from the point of view of a recruiter, agent or any third party.
You respond with the plain-text email body only: no subject line, no markdown, no placeholders in brackets.`

// promptInput is what every template builder sees.
type promptInput struct {
	Name    string
	Company string
	Resume  string
}

type variantKey struct {
	hasResume  bool
	hasCompany bool
}

type template struct {
	variant Variant
	build   func(promptInput) string
}

// templates is the dispatch table from available context to prompt builder.
var templates = map[variantKey]template{
	{hasResume: true, hasCompany: true}:   {VariantResumeAndCompany, resumeAndCompanyPrompt},
	{hasResume: true, hasCompany: false}:  {VariantResumeOnly, resumeOnlyPrompt},
	{hasResume: false, hasCompany: true}:  {VariantCompanyOnly, companyOnlyPrompt},
	{hasResume: false, hasCompany: false}: {VariantGeneric, genericPrompt},
}

// SelectVariant returns the template used for the given context.
func SelectVariant(hasResume, hasCompany bool) Variant {
	return templates[variantKey{hasResume, hasCompany}].variant
}

// BuildPrompt chooses the template for c and resumeText and renders it.
func BuildPrompt(c Contact, resumeText string) (Variant, ai.Prompt) {
	in := promptInput{
		Name:    strings.TrimSpace(c.Name),
		Company: strings.TrimSpace(c.Company),
		Resume:  truncate(strings.TrimSpace(resumeText), maxResumeChars),
	}
	t := templates[variantKey{hasResume: in.Resume != "", hasCompany: in.Company != ""}]
	return t.variant, ai.Prompt{
		System:    systemPrompt,
		User:      t.build(in),
		MaxTokens: 400,
	}
}

func resumeAndCompanyPrompt(in promptInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "My resume is:\n---\n%s\n---\n", in.Resume)
	fmt.Fprintf(&sb, "The email is for %s at %s.\n\n", in.Name, in.Company)
	sb.WriteString("Write a short, professional and enthusiastic cold email to build a network connection and ask about potential opportunities.\n")
	fmt.Fprintf(&sb, "- Start with a greeting to %s.\n", in.Name)
	fmt.Fprintf(&sb, "- Briefly introduce me and highlight 1-2 skills or experiences from my resume that are relevant to %s.\n", in.Company)
	fmt.Fprintf(&sb, "- Say why %s specifically interests me.\n", in.Company)
	sb.WriteString(commonRules())
	return sb.String()
}

func resumeOnlyPrompt(in promptInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "My resume is:\n---\n%s\n---\n", in.Resume)
	fmt.Fprintf(&sb, "The email is for %s. Their company is not known, so do not guess or name one.\n\n", in.Name)
	sb.WriteString("Write a short, professional and enthusiastic cold email to build a network connection and ask about potential opportunities.\n")
	fmt.Fprintf(&sb, "- Start with a greeting to %s.\n", in.Name)
	sb.WriteString("- Briefly introduce me and highlight 1-2 of my strongest skills or experiences from the resume.\n")
	sb.WriteString(commonRules())
	return sb.String()
}

func companyOnlyPrompt(in promptInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The email is for %s at %s.\n\n", in.Name, in.Company)
	sb.WriteString("Write a short, professional and enthusiastic cold email to build a network connection and ask about potential opportunities.\n")
	fmt.Fprintf(&sb, "- Start with a greeting to %s.\n", in.Name)
	sb.WriteString("- Briefly introduce me as a professional looking to connect. No background details are available, so do not invent any.\n")
	fmt.Fprintf(&sb, "- Express interest in %s and mention something specific about the company if possible.\n", in.Company)
	sb.WriteString(commonRules())
	return sb.String()
}

func genericPrompt(in promptInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The email is for %s. Neither their company nor my background is known.\n\n", in.Name)
	sb.WriteString("Write a short, professional and friendly cold email to build a network connection and ask about potential opportunities.\n")
	fmt.Fprintf(&sb, "- Start with a greeting to %s.\n", in.Name)
	sb.WriteString("- Briefly introduce me as a professional looking to connect. Keep it generic but sincere and do not invent details.\n")
	sb.WriteString(commonRules())
	return sb.String()
}

func commonRules() string {
	return fmt.Sprintf(`- Keep the email concise (under %d words).
- End with a call to action, like asking for a brief chat.
- Do not include a subject line. Just provide the raw email body text.
- Do not sign off with a name; a signature is added separately.
`, MaxWords)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
