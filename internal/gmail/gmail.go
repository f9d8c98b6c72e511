// Package gmail sends plain-text emails through the Gmail API on behalf of a
// user whose OAuth token is supplied per call.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// User-facing messages for provider failures that need user action.
const (
	MsgReconnect   = "Gmail access expired. Please reconnect your Gmail account."
	MsgPermissions = "Gmail access denied. Please check your Gmail permissions."
	MsgRateLimited = "Gmail rate limit exceeded. Please try again later."
)

// Message is one outbound email.
type Message struct {
	To         string
	Company    string // optional, used in the subject line
	Body       string
	SenderName string
}

// Subject returns the subject line for m.
func (m Message) Subject() string {
	company := headerValue(m.Company)
	if company == "" {
		company = "your company"
	}
	return "Quick question about " + company
}

// Raw renders m as RFC 2822 text with CRLF line endings. Header values are
// single-line; a non-ASCII subject is RFC 2047 encoded.
func (m Message) Raw() string {
	lines := []string{
		"To: " + headerValue(m.To),
		"Subject: " + mime.QEncoding.Encode("utf-8", m.Subject()),
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="UTF-8"`,
		"",
		m.Body,
		"",
		"Best regards,",
		m.SenderName,
	}
	return strings.Join(lines, "\r\n")
}

// headerValue collapses whitespace, CR and LF included, so a value cannot
// start a new header.
func headerValue(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Encode returns Raw as base64url, the format the Gmail API expects.
func (m Message) Encode() string {
	return base64.URLEncoding.EncodeToString([]byte(m.Raw()))
}

// Sender sends one message with the given user token.
type Sender interface {
	Send(ctx context.Context, tok *oauth2.Token, m Message) error
}

// Client implements Sender with the official Gmail API client.
type Client struct {
	opts []option.ClientOption
}

// NewClient returns a Client. opts are appended to every service it builds;
// tests pass option.WithEndpoint to target a fake server.
func NewClient(opts ...option.ClientOption) *Client {
	return &Client{opts: opts}
}

// Send delivers m from the authenticated user's mailbox.
func (c *Client) Send(ctx context.Context, tok *oauth2.Token, m Message) error {
	opts := append([]option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(tok)),
	}, c.opts...)

	svc, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("gmail: create service: %w", err)
	}

	_, err = svc.Users.Messages.Send("me", &gmailapi.Message{Raw: m.Encode()}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gmail: send to %s: %w", m.To, err)
	}
	return nil
}

// StatusCode extracts the provider HTTP status from err, or 0.
func StatusCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return retrieveErr.Response.StatusCode
	}
	return 0
}

// ClassifyError maps a send failure to the message shown to the user.
func ClassifyError(err error) string {
	switch StatusCode(err) {
	case 401:
		return MsgReconnect
	case 403:
		return MsgPermissions
	case 429:
		return MsgRateLimited
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
