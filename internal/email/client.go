// Package email sends account notifications to SmartSendr users through
// Resend. Outreach email never goes through here; it is sent from the user's
// own Gmail account by package gmail.
package email

import "context"

// BatchSummaryParams describes a finished send batch.
type BatchSummaryParams struct {
	To    string // account owner
	Name  string // greeting name; may be empty
	Sent  int
	Total int
}

// PremiumWelcomeParams holds the data for the subscription activation email.
type PremiumWelcomeParams struct {
	To   string
	Name string
}

// Sender is the interface the send executor and the billing webhook use.
// Tests inject a stub that records calls without hitting the network.
type Sender interface {
	// SendBatchSummary tells the owner how many emails of a batch went out.
	SendBatchSummary(ctx context.Context, p BatchSummaryParams) error

	// SendPremiumWelcome confirms a newly active subscription.
	SendPremiumWelcome(ctx context.Context, p PremiumWelcomeParams) error
}

// Notifier adapts a Sender to the send executor's batch callback.
type Notifier struct {
	Sender Sender
}

// NotifyBatch sends the batch summary.
func (n Notifier) NotifyBatch(ctx context.Context, to, name string, sent, total int) error {
	return n.Sender.SendBatchSummary(ctx, BatchSummaryParams{To: to, Name: name, Sent: sent, Total: total})
}

// noop drops every message. Used when RESEND_API_KEY is unset.
type noop struct{}

// NewNoop returns a Sender that does nothing.
func NewNoop() Sender { return noop{} }

func (noop) SendBatchSummary(context.Context, BatchSummaryParams) error     { return nil }
func (noop) SendPremiumWelcome(context.Context, PremiumWelcomeParams) error { return nil }
