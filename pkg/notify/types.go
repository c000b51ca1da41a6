// Package notify delivers portal email. Delivery is best-effort
// everywhere: a failed notice is logged and counted, never surfaced to
// the operation that triggered it.
package notify

import "context"

// Message is one outbound email
type Message struct {
	To      []string `json:"to"`
	Cc      []string `json:"cc,omitempty"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// Notification kinds, used for metrics and delivery logs
const (
	KindFiling     = "droc_filing"
	KindApproval   = "approval"
	KindDeferral   = "deferral"
	KindExpiration = "expiration"
	KindReminder   = "reminder"
)

// Notifier sends one message synchronously
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Discard drops every message. Used when mail delivery is disabled;
// the dispatcher still logs what would have been sent.
type Discard struct{}

// Send accepts and drops the message
func (Discard) Send(context.Context, Message) error { return nil }
