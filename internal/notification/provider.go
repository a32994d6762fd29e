// Package notification turns change-stream events into transactional emails.
// A handler extracts the recipient from the event, builds the email for its
// variant and hands it to a Provider, mapping the outcome to a Response.
package notification

import "context"

// RawEmail is a fully rendered message sent with inline content.
type RawEmail struct {
	Source      string
	Destination string
	Subject     string
	TextBody    string
	HTMLBody    string
	Charset     string
}

// TemplatedEmail references a template stored by the provider.
// TemplateData is a JSON object with the substitution values.
type TemplatedEmail struct {
	Source       string
	Destination  string
	TemplateName string
	TemplateData string
}

// Result is the outcome of one delivery attempt: either Sent or Rejected.
type Result interface {
	result()
}

// Sent means the provider accepted the message.
type Sent struct {
	MessageID string
}

// Rejected means the provider refused or failed the send. Reason is the
// provider's message and is only ever logged.
type Rejected struct {
	Reason string
	Err    error
}

func (Sent) result()     {}
func (Rejected) result() {}

// Provider is the interface for email delivery backends.
type Provider interface {
	// Name returns the provider identifier (e.g. "ses").
	Name() string
	// SendEmail delivers a message with inline subject and bodies.
	SendEmail(ctx context.Context, email RawEmail) Result
	// SendTemplatedEmail delivers a message rendered from a named template.
	SendTemplatedEmail(ctx context.Context, email TemplatedEmail) Result
}
