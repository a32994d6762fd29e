// Package sandbox is an in-memory email provider with SES sandbox semantics:
// only verified sender identities may send, templated sends need a known
// template, and accepted sends are counted as delivery attempts.
package sandbox

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaharia-lab/mailhook/internal/notification"
	"github.com/shaharia-lab/mailhook/internal/templates"
)

// Statistics mirrors the SES send statistics data point.
type Statistics struct {
	DeliveryAttempts int `json:"deliveryAttempts"`
	Rejects          int `json:"rejects"`
}

// Message is an accepted send kept in the outbox.
type Message struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Template    string    `json:"template,omitempty"`
	Subject     string    `json:"subject"`
	Text        string    `json:"text"`
	HTML        string    `json:"html"`
	SentAt      time.Time `json:"sentAt"`
}

// Option customizes a Provider.
type Option func(*Provider)

// WithVerifiedIdentities marks the given addresses as verified senders.
func WithVerifiedIdentities(addrs ...string) Option {
	return func(p *Provider) {
		for _, a := range addrs {
			p.verifyLocked(a)
		}
	}
}

// WithCatalog sets the templates available to templated sends.
func WithCatalog(c *templates.Catalog) Option {
	return func(p *Provider) {
		p.catalog = c
	}
}

// WithIDGenerator overrides message ID generation.
func WithIDGenerator(next func() string) Option {
	return func(p *Provider) {
		if next != nil {
			p.nextID = next
		}
	}
}

// WithClock overrides the clock used for outbox timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// Provider is safe for concurrent use.
type Provider struct {
	catalog *templates.Catalog
	nextID  func() string
	now     func() time.Time

	mu       sync.Mutex
	verified map[string]struct{}
	outbox   []Message
	stats    Statistics
}

// New creates an empty sandbox.
func New(opts ...Option) *Provider {
	p := &Provider{
		nextID:   func() string { return uuid.NewString() },
		now:      time.Now,
		verified: make(map[string]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "sandbox" }

// VerifyEmailIdentity marks addr as a verified sender.
func (p *Provider) VerifyEmailIdentity(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verifyLocked(addr)
}

func (p *Provider) verifyLocked(addr string) {
	if a := bareAddress(addr); a != "" {
		p.verified[a] = struct{}{}
	}
}

// SendEmail accepts the message when its source is verified.
func (p *Provider) SendEmail(ctx context.Context, email notification.RawEmail) notification.Result {
	if err := ctx.Err(); err != nil {
		return notification.Rejected{Reason: err.Error(), Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if r, ok := p.checkSourceLocked(email.Source); !ok {
		return r
	}
	return p.acceptLocked(Message{
		Source:      email.Source,
		Destination: email.Destination,
		Subject:     email.Subject,
		Text:        email.TextBody,
		HTML:        email.HTMLBody,
	})
}

// SendTemplatedEmail renders the named template from the catalog and accepts
// the message when its source is verified.
func (p *Provider) SendTemplatedEmail(ctx context.Context, email notification.TemplatedEmail) notification.Result {
	if err := ctx.Err(); err != nil {
		return notification.Rejected{Reason: err.Error(), Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if r, ok := p.checkSourceLocked(email.Source); !ok {
		return r
	}
	if !p.catalog.Has(email.TemplateName) {
		p.stats.Rejects++
		return notification.Rejected{Reason: fmt.Sprintf("Template %s does not exist", email.TemplateName)}
	}
	rendered, err := p.catalog.Render(email.TemplateName, email.TemplateData)
	if err != nil {
		p.stats.Rejects++
		return notification.Rejected{Reason: err.Error(), Err: err}
	}
	return p.acceptLocked(Message{
		Source:      email.Source,
		Destination: email.Destination,
		Template:    email.TemplateName,
		Subject:     rendered.Subject,
		Text:        rendered.Text,
		HTML:        rendered.HTML,
	})
}

// SendStatistics returns the counters accumulated so far.
func (p *Provider) SendStatistics() Statistics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Outbox returns a copy of the accepted messages in send order.
func (p *Provider) Outbox() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.outbox))
	copy(out, p.outbox)
	return out
}

func (p *Provider) checkSourceLocked(source string) (notification.Result, bool) {
	if _, ok := p.verified[bareAddress(source)]; ok {
		return nil, true
	}
	p.stats.Rejects++
	return notification.Rejected{Reason: "Email address not verified " + source}, false
}

func (p *Provider) acceptLocked(msg Message) notification.Result {
	msg.ID = p.nextID()
	msg.SentAt = p.now()
	p.outbox = append(p.outbox, msg)
	p.stats.DeliveryAttempts++
	return notification.Sent{MessageID: msg.ID}
}

// bareAddress reduces "Display Name <addr>" to a lower-cased addr.
func bareAddress(s string) string {
	if a, err := mail.ParseAddress(s); err == nil {
		return strings.ToLower(a.Address)
	}
	return strings.ToLower(strings.TrimSpace(s))
}
