// Package smtp delivers notifications over SMTP using the go-mail library.
// Templated sends are rendered from a local template catalog.
package smtp

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/shaharia-lab/mailhook/internal/notification"
	"github.com/shaharia-lab/mailhook/internal/templates"
)

// Config holds connection parameters for the SMTP server.
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Encryption string // "none", "starttls", "ssl_tls"
}

// DeliverFunc hands a built message to the server.
type DeliverFunc func(ctx context.Context, m *mail.Msg) error

// Option customizes a Provider.
type Option func(*Provider)

// WithDeliverFunc replaces the network delivery step.
func WithDeliverFunc(fn DeliverFunc) Option {
	return func(p *Provider) {
		if fn != nil {
			p.deliver = fn
		}
	}
}

// Provider sends email through an SMTP server.
type Provider struct {
	config  Config
	catalog *templates.Catalog
	deliver DeliverFunc
}

// New creates a Provider. catalog may be nil when only raw sends are used.
func New(config Config, catalog *templates.Catalog, opts ...Option) *Provider {
	p := &Provider{config: config, catalog: catalog}
	p.deliver = p.dialAndSend
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "smtp" }

// SendEmail sends a plain-text message with an HTML alternative.
func (p *Provider) SendEmail(ctx context.Context, email notification.RawEmail) notification.Result {
	m, err := buildMsg(email.Source, email.Destination, email.Subject, email.TextBody, email.HTMLBody, email.Charset)
	if err != nil {
		return notification.Rejected{Reason: err.Error(), Err: err}
	}
	return p.send(ctx, m)
}

// SendTemplatedEmail renders the named template and sends the result.
func (p *Provider) SendTemplatedEmail(ctx context.Context, email notification.TemplatedEmail) notification.Result {
	rendered, err := p.catalog.Render(email.TemplateName, email.TemplateData)
	if err != nil {
		return notification.Rejected{Reason: err.Error(), Err: err}
	}
	m, err := buildMsg(email.Source, email.Destination, rendered.Subject, rendered.Text, rendered.HTML, "")
	if err != nil {
		return notification.Rejected{Reason: err.Error(), Err: err}
	}
	return p.send(ctx, m)
}

func (p *Provider) send(ctx context.Context, m *mail.Msg) notification.Result {
	m.SetMessageID()
	if err := p.deliver(ctx, m); err != nil {
		return notification.Rejected{Reason: err.Error(), Err: err}
	}
	return notification.Sent{MessageID: messageID(m)}
}

func (p *Provider) dialAndSend(ctx context.Context, m *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(p.config.Port),
		mail.WithTLSPolicy(tlsPolicyFromEncryption(p.config.Encryption)),
	}
	if p.config.Encryption == "ssl_tls" {
		opts = append(opts, mail.WithSSL())
	}
	if p.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(p.config.Username),
			mail.WithPassword(p.config.Password),
		)
	}

	c, err := mail.NewClient(p.config.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}
	return c.DialAndSendWithContext(ctx, m)
}

func buildMsg(from, to, subject, text, html, charset string) (*mail.Msg, error) {
	var msgOpts []mail.MsgOption
	if charset != "" {
		msgOpts = append(msgOpts, mail.WithCharset(mail.Charset(charset)))
	}
	m := mail.NewMsg(msgOpts...)
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	m.Subject(subject)

	switch {
	case text != "" && html != "":
		m.SetBodyString(mail.TypeTextPlain, text)
		m.AddAlternativeString(mail.TypeTextHTML, html)
	case html != "":
		m.SetBodyString(mail.TypeTextHTML, html)
	default:
		m.SetBodyString(mail.TypeTextPlain, text)
	}
	return m, nil
}

func messageID(m *mail.Msg) string {
	ids := m.GetGenHeader(mail.HeaderMessageID)
	if len(ids) == 0 {
		return ""
	}
	return strings.Trim(ids[0], "<>")
}

// tlsPolicyFromEncryption converts the encryption string to a go-mail TLSPolicy.
func tlsPolicyFromEncryption(enc string) mail.TLSPolicy {
	switch enc {
	case "ssl_tls":
		return mail.TLSMandatory
	case "starttls":
		return mail.TLSOpportunistic
	default:
		return mail.NoTLS
	}
}
