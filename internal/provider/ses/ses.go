// Package ses delivers notifications through Amazon SES (API v2).
package ses

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"github.com/shaharia-lab/mailhook/internal/notification"
)

// API is the subset of the SES v2 client the provider calls.
type API interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Provider sends email through SES.
type Provider struct {
	api API
}

// New creates a Provider with a client for region, using the default AWS
// credential chain.
func New(ctx context.Context, region string) (*Provider, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewWithAPI(sesv2.NewFromConfig(cfg)), nil
}

// NewWithAPI creates a Provider around an existing client.
func NewWithAPI(api API) *Provider {
	return &Provider{api: api}
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "ses" }

// SendEmail sends inline subject, text and HTML content.
func (p *Provider) SendEmail(ctx context.Context, email notification.RawEmail) notification.Result {
	return p.send(ctx, email.Source, email.Destination, &types.EmailContent{
		Simple: &types.Message{
			Subject: content(email.Subject, email.Charset),
			Body: &types.Body{
				Text: content(email.TextBody, email.Charset),
				Html: content(email.HTMLBody, email.Charset),
			},
		},
	})
}

// SendTemplatedEmail sends a template stored in SES.
func (p *Provider) SendTemplatedEmail(ctx context.Context, email notification.TemplatedEmail) notification.Result {
	return p.send(ctx, email.Source, email.Destination, &types.EmailContent{
		Template: &types.Template{
			TemplateName: aws.String(email.TemplateName),
			TemplateData: aws.String(email.TemplateData),
		},
	})
}

func (p *Provider) send(ctx context.Context, source, destination string, body *types.EmailContent) notification.Result {
	out, err := p.api.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(source),
		Destination:      &types.Destination{ToAddresses: []string{destination}},
		Content:          body,
	})
	if err != nil {
		return rejection(err)
	}
	if out == nil || aws.ToString(out.MessageId) == "" {
		return notification.Rejected{Reason: "SES returned no message id"}
	}
	return notification.Sent{MessageID: aws.ToString(out.MessageId)}
}

// rejection prefers the service's own message over the wrapped SDK error.
func rejection(err error) notification.Rejected {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorMessage() != "" {
		return notification.Rejected{Reason: apiErr.ErrorMessage(), Err: err}
	}
	return notification.Rejected{Reason: err.Error(), Err: err}
}

func content(data, charset string) *types.Content {
	c := &types.Content{Data: aws.String(data)}
	if charset != "" {
		c.Charset = aws.String(charset)
	}
	return c
}
