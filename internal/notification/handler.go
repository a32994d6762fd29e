package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/shaharia-lab/mailhook/internal/changestream"
)

const instrumentationName = "github.com/shaharia-lab/mailhook/internal/notification"

// Handler variants.
const (
	VariantRaw       = "raw"
	VariantTemplated = "templated"
	VariantNoop      = "noop"
)

// Handler processes one change-stream event per invocation.
type Handler interface {
	Handle(ctx context.Context, event events.DynamoDBEvent) (Response, error)
}

// Settings is the resolved configuration a handler is built with.
type Settings struct {
	// Sender is the "Display Name <address>" source identity.
	Sender string
	// Charset applies to the raw variant's subject and bodies.
	Charset string
	// TemplateName is the provider-side template of the templated variant.
	TemplateName string
}

// Option customizes a handler at construction time.
type Option func(*dispatcher)

// WithLogger sets the logger. Defaults to a logger that discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(d *dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithTracerProvider sets the tracer provider used for the send span.
// Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *dispatcher) {
		if tp != nil {
			d.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets the meter provider used for the attempt counter.
// Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(d *dispatcher) {
		if mp != nil {
			d.meterProvider = mp
		}
	}
}

// NewHandler builds the handler for the named variant.
func NewHandler(variant string, provider Provider, settings Settings, opts ...Option) (Handler, error) {
	switch variant {
	case VariantRaw:
		return NewRawSender(provider, settings, opts...)
	case VariantTemplated:
		return NewTemplatedSender(provider, settings, opts...)
	case VariantNoop:
		return NewNoop(opts...), nil
	}
	return nil, fmt.Errorf("unknown handler variant %q", variant)
}

// dispatcher holds what every variant shares: the provider, logging and
// instrumentation around the single send call.
type dispatcher struct {
	variant        string
	provider       Provider
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	tracer   trace.Tracer
	attempts metric.Int64Counter
}

func newDispatcher(variant string, provider Provider, opts []Option) *dispatcher {
	d := &dispatcher{
		variant:        variant,
		provider:       provider,
		logger:         slog.New(slog.DiscardHandler),
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}

	d.tracer = d.tracerProvider.Tracer(instrumentationName)
	counter, err := d.meterProvider.Meter(instrumentationName).Int64Counter(
		"mailhook.delivery.attempts",
		metric.WithDescription("Delivery attempts made against the email provider."),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		d.logger.Warn("creating send attempt counter", slog.String("error", err.Error()))
		counter = metricnoop.Int64Counter{}
	}
	d.attempts = counter
	return d
}

// sendFunc performs the provider call for a resolved recipient.
type sendFunc func(ctx context.Context, rcpt changestream.Recipient) Result

// handle runs the shared flow: extract, send, map the result.
func (d *dispatcher) handle(ctx context.Context, event events.DynamoDBEvent, send sendFunc) (Response, error) {
	d.logger.InfoContext(ctx, "received event",
		slog.String("variant", d.variant),
		slog.Int("records", len(event.Records)),
	)

	rcpt, err := changestream.ExtractRecipient(event)
	if err != nil {
		var malformed *changestream.MalformedEventError
		if errors.As(err, &malformed) {
			d.logger.WarnContext(ctx, "discarding malformed event",
				slog.String("field", malformed.Field),
				slog.String("error", err.Error()),
			)
			return InvalidEventResponse(), nil
		}
		return Response{}, err
	}

	if n := changestream.IgnoredRecords(event); n > 0 {
		d.logger.WarnContext(ctx, "only the first record is processed",
			slog.Int("ignored_records", n),
		)
	}

	d.logger.InfoContext(ctx, "sending email",
		slog.String("name", rcpt.Name),
		slog.String("email", rcpt.Email),
	)

	switch r := d.attempt(ctx, rcpt, send).(type) {
	case Sent:
		d.logger.InfoContext(ctx, "email sent", slog.String("message_id", r.MessageID))
		return SuccessResponse(r.MessageID), nil
	case Rejected:
		d.logger.ErrorContext(ctx, "email rejected",
			slog.String("provider", d.provider.Name()),
			slog.String("reason", r.Reason),
		)
		return ErrorResponse(), nil
	default:
		d.logger.ErrorContext(ctx, "email rejected",
			slog.String("provider", d.provider.Name()),
			slog.String("reason", "provider returned no result"),
		)
		return ErrorResponse(), nil
	}
}

// attempt wraps the provider call in a span that is ended on every exit
// path, panics included.
func (d *dispatcher) attempt(ctx context.Context, rcpt changestream.Recipient, send sendFunc) Result {
	ctx, span := d.tracer.Start(ctx, "notification.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("mail.provider", d.provider.Name()),
			attribute.String("mail.variant", d.variant),
		),
	)
	defer span.End()

	result := send(ctx, rcpt)

	outcome := "rejected"
	switch r := result.(type) {
	case Sent:
		outcome = "sent"
		span.SetAttributes(attribute.String("mail.message_id", r.MessageID))
		span.SetStatus(codes.Ok, "")
	case Rejected:
		if r.Err != nil {
			span.RecordError(r.Err)
		}
		span.SetStatus(codes.Error, r.Reason)
	default:
		span.SetStatus(codes.Error, "provider returned no result")
	}

	d.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", d.provider.Name()),
		attribute.String("variant", d.variant),
		attribute.String("outcome", outcome),
	))
	return result
}

// RawSender sends DefaultTemplate's inline content to the recipient.
type RawSender struct {
	*dispatcher
	settings Settings
	template EmailTemplate
}

// NewRawSender creates the raw-content variant.
func NewRawSender(provider Provider, settings Settings, opts ...Option) (*RawSender, error) {
	if provider == nil {
		return nil, errors.New("raw sender: provider is required")
	}
	if settings.Sender == "" {
		return nil, errors.New("raw sender: sender is required")
	}
	return &RawSender{
		dispatcher: newDispatcher(VariantRaw, provider, opts),
		settings:   settings,
		template:   DefaultTemplate(),
	}, nil
}

// Handle sends the raw-content email for the event's first record.
func (s *RawSender) Handle(ctx context.Context, event events.DynamoDBEvent) (Response, error) {
	return s.handle(ctx, event, func(ctx context.Context, rcpt changestream.Recipient) Result {
		return s.provider.SendEmail(ctx, RawEmail{
			Source:      s.settings.Sender,
			Destination: rcpt.Email,
			Subject:     s.template.Subject,
			TextBody:    s.template.TextBody,
			HTMLBody:    s.template.HTMLBody,
			Charset:     s.settings.Charset,
		})
	})
}

// TemplatedSender sends a provider-side template populated with the
// recipient's name.
type TemplatedSender struct {
	*dispatcher
	settings Settings
}

// NewTemplatedSender creates the templated variant.
func NewTemplatedSender(provider Provider, settings Settings, opts ...Option) (*TemplatedSender, error) {
	if provider == nil {
		return nil, errors.New("templated sender: provider is required")
	}
	if settings.Sender == "" {
		return nil, errors.New("templated sender: sender is required")
	}
	if settings.TemplateName == "" {
		return nil, errors.New("templated sender: template name is required")
	}
	return &TemplatedSender{
		dispatcher: newDispatcher(VariantTemplated, provider, opts),
		settings:   settings,
	}, nil
}

// Handle sends the named template for the event's first record.
func (s *TemplatedSender) Handle(ctx context.Context, event events.DynamoDBEvent) (Response, error) {
	return s.handle(ctx, event, func(ctx context.Context, rcpt changestream.Recipient) Result {
		return s.provider.SendTemplatedEmail(ctx, TemplatedEmail{
			Source:       s.settings.Sender,
			Destination:  rcpt.Email,
			TemplateName: s.settings.TemplateName,
			TemplateData: templateData(rcpt.Name),
		})
	})
}

// Noop acknowledges every event without sending anything.
type Noop struct {
	logger *slog.Logger
}

// NewNoop creates the placeholder variant. Only WithLogger has an effect.
func NewNoop(opts ...Option) *Noop {
	d := &dispatcher{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return &Noop{logger: d.logger}
}

// Handle returns a success response unconditionally.
func (n *Noop) Handle(ctx context.Context, event events.DynamoDBEvent) (Response, error) {
	n.logger.InfoContext(ctx, "received event",
		slog.String("variant", VariantNoop),
		slog.Int("records", len(event.Records)),
	)
	return SuccessResponse(""), nil
}
