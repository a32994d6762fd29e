package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// Handler variants and email providers accepted by Validate.
var (
	Variants  = []string{"raw", "templated", "noop"}
	Providers = []string{"ses", "smtp", "sandbox"}
)

// AppConfig holds all application-level configuration loaded from environment variables.
type AppConfig struct {
	// Variant selects the handler: raw, templated or noop. Defaults to raw.
	Variant string `envconfig:"HANDLER_VARIANT" default:"raw"`

	// Charset is the encoding of the raw variant's subject and bodies.
	Charset string `envconfig:"CHARSET" default:"UTF-8"`

	// Sender is the "Display Name <address>" source identity.
	// Required unless Variant is noop.
	Sender string `envconfig:"SENDER"`

	// AWSRegion is the region of the SES client.
	AWSRegion string `envconfig:"AWS_REGION" default:"eu-west-1"`

	// TemplateName is the SES template used by the templated variant.
	TemplateName string `envconfig:"TEMPLATE_NAME"`

	// Provider selects the delivery backend: ses, smtp or sandbox. Defaults to ses.
	Provider string `envconfig:"EMAIL_PROVIDER" default:"ses"`

	SMTPHost       string `envconfig:"SMTP_HOST"`
	SMTPPort       int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername   string `envconfig:"SMTP_USERNAME"`
	SMTPPassword   string `envconfig:"SMTP_PASSWORD"`
	SMTPEncryption string `envconfig:"SMTP_ENCRYPTION" default:"starttls"`

	// TemplatesFile is a YAML template catalog used by the smtp and sandbox
	// providers for templated sends.
	TemplatesFile string `envconfig:"TEMPLATES_FILE"`

	// SandboxVerified lists the sender identities the sandbox provider accepts.
	SandboxVerified []string `envconfig:"SANDBOX_VERIFIED"`

	// LogLevel sets the minimum log level (debug, info, warn, error). Defaults to info.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// LogFormat is json or text. Defaults to json.
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// LogFile, when set, sends logs to a rotated file instead of stdout.
	LogFile string `envconfig:"LOG_FILE"`

	OTelEnabled      bool    `envconfig:"OTEL_ENABLED" default:"false"`
	OTelExporter     string  `envconfig:"OTEL_EXPORTER" default:"otlp"`
	OTelEndpoint     string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	OTelInsecure     bool    `envconfig:"OTEL_INSECURE" default:"true"`
	OTelServiceName  string  `envconfig:"OTEL_SERVICE_NAME" default:"mailhook"`
	OTelSamplingRate float64 `envconfig:"OTEL_SAMPLING_RATE" default:"1.0"`

	// Port is the local HTTP harness port. Defaults to 8990.
	Port int `envconfig:"PORT" default:"8990"`
}

// Validate checks enumerations and the fields each variant and provider needs.
func (c *AppConfig) Validate() error {
	var errs []error
	if !slices.Contains(Variants, c.Variant) {
		errs = append(errs, fmt.Errorf("HANDLER_VARIANT %q: must be one of %v", c.Variant, Variants))
	}
	if !slices.Contains(Providers, c.Provider) {
		errs = append(errs, fmt.Errorf("EMAIL_PROVIDER %q: must be one of %v", c.Provider, Providers))
	}
	if c.Variant != "noop" && c.Sender == "" {
		errs = append(errs, errors.New("SENDER is required"))
	}
	if c.Variant == "templated" && c.TemplateName == "" {
		errs = append(errs, errors.New("TEMPLATE_NAME is required for the templated variant"))
	}
	if c.Provider == "smtp" && c.SMTPHost == "" {
		errs = append(errs, errors.New("SMTP_HOST is required for the smtp provider"))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q: must be json or text", c.LogFormat))
	}
	return errors.Join(errs...)
}

// SlogLevel converts the LogLevel string to a slog.Level.
// Unknown values default to slog.LevelInfo.
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
