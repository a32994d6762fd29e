package config

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppConfig_SlogLevel(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     slog.Level
	}{
		{"debug", "debug", slog.LevelDebug},
		{"info", "info", slog.LevelInfo},
		{"warn", "warn", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"unknown defaults to info", "unknown", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &AppConfig{LogLevel: tt.logLevel}
			assert.Equal(t, tt.want, c.SlogLevel())
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("HANDLER_VARIANT", "templated")
	t.Setenv("SENDER", "Sender Name <sender@example.com>")
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("TEMPLATE_NAME", "welcome")
	t.Setenv("SANDBOX_VERIFIED", "a@example.com,b@example.com")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "templated", cfg.Variant)
	assert.Equal(t, "Sender Name <sender@example.com>", cfg.Sender)
	assert.Equal(t, "us-east-1", cfg.AWSRegion)
	assert.Equal(t, "welcome", cfg.TemplateName)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.SandboxVerified)
	assert.Equal(t, 9090, cfg.Port)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"HANDLER_VARIANT", "CHARSET", "AWS_REGION", "EMAIL_PROVIDER", "SMTP_PORT",
		"SMTP_ENCRYPTION", "LOG_LEVEL", "LOG_FORMAT", "OTEL_ENABLED", "OTEL_EXPORTER",
		"OTEL_SERVICE_NAME", "OTEL_SAMPLING_RATE", "PORT",
	} {
		// envconfig only applies defaults to unset variables.
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "raw", cfg.Variant)
	assert.Equal(t, "UTF-8", cfg.Charset)
	assert.Equal(t, "eu-west-1", cfg.AWSRegion)
	assert.Equal(t, "ses", cfg.Provider)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.Equal(t, "starttls", cfg.SMTPEncryption)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.False(t, cfg.OTelEnabled)
	assert.Equal(t, "otlp", cfg.OTelExporter)
	assert.Equal(t, "mailhook", cfg.OTelServiceName)
	assert.InDelta(t, 1.0, cfg.OTelSamplingRate, 0.0001)
	assert.Equal(t, 8990, cfg.Port)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("PORT", "not-a-number")

	_, err := Load()
	assert.Error(t, err)
}

func TestAppConfig_Validate(t *testing.T) {
	valid := func() AppConfig {
		return AppConfig{
			Variant:   "raw",
			Provider:  "ses",
			Sender:    "Sender Name <sender@example.com>",
			LogFormat: "json",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *AppConfig)
		wantErr string
	}{
		{"valid raw", func(*AppConfig) {}, ""},
		{"unknown variant", func(c *AppConfig) { c.Variant = "bulk" }, "HANDLER_VARIANT"},
		{"unknown provider", func(c *AppConfig) { c.Provider = "sendgrid" }, "EMAIL_PROVIDER"},
		{"missing sender", func(c *AppConfig) { c.Sender = "" }, "SENDER"},
		{"noop needs no sender", func(c *AppConfig) { c.Variant = "noop"; c.Sender = "" }, ""},
		{"templated needs template", func(c *AppConfig) { c.Variant = "templated" }, "TEMPLATE_NAME"},
		{"smtp needs host", func(c *AppConfig) { c.Provider = "smtp" }, "SMTP_HOST"},
		{"bad log format", func(c *AppConfig) { c.LogFormat = "xml" }, "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
