package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaharia-lab/mailhook/internal/build"
	"github.com/shaharia-lab/mailhook/internal/config"
	"github.com/shaharia-lab/mailhook/internal/logger"
	"github.com/shaharia-lab/mailhook/internal/notification"
	"github.com/shaharia-lab/mailhook/internal/provider/sandbox"
	"github.com/shaharia-lab/mailhook/internal/provider/ses"
	"github.com/shaharia-lab/mailhook/internal/provider/smtp"
	"github.com/shaharia-lab/mailhook/internal/telemetry"
	"github.com/shaharia-lab/mailhook/internal/templates"
)

// runtime is everything a command needs to serve events.
type runtime struct {
	handler   notification.Handler
	logger    *slog.Logger
	providers *telemetry.Providers
	sandbox   *sandbox.Provider // set only for the sandbox provider
	shutdown  telemetry.ShutdownFunc
}

// newRuntime validates cfg and wires telemetry, logging, the email provider
// and the handler.
func newRuntime(ctx context.Context, cfg *config.AppConfig) (*runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logOut := logger.NewWriter(cfg.LogFile)
	bootLog := logger.New(logger.Options{Level: cfg.SlogLevel(), Format: cfg.LogFormat, Output: logOut})
	providers, stopTelemetry, err := telemetry.Init(ctx, telemetry.Options{
		Enabled:        cfg.OTelEnabled,
		ServiceName:    cfg.OTelServiceName,
		ServiceVersion: build.Version,
		Exporter:       cfg.OTelExporter,
		Endpoint:       cfg.OTelEndpoint,
		Insecure:       cfg.OTelInsecure,
		SamplingRate:   cfg.OTelSamplingRate,
		Logger:         bootLog,
	})
	if err != nil {
		_ = logOut.Close()
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	// The boot logger stays reachable through the OTel error handler, so the
	// writer is closed only after telemetry has stopped.
	shutdown := func(ctx context.Context) error {
		return errors.Join(stopTelemetry(ctx), logOut.Close())
	}

	log := logger.New(logger.Options{
		Level:          cfg.SlogLevel(),
		Format:         cfg.LogFormat,
		Output:         logOut,
		LoggerProvider: providers.LoggerProvider,
	})

	rt := &runtime{logger: log, providers: providers, shutdown: shutdown}

	var provider notification.Provider
	if cfg.Variant != notification.VariantNoop {
		provider, err = rt.newProvider(ctx, cfg)
		if err != nil {
			_ = shutdown(ctx)
			return nil, err
		}
	}

	rt.handler, err = notification.NewHandler(cfg.Variant, provider, notification.Settings{
		Sender:       cfg.Sender,
		Charset:      cfg.Charset,
		TemplateName: cfg.TemplateName,
	},
		notification.WithLogger(log),
		notification.WithTracerProvider(providers.TracerProvider),
		notification.WithMeterProvider(providers.MeterProvider),
	)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	log.Info("mailhook ready",
		slog.String("variant", cfg.Variant),
		slog.String("provider", cfg.Provider),
		slog.String("version", build.Version),
	)
	return rt, nil
}

func (rt *runtime) newProvider(ctx context.Context, cfg *config.AppConfig) (notification.Provider, error) {
	var catalog *templates.Catalog
	if cfg.TemplatesFile != "" {
		c, err := templates.Load(cfg.TemplatesFile)
		if err != nil {
			return nil, err
		}
		catalog = c
	}

	switch cfg.Provider {
	case "ses":
		p, err := ses.New(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("creating SES provider: %w", err)
		}
		return p, nil
	case "smtp":
		return smtp.New(smtp.Config{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			Username:   cfg.SMTPUsername,
			Password:   cfg.SMTPPassword,
			Encryption: cfg.SMTPEncryption,
		}, catalog), nil
	case "sandbox":
		rt.sandbox = sandbox.New(
			sandbox.WithVerifiedIdentities(cfg.SandboxVerified...),
			sandbox.WithCatalog(catalog),
		)
		return rt.sandbox, nil
	}
	return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
}
