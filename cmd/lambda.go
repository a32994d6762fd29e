package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"github.com/shaharia-lab/mailhook/internal/config"
	"github.com/shaharia-lab/mailhook/internal/notification"
)

// NewLambdaCmd returns the "lambda" subcommand that hands control to the AWS
// Lambda runtime.
func NewLambdaCmd(cfg *config.AppConfig) *cobra.Command {
	var variant string

	cmd := &cobra.Command{
		Use:   "lambda",
		Short: "Run as an AWS Lambda function triggered by a DynamoDB stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("variant") {
				cfg.Variant = variant
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			rt, err := newRuntime(ctx, cfg)
			if err != nil {
				return err
			}

			lambda.StartWithOptions(rt.lambdaHandler(),
				lambda.WithContext(ctx),
				lambda.WithEnableSIGTERM(func() {
					if err := rt.shutdown(context.Background()); err != nil {
						rt.logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
					}
				}),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&variant, "variant", cfg.Variant, "Handler variant: raw, templated or noop (overrides HANDLER_VARIANT)")
	return cmd
}

// lambdaHandler flushes telemetry before each invocation returns; the
// execution environment may be frozen as soon as it does.
func (rt *runtime) lambdaHandler() func(context.Context, events.DynamoDBEvent) (notification.Response, error) {
	return func(ctx context.Context, event events.DynamoDBEvent) (notification.Response, error) {
		resp, err := rt.handler.Handle(ctx, event)
		if ferr := rt.providers.ForceFlush(ctx); ferr != nil {
			rt.logger.WarnContext(ctx, "telemetry flush failed", slog.String("error", ferr.Error()))
		}
		return resp, err
	}
}
