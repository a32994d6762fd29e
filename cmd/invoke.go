package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/shaharia-lab/mailhook/internal/changestream"
	"github.com/shaharia-lab/mailhook/internal/config"
	"github.com/shaharia-lab/mailhook/internal/notification"
)

var (
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	labelStyle = lipgloss.NewStyle().Faint(true)
)

// NewInvokeCmd returns the "invoke" subcommand that runs the handler once on
// an event read from a file or stdin.
func NewInvokeCmd(cfg *config.AppConfig) *cobra.Command {
	var (
		eventPath string
		variant   string
		provider  string
		rawOutput bool
	)

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Run the handler once on a change event",
		Long: `Run the configured handler on a DynamoDB stream event read from --event
(or stdin with "-") and print the response object.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("variant") {
				cfg.Variant = variant
			}
			if cmd.Flags().Changed("provider") {
				cfg.Provider = provider
			}

			raw, err := readEvent(cmd.InOrStdin(), eventPath)
			if err != nil {
				return err
			}
			event, err := changestream.Decode(raw)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			rt, err := newRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = rt.shutdown(ctx) }()

			resp, err := rt.handler.Handle(ctx, event)
			if err != nil {
				return fmt.Errorf("handler failed: %w", err)
			}
			return printResponse(cmd.OutOrStdout(), resp, rawOutput)
		},
	}

	cmd.Flags().StringVar(&eventPath, "event", "-", `Path to the event JSON file ("-" reads stdin)`)
	cmd.Flags().StringVar(&variant, "variant", cfg.Variant, "Handler variant (overrides HANDLER_VARIANT)")
	cmd.Flags().StringVar(&provider, "provider", cfg.Provider, "Email provider: ses, smtp or sandbox (overrides EMAIL_PROVIDER)")
	cmd.Flags().BoolVar(&rawOutput, "json", false, "Print only the response object as JSON")
	return cmd
}

func readEvent(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading event from stdin: %w", err)
		}
		return b, nil
	}
	b, err := os.ReadFile(path) //nolint:gosec // path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("reading event file %q: %w", path, err)
	}
	return b, nil
}

func printResponse(w io.Writer, resp notification.Response, rawOutput bool) error {
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	if rawOutput {
		_, err = fmt.Fprintln(w, string(out))
		return err
	}

	status := okStyle.Render(fmt.Sprintf("%d", resp.StatusCode))
	if resp.StatusCode >= 400 {
		status = failStyle.Render(fmt.Sprintf("%d", resp.StatusCode))
	}
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("status:"), status)
	if body, err := resp.DecodeBody(); err == nil {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("message:"), body.Message)
		if body.MessageID != "" {
			fmt.Fprintf(w, "%s %s\n", labelStyle.Render("message id:"), body.MessageID)
		}
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
