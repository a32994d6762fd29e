package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/mailhook/internal/config"
)

// NewRootCmd returns the mailhook root command with every subcommand attached.
func NewRootCmd(cfg *config.AppConfig) *cobra.Command {
	root := &cobra.Command{
		Use:   "mailhook",
		Short: "Change-stream email notification handlers",
		Long: `mailhook sends a transactional email for each record inserted into a
DynamoDB table, reading the recipient's Name and Email from the stream event.`,
		SilenceUsage: true,
	}

	root.AddCommand(NewLambdaCmd(cfg))
	root.AddCommand(NewInvokeCmd(cfg))
	root.AddCommand(NewServeCmd(cfg))
	root.AddCommand(NewVersionCmd())
	return root
}

// Execute runs the root command.
func Execute() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := NewRootCmd(cfg).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
