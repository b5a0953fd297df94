// Package main implements aicacia, a terminal client for the Aicacia
// restoration question answering service.
//
// Without a subcommand it opens the full-screen interface. The
// subcommands expose the same workflows for scripting.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyrsmithlabs/aicacia/internal/router"
	"github.com/fyrsmithlabs/aicacia/internal/tui"
	"github.com/spf13/cobra"
)

// version is set at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// globalOptions are the flags shared by every command.
type globalOptions struct {
	configPath string
	envFile    string
	apiURL     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	var open string

	cmd := &cobra.Command{
		Use:   "aicacia",
		Short: "Ask questions about ecological restoration from the terminal",
		Long: `aicacia is a terminal client for the Aicacia question answering service.

Run it without arguments to open the interactive interface, or use the
subcommands below for one-off requests.

Examples:
  # Open the interface on the chat screen
  aicacia --open /chat

  # Sign in, then ask a question
  aicacia login --email ada@example.org
  aicacia ask "Which grasses stabilise coastal dunes?"

  # Point at a different backend
  aicacia --api-url https://aicacia.example.org whoami`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd.Context(), true)
			if err != nil {
				return reportError(cmd, err)
			}
			defer a.Close(cmd.Context())

			deps := tui.NewDeps(a.reg, a.events, a.logger)
			return reportError(cmd, tui.Run(cmd.Context(), deps, open))
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ~/.config/aicacia/config.yaml)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file merged into the environment")
	flags.StringVar(&opts.apiURL, "api-url", "", "backend base URL (overrides api.base_url)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	cmd.Flags().StringVar(&open, "open", router.PathQuery, "screen to open: /, /chat or /admin/feedbacks")

	cmd.AddCommand(
		newLoginCmd(opts),
		newRegisterCmd(opts),
		newLogoutCmd(opts),
		newWhoamiCmd(opts),
		newAskCmd(opts),
		newHistoryCmd(opts),
		newChatCmd(opts),
		newAdminCmd(opts),
	)
	return cmd
}

// reportError prints err to the command's error stream and returns it so
// the exit status reflects the failure.
func reportError(cmd *cobra.Command, err error) error {
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), errorColor.Sprint("Error: ")+err.Error())
	}
	return err
}
