package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/switchboard/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "switchboard",
	Short: "Operator console for the call-center platform",
	Long: `switchboard signs you in to the call-center backend, keeps the session
token on disk, and opens the workspace your role is allowed to use:
campaigns, leads, users, SIP settings and reports for administrators and
supervisors, the dialer and call history for agents.

Every request goes through one authenticated client. A 401 from the
backend ends the session everywhere.`,
	Version:       version.GetInfo().Short(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if skipsApp(cmd) {
			return nil
		}
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		setActive(a)
		cmd.SetContext(a.ctx)
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx and releases whatever the
// command opened, even when it fails.
func ExecuteContext(ctx context.Context) error {
	start := time.Now()
	executed, err := rootCmd.ExecuteContextC(ctx)

	if a := takeActive(); a != nil {
		a.finish(executed, err, time.Since(start))
	}
	return err
}

// skipsApp reports whether cmd runs without config, store or client.
func skipsApp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["standalone"] == "true" {
			return true
		}
	}
	return false
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default $XDG_CONFIG_HOME/switchboard/config.yaml)")
	flags.String("api-url", "", "backend API base URL, including /api")
	flags.Bool("ephemeral", false, "keep the session token in memory only")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")
	flags.Bool("json", false, "print machine-readable JSON")
}
