package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/switchboard/internal/errors"
	"github.com/felixgeelhaar/switchboard/internal/metrics"
	"github.com/felixgeelhaar/switchboard/internal/tui"
)

var consoleCmd = &cobra.Command{
	Use:   "console [path]",
	Short: "Open the interactive console",
	Long: `Open the full-screen console. It restores the stored session, asks for
credentials when there is none, and opens the workspace for your role.

An optional path opens that view directly once signed in. Logs go to
console.log next to the credential file while the console is open.

Examples:
  switchboard console
  switchboard console /admin/leads
  switchboard console --metrics-listen 127.0.0.1:9464`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{"fullscreen": "true"},
	RunE:        runConsole,
}

func init() {
	consoleCmd.Flags().String("metrics-listen", "", "serve Prometheus metrics on this address while open")

	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)

	if !tui.IsInteractive() {
		return errors.New(errors.ErrCodeAuthNotInteractive, "the console needs a terminal").
			WithSuggestion("Use 'switchboard auth login' and 'switchboard api' in scripts")
	}

	authz, err := a.routes()
	if err != nil {
		return err
	}

	listen := a.cfg.Metrics.Listen
	if v, _ := cmd.Flags().GetString("metrics-listen"); v != "" {
		listen = v
	}
	if listen != "" {
		addr, err := metrics.Serve(a.ctx, listen, a.registry)
		if err != nil {
			return errors.Wrap(errors.ErrCodeConfigInvalid, "failed to serve metrics on "+listen, err)
		}
		a.logger.Info("Serving metrics", "addr", addr.String())
	}

	start := "/"
	if len(args) == 1 {
		start = args[0]
	}

	deps := tui.Deps{
		Session:    a.manager,
		Authorizer: authz,
		Fetcher:    a.client,
		Setup:      a.client.SetupStatus,
		Logger:     a.logger,
		Start:      start,
	}
	if err := tui.RunConsole(a.ctx, deps, a.manager); err != nil {
		return fmt.Errorf("console: %w", err)
	}

	if n := len(a.store.Pending()); n > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d token(s) still queued for revocation; run 'switchboard auth revoke'.\n", n)
	}
	return nil
}
