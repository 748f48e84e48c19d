package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/switchboard/internal/errors"
	"github.com/felixgeelhaar/switchboard/internal/health"
	"github.com/felixgeelhaar/switchboard/internal/route"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostics on config, credentials and the backend",
	Long: `Run diagnostics to check that switchboard can reach the backend and
sign in. Checks run in parallel, each with its own timeout.

Checks include:
  backend      the API answers /health
  setup        an administrator has been registered
  credentials  file permissions, encryption and token expiry
  routes       the route table loads and validates
  session      the stored token still resolves to a profile

Examples:
  switchboard doctor
  switchboard doctor --json`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().Duration("timeout", 5*time.Second, "per-check timeout")

	rootCmd.AddCommand(doctorCmd)
}

// DoctorReport is the complete diagnostics report.
type DoctorReport struct {
	Config  string          `json:"config,omitempty"`
	Status  health.Status   `json:"status"`
	Checks  []health.Report `json:"checks"`
	Healthy bool            `json:"healthy"`
}

func runDoctor(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	timeout, _ := cmd.Flags().GetDuration("timeout")

	m := health.NewManager().WithTimeout(timeout)
	m.AddChecker(health.NewBackendChecker(a.client, a.cfg.API.BaseURL))
	m.AddChecker(health.NewSetupChecker(a.client))
	m.AddChecker(health.NewCredentialChecker(a.store, a.cfg.Credentials.PassphraseEnv))
	m.AddChecker(health.NewRouteChecker(func() (*route.Table, error) {
		authz, err := a.routes()
		if err != nil {
			return nil, err
		}
		return authz.Table(), nil
	}, a.cfg.Routes.File))
	m.AddChecker(health.NewSessionChecker(a.store, a.manager, a.client))

	checks := m.Check(a.ctx)
	status := health.OverallStatus(checks)
	report := DoctorReport{
		Config:  a.cfg.Source,
		Status:  status,
		Checks:  checks,
		Healthy: status != health.StatusUnhealthy,
	}
	a.logger.Debug("diagnostics finished", "status", status, "checks", len(checks))

	if a.cc.JSON {
		if err := printJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		printReport(cmd.OutOrStdout(), report)
	}

	if report.Healthy {
		return nil
	}
	return doctorError(checks)
}

// doctorError summarizes unhealthy checks. An unreachable backend maps to
// the network exit code; anything else is a configuration problem.
func doctorError(checks []health.Report) error {
	code := errors.ErrCodeConfigInvalid
	var fixes []string
	for _, c := range checks {
		if c.Status != health.StatusUnhealthy {
			continue
		}
		if c.Name == "backend" {
			code = errors.ErrCodeNetworkFailure
		}
		if c.Fix != "" {
			fixes = append(fixes, c.Fix)
		}
	}
	return errors.New(code, "diagnostics found problems").WithSuggestions(fixes...)
}

func printReport(w io.Writer, report DoctorReport) {
	fmt.Fprintln(w, "switchboard diagnostics")
	if report.Config != "" {
		fmt.Fprintf(w, "Config: %s\n", report.Config)
	}
	fmt.Fprintln(w)

	var fixes []string
	for _, c := range report.Checks {
		fmt.Fprintf(w, "  %s %-12s %s\n", statusIcon(c.Status), c.Name, c.Message)
		if c.Fix != "" && c.Status != health.StatusHealthy {
			fixes = append(fixes, c.Fix)
		}
	}
	fmt.Fprintln(w)

	if len(fixes) > 0 {
		fmt.Fprintln(w, "Next steps:")
		for i, fix := range fixes {
			fmt.Fprintf(w, "  %d. %s\n", i+1, fix)
		}
		fmt.Fprintln(w)
	}

	switch report.Status {
	case health.StatusHealthy:
		fmt.Fprintln(w, "Everything looks good.")
	case health.StatusDegraded:
		fmt.Fprintln(w, "Usable, with warnings.")
	default:
		fmt.Fprintln(w, "switchboard cannot work until the problems above are fixed.")
	}
}

func statusIcon(s health.Status) string {
	switch s {
	case health.StatusHealthy:
		return "✓"
	case health.StatusDegraded:
		return "!"
	default:
		return "✗"
	}
}
