package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the backend is reachable",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)

	start := time.Now()
	h, err := a.client.Health(a.ctx)
	if err != nil {
		return err
	}
	if a.cc.JSON {
		return printJSON(cmd.OutOrStdout(), h)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s (%s)\n", a.cfg.API.BaseURL, h.Status, time.Since(start).Round(time.Millisecond))
	if h.Version != "" {
		fmt.Fprintf(out, "Backend version: %s\n", h.Version)
	}
	return nil
}
