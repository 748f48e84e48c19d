package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/switchboard/internal/api"
	"github.com/felixgeelhaar/switchboard/internal/route"
	"github.com/felixgeelhaar/switchboard/internal/session"
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Inspect the console route table",
	Long: `Inspect how the console authorizes navigation.

Subcommands:
  list   Show every declared route and the roles allowed on it
  check  Show what the console would do when asked for a path

Examples:
  switchboard route list
  switchboard route list --as agent
  switchboard route check /admin/users --as supervisor
  switchboard route check /admin/leads --as anonymous`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var routeListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the route table",
	Args:  cobra.NoArgs,
	RunE:  runRouteList,
}

var routeCheckCmd = &cobra.Command{
	Use:   "check <path>",
	Short: "Show the navigation decision for a path",
	Long: `Show the navigation decision for a path.

Without --as the decision is made for the stored session, which is
verified against the backend first. With --as the decision is made for a
synthetic session of that role, or for an anonymous one.`,
	Args: cobra.ExactArgs(1),
	RunE: runRouteCheck,
}

func init() {
	routeListCmd.Flags().String("as", "", "only show routes visible to this role")
	routeCheckCmd.Flags().String("as", "", "decide as admin, supervisor, agent or anonymous")

	routeCmd.AddCommand(routeListCmd)
	routeCmd.AddCommand(routeCheckCmd)

	rootCmd.AddCommand(routeCmd)
}

func runRouteList(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	authz, err := a.routes()
	if err != nil {
		return err
	}

	routes := authz.Table().Routes
	if as, _ := cmd.Flags().GetString("as"); as != "" {
		role := api.Role(as)
		if !role.Valid() {
			return usageError("unknown role %q", as)
		}
		routes = authz.Table().Nav(role)
	}

	if a.cc.JSON {
		return printJSON(cmd.OutOrStdout(), routes)
	}
	renderRoutes(cmd.OutOrStdout(), routes)
	return nil
}

func renderRoutes(w io.Writer, routes []route.Route) {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PATH", "MATCH", "ROLES", "TITLE", "ENDPOINT").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})

	for _, r := range routes {
		t.Row(r.Path, matchKind(r), roleList(r), r.Title, r.Endpoint)
	}
	fmt.Fprintln(w, t.Render())
}

func matchKind(r route.Route) string {
	if r.Exact {
		return "exact"
	}
	return "section"
}

func roleList(r route.Route) string {
	switch {
	case r.Public:
		return "public"
	case len(r.Roles) == 0:
		return "any"
	}
	names := make([]string, len(r.Roles))
	for i, role := range r.Roles {
		names[i] = string(role)
	}
	return strings.Join(names, ",")
}

// checkReport is the JSON shape of route check.
type checkReport struct {
	Path    string        `json:"path"`
	As      string        `json:"as"`
	Outcome route.Outcome `json:"outcome"`
	Target  string        `json:"target,omitempty"`
	From    string        `json:"from,omitempty"`
	Route   *route.Route  `json:"route,omitempty"`
}

func runRouteCheck(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	authz, err := a.routes()
	if err != nil {
		return err
	}

	as, _ := cmd.Flags().GetString("as")
	state, err := checkState(a, as)
	if err != nil {
		return err
	}

	d := authz.Authorize(state, args[0])
	report := checkReport{
		Path:    d.Path,
		As:      describeState(state),
		Outcome: d.Outcome,
		Target:  d.Target,
		From:    d.From,
		Route:   d.Route,
	}
	if a.cc.JSON {
		return printJSON(cmd.OutOrStdout(), report)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s as %s: %s", report.Path, report.As, report.Outcome)
	if report.Target != "" {
		fmt.Fprintf(out, " -> %s", report.Target)
	}
	fmt.Fprintln(out)
	if report.Route != nil {
		fmt.Fprintf(out, "  Matched: %s (%s)\n", report.Route.Path, matchKind(*report.Route))
	}
	if report.From != "" {
		fmt.Fprintf(out, "  Returns to %s after login\n", report.From)
	}
	return nil
}

// checkState builds the session snapshot a route check is decided for.
func checkState(a *app, as string) (session.State, error) {
	switch as {
	case "":
		if _, ok := a.store.Get(); !ok {
			return session.State{Status: session.StatusAnonymous}, nil
		}
		return a.manager.Bootstrap(a.ctx), nil
	case "anonymous":
		return session.State{Status: session.StatusAnonymous}, nil
	}

	role := api.Role(as)
	if !role.Valid() {
		return session.State{}, usageError("unknown role %q", as)
	}
	return session.State{
		Status: session.StatusAuthenticated,
		User:   &session.User{Username: as, Role: role, IsActive: true},
	}, nil
}

func describeState(s session.State) string {
	if s.Authenticated() {
		return string(s.User.Role)
	}
	return string(s.Status)
}
