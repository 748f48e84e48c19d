package cmd

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/switchboard/internal/api"
	"github.com/felixgeelhaar/switchboard/internal/errors"
)

var apiCmd = &cobra.Command{
	Use:   "api [METHOD] <endpoint>",
	Short: "Send an authenticated request to the backend",
	Long: `Send one request through the same pipeline the console uses. The stored
token is attached; a 401 clears it and ends the session.

The endpoint is relative to the API base URL. METHOD defaults to GET, or
POST when --data is given.

Examples:
  switchboard api /campaigns
  switchboard api POST /campaigns -d '{"name":"Spring"}'
  switchboard api PUT /leads/12 -d @lead.json
  switchboard api DELETE /campaigns/4`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAPI,
}

var methods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

func init() {
	apiCmd.Flags().StringP("data", "d", "", "JSON body, @file to read a file, or - for stdin")
	apiCmd.Flags().StringArrayP("header", "H", nil, "extra header as 'Name: value' (repeatable)")

	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	data, _ := cmd.Flags().GetString("data")
	rawHeaders, _ := cmd.Flags().GetStringArray("header")

	method, endpoint := "", args[0]
	if len(args) == 2 {
		method, endpoint = strings.ToUpper(args[0]), args[1]
		if !methods[method] {
			return usageError("unsupported method %q", args[0])
		}
	}

	req := api.Request{Method: method, Endpoint: endpoint}
	if data != "" {
		body, err := readBody(cmd.InOrStdin(), data)
		if err != nil {
			return err
		}
		req.Body = body
		if req.Method == "" {
			req.Method = http.MethodPost
		}
	}

	header, err := parseHeaders(rawHeaders)
	if err != nil {
		return err
	}
	req.Header = header

	raw, err := a.client.Execute(a.ctx, req)
	if err != nil {
		return err
	}
	return printRaw(cmd.OutOrStdout(), raw)
}

// readBody resolves a --data value and checks that it is JSON.
func readBody(stdin io.Reader, data string) (json.RawMessage, error) {
	var raw []byte
	switch {
	case data == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read stdin", err)
		}
		raw = b
	case strings.HasPrefix(data, "@"):
		b, err := os.ReadFile(data[1:])
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read "+data[1:], err)
		}
		raw = b
	default:
		raw = []byte(data)
	}

	if !json.Valid(raw) {
		return nil, usageError("request body is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

// parseHeaders turns "Name: value" strings into a header set.
func parseHeaders(values []string) (http.Header, error) {
	if len(values) == 0 {
		return nil, nil
	}
	h := http.Header{}
	for _, v := range values {
		name, value, ok := strings.Cut(v, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, usageError("header %q is not in 'Name: value' form", v)
		}
		if strings.EqualFold(name, "Authorization") {
			return nil, usageError("the Authorization header is managed by the session")
		}
		h.Add(name, strings.TrimSpace(value))
	}
	return h, nil
}
