package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/switchboard/internal/api"
	"github.com/felixgeelhaar/switchboard/internal/errors"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <endpoint>",
	Short: "Upload files as multipart/form-data",
	Long: `Post one or more files to an endpoint as multipart/form-data, for
example a lead list import.

Examples:
  switchboard upload /leads/import -f file=leads.csv
  switchboard upload /leads/import -f file=leads.csv --field campaign_id=3`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringArrayP("file", "f", nil, "file part as field=path (repeatable)")
	uploadCmd.Flags().StringArray("field", nil, "form field as name=value (repeatable)")

	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	filesArg, _ := cmd.Flags().GetStringArray("file")
	fieldsArg, _ := cmd.Flags().GetStringArray("field")

	if len(filesArg) == 0 {
		return usageError("at least one --file is required")
	}

	fields := make(map[string]string, len(fieldsArg))
	for _, f := range fieldsArg {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return usageError("field %q is not in name=value form", f)
		}
		fields[k] = v
	}

	files := make([]api.File, 0, len(filesArg))
	for _, f := range filesArg {
		field, path, ok := strings.Cut(f, "=")
		if !ok {
			field, path = "file", f
		}
		fh, err := os.Open(path)
		if err != nil {
			return errors.Wrap(errors.ErrCodeFileReadFailed, "failed to open "+path, err)
		}
		defer fh.Close()
		files = append(files, api.File{Field: field, Name: filepath.Base(path), Content: fh})
	}

	raw, err := a.client.Upload(a.ctx, args[0], files, fields)
	if err != nil {
		return err
	}
	return printRaw(cmd.OutOrStdout(), raw)
}
