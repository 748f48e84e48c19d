package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/switchboard/internal/config"
	"github.com/felixgeelhaar/switchboard/internal/errors"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or edit switchboard configuration",
	Long: `Manage the configuration stored at $XDG_CONFIG_HOME/switchboard/config.yaml.

Values are resolved in order: built-in defaults, the config file,
SWITCHBOARD_* environment variables, then command-line flags.

Examples:
  switchboard config view
  switchboard config edit
  switchboard config path`,
	Annotations: map[string]string{"standalone": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Display the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigView,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit the config file in $EDITOR",
	Long: `Open the config file in $EDITOR (vi when unset), creating it with the
defaults first if it does not exist. The file is validated afterwards.`,
	Args: cobra.NoArgs,
	RunE: runConfigEdit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configPathCmd)

	rootCmd.AddCommand(configCmd)
}

// configFile returns the config file this invocation reads.
func configFile(cc *CommandContext) string {
	if cc.ConfigPath != "" {
		return cc.ConfigPath
	}
	environ := config.Environ()
	if p := environ["SWITCHBOARD_CONFIG"]; p != "" {
		return p
	}
	return config.FilePath(environ)
}

func runConfigView(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cc)
	if err != nil {
		return err
	}

	data, err := cfg.YAML()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if cc.JSON {
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return err
		}
		return printJSON(out, doc)
	}
	if cfg.Source != "" {
		fmt.Fprintf(out, "# Configuration file: %s\n", cfg.Source)
	} else {
		fmt.Fprintln(out, "# No configuration file; showing defaults and environment")
	}
	fmt.Fprint(out, string(data))
	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	path := configFile(cc)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefaultConfig(path); err != nil {
			return err
		}
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	editorCmd := exec.CommandContext(cmd.Context(), editor, path)
	editorCmd.Stdin = cmd.InOrStdin()
	editorCmd.Stdout = cmd.OutOrStdout()
	editorCmd.Stderr = cmd.ErrOrStderr()
	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("failed to run editor: %w", err)
	}

	if _, err := config.Load(config.LoadOptions{Path: path}); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Warning: the configuration has errors; fix them before the next run.")
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Configuration updated.")
	return nil
}

func writeDefaultConfig(path string) error {
	data, err := config.Default().YAML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to create config directory", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write "+path, err)
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), configFile(cc))
	return nil
}
