package cmd

import (
	"github.com/spf13/cobra"
)

// CommandContext holds the global flags every command reads. Commands get
// it from NewCommandContext instead of package variables so tests can run
// the tree repeatedly.
type CommandContext struct {
	// Configuration
	ConfigPath string
	APIURL     string
	Ephemeral  bool

	// Logging
	LogLevel  string
	LogFormat string

	// Output control
	JSON bool
}

// NewCommandContext extracts command context from cobra.Command flags.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	apiURL, err := cmd.Flags().GetString("api-url")
	if err != nil {
		return nil, err
	}

	ephemeral, err := cmd.Flags().GetBool("ephemeral")
	if err != nil {
		return nil, err
	}

	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, err
	}

	logFormat, err := cmd.Flags().GetString("log-format")
	if err != nil {
		return nil, err
	}

	jsonOut, err := cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}

	return &CommandContext{
		ConfigPath: configPath,
		APIURL:     apiURL,
		Ephemeral:  ephemeral,
		LogLevel:   logLevel,
		LogFormat:  logFormat,
		JSON:       jsonOut,
	}, nil
}
