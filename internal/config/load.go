package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/switchboard/internal/errors"
)

const (
	appDir             = "switchboard"
	configFileName     = "config.yaml"
	credentialFileName = "credentials.json"
)

// LoadOptions controls where Load looks.
type LoadOptions struct {
	// Path is an explicit config file. A missing explicit file is an
	// error; a missing default file is not.
	Path string
	// Environ replaces the process environment, for tests.
	Environ map[string]string
}

// Load builds the configuration: defaults, then the YAML file, then
// SWITCHBOARD_* variables. The result is validated.
func Load(opts LoadOptions) (*Config, error) {
	environ := opts.Environ
	if environ == nil {
		environ = processEnviron()
	}

	cfg := Default()

	path, explicit := opts.Path, opts.Path != ""
	if !explicit {
		path = environ["SWITCHBOARD_CONFIG"]
		explicit = path != ""
	}
	if !explicit {
		path = FilePath(environ)
	}

	if err := readFile(cfg, path); err != nil {
		if !explicit && stderrors.Is(err, fs.ErrNotExist) {
			path = ""
		} else {
			return nil, err
		}
	}
	cfg.Source = path

	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigEnv, "invalid SWITCHBOARD_* environment variable", err)
	}

	if cfg.Credentials.File == "" {
		cfg.Credentials.File = filepath.Join(Dir(environ), credentialFileName)
	}
	if cfg.Credentials.PassphraseEnv != "" {
		cfg.passphrase = environ[cfg.Credentials.PassphraseEnv]
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("config file not found: %s", path), err).
				WithSuggestion("Run 'switchboard config path' to see where the default file lives")
		}
		return errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read config file: %s", path), err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.NewFileUnmarshalError(path, "YAML", err)
	}
	return nil
}

// Dir returns the switchboard config directory: $XDG_CONFIG_HOME/switchboard
// or ~/.config/switchboard.
func Dir(environ map[string]string) string {
	base := environ["XDG_CONFIG_HOME"]
	if base == "" {
		home := environ["HOME"]
		if home == "" {
			home, _ = os.UserHomeDir()
		}
		if home == "" {
			home = os.TempDir()
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appDir)
}

// FilePath returns the default config file location.
func FilePath(environ map[string]string) string {
	return filepath.Join(Dir(environ), configFileName)
}

// YAML renders the configuration as it would be written to a file.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Environ returns the process environment as a map.
func Environ() map[string]string { return processEnviron() }

func processEnviron() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}
