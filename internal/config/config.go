// Package config loads switchboard settings from defaults, a YAML file and
// SWITCHBOARD_* environment variables, in increasing precedence. Command
// flags are applied on top by the caller.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/switchboard/internal/errors"
	"github.com/felixgeelhaar/switchboard/internal/log"
	"github.com/felixgeelhaar/switchboard/internal/telemetry"
)

// DefaultBaseURL points at a backend running locally. The base includes
// the /api prefix; endpoints are joined onto it.
const DefaultBaseURL = "http://localhost:5000/api"

// DefaultPassphraseEnv names the variable holding the credential file
// passphrase.
const DefaultPassphraseEnv = "SWITCHBOARD_PASSPHRASE"

// Config is the complete switchboard configuration.
type Config struct {
	API         APIConfig        `yaml:"api" envPrefix:"SWITCHBOARD_API_"`
	Credentials CredentialConfig `yaml:"credentials" envPrefix:"SWITCHBOARD_CREDENTIAL_"`
	Logging     LoggingConfig    `yaml:"logging" envPrefix:"SWITCHBOARD_LOG_"`
	Telemetry   telemetry.Config `yaml:"telemetry" envPrefix:"SWITCHBOARD_TELEMETRY_"`
	Metrics     MetricsConfig    `yaml:"metrics" envPrefix:"SWITCHBOARD_METRICS_"`
	Routes      RoutesConfig     `yaml:"routes" envPrefix:"SWITCHBOARD_ROUTES_"`

	// Source is the file the configuration was read from, if any.
	Source string `yaml:"-"`

	passphrase string
}

// APIConfig locates the backend.
type APIConfig struct {
	BaseURL string   `yaml:"base_url" env:"URL"`
	Timeout Duration `yaml:"timeout" env:"TIMEOUT"`
}

// CredentialConfig controls where the session token is kept.
type CredentialConfig struct {
	// File is the credential document. Empty selects the default path.
	File string `yaml:"file" env:"FILE"`
	// PassphraseEnv names the environment variable holding the at-rest
	// encryption passphrase. The passphrase itself is never read from
	// the config file.
	PassphraseEnv string `yaml:"passphrase_env" env:"PASSPHRASE_ENV"`
	// Ephemeral keeps the credential in memory only.
	Ephemeral bool `yaml:"ephemeral" env:"EPHEMERAL"`
}

// LoggingConfig mirrors the logger flags.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// MetricsConfig controls the console's Prometheus listener.
type MetricsConfig struct {
	// Listen is a host:port for the /metrics endpoint. Empty disables it.
	Listen string `yaml:"listen" env:"LISTEN"`
}

// RoutesConfig selects the route table.
type RoutesConfig struct {
	// File overrides the built-in route table.
	File string `yaml:"file" env:"FILE"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: DefaultBaseURL,
			Timeout: Duration(30 * time.Second),
		},
		Credentials: CredentialConfig{
			PassphraseEnv: DefaultPassphraseEnv,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Passphrase returns the credential passphrase resolved at load time.
func (c *Config) Passphrase() string { return c.passphrase }

// SetPassphrase overrides the resolved passphrase.
func (c *Config) SetPassphrase(p string) { c.passphrase = p }

// LogConfig converts the logging section for the log package.
func (c *Config) LogConfig() log.Config {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(c.Logging.Level)
	cfg.Format = log.ParseFormat(c.Logging.Format)
	if cfg.Level == log.LevelDebug {
		cfg.AddSource = true
	}
	return cfg
}

// Validate checks the values a command depends on.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("api.base_url %q must be an absolute http(s) URL", c.API.BaseURL).
			WithSuggestion("Example: https://dialer.example.com/api")
	}
	if c.API.Timeout <= 0 {
		return invalid("api.timeout must be positive, got %s", c.API.Timeout.Std())
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return invalid("logging.format %q must be text or json", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return invalid("logging.level %q must be debug, info, warn or error", c.Logging.Level)
	}
	if r := c.Telemetry.SampleRate; r < 0 || r > 1 {
		return invalid("telemetry.sample_rate %v must be between 0 and 1", r)
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return invalid("telemetry.endpoint is required when telemetry is enabled")
	}
	if c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			return invalid("metrics.listen %q must be host:port", c.Metrics.Listen)
		}
	}
	return nil
}

func invalid(format string, args ...any) *errors.SwitchboardError {
	return errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf(format, args...))
}

// Duration is a time.Duration that reads and writes as "30s" in YAML and
// environment variables.
type Duration time.Duration

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}
