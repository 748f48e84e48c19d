package telemetry

// Config holds configuration for the tracer
type Config struct {
	// ServiceName is the name of the service
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`

	// ServiceVersion is the version of the service
	ServiceVersion string `yaml:"-"`

	// Environment is the deployment environment (dev, staging, production)
	Environment string `yaml:"environment" env:"ENVIRONMENT"`

	// Enabled determines whether tracing is enabled
	// When false, a noop tracer is used
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// Endpoint is the OTLP/HTTP collector host:port (optional)
	// If empty, spans are recorded but not exported
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`

	// Insecure sends spans over plain HTTP
	Insecure bool `yaml:"insecure" env:"INSECURE"`

	// SampleRate is the fraction of traces to sample (0.0 to 1.0)
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DefaultConfig returns the configuration used when nothing is set.
// Tracing is off for an interactive console.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "switchboard",
		ServiceVersion: "dev",
		Environment:    "development",
		SampleRate:     1.0,
	}
}
