package config

// TracingConfig holds OTLP trace export configuration.
//
// Spans are exported over OTLP/HTTP to a local collector or agent.
// See internal/observability for setup.
type TracingConfig struct {
	// Enabled turns trace export on. When false a no-op provider is used.
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// Endpoint is the OTLP/HTTP collector endpoint (default: localhost:4318)
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`
	// ServiceName is the service name on exported spans (default: corvid)
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	// Environment is the deployment environment tag (default: dev)
	Environment string `mapstructure:"environment" json:"environment"`
	// SampleRatio is the trace sampling ratio in [0,1] (default: 1.0)
	SampleRatio float64 `mapstructure:"sample_ratio" json:"sample_ratio"`
}
