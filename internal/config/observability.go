package config

// OtelConfig configures OpenTelemetry trace export.
// Tracing is disabled when Endpoint is empty.
type OtelConfig struct {
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"` // OTLP/HTTP collector, e.g. "localhost:4318"
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Enabled reports whether trace export is configured.
func (o OtelConfig) Enabled() bool {
	return o.Endpoint != ""
}
