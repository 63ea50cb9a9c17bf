package pubsub

import (
	"os"
	"strconv"
)

// TracingConfig controls OpenTelemetry spans around bus traffic.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	ZipkinURL   string
}

// DefaultTracingConfig has tracing switched off.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:     false,
		ServiceName: "conftimeout",
		ZipkinURL:   "http://localhost:9411/api/v2/spans",
	}
}

// LoadTracingConfigFromEnv reads PUBSUB_TRACING_* variables over the defaults.
func LoadTracingConfigFromEnv() TracingConfig {
	cfg := DefaultTracingConfig()

	if v := os.Getenv("PUBSUB_TRACING_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Enabled = enabled
		}
	}
	if v := os.Getenv("PUBSUB_TRACING_SERVICE_NAME"); v != "" {
		cfg.ServiceName = v
	}
	if v := os.Getenv("PUBSUB_TRACING_ZIPKIN_URL"); v != "" {
		cfg.ZipkinURL = v
	}
	return cfg
}
