package observability

import (
	"testing"

	"github.com/smallbiznis/creatorpay/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	for _, key := range []string{"DEPLOYMENT_ENV", "SERVICE_VERSION", "LOG_LEVEL", "LOG_FORMAT", "LOG_OUTPUT",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_PROTOCOL", "OTEL_EXPORTER_OTLP_TRACES_PROTOCOL",
		"OTEL_SAMPLING_RATIO", "OTEL_ENABLED"} {
		t.Setenv(key, "")
	}

	base := config.Config{AppVersion: "1.2.0", Environment: "production", OTLPEndpoint: "collector:4317", OTLPProtocol: "grpc"}

	t.Run("from app config", func(t *testing.T) {
		cfg := LoadConfig(base)
		assert.Equal(t, "creatorpay", cfg.ServiceName)
		assert.Equal(t, "1.2.0", cfg.Version)
		assert.Equal(t, "json", cfg.Log.Format)
		assert.True(t, cfg.Trace.Enabled)
		assert.Equal(t, "collector:4317", cfg.Trace.Endpoint)
		assert.Equal(t, defaultSamplingRatio, cfg.Trace.SamplingRatio)
		assert.False(t, cfg.Debug())
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "HTTP/protobuf")
		t.Setenv("OTEL_SAMPLING_RATIO", "1")
		t.Setenv("OTEL_ENABLED", "off")
		t.Setenv("LOG_LEVEL", "DEBUG")

		cfg := LoadConfig(base)
		assert.Equal(t, "http/protobuf", cfg.Trace.Protocol)
		assert.Equal(t, 1.0, cfg.Trace.SamplingRatio)
		assert.False(t, cfg.Trace.Enabled)
		assert.True(t, cfg.Debug())
	})

	t.Run("bad ratio keeps default", func(t *testing.T) {
		t.Setenv("OTEL_SAMPLING_RATIO", "2.5")
		assert.Equal(t, defaultSamplingRatio, LoadConfig(base).Trace.SamplingRatio)
	})

	t.Run("dev environments debug", func(t *testing.T) {
		cfg := LoadConfig(config.Config{Environment: "local"})
		assert.True(t, cfg.Debug())
		assert.False(t, cfg.Trace.Enabled)
	})
}
