package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/creatorpay/internal/config"
)

// Config is the observability view of the application config. The OTEL_*
// and LOG_* variables override what config.Load read, so the standard
// OpenTelemetry environment keeps working for operators.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	Log   LogConfig
	Trace TraceConfig
}

type LogConfig struct {
	Level  string
	Format string
	// Output is "stdout" or "stderr".
	Output string
}

type TraceConfig struct {
	Enabled       bool
	Endpoint      string
	Protocol      string
	SamplingRatio float64
}

const defaultSamplingRatio = 0.1

func LoadConfig(cfg config.Config) Config {
	out := Config{
		ServiceName: fallback(cfg.AppName, "creatorpay"),
		Environment: override("DEPLOYMENT_ENV", cfg.Environment),
		Version:     override("SERVICE_VERSION", cfg.AppVersion),
		Log: LogConfig{
			Level:  lower(override("LOG_LEVEL", "info")),
			Format: lower(override("LOG_FORMAT", "json")),
			Output: lower(override("LOG_OUTPUT", "stdout")),
		},
	}

	endpoint := override("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	protocol := override("OTEL_EXPORTER_OTLP_PROTOCOL", fallback(cfg.OTLPProtocol, "grpc"))
	protocol = override("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", protocol)

	ratio := defaultSamplingRatio
	if raw := os.Getenv("OTEL_SAMPLING_RATIO"); raw != "" {
		if v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil && v >= 0 && v <= 1 {
			ratio = v
		}
	}

	enabled := endpoint != ""
	switch lower(os.Getenv("OTEL_ENABLED")) {
	case "1", "true", "yes", "on":
		enabled = true
	case "0", "false", "no", "off":
		enabled = false
	}

	out.Trace = TraceConfig{
		Enabled:       enabled,
		Endpoint:      endpoint,
		Protocol:      lower(protocol),
		SamplingRatio: ratio,
	}
	return out
}

// Debug reports whether verbose logging and stack traces are wanted.
func (c Config) Debug() bool {
	if c.Log.Level == "debug" {
		return true
	}
	switch lower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func override(key, def string) string {
	return fallback(os.Getenv(key), def)
}

func fallback(value, def string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return strings.TrimSpace(def)
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
