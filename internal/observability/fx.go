package observability

import (
	"github.com/smallbiznis/creatorpay/internal/observability/logger"
	"github.com/smallbiznis/creatorpay/internal/observability/metrics"
	"github.com/smallbiznis/creatorpay/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		func(cfg Config) logger.Config {
			return logger.Config{
				ServiceName:         cfg.ServiceName,
				Environment:         cfg.Environment,
				Version:             cfg.Version,
				Level:               cfg.Log.Level,
				Format:              cfg.Log.Format,
				Output:              cfg.Log.Output,
				Debug:               cfg.Debug(),
				IncludeCaller:       true,
				IncludeStackOnError: cfg.Debug(),
			}
		},
		logger.New,
		func(cfg Config) tracing.Config {
			return tracing.Config{
				Enabled:          cfg.Trace.Enabled,
				ServiceName:      cfg.ServiceName,
				ServiceVersion:   cfg.Version,
				Environment:      cfg.Environment,
				ExporterEndpoint: cfg.Trace.Endpoint,
				ExporterProtocol: cfg.Trace.Protocol,
				SamplingRatio:    cfg.Trace.SamplingRatio,
			}
		},
		tracing.NewProvider,
		// Reward and HTTP collectors share the OTLP target with traces.
		func(cfg Config) metrics.Config {
			return metrics.Config{
				Enabled:          cfg.Trace.Enabled,
				ExporterEndpoint: cfg.Trace.Endpoint,
				ExporterProtocol: cfg.Trace.Protocol,
				ServiceName:      cfg.ServiceName,
				Environment:      cfg.Environment,
			}
		},
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		metrics.RewardWithConfig,
	),
	fx.Invoke(logStartup),
)

// logStartup forces the tracer provider into the graph and records what the
// process is exporting.
func logStartup(cfg Config, _ *sdktrace.TracerProvider, log *zap.Logger) {
	log.Info("observability configured",
		zap.String("environment", cfg.Environment),
		zap.String("version", cfg.Version),
		zap.Bool("tracing", cfg.Trace.Enabled),
		zap.String("otlp_protocol", cfg.Trace.Protocol),
		zap.Float64("sampling_ratio", cfg.Trace.SamplingRatio),
	)
}
