package observability

import (
	"github.com/smallbiznis/studyquota/internal/observability/logger"
	"github.com/smallbiznis/studyquota/internal/observability/metrics"
	"github.com/smallbiznis/studyquota/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	gormlogger "gorm.io/gorm/logger"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		provideLoggerConfig,
		logger.New,
		provideGormLoggerConfig,
		provideTracingConfig,
		tracing.NewProvider,
		provideMetricsConfig,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		metrics.StoreWithConfig,
	),
	fx.Invoke(ensureTracingProvider),
)

func ensureTracingProvider(_ *sdktrace.TracerProvider) {}

func provideLoggerConfig(cfg Config) logger.Config {
	return logger.Config{
		ServiceName:         cfg.ServiceName,
		Environment:         cfg.Environment,
		Version:             cfg.Version,
		Level:               cfg.LogLevel,
		Format:              cfg.LogFormat,
		Debug:               cfg.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: cfg.Debug(),
	}
}

func provideGormLoggerConfig(cfg Config) logger.GormLoggerConfig {
	gormCfg := logger.DefaultGormLoggerConfig()
	switch cfg.GormLogLevel {
	case "silent":
		gormCfg.Level = gormlogger.Silent
	case "error":
		gormCfg.Level = gormlogger.Error
	case "info":
		gormCfg.Level = gormlogger.Info
	}
	return gormCfg
}

// TracingMiddleware is the config for the HTTP tracing middleware.
func (cfg Config) TracingMiddleware() tracing.MiddlewareConfig {
	return tracing.MiddlewareConfig{
		SkipPaths:  cfg.Otel.SkipPaths,
		QuotaStore: cfg.QuotaStore,
	}
}

func provideTracingConfig(cfg Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.Otel.Enabled,
		ServiceName:      cfg.ServiceName,
		ServiceVersion:   cfg.Version,
		Environment:      cfg.Environment,
		QuotaStore:       cfg.QuotaStore,
		ExporterEndpoint: cfg.Otel.Endpoint,
		ExporterProtocol: cfg.Otel.Protocol,
		SamplingRatio:    cfg.Otel.SamplingRatio,
	}
}

func provideMetricsConfig(cfg Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.Otel.Enabled,
		ExporterEndpoint: cfg.Otel.Endpoint,
		ExporterProtocol: cfg.Otel.Protocol,
		ServiceName:      cfg.ServiceName,
		Environment:      cfg.Environment,
	}
}
