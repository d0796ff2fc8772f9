package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	quotaDecisions metric.Int64Counter
	storeErrors    metric.Int64Counter
	aiCalls        metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "studyquota"
	}
	meter := provider.Meter(name)

	quotaDecisions, err := meter.Int64Counter("studyquota_quota_decisions_total",
		metric.WithDescription("Quota gate decisions by feature, cadence and outcome."))
	if err != nil {
		return nil, err
	}
	storeErrors, err := meter.Int64Counter("studyquota_quota_store_errors_total",
		metric.WithDescription("Usage store failures that were turned into denials."))
	if err != nil {
		return nil, err
	}
	aiCalls, err := meter.Int64Counter("studyquota_ai_calls_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		quotaDecisions: quotaDecisions,
		storeErrors:    storeErrors,
		aiCalls:        aiCalls,
	}, nil
}

// RecordQuotaDecision counts one gate outcome (allowed, exempt, limit_exceeded, error).
func (m *Metrics) RecordQuotaDecision(ctx context.Context, feature, cadence, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("feature", strings.TrimSpace(feature)),
		attribute.String("cadence", strings.TrimSpace(cadence)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.quotaDecisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordStoreError(ctx context.Context, backend, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("backend", strings.TrimSpace(backend)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.storeErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordAICall(ctx context.Context, provider, feature, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("feature", strings.TrimSpace(feature)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.aiCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"feature":     {},
	"cadence":     {},
	"outcome":     {},
	"backend":     {},
	"endpoint":    {},
	"status_code": {},
	"provider":    {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
