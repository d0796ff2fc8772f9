package tracing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/studyquota/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Gin context keys the quota handlers set for the span.
const (
	FeatureKey  = "feature"
	DecisionKey = "quota_decision"
)

// DecisionDenied is the decision value recorded as a quota.denied span event.
const DecisionDenied = "limit_exceeded"

type MiddlewareConfig struct {
	// SkipPaths are matched against the raw request path.
	SkipPaths []string
	// QuotaStore is added to spans of requests that reached the quota gate.
	QuotaStore string
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// GinMiddleware opens a server span per request. Requests that went through
// the quota gate also carry the feature, the gate decision and the counter
// backend.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	provider := cfg.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	tracer := provider.Tracer("studyquota/http")

	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skip[path] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		method := strings.ToUpper(c.Request.Method)
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			ctx = withRequestIDBaggage(ctx, requestID)
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)
		span.SetAttributes(SafeAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		)...)
		span.SetAttributes(quotaAttributes(c, cfg.QuotaStore)...)

		if c.GetString(DecisionKey) == DecisionDenied {
			span.AddEvent("quota.denied", trace.WithAttributes(
				attribute.String("quota.feature", c.GetString(FeatureKey)),
			))
		}

		if status >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, "request error")
		}
	}
}

func quotaAttributes(c *gin.Context, store string) []attribute.KeyValue {
	feature := strings.TrimSpace(c.GetString(FeatureKey))
	if feature == "" {
		return nil
	}
	attrs := []attribute.KeyValue{attribute.String("quota.feature", feature)}
	if decision := strings.TrimSpace(c.GetString(DecisionKey)); decision != "" {
		attrs = append(attrs, attribute.String("quota.decision", decision))
	}
	if store != "" {
		attrs = append(attrs, attribute.String("quota.store", store))
	}
	return attrs
}

func withRequestIDBaggage(ctx context.Context, requestID string) context.Context {
	member, err := baggage.NewMember("request_id", requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.New(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}
