package context

import (
	"context"
	"strings"
)

type ctxKey string

const (
	requestIDKey     ctxKey = "obs_request_id"
	correlationIDKey ctxKey = "obs_correlation_id"
	userIDKey        ctxKey = "obs_user_id"
	featureKey       ctxKey = "obs_feature"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	return valueFromContext(ctx, requestIDKey)
}

// WithCorrelationID stores the id that ties a request to its quota decision logs.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return withValue(ctx, correlationIDKey, correlationID)
}

func CorrelationIDFromContext(ctx context.Context) string {
	return valueFromContext(ctx, correlationIDKey)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return withValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) string {
	return valueFromContext(ctx, userIDKey)
}

func WithFeature(ctx context.Context, feature string) context.Context {
	return withValue(ctx, featureKey, feature)
}

func FeatureFromContext(ctx context.Context) string {
	return valueFromContext(ctx, featureKey)
}

func withValue(ctx context.Context, key ctxKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func valueFromContext(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
