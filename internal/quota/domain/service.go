package domain

import (
	"context"
	"errors"
	"time"

	entitlementdomain "github.com/smallbiznis/studyquota/internal/entitlement/domain"
)

// Service is the quota gate. CheckAndConsume is the only path that increments usage.
type Service interface {
	CheckAndConsume(ctx context.Context, userID, feature string, now time.Time) (GateResult, error)
	Snapshot(ctx context.Context, userID string, now time.Time) (UsageSnapshot, error)
	Limits() FeatureLimits
}

// Store persists usage records and performs the bounded increment.
type Store interface {
	TryIncrement(ctx context.Context, req TryIncrementRequest) (IncrementResult, error)
	Get(ctx context.Context, userID string, cadence Cadence, windowStart time.Time) (*UsageRecord, error)
}

var (
	ErrUnknownFeature     = errors.New("unknown_feature")
	ErrUserNotFound       = entitlementdomain.ErrUserNotFound
	ErrLimitExceeded      = errors.New("limit_exceeded")
	ErrStorageUnavailable = errors.New("storage_unavailable")

	ErrInvalidCadence   = errors.New("invalid_cadence")
	ErrInvalidLimit     = errors.New("invalid_limit")
	ErrEmptyLimitTable  = errors.New("empty_limit_table")
	ErrInvalidIncrement = errors.New("invalid_increment")
)
