package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	Get(ctx context.Context, userID string) (Entitlement, error)
	IsExempt(ctx context.Context, userID string) (bool, error)
	GrantPremium(ctx context.Context, userID string, until time.Time) (Entitlement, error)
}

var (
	ErrUserNotFound = errors.New("user_not_found")
	ErrInvalidUser  = errors.New("invalid_user")
	ErrInvalidUntil = errors.New("invalid_premium_until")
	ErrUnavailable  = errors.New("entitlement_unavailable")
)
