package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/studyquota/internal/config"
	"go.uber.org/zap"
)

const keyUserBucket = "%s:user:%s"

var ErrNotConfigured = errors.New("rate_limiter_not_configured")

// Limiter throttles bursts of generation requests per user. It sits in front
// of the quota gate and never consumes quota itself.
type Limiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	prefix string
	log    *zap.Logger
}

// NewLimiter returns nil when rate limiting is disabled.
func NewLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) (*Limiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if client == nil {
		return nil, fmt.Errorf("%w: redis client is required", ErrNotConfigured)
	}
	if limitCfg.Rate <= 0 || limitCfg.Burst <= 0 {
		return nil, errors.New("rate limit rate and burst must be positive")
	}

	prefix := strings.TrimSpace(limitCfg.KeyPrefix)
	if prefix == "" {
		prefix = "studyquota:ratelimit"
	}

	return &Limiter{
		bucket: NewTokenBucket(client),
		rate:   limitCfg.Rate,
		burst:  limitCfg.Burst,
		prefix: prefix,
		log:    log.Named("ratelimit"),
	}, nil
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow takes one token from the user's bucket.
func (l *Limiter) Allow(ctx context.Context, userID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return &RateLimitResult{Allowed: false}, errors.New("rate limiter user id is empty")
	}

	res, err := l.bucket.Allow(ctx, l.key(userID), l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limit check failed", zap.String("user_id", userID), zap.Error(err))
		return res, err
	}
	if !res.Allowed {
		l.log.Debug("rate limited", zap.String("user_id", userID), zap.Duration("retry_after", res.RetryAfter))
	}
	return res, nil
}

func (l *Limiter) key(userID string) string {
	return fmt.Sprintf(keyUserBucket, l.prefix, userID)
}
