package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/studyquota/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("cache.redis",
	fx.Provide(NewRedisClient),
)

// NewRedisClient builds the shared client. It is pinged on start and closed on stop.
// No client is built unless the redis usage store or the rate limiter needs one.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*redis.Client, error) {
	if cfg.Quota.Store != config.QuotaStoreRedis && !cfg.RateLimit.Enabled {
		return nil, nil
	}
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})

	if lc != nil {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("ping redis %s: %w", addr, err)
				}
				log.Info("redis connected", zap.String("addr", addr), zap.Int("db", cfg.Redis.DB))
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		})
	}

	return client, nil
}
