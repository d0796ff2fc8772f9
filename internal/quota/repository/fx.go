package repository

import (
	"errors"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/studyquota/internal/config"
	"github.com/smallbiznis/studyquota/internal/observability/metrics"
	"github.com/smallbiznis/studyquota/internal/quota/domain"
	"github.com/smallbiznis/studyquota/internal/quota/window"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	DB         *gorm.DB
	GenID      *snowflake.Node
	Calculator *window.Calculator
	Metrics    *metrics.StoreMetrics `optional:"true"`
	Redis      *redis.Client         `optional:"true"`
}

// Provide selects the usage store backend named by QUOTA_STORE.
func Provide(p Params) (domain.Store, error) {
	if p.Cfg.Quota.Store == config.QuotaStoreRedis {
		if p.Redis == nil {
			return nil, errors.New("quota store redis selected but no redis client is configured")
		}
		p.Log.Info("quota store selected", zap.String("backend", config.QuotaStoreRedis))
		return NewRedisStore(p.Redis, p.Calculator, RedisStoreOptions{
			Prefix:    p.Cfg.Quota.RedisKeyPrefix,
			Retention: p.Cfg.Quota.RedisRetention,
		}, p.Log, p.Metrics), nil
	}
	p.Log.Info("quota store selected", zap.String("backend", config.QuotaStoreSQL))
	return NewGormStore(p.DB, p.GenID, p.Log, p.Metrics), nil
}
