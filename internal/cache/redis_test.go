package cache

import (
	"testing"

	"github.com/smallbiznis/studyquota/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewRedisClientSkippedForSQLStore(t *testing.T) {
	client, err := NewRedisClient(nil, config.Config{Quota: config.QuotaConfig{Store: config.QuotaStoreSQL}}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewRedisClientBuiltForRateLimiter(t *testing.T) {
	cfg := config.Config{
		Redis:     config.RedisConfig{Addr: "127.0.0.1:6379"},
		Quota:     config.QuotaConfig{Store: config.QuotaStoreSQL},
		RateLimit: config.RateLimitConfig{Enabled: true},
	}
	client, err := NewRedisClient(nil, cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, client)
	_ = client.Close()
}

func TestNewRedisClientRequiresAddr(t *testing.T) {
	_, err := NewRedisClient(nil, config.Config{Quota: config.QuotaConfig{Store: config.QuotaStoreRedis}}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewRedisClientBuildsClient(t *testing.T) {
	cfg := config.Config{
		Redis: config.RedisConfig{Addr: "127.0.0.1:6379", DB: 2},
		Quota: config.QuotaConfig{Store: config.QuotaStoreRedis},
	}
	client, err := NewRedisClient(nil, cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, 2, client.Options().DB)
	_ = client.Close()
}
