package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/studyquota/internal/observability/metrics"
	"github.com/smallbiznis/studyquota/internal/quota/domain"
	"github.com/smallbiznis/studyquota/internal/quota/window"
	"go.uber.org/zap"
)

// The hash at KEYS[1] is the usage record; each field is one feature counter.
const boundedIncrementScript = `
local limit = tonumber(ARGV[2])
local expireAt = tonumber(ARGV[3])

local current = tonumber(redis.call("HGET", KEYS[1], ARGV[1]) or "0")

local allowed = 0
if current < limit then
  current = redis.call("HINCRBY", KEYS[1], ARGV[1], 1)
  allowed = 1
end

if redis.call("EXISTS", KEYS[1]) == 1 then
  redis.call("EXPIREAT", KEYS[1], expireAt)
end

-- Return: allowed, count after the call
return {allowed, current}
`

const defaultKeyPrefix = "studyquota:usage"

// RedisStore keeps usage records as hashes and increments them inside a Lua script.
type RedisStore struct {
	client    redis.Cmdable
	script    *redis.Script
	calc      *window.Calculator
	prefix    string
	retention time.Duration
	log       *zap.Logger
	metrics   *metrics.StoreMetrics
}

type RedisStoreOptions struct {
	Prefix    string
	Retention time.Duration
}

func NewRedisStore(client redis.Cmdable, calc *window.Calculator, opts RedisStoreOptions, log *zap.Logger, storeMetrics *metrics.StoreMetrics) *RedisStore {
	prefix := strings.TrimSuffix(strings.TrimSpace(opts.Prefix), ":")
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	retention := opts.Retention
	if retention < 0 {
		retention = 0
	}
	return &RedisStore{
		client:    client,
		script:    redis.NewScript(boundedIncrementScript),
		calc:      calc,
		prefix:    prefix,
		retention: retention,
		log:       log.Named("quota.store.redis"),
		metrics:   storeMetrics,
	}
}

func (s *RedisStore) TryIncrement(ctx context.Context, req domain.TryIncrementRequest) (result domain.IncrementResult, err error) {
	if err := req.Validate(); err != nil {
		return domain.IncrementResult{}, err
	}

	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation(metrics.StoreBackendRedis, metrics.StoreOpTryIncrement, time.Since(start), err)
		if err == nil {
			s.metrics.IncIncrement(metrics.StoreBackendRedis, result.Allowed)
		}
	}()

	end, err := s.calc.End(req.Cadence, req.WindowStart)
	if err != nil {
		return domain.IncrementResult{}, err
	}
	expireAt := end.Add(s.retention).Unix()

	res, err := s.script.Run(
		ctx,
		s.client,
		[]string{s.key(req.UserID, req.Cadence, req.WindowStart)},
		req.Feature,
		req.Limit,
		expireAt,
	).Slice()
	if err != nil {
		return domain.IncrementResult{}, unavailable(err)
	}
	if len(res) < 2 {
		return domain.IncrementResult{}, unavailable(errors.New("invalid bounded increment script response"))
	}

	allowed := castToInt(res[0]) == 1
	used := int(castToInt(res[1]))
	remaining := req.Limit - used
	if remaining < 0 {
		remaining = 0
	}
	return domain.IncrementResult{Allowed: allowed, Used: used, Remaining: remaining}, nil
}

func (s *RedisStore) Get(ctx context.Context, userID string, cadence domain.Cadence, windowStart time.Time) (record *domain.UsageRecord, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation(metrics.StoreBackendRedis, metrics.StoreOpGet, time.Since(start), err)
	}()

	fields, err := s.client.HGetAll(ctx, s.key(userID, cadence, windowStart)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	rec := &domain.UsageRecord{
		UserID:      userID,
		Cadence:     cadence,
		WindowStart: windowStart.UTC(),
		Counters:    make([]domain.UsageCounter, 0, len(fields)),
	}
	for feature, raw := range fields {
		count, convErr := strconv.Atoi(raw)
		if convErr != nil {
			s.log.Warn("ignoring malformed usage counter",
				zap.String("feature", feature),
				zap.String("cadence", string(cadence)),
			)
			continue
		}
		rec.Counters = append(rec.Counters, domain.UsageCounter{Feature: feature, Count: count})
	}
	return rec, nil
}

func (s *RedisStore) key(userID string, cadence domain.Cadence, windowStart time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%d", s.prefix, userID, cadence, windowStart.UTC().Unix())
}

func castToInt(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	case string:
		parsed, _ := strconv.ParseInt(val, 10, 64)
		return parsed
	default:
		return 0
	}
}

var _ domain.Store = (*RedisStore)(nil)
