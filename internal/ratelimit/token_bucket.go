package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Redis truncates Lua numbers to integers on return, so the bucket level is
// stored and returned in thousandths of a token.
const milliTokens = 1000

// KEYS[1] bucket hash
// ARGV[1] refill rate in milli-tokens per second
// ARGV[2] capacity in milli-tokens
// ARGV[3] hash ttl in milliseconds
const takeTokenScript = `
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local level = tonumber(redis.call("HGET", KEYS[1], "level"))
local last = tonumber(redis.call("HGET", KEYS[1], "last"))

if level == nil or last == nil then
  level = capacity
else
  local elapsed = math.max(0, now - last)
  level = math.min(capacity, level + math.floor(elapsed * rate / 1000))
end

local granted = 0
if level >= 1000 then
  granted = 1
  level = level - 1000
end

redis.call("HSET", KEYS[1], "level", level, "last", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {granted, level, now}
`

// TokenBucket refills continuously at rate tokens per second up to burst.
// State lives in a redis hash so every replica shares the bucket.
type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(takeTokenScript),
	}
}

// Allow takes one token from the bucket at key.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	denied := &RateLimitResult{Allowed: false, Limit: burst}
	switch {
	case t == nil || t.client == nil:
		return denied, ErrNotConfigured
	case key == "":
		return denied, errors.New("rate limiter key is empty")
	case rate <= 0:
		return denied, errors.New("rate limiter rate must be positive")
	case burst <= 0:
		return denied, errors.New("rate limiter burst must be positive")
	}

	ttl := bucketTTL(rate, burst)
	res, err := t.script.Run(ctx, t.client, []string{key},
		int64(math.Ceil(rate*milliTokens)),
		int64(burst)*milliTokens,
		ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return denied, err
	}
	if len(res) != 3 {
		return denied, fmt.Errorf("token bucket script returned %d values", len(res))
	}

	level := res[1]
	result := &RateLimitResult{
		Allowed:   res[0] == 1,
		Limit:     burst,
		Remaining: int(level / milliTokens),
		ResetTime: time.UnixMilli(res[2]),
	}
	if !result.Allowed {
		result.RetryAfter = refillWait(level, rate)
		result.ResetTime = result.ResetTime.Add(result.RetryAfter)
	}
	return result, nil
}

// refillWait is how long a bucket at level milli-tokens needs to hold one token.
func refillWait(level int64, rate float64) time.Duration {
	missing := milliTokens - level
	if missing <= 0 || rate <= 0 {
		return 0
	}
	seconds := float64(missing) / milliTokens / rate
	return time.Duration(math.Ceil(seconds * float64(time.Second)))
}

// bucketTTL keeps an idle bucket around for twice its full refill time.
func bucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Ceil((float64(burst) / rate) * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}
