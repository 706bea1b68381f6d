package limiter

import (
	"context"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisClient 介面定義
type RedisClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// 時間用毫秒，避免 lua number 精度問題
var tokenBucketScript = `
	local key = KEYS[1]
	local capacity = tonumber(ARGV[1])
	local rate = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	-- 取得或初始化 bucket 狀態
	local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
	local currentTokens = tonumber(bucket[1])
	local lastRefill = tonumber(bucket[2])

	if currentTokens == nil then
		currentTokens = capacity
		lastRefill = now
	end

	-- 計算需要補充的 tokens
	local elapsedSeconds = math.max(0, now - lastRefill) / 1000
	currentTokens = math.min(capacity, currentTokens + elapsedSeconds * rate)

	local allowed = 0
	if currentTokens >= 1 then
		currentTokens = currentTokens - 1
		allowed = 1
	end

	redis.call('HSET', key, 'tokens', tostring(currentTokens), 'last_refill', tostring(now))
	redis.call('EXPIRE', key, ttl)
	return allowed
`

/*
RsTokenBucket 多個 instance 共用的 token bucket
redis 錯誤時放行 (fail open)，結帳不能因為限流元件故障而整個停擺
*/
type RsTokenBucket struct {
	LimiterConfig
	client RedisClient
	prefix string
	logger zerolog.Logger
	now    func() time.Time
}

func NewRsTokenBucket(client RedisClient, prefix string, config *LimiterConfig, logger zerolog.Logger) *RsTokenBucket {
	cfg := GetDefaultLimiterConfig()
	if config != nil {
		cfg = config.withDefaults()
	}
	return &RsTokenBucket{
		LimiterConfig: cfg,
		client:        client,
		prefix:        prefix,
		logger:        logger,
		now:           time.Now,
	}
}

func (r *RsTokenBucket) Allow(ctx context.Context, key string) bool {
	ttl := int64(math.Ceil(r.IdleTTL.Seconds()))
	result, err := r.client.Eval(
		ctx,
		tokenBucketScript,
		[]string{r.prefix + key},
		r.Capacity,
		r.RatePS,
		r.now().UnixMilli(),
		ttl,
	).Int64()
	if err != nil {
		r.logger.Warn().Err(err).Str("limiter_key", key).Msg("redis limiter unavailable, allow request")
		return true
	}
	return result == 1
}
