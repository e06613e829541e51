package httpx

import (
	"context"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisLimiterPrefix  = "reelview:ratelimit:"
	redisLimiterTimeout = 250 * time.Millisecond
)

// redisRateLimiter shares fixed windows across API replicas. Redis failures
// fail open so an outage does not lock users out.
type redisRateLimiter struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisRateLimiter connects to Redis and returns a RateLimiter backed by it.
func NewRedisRateLimiter(addr, password string, db int, logger *slog.Logger) (RateLimiter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &redisRateLimiter{client: client, logger: logger}, nil
}

func (rl *redisRateLimiter) Allow(key string, limit int, span time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if span <= 0 {
		span = rateWindowDefault
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisLimiterTimeout)
	defer cancel()

	// INCR and the first EXPIRE run in one MULTI so a counter never outlives
	// its window. EXPIRE NX needs Redis 7.
	redisKey := redisLimiterPrefix + key
	var (
		hits *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		hits = pipe.Incr(ctx, redisKey)
		pipe.ExpireNX(ctx, redisKey, span)
		ttl = pipe.TTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		rl.logger.Error("redis rate limiter error", "key", rateMetricKey(key), "error", err)
		return rateDecision{allowed: true}
	}
	remaining := ttl.Val()
	if remaining <= 0 {
		remaining = span
	}
	count := int(hits.Val())
	return rateDecision{allowed: count <= limit, count: count, windowEnd: time.Now().Add(remaining)}
}

// Ping reports whether Redis is reachable.
func (rl *redisRateLimiter) Ping(ctx context.Context) error {
	return rl.client.Ping(ctx).Err()
}

func (rl *redisRateLimiter) Close() {
	if err := rl.client.Close(); err != nil {
		rl.logger.Warn("close redis rate limiter", "error", err)
	}
}
