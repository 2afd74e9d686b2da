package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "racepass:ratelimit:"

// RedisLimiter keeps the window in a sorted set scored by attempt time, so
// limits hold across server replicas.
type RedisLimiter struct {
	client redis.Cmdable
	policy Policy
}

func NewRedisLimiter(client redis.Cmdable, policy Policy) *RedisLimiter {
	return &RedisLimiter{client: client, policy: policy}
}

func (l *RedisLimiter) Hit(ctx context.Context, key string, now time.Time) (Result, error) {
	k := redisKeyPrefix + key
	cutoff := now.Add(-l.policy.Window).UnixMilli()
	member := strconv.FormatInt(now.UnixMilli(), 10) + ":" + uuid.NewString()

	var count *redis.IntCmd
	var oldest *redis.ZSliceCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(cutoff, 10))
		p.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixMilli()), Member: member})
		count = p.ZCard(ctx, k)
		oldest = p.ZRangeWithScores(ctx, k, 0, 0)
		p.PExpire(ctx, k, l.policy.Window)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("rate limit hit: %w", err)
	}

	resetAt := now.Add(l.policy.Window)
	if zs := oldest.Val(); len(zs) > 0 {
		resetAt = time.UnixMilli(int64(zs[0].Score)).Add(l.policy.Window)
	}
	n := int(count.Val())
	return Result{
		Limited: n > l.policy.Max,
		Count:   n,
		Limit:   l.policy.Max,
		ResetAt: resetAt,
	}, nil
}
