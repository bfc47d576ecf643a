package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// ActionUploadInitiate is the bucket consumed by each new upload session.
	ActionUploadInitiate = "upload_initiate"
	// ActionMergeInitiate is the bucket consumed by each merge request.
	ActionMergeInitiate = "merge_initiate"
)

// Limiter decides whether an owner may perform an action now.
type Limiter interface {
	Allow(ctx context.Context, ownerID, action string) (bool, error)
}

// Unlimited allows everything; used when Redis is not configured.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string, string) (bool, error) { return true, nil }

// The bucket state lives in a hash so refill and take happen atomically.
var takeScript = redis.NewScript(`
	local key = KEYS[1]
	local capacity = tonumber(ARGV[1])
	local refill_rate = tonumber(ARGV[2])
	local window = tonumber(ARGV[3])
	local now = tonumber(ARGV[4])
	local take = tonumber(ARGV[5])

	local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
	local tokens = tonumber(bucket[1]) or capacity
	local last_refill = tonumber(bucket[2]) or now

	local tokens_to_add = math.floor(((now - last_refill) / window) * refill_rate)
	if tokens_to_add > 0 then
		tokens = math.min(capacity, tokens + tokens_to_add)
		last_refill = now
	end

	local allowed = 0
	if take > 0 and tokens >= take then
		tokens = tokens - take
		allowed = 1
	end

	if take > 0 then
		redis.call('HMSET', key, 'tokens', tokens, 'last_refill', last_refill)
		redis.call('EXPIRE', key, window * 2)
		return allowed
	end
	return tokens
`)

// TokenBucket is a per-owner, per-action token bucket kept in Redis.
type TokenBucket struct {
	redis    *redis.Client
	capacity int64
	refill   int64 // tokens per window
	window   time.Duration
	now      func() time.Time
}

// NewTokenBucket creates a bucket holding capacity tokens that refills
// refillRate tokens per minute.
func NewTokenBucket(redisClient *redis.Client, capacity, refillRate int64) *TokenBucket {
	return &TokenBucket{
		redis:    redisClient,
		capacity: capacity,
		refill:   refillRate,
		window:   time.Minute,
		now:      time.Now,
	}
}

func bucketKey(ownerID, action string) string {
	return fmt.Sprintf("rate_limit:%s:%s", ownerID, action)
}

func (tb *TokenBucket) run(ctx context.Context, ownerID, action string, take int64) (int64, error) {
	result, err := takeScript.Run(ctx, tb.redis, []string{bucketKey(ownerID, action)},
		tb.capacity, tb.refill, int64(tb.window.Seconds()), tb.now().Unix(), take).Result()
	if err != nil {
		return 0, fmt.Errorf("rate limit script: %w", err)
	}
	n, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected result type %T from rate limit script", result)
	}
	return n, nil
}

// Allow consumes one token and reports whether one was available.
func (tb *TokenBucket) Allow(ctx context.Context, ownerID, action string) (bool, error) {
	n, err := tb.run(ctx, ownerID, action, 1)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetRemaining returns the tokens left without consuming any.
func (tb *TokenBucket) GetRemaining(ctx context.Context, ownerID, action string) (int64, error) {
	return tb.run(ctx, ownerID, action, 0)
}

// Reset clears the bucket for an owner action.
func (tb *TokenBucket) Reset(ctx context.Context, ownerID, action string) error {
	return tb.redis.Del(ctx, bucketKey(ownerID, action)).Err()
}

// Capacity is the bucket size.
func (tb *TokenBucket) Capacity() int64 {
	return tb.capacity
}
