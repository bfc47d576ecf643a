package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

// setupTestRedis creates an in-memory Redis server for testing
func setupTestRedis(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		t.Fatalf("Failed to connect to test Redis: %v", err)
	}

	t.Cleanup(func() {
		redisClient.Close()
		mr.Close()
	})
	return redisClient
}

func TestTokenBucket_Allow(t *testing.T) {
	bucket := NewTokenBucket(setupTestRedis(t), 3, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := bucket.Allow(ctx, "owner", ActionUploadInitiate)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if !allowed {
			t.Fatalf("Expected initiate %d to be allowed", i+1)
		}
	}

	allowed, err := bucket.Allow(ctx, "owner", ActionUploadInitiate)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("Expected initiate to be denied after limit reached")
	}

	// Buckets are per owner.
	allowed, err = bucket.Allow(ctx, "other", ActionUploadInitiate)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !allowed {
		t.Fatal("Expected a different owner to have its own bucket")
	}
}

func TestTokenBucket_Refill(t *testing.T) {
	bucket := NewTokenBucket(setupTestRedis(t), 2, 2)
	clock := time.Unix(1_700_000_000, 0)
	bucket.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _ := bucket.Allow(ctx, "owner", ActionUploadInitiate); !ok {
			t.Fatalf("Expected token %d", i+1)
		}
	}
	if ok, _ := bucket.Allow(ctx, "owner", ActionUploadInitiate); ok {
		t.Fatal("Expected empty bucket")
	}

	clock = clock.Add(time.Minute)
	remaining, err := bucket.GetRemaining(ctx, "owner", ActionUploadInitiate)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("Expected bucket refilled to 2, got %d", remaining)
	}
}

func TestTokenBucket_GetRemainingAndReset(t *testing.T) {
	bucket := NewTokenBucket(setupTestRedis(t), 10, 10)
	ctx := context.Background()

	remaining, err := bucket.GetRemaining(ctx, "owner", "probe")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if remaining != 10 {
		t.Fatalf("Expected 10 remaining tokens, got %d", remaining)
	}

	for i := 0; i < 3; i++ {
		bucket.Allow(ctx, "owner", "probe")
	}
	remaining, _ = bucket.GetRemaining(ctx, "owner", "probe")
	if remaining != 7 {
		t.Fatalf("Expected 7 remaining tokens, got %d", remaining)
	}

	if err := bucket.Reset(ctx, "owner", "probe"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	remaining, _ = bucket.GetRemaining(ctx, "owner", "probe")
	if remaining != 10 {
		t.Fatalf("Expected 10 remaining tokens after reset, got %d", remaining)
	}
}
