package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/princekumarofficial/statements-service/internal/types"
)

// Cache key patterns
const (
	MergeStatusKey     = "merge:status:%s" // merge:status:mergeSessionID
	MergeStatusPattern = "merge:status:*"
)

// MergeStatusDuration bounds how long a replica may serve a mirrored status
// after the owning process stopped updating it.
const MergeStatusDuration = 24 * time.Hour

// StatusMirror copies merge session snapshots into Redis so that any
// replica can answer status polls for merges running elsewhere.
type StatusMirror struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewStatusMirror creates a new status mirror
func NewStatusMirror(redisClient *redis.Client, ttl time.Duration, logger *slog.Logger) *StatusMirror {
	if ttl <= 0 {
		ttl = MergeStatusDuration
	}
	return &StatusMirror{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}
}

// MergeUpdated writes the snapshot. Failures are logged; the in-process
// registry stays authoritative.
func (m *StatusMirror) MergeUpdated(ctx context.Context, session types.MergeSession) {
	data, err := json.Marshal(session)
	if err != nil {
		m.logger.Warn("failed to encode merge status", "merge_session_id", session.MergeSessionID, "error", err)
		return
	}
	key := fmt.Sprintf(MergeStatusKey, session.MergeSessionID)
	if err := m.redis.Set(ctx, key, data, m.ttl).Err(); err != nil {
		m.logger.Warn("failed to mirror merge status", "merge_session_id", session.MergeSessionID, "error", err)
	}
}

// GetMergeStatus returns the mirrored snapshot, if any.
func (m *StatusMirror) GetMergeStatus(ctx context.Context, mergeID string) (types.MergeSession, bool, error) {
	key := fmt.Sprintf(MergeStatusKey, mergeID)
	cached, err := m.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return types.MergeSession{}, false, nil
	}
	if err != nil {
		return types.MergeSession{}, false, err
	}

	var session types.MergeSession
	if err := json.Unmarshal([]byte(cached), &session); err != nil {
		// A corrupt entry is as good as a miss; drop it.
		m.redis.Del(ctx, key)
		return types.MergeSession{}, false, nil
	}
	return session, true, nil
}

// Invalidate removes mirrored snapshots for the given merges.
func (m *StatusMirror) Invalidate(ctx context.Context, mergeIDs ...string) {
	if len(mergeIDs) == 0 {
		return
	}
	keys := make([]string, len(mergeIDs))
	for i, id := range mergeIDs {
		keys[i] = fmt.Sprintf(MergeStatusKey, id)
	}
	m.redis.Del(ctx, keys...)
}
