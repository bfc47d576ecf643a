package cache

import (
	"net/http"

	"github.com/princekumarofficial/statements-service/internal/utils/response"
)

// CacheStats represents mirror health statistics
type CacheStats struct {
	RedisConnected bool     `json:"redis_connected"`
	MirroredMerges int      `json:"mirrored_merges"`
	CacheKeys      []string `json:"cache_keys_sample"`
	KeyCount       int      `json:"total_keys"`
}

const statsSampleSize = 10

// Stats reports whether Redis is reachable and how many merges are mirrored.
func (m *StatusMirror) Stats(r *http.Request) CacheStats {
	ctx := r.Context()
	stats := CacheStats{RedisConnected: true, CacheKeys: []string{}}

	if _, err := m.redis.Ping(ctx).Result(); err != nil {
		stats.RedisConnected = false
		return stats
	}

	iter := m.redis.Scan(ctx, 0, MergeStatusPattern, 100).Iterator()
	for iter.Next(ctx) {
		stats.MirroredMerges++
		if len(stats.CacheKeys) < statsSampleSize {
			stats.CacheKeys = append(stats.CacheKeys, iter.Val())
		}
	}

	if dbSize := m.redis.DBSize(ctx); dbSize.Err() == nil {
		stats.KeyCount = int(dbSize.Val())
	}
	return stats
}

// GetCacheStats returns mirror statistics
func GetCacheStats(mirror *StatusMirror) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.WriteJSON(w, http.StatusOK, response.RequestOK("Cache stats retrieved", mirror.Stats(r)))
	}
}

// ClearCache drops every mirrored merge status, for administrative purposes
func ClearCache(mirror *StatusMirror) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var keys []string
		iter := mirror.redis.Scan(ctx, 0, MergeStatusPattern, 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		if len(keys) == 0 {
			result := map[string]interface{}{
				"pattern":      MergeStatusPattern,
				"deleted_keys": 0,
			}
			response.WriteJSON(w, http.StatusOK, response.RequestOK("No cache keys to clear", result))
			return
		}

		deleted := mirror.redis.Del(ctx, keys...)
		if deleted.Err() != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(deleted.Err()))
			return
		}
		result := map[string]interface{}{
			"pattern":      MergeStatusPattern,
			"deleted_keys": deleted.Val(),
			"keys_sample":  keys[:min(len(keys), 5)],
		}
		response.WriteJSON(w, http.StatusOK, response.RequestOK("Cache cleared successfully", result))
	}
}
