package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/princekumarofficial/statements-service/internal/ratelimit"
	"github.com/princekumarofficial/statements-service/internal/services"
	"github.com/princekumarofficial/statements-service/internal/utils/response"
)

// bucketInfo is implemented by limiters that can report their state for
// the X-RateLimit headers.
type bucketInfo interface {
	Capacity() int64
	GetRemaining(ctx context.Context, ownerID, action string) (int64, error)
}

// RateLimit rejects requests from users whose bucket for action is empty.
// It must run after AuthMiddleware.
func RateLimit(limiter ratelimit.Limiter, action string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := GetUserIDFromContext(r.Context())
			if !ok {
				response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(
					errors.New("user not authenticated")))
				return
			}

			allowed, err := limiter.Allow(r.Context(), userID, action)
			if err != nil {
				// Fail closed: Redis trouble must not lift the limit.
				logger.Error("rate limit check failed", "action", action, "error", err)
				response.WriteJSON(w, http.StatusServiceUnavailable, response.GeneralError(
					errors.New("rate limit check failed")))
				return
			}

			if info, ok := limiter.(bucketInfo); ok {
				remaining, _ := info.GetRemaining(r.Context(), userID, action)
				w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(info.Capacity(), 10))
				w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
				w.Header().Set("X-RateLimit-Reset", "60")
			}

			if !allowed {
				response.FromError(w, services.Wrap(services.ErrQuotaExceeded, "rate limit exceeded", nil))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
