package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"timber-cms-platform/internal/config"
	"timber-cms-platform/internal/logger"
	"timber-cms-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// apiRateLimitPrefix namespaces the per-client HTTP counters, separate
// from the ai:rl: windows the generation pipeline consumes.
const apiRateLimitPrefix = "api:rl:"

// APIRateLimit throttles each client IP per endpoint with a fixed window
// in Redis. Health endpoints are exempt, and a Redis outage fails open so
// the API keeps serving.
func APIRateLimit(rdb *redis.Client, cfg *config.Config) gin.HandlerFunc {
	window := time.Duration(cfg.RateLimitWindow) * time.Second

	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "/health" || path == "/ready" {
			c.Next()
			return
		}

		ctx := context.Background()
		key := apiRateLimitPrefix + c.ClientIP() + ":" + path

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("api rate limit counter unavailable, serving request", "error", err)
			c.Next()
			return
		}
		if count == 1 {
			rdb.Expire(ctx, key, window)
		}

		limit := cfg.RateLimitReqs
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))

		if count > int64(limit) {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(window).Unix(), 10))

			utils.RespondWithError(c, http.StatusTooManyRequests,
				"rate_limit_exceeded",
				"Too many requests. Please try again later.",
				gin.H{
					"retry_after": cfg.RateLimitWindow,
					"limit":       limit,
				})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(limit-int(count)))
		c.Next()
	}
}
