package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/miuchi-chat/miuchi/internal/httputil"
)

// NewRateLimitMiddleware builds an IP-keyed rate limiter for the REST collaborator surface, backed by an in-memory
// store. The gateway's own per-connection token bucket (internal/gateway/ratelimiter.go) is unrelated and unaffected
// by this; this only protects the unauthenticated HTTP routes from abusive polling.
func NewRateLimitMiddleware(requests, windowSeconds int) fiber.Handler {
	rate := limiter.Rate{
		Period: time.Duration(windowSeconds) * time.Second,
		Limit:  int64(requests),
	}
	instance := limiter.New(memory.NewStore(), rate)

	return func(c fiber.Ctx) error {
		result, err := instance.Get(c.Context(), c.IP())
		if err != nil {
			// Fail open: an unavailable rate limiter store must never take down the REST surface.
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(result.Reset, 10))

		if result.Reached {
			return httputil.Fail(c, fiber.StatusTooManyRequests, httputil.RateLimited, "rate limit exceeded")
		}
		return c.Next()
	}
}
