package middleware

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/raga-mitra/raga_mitra/internal/phone"
)

// PhoneRateLimit limits requests per normalized phone (or IP when the body has no valid
// phone) in a one minute window. scope separates the counters of different endpoints.
func PhoneRateLimit(cache *redis.Client, scope, defaultCountryCode string, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		var req struct {
			Phone string `json:"phone"`
		}
		_ = c.BodyParser(&req)
		key, err := phone.Normalize(req.Phone, defaultCountryCode)
		if err != nil {
			key = c.IP()
		}
		key = "rl:" + scope + ":" + key
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}
