package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// fixedWindow increments the counter and makes sure it carries an expiry,
// also for keys left without one.
var fixedWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 or redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RedisRateLimiter is a fixed window counter shared by all instances.
type RedisRateLimiter struct {
	rdb    *redis.Client
	prefix string
	limit  int
	window time.Duration
	log    *zap.Logger
}

func NewRedisRateLimiter(rdb *redis.Client, prefix string, limit int, window time.Duration, log *zap.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{rdb: rdb, prefix: prefix, limit: limit, window: window, log: log}
}

// PerUser limits by the authenticated user id. Redis failures let the request
// through.
func (r *RedisRateLimiter) PerUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ident, ok := Identity(c)
		if !ok {
			return c.Next()
		}
		ctx := c.UserContext()
		key := fmt.Sprintf("%s:%s", r.prefix, ident.UserID.Hex())
		count, err := fixedWindow.Run(ctx, r.rdb, []string{key}, r.window.Milliseconds()).Int64()
		if err != nil {
			r.log.Warn("rate limiter unavailable", zap.Error(err))
			return c.Next()
		}
		if count > int64(r.limit) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"success": false, "message": "rate limit exceeded"})
		}
		return c.Next()
	}
}
