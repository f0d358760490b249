package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rbaliyan/gamemail/auth"
)

// localUserID is the fiber.Ctx locals key holding the authenticated
// user's ID as an int64.
const localUserID = "user_id"

// requestID assigns each request a unique ID, echoed in the
// X-Request-Id response header and attached to log lines.
func requestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals("request_id", id)
		c.Set("X-Request-Id", id)
		return c.Next()
	}
}

// requireAuth verifies the Bearer token and stores the user ID in the
// request locals.
func requireAuth(authSvc *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization"})
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization"})
		}
		userID, err := authSvc.Verify(parts[1])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}
		c.Locals(localUserID, userID)
		return c.Next()
	}
}

// rateLimiter caps requests per client IP using a fixed Redis window.
// This protects the HTTP surface; the per-sender send limits are
// enforced separately by the mail service.
type rateLimiter struct {
	rdb    *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func newRateLimiter(rdb *redis.Client, prefix string, limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{rdb: rdb, prefix: prefix, limit: limit, window: window}
}

func (r *rateLimiter) middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := fmt.Sprintf("%s:%s", r.prefix, c.IP())
		count, err := r.rdb.Incr(c.Context(), key).Result()
		if err != nil {
			// Redis being down should not take the API down with it.
			return c.Next()
		}
		if count == 1 {
			r.rdb.Expire(c.Context(), key, r.window)
		}
		if count > int64(r.limit) {
			c.Set(fiber.HeaderRetryAfter, fmt.Sprintf("%d", int(r.window.Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "too many requests"})
		}
		return c.Next()
	}
}
