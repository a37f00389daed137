package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimit caps a REST surface per authenticated identity, falling back to
// the caller IP before authentication. The websocket surface is not rate
// limited here; its backpressure is the per-connection send buffer.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 60
	}
	if window <= 0 {
		window = time.Minute
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			identity, _ := c.Locals("user_id").(string)
			if identity == "" {
				identity = c.IP()
			}
			return fmt.Sprintf("%s:%s", identifier, identity)
		},
	})
}
