// Package rayid tags every request with a unique ID.
package rayid

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// Header carries the ID in both directions.
	Header = "X-Ray-ID"
	// LocalsKey is where handlers find the ID.
	LocalsKey = "ray_id"
)

// New returns the middleware. An incoming X-Ray-ID is kept so callers can
// correlate their own logs.
func New() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(Header)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals(LocalsKey, id)
		c.Set(Header, id)
		return c.Next()
	}
}
