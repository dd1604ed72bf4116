package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ragroute/ragroute/auth"
)

const userLocal = "user"

// requireUser resolves the bearer token to a user and stashes it in the
// request locals. Missing or unknown tokens stop the request with 401.
func (s *Server) requireUser(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
	}
	user, ok := s.registry.Resolve(token)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
	}
	c.Locals(userLocal, user)
	return c.Next()
}

func currentUser(c *fiber.Ctx) *auth.User {
	u, _ := c.Locals(userLocal).(*auth.User)
	return u
}
