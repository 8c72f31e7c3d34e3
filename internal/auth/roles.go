package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// RequireOwner ensures the caller holds the privileged owner session.
func RequireOwner() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if !principal.Session.Privileged {
			return fiber.NewError(http.StatusForbidden, "owner privileges required")
		}
		return c.Next()
	}
}

// RequireSession ensures the caller is authenticated.
func RequireSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		return c.Next()
	}
}
