package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/nexus-chat/moderation-service/internal/domain"
	"github.com/nexus-chat/moderation-service/internal/session"
	apperrors "github.com/nexus-chat/moderation-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	Session domain.Session
}

// AuthMiddleware validates bearer tokens against the session registry.
type AuthMiddleware struct {
	tokens   *TokenManager
	sessions session.Registry
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, sessions session.Registry) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, sessions: sessions}
}

// Handle enforces authentication for protected routes. A terminated session
// is rejected with the reason it was ended.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	if err := m.sessions.Validate(c.UserContext(), claims.Username, claims.SessionID); err != nil {
		return err
	}

	c.Locals(principalKey, &Principal{Session: claims.Session()})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated caller.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
