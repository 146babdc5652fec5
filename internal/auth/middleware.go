package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	apperrors "github.com/mouradajaa1-dot/fix-manager/pkg/util"
)

const actorKey = "auth_actor"

// ActorResolver maps a bearer credential to a freshly loaded actor.
type ActorResolver interface {
	ResolveActor(ctx context.Context, credential string) (*domain.Actor, error)
}

// AuthMiddleware validates bearer tokens and loads the calling actor.
type AuthMiddleware struct {
	resolver ActorResolver
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(resolver ActorResolver) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver}
}

// Handle enforces authentication for protected routes. A stream request may
// pass the credential as the access_token query parameter since browsers
// cannot set headers on an EventSource.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	credential, err := bearer(c)
	if err != nil {
		return err
	}

	actor, err := m.resolver.ResolveActor(c.UserContext(), credential)
	if err != nil {
		return err
	}

	c.Locals(actorKey, actor)
	return c.Next()
}

func bearer(c *fiber.Ctx) (string, error) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		if token := c.Query("access_token"); token != "" {
			return token, nil
		}
		return "", apperrors.NewAuthError("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.NewAuthError("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

// ActorFromContext retrieves the authenticated actor.
func ActorFromContext(c *fiber.Ctx) (*domain.Actor, bool) {
	actor, ok := c.Locals(actorKey).(*domain.Actor)
	return actor, ok && actor != nil
}
