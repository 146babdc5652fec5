package auth

import (
	"slices"

	"github.com/gofiber/fiber/v2"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	apperrors "github.com/mouradajaa1-dot/fix-manager/pkg/util"
)

// RequireRole ensures the actor holds one of the allowed roles.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := ActorFromContext(c)
		if !ok {
			return apperrors.NewAuthError("authentication required")
		}
		if len(allowed) > 0 && !slices.Contains(allowed, actor.Role) {
			return apperrors.NewForbidden("role " + string(actor.Role) + " may not use this endpoint")
		}
		return c.Next()
	}
}

// RequireActor ensures the caller is authenticated.
func RequireActor() fiber.Handler {
	return RequireRole()
}
