package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/mouradajaa1-dot/fix-manager/internal/api/dto"
	"github.com/mouradajaa1-dot/fix-manager/internal/auth"
	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/service"
	apperrors "github.com/mouradajaa1-dot/fix-manager/pkg/util"
)

// AuthHandler exposes the bundled login flow.
type AuthHandler struct {
	identity *service.IdentityService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(identity *service.IdentityService) *AuthHandler {
	return &AuthHandler{identity: identity}
}

// Login POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return apperrors.NewValidationError("username and password required", nil)
	}
	_, token, exp, err := h.identity.Login(c.UserContext(), req.TenantID, req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AuthResponse{Token: token, ExpiresAt: exp}})
}

// Me GET /me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": actorResponse(actor)})
}

func currentActor(c *fiber.Ctx) (*domain.Actor, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return nil, apperrors.NewAuthError("authentication required")
	}
	return actor, nil
}

func actorResponse(a *domain.Actor) dto.ActorResponse {
	perms := a.Permissions
	if perms == nil {
		perms = []domain.Permission{}
	}
	return dto.ActorResponse{
		ID:          a.ID,
		TenantID:    a.TenantID,
		Username:    a.Username,
		Role:        a.Role,
		CreatedBy:   a.CreatedBy,
		TeamID:      a.TeamID(),
		Permissions: perms,
		Reports:     a.Reports,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}
