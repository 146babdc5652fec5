package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/mouradajaa1-dot/fix-manager/internal/api/dto"
	"github.com/mouradajaa1-dot/fix-manager/internal/service"
	apperrors "github.com/mouradajaa1-dot/fix-manager/pkg/util"
)

// ActorsHandler manages team members.
type ActorsHandler struct {
	identity *service.IdentityService
}

// NewActorsHandler constructs handler.
func NewActorsHandler(identity *service.IdentityService) *ActorsHandler {
	return &ActorsHandler{identity: identity}
}

// List GET /actors.
func (h *ActorsHandler) List(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	actors, err := h.identity.ListActors(c.UserContext(), actor)
	if err != nil {
		return err
	}
	items := make([]dto.ActorResponse, 0, len(actors))
	for i := range actors {
		items = append(items, actorResponse(&actors[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Create POST /actors.
func (h *ActorsHandler) Create(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateActorRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	created, err := h.identity.CreateActor(c.UserContext(), actor, service.ActorInput{
		Username:    req.Username,
		Password:    req.Password,
		Role:        req.Role,
		Permissions: req.Permissions,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": actorResponse(created)})
}

// Update PATCH /actors/:id.
func (h *ActorsHandler) Update(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.UpdateActorRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	updated, err := h.identity.UpdateActor(c.UserContext(), actor, c.Params("id"), service.ActorUpdate{
		Username:    req.Username,
		Password:    req.Password,
		Role:        req.Role,
		Permissions: req.Permissions,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": actorResponse(updated)})
}

// Delete DELETE /actors/:id.
func (h *ActorsHandler) Delete(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	if err := h.identity.DeleteActor(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
