package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mouradajaa1-dot/fix-manager/internal/api/dto"
	"github.com/mouradajaa1-dot/fix-manager/internal/service"
)

// DashboardHandler serves the home screen summary.
type DashboardHandler struct {
	service *service.DashboardService
}

// NewDashboardHandler constructs handler.
func NewDashboardHandler(dashboardService *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{service: dashboardService}
}

// Summary GET /dashboard.
func (h *DashboardHandler) Summary(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	summary, err := h.service.Summary(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.DashboardResponse{
		Tickets:   summary.TicketsByStatus,
		Customers: summary.Customers,
		Month:     aggregateResponse(summary.Month),
	}})
}
