package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/mouradajaa1-dot/fix-manager/internal/api/dto"
	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/service"
	apperrors "github.com/mouradajaa1-dot/fix-manager/pkg/util"
)

const defaultPageSize = 20

// TicketsHandler manages repair tickets.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.CustomerID == "" && req.Customer == nil {
		return apperrors.NewValidationError("customer_id or customer required", nil)
	}

	input := service.TicketInput{
		CustomerID:         req.CustomerID,
		Device:             req.Device,
		Unlock:             req.Unlock,
		IMEI:               req.IMEI,
		Accessories:        req.Accessories,
		AestheticCondition: req.AestheticCondition,
		Cloud:              req.Cloud,
		IssueType:          req.IssueType,
		IssueDescription:   req.IssueDescription,
		InternalNotes:      req.InternalNotes,
		Price:              req.Price,
		Deposit:            req.Deposit,
		AssignedTo:         req.AssignedTo,
	}
	if req.Customer != nil {
		input.Contact = contactFrom(*req.Customer)
	}
	if req.ArrivalDate != nil {
		input.ArrivalDate = *req.ArrivalDate
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), actor, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.ListTickets(c.UserContext(), actor, parseTicketQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	detail, err := h.service.GetTicket(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(detail)})
}

// UpdateTicket PATCH /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.UpdateTicket(c.UserContext(), actor, c.Params("id"), service.TicketPatch{
		CustomerID:         req.CustomerID,
		Device:             req.Device,
		Unlock:             req.Unlock,
		IMEI:               req.IMEI,
		Accessories:        req.Accessories,
		AestheticCondition: req.AestheticCondition,
		Cloud:              req.Cloud,
		IssueType:          req.IssueType,
		IssueDescription:   req.IssueDescription,
		InternalNotes:      req.InternalNotes,
		Price:              req.Price,
		Deposit:            req.Deposit,
		AssignedTo:         req.AssignedTo,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ChangeStatus POST /tickets/:id/status.
func (h *TicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.ChangeStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if !req.Status.Valid() {
		return apperrors.NewValidationError("unknown status", map[string]any{"status": req.Status})
	}
	ticket, err := h.service.ChangeStatus(c.UserContext(), actor, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

func parseTicketQuery(c *fiber.Ctx) service.TicketQuery {
	query := service.TicketQuery{
		AssignedTo: c.Query("assigned_to"),
		CustomerID: c.Query("customer_id"),
		Search:     c.Query("q"),
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			query.Statuses = append(query.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	query.Limit, query.Offset = pagination(c)
	return query
}

func pagination(c *fiber.Ctx) (limit, offset int) {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), defaultPageSize)
	return pageSize, (page - 1) * pageSize
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:                 ticket.ID,
		ShortID:            ticket.ShortID,
		CustomerID:         ticket.CustomerID,
		CustomerName:       ticket.CustomerName,
		Device:             ticket.Device,
		DeviceLabel:        ticket.Device.Label(),
		Unlock:             ticket.Unlock,
		IMEI:               ticket.IMEI,
		Accessories:        ticket.Accessories,
		AestheticCondition: ticket.AestheticCondition,
		Cloud:              ticket.Cloud,
		IssueType:          ticket.IssueType,
		IssueDescription:   ticket.IssueDescription,
		InternalNotes:      ticket.InternalNotes,
		Price:              ticket.Price.StringFixed(2),
		Deposit:            ticket.Deposit.StringFixed(2),
		BalanceDue:         ticket.BalanceDue().StringFixed(2),
		AssignedTo:         ticket.AssignedTo,
		Status:             ticket.Status,
		ArrivalDate:        ticket.ArrivalDate,
		CreatedBy:          ticket.CreatedBy,
		TeamID:             ticket.TeamID,
		Version:            ticket.Version,
		UpdatedAt:          ticket.UpdatedAt,
	}
}

func ticketDetail(detail *service.TicketDetail) dto.TicketDetailResponse {
	history := make([]dto.HistoryResponse, 0, len(detail.History))
	for _, h := range detail.History {
		history = append(history, dto.HistoryResponse{
			ID:        h.ID,
			ChangedBy: h.ChangedBy,
			OldStatus: h.OldStatus,
			NewStatus: h.NewStatus,
			CreatedAt: h.CreatedAt,
		})
	}
	next := detail.Next
	if next == nil {
		next = []domain.TicketStatus{}
	}
	resp := dto.TicketDetailResponse{
		TicketResponse: ticketResponse(detail.Ticket),
		History:        history,
		Next:           next,
	}
	if detail.Customer != nil {
		cust := customerResponse(detail.Customer)
		resp.Customer = &cust
	}
	return resp
}
