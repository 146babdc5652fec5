package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mouradajaa1-dot/fix-manager/internal/api/dto"
	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/service"
	apperrors "github.com/mouradajaa1-dot/fix-manager/pkg/util"
)

const dateLayout = "2006-01-02"

// LedgerHandler exposes the income and expense ledger.
type LedgerHandler struct {
	service *service.LedgerService
}

// NewLedgerHandler constructs handler.
func NewLedgerHandler(ledgerService *service.LedgerService) *LedgerHandler {
	return &LedgerHandler{service: ledgerService}
}

// List GET /ledger.
func (h *LedgerHandler) List(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	query := service.LedgerQuery{TicketRef: c.Query("ticket_ref")}
	if c.Query("month") != "" || c.Query("year") != "" {
		year, month, err := h.monthParams(c)
		if err != nil {
			return err
		}
		query.Year, query.Month = year, month
	}
	query.Limit, query.Offset = pagination(c)
	entries, err := h.service.ListEntries(c.UserContext(), actor, query)
	if err != nil {
		return err
	}
	items := make([]dto.EntryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, entryResponse(&entries[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Append POST /ledger.
func (h *LedgerHandler) Append(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateEntryRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	input := service.EntryInput{Type: req.Type, Description: req.Description, Amount: req.Amount}
	if req.Date != "" {
		date, err := time.ParseInLocation(dateLayout, req.Date, h.service.Location())
		if err != nil {
			return apperrors.NewValidationError("date must be YYYY-MM-DD", map[string]any{"date": req.Date})
		}
		input.Date = date
	}
	entry, err := h.service.AppendManual(c.UserContext(), actor, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": entryResponse(entry)})
}

// Aggregate GET /ledger/aggregate?month=&year=. Defaults to the current month.
func (h *LedgerHandler) Aggregate(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	year, month, err := h.monthParams(c)
	if err != nil {
		return err
	}
	agg, err := h.service.Aggregate(c.UserContext(), actor, year, month)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": aggregateResponse(agg)})
}

func (h *LedgerHandler) monthParams(c *fiber.Ctx) (int, time.Month, error) {
	year, month := h.service.CurrentMonth()
	if raw := c.Query("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, apperrors.NewValidationError("year must be a number", map[string]any{"year": raw})
		}
		year = parsed
	}
	if raw := c.Query("month"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, apperrors.NewValidationError("month must be a number", map[string]any{"month": raw})
		}
		month = time.Month(parsed)
	}
	return year, month, nil
}

func entryResponse(e *domain.LedgerEntry) dto.EntryResponse {
	return dto.EntryResponse{
		ID:          e.ID,
		TeamID:      e.TeamID,
		Type:        e.Type,
		Description: e.Description,
		Amount:      e.Amount.StringFixed(2),
		Date:        e.Date.Format(dateLayout),
		CreatedBy:   e.CreatedBy,
		TicketRef:   e.TicketRef,
		CreatedAt:   e.CreatedAt,
	}
}

func aggregateResponse(agg service.MonthlyAggregate) dto.AggregateResponse {
	return dto.AggregateResponse{
		Year:    agg.Year,
		Month:   int(agg.Month),
		Income:  agg.Totals.Income.StringFixed(2),
		Expense: agg.Totals.Expense.StringFixed(2),
		Net:     agg.Totals.Net.StringFixed(2),
	}
}
