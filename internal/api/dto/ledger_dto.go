package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
)

// CreateEntryRequest payload. Date is a calendar day, YYYY-MM-DD.
type CreateEntryRequest struct {
	Type        domain.EntryType `json:"type"`
	Description string           `json:"description"`
	Amount      decimal.Decimal  `json:"amount"`
	Date        string           `json:"date"`
}

// EntryResponse payload.
type EntryResponse struct {
	ID          string           `json:"id"`
	TeamID      string           `json:"team_id"`
	Type        domain.EntryType `json:"type"`
	Description string           `json:"description"`
	Amount      string           `json:"amount"`
	Date        string           `json:"date"`
	CreatedBy   string           `json:"created_by"`
	TicketRef   *string          `json:"ticket_ref,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// AggregateResponse is one month's totals.
type AggregateResponse struct {
	Year    int    `json:"year"`
	Month   int    `json:"month"`
	Income  string `json:"income"`
	Expense string `json:"expense"`
	Net     string `json:"net"`
}
