package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryType distinguishes money in from money out.
type EntryType string

const (
	EntryIncome  EntryType = "Income"
	EntryExpense EntryType = "Expense"
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	return t == EntryIncome || t == EntryExpense
}

// LedgerEntry is an append-only financial movement.
type LedgerEntry struct {
	ID          string
	TenantID    string
	TeamID      string
	Type        EntryType
	Description string
	Amount      decimal.Decimal
	Date        time.Time
	CreatedBy   string
	TicketRef   *string
	CreatedAt   time.Time
}

func (e *LedgerEntry) DocID() string { return e.ID }

// DocVersion is constant; entries are never modified.
func (e *LedgerEntry) DocVersion() int64 { return 1 }

// Scope returns the fields visibility predicates test.
func (e *LedgerEntry) Scope() Scope {
	return Scope{TenantID: e.TenantID, TeamID: e.TeamID, CreatedBy: e.CreatedBy}
}

// LedgerTotals is a monthly aggregate. Net is not floored.
type LedgerTotals struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	Net     decimal.Decimal
}
