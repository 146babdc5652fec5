// Package ledger validates entries and folds them into monthly totals.
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/lifecycle"
	"github.com/mouradajaa1-dot/fix-manager/internal/visibility"
	apperrors "github.com/mouradajaa1-dot/fix-manager/pkg/util"
)

// Validate checks an entry before it is appended.
func Validate(entry *domain.LedgerEntry) error {
	if !entry.Type.Valid() {
		return apperrors.NewValidationError("entry type must be Income or Expense",
			map[string]any{"type": entry.Type})
	}
	if !entry.Amount.IsPositive() {
		return apperrors.NewValidationError("amount must be positive",
			map[string]any{"amount": entry.Amount.String()})
	}
	if strings.TrimSpace(entry.Description) == "" {
		return apperrors.NewValidationError("description required", nil)
	}
	if entry.Date.IsZero() {
		return apperrors.NewValidationError("date required", nil)
	}
	if entry.TeamID == "" {
		return apperrors.NewValidationError("team required", nil)
	}
	return nil
}

// MonthRange returns [start, end) of the given month in loc.
func MonthRange(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

// DateOf truncates t to midnight in loc, the granularity entries are dated at.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Fold sums the entries matching pred whose calendar date falls in [from, to).
// Entry dates are compared by year, month and day in from's location, so a
// date read back from storage as UTC midnight still lands in the right month.
// The result does not depend on the order of entries.
func Fold(entries []domain.LedgerEntry, pred visibility.Predicate, from, to time.Time) domain.LedgerTotals {
	totals := domain.LedgerTotals{Income: decimal.Zero, Expense: decimal.Zero}
	for i := range entries {
		entry := &entries[i]
		if !pred.Match(entry.Scope()) {
			continue
		}
		day := civil(entry.Date, from.Location())
		if day.Before(from) || !day.Before(to) {
			continue
		}
		switch entry.Type {
		case domain.EntryIncome:
			totals.Income = totals.Income.Add(entry.Amount)
		case domain.EntryExpense:
			totals.Expense = totals.Expense.Add(entry.Amount)
		}
	}
	totals.Net = totals.Income.Sub(totals.Expense)
	return totals
}

func civil(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// FromEffect turns a lifecycle effect into an entry dated at now.
func FromEffect(effect lifecycle.LedgerEffect, tenantID, actorID string, now time.Time, loc *time.Location) domain.LedgerEntry {
	ref := effect.TicketRef
	return domain.LedgerEntry{
		TenantID:    tenantID,
		TeamID:      effect.TeamID,
		Type:        effect.Type,
		Description: effect.Description,
		Amount:      effect.Amount,
		Date:        DateOf(now, loc),
		CreatedBy:   actorID,
		TicketRef:   &ref,
		CreatedAt:   now,
	}
}
