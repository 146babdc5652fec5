package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/repository"
	"github.com/mouradajaa1-dot/fix-manager/internal/visibility"
)

type ledgerStore struct{ s *Store }

// calendarDay mirrors a DATE column: the day in t's own location, read back
// as UTC midnight.
func calendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func cloneEntry(e domain.LedgerEntry) domain.LedgerEntry {
	e.TicketRef = strPtr(e.TicketRef)
	return e
}

func (r ledgerStore) insertLocked(entry domain.LedgerEntry) {
	entry = cloneEntry(entry)
	entry.Date = calendarDay(entry.Date)
	r.s.ledger[key(entry.TenantID, entry.ID)] = entry
	r.s.publishLocked(domain.Change{
		Kind: domain.KindLedger, Op: domain.ChangeAdded,
		TenantID: entry.TenantID, ID: entry.ID, Version: entry.DocVersion(),
	})
}

func (r ledgerStore) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	if _, ok := r.s.ledger[key(entry.TenantID, entry.ID)]; ok {
		return fmt.Errorf("%w: ledger entry", repository.ErrDuplicate)
	}
	entry.CreatedAt = r.s.now()
	r.insertLocked(*entry)
	return nil
}

func (r ledgerStore) GetByID(ctx context.Context, tenantID, id string) (*domain.LedgerEntry, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	entry, ok := r.s.ledger[key(tenantID, id)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneEntry(entry)
	return &out, nil
}

func (r ledgerStore) List(ctx context.Context, pred visibility.Predicate, filter repository.LedgerFilter) ([]domain.LedgerEntry, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var from, to time.Time
	if !filter.From.IsZero() {
		from = calendarDay(filter.From)
	}
	if !filter.To.IsZero() {
		to = calendarDay(filter.To)
	}
	var result []domain.LedgerEntry
	for _, entry := range r.s.ledger {
		if !pred.Match(entry.Scope()) {
			continue
		}
		if !from.IsZero() && entry.Date.Before(from) {
			continue
		}
		if !to.IsZero() && !entry.Date.Before(to) {
			continue
		}
		if filter.TicketRef != "" && (entry.TicketRef == nil || *entry.TicketRef != filter.TicketRef) {
			continue
		}
		result = append(result, cloneEntry(entry))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.After(result[j].Date)
		}
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return page(result, filter.Limit, filter.Offset), nil
}
