package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/repository"
	"github.com/mouradajaa1-dot/fix-manager/internal/visibility"
)

type ticketStore struct{ s *Store }

func cloneTicket(t domain.Ticket) domain.Ticket {
	if t.Cloud != nil {
		cloud := *t.Cloud
		t.Cloud = &cloud
	}
	return t
}

func (r ticketStore) Create(ctx context.Context, ticket *domain.Ticket) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	k := key(ticket.TenantID, ticket.ID)
	if _, ok := r.s.tickets[k]; ok {
		return fmt.Errorf("%w: id", repository.ErrDuplicate)
	}
	for _, existing := range r.s.tickets {
		if existing.TenantID == ticket.TenantID && existing.ShortID == ticket.ShortID {
			return fmt.Errorf("%w: short_id", repository.ErrDuplicate)
		}
	}
	ticket.Version = 1
	ticket.UpdatedAt = r.s.now()
	r.s.tickets[k] = cloneTicket(*ticket)
	r.s.publishLocked(domain.Change{
		Kind: domain.KindTickets, Op: domain.ChangeAdded,
		TenantID: ticket.TenantID, ID: ticket.ID, Version: ticket.Version,
	})
	return nil
}

func (r ticketStore) UpdateFields(ctx context.Context, ticket *domain.Ticket) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	k := key(ticket.TenantID, ticket.ID)
	existing, ok := r.s.tickets[k]
	if !ok {
		return repository.ErrNotFound
	}
	updated := cloneTicket(*ticket)
	updated.ShortID = existing.ShortID
	updated.Status = existing.Status
	updated.TeamID = existing.TeamID
	updated.CreatedBy = existing.CreatedBy
	updated.ArrivalDate = existing.ArrivalDate
	updated.Version = existing.Version + 1
	updated.UpdatedAt = r.s.now()
	r.s.tickets[k] = updated
	*ticket = cloneTicket(updated)
	r.s.publishLocked(domain.Change{
		Kind: domain.KindTickets, Op: domain.ChangeModified,
		TenantID: updated.TenantID, ID: updated.ID, Version: updated.Version,
	})
	return nil
}

func (r ticketStore) UpdateStatusIfVersion(ctx context.Context, change repository.StatusChange) (*domain.Ticket, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	k := key(change.TenantID, change.TicketID)
	existing, ok := r.s.tickets[k]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if existing.Version != change.ExpectedVersion {
		return nil, repository.ErrVersionConflict
	}
	for _, entry := range change.Entries {
		if _, dup := r.s.ledger[key(entry.TenantID, entry.ID)]; dup {
			return nil, fmt.Errorf("%w: ledger entry", repository.ErrDuplicate)
		}
	}

	now := r.s.now()
	existing.Status = change.Status
	existing.Version++
	existing.UpdatedAt = now
	r.s.tickets[k] = existing
	r.s.publishLocked(domain.Change{
		Kind: domain.KindTickets, Op: domain.ChangeModified,
		TenantID: existing.TenantID, ID: existing.ID, Version: existing.Version,
	})
	for i := range change.Entries {
		entry := &change.Entries[i]
		entry.CreatedAt = now
		ledgerStore{r.s}.insertLocked(*entry)
	}
	if change.History != nil {
		change.History.CreatedAt = now
		r.s.history[k] = append(r.s.history[k], *change.History)
	}
	out := cloneTicket(existing)
	return &out, nil
}

func (r ticketStore) GetByID(ctx context.Context, tenantID, id string) (*domain.Ticket, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	ticket, ok := r.s.tickets[key(tenantID, id)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneTicket(ticket)
	return &out, nil
}

func matchesTicketFilter(t domain.Ticket, filter repository.TicketFilter, term string) bool {
	if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, t.Status) {
		return false
	}
	if filter.AssignedTo != "" && t.AssignedTo != filter.AssignedTo {
		return false
	}
	if filter.CustomerID != "" && t.CustomerID != filter.CustomerID {
		return false
	}
	if term != "" &&
		!strings.Contains(strings.ToLower(t.CustomerName), term) &&
		!strings.Contains(strings.ToLower(t.ShortID), term) &&
		!strings.Contains(strings.ToLower(t.Device.Model), term) {
		return false
	}
	return true
}

func (r ticketStore) List(ctx context.Context, pred visibility.Predicate, filter repository.TicketFilter) ([]domain.Ticket, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	term := strings.ToLower(strings.TrimSpace(filter.Search))
	var result []domain.Ticket
	for _, ticket := range r.s.tickets {
		if pred.Match(ticket.Scope()) && matchesTicketFilter(ticket, filter, term) {
			result = append(result, cloneTicket(ticket))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].ArrivalDate.Equal(result[j].ArrivalDate) {
			return result[i].ArrivalDate.After(result[j].ArrivalDate)
		}
		return result[i].ID < result[j].ID
	})
	return page(result, filter.Limit, filter.Offset), nil
}

func (r ticketStore) CountByStatus(ctx context.Context, pred visibility.Predicate) (map[domain.TicketStatus]int, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	counts := make(map[domain.TicketStatus]int)
	for _, ticket := range r.s.tickets {
		if pred.Match(ticket.Scope()) {
			counts[ticket.Status]++
		}
	}
	return counts, nil
}

func (r ticketStore) CountOpenByCustomer(ctx context.Context, tenantID, customerID string) (int, error) {
	if err := r.s.lock(ctx); err != nil {
		return 0, err
	}
	defer r.s.mu.Unlock()
	count := 0
	for _, ticket := range r.s.tickets {
		if ticket.TenantID == tenantID && ticket.CustomerID == customerID && !ticket.Status.IsTerminal() {
			count++
		}
	}
	return count, nil
}

type historyStore struct{ s *Store }

func (r historyStore) Create(ctx context.Context, history *domain.TicketHistory) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	history.CreatedAt = r.s.now()
	k := key(history.TenantID, history.TicketID)
	r.s.history[k] = append(r.s.history[k], *history)
	return nil
}

func (r historyStore) ListByTicket(ctx context.Context, tenantID, ticketID string) ([]domain.TicketHistory, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	return slices.Clone(r.s.history[key(tenantID, ticketID)]), nil
}
