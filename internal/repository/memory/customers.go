package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/repository"
	"github.com/mouradajaa1-dot/fix-manager/internal/visibility"
)

type customerStore struct{ s *Store }

func (r customerStore) Create(ctx context.Context, customer *domain.Customer) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	k := key(customer.TenantID, customer.ID)
	if _, ok := r.s.customers[k]; ok {
		return repository.ErrDuplicate
	}
	now := r.s.now()
	customer.Version = 1
	customer.CreatedAt, customer.UpdatedAt = now, now
	r.s.customers[k] = *customer
	r.s.publishLocked(domain.Change{
		Kind: domain.KindCustomers, Op: domain.ChangeAdded,
		TenantID: customer.TenantID, ID: customer.ID, Version: customer.Version,
	})
	return nil
}

func (r customerStore) Update(ctx context.Context, customer *domain.Customer) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	k := key(customer.TenantID, customer.ID)
	existing, ok := r.s.customers[k]
	if !ok {
		return repository.ErrNotFound
	}
	existing.Name = customer.Name
	existing.Phone = customer.Phone
	existing.Email = customer.Email
	existing.Address = customer.Address
	existing.Version++
	existing.UpdatedAt = r.s.now()
	r.s.customers[k] = existing
	customer.Version, customer.UpdatedAt = existing.Version, existing.UpdatedAt
	r.s.publishLocked(domain.Change{
		Kind: domain.KindCustomers, Op: domain.ChangeModified,
		TenantID: existing.TenantID, ID: existing.ID, Version: existing.Version,
	})
	return nil
}

func (r customerStore) Delete(ctx context.Context, tenantID, id string) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	k := key(tenantID, id)
	existing, ok := r.s.customers[k]
	if !ok {
		return repository.ErrNotFound
	}
	delete(r.s.customers, k)
	r.s.publishLocked(domain.Change{
		Kind: domain.KindCustomers, Op: domain.ChangeRemoved,
		TenantID: tenantID, ID: id, Version: existing.Version,
	})
	return nil
}

func (r customerStore) GetByID(ctx context.Context, tenantID, id string) (*domain.Customer, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	customer, ok := r.s.customers[key(tenantID, id)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &customer, nil
}

// findLocked returns the oldest customer of the team satisfying match.
func (r customerStore) findLocked(tenantID, teamID string, match func(domain.Customer) bool) (*domain.Customer, error) {
	var found *domain.Customer
	for _, customer := range r.s.customers {
		if customer.TenantID != tenantID || customer.TeamID != teamID || !match(customer) {
			continue
		}
		if found == nil || customer.CreatedAt.Before(found.CreatedAt) ||
			(customer.CreatedAt.Equal(found.CreatedAt) && customer.ID < found.ID) {
			c := customer
			found = &c
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

func (r customerStore) FindByPhone(ctx context.Context, tenantID, teamID, phone string) (*domain.Customer, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	return r.findLocked(tenantID, teamID, func(c domain.Customer) bool {
		return c.Phone != "" && c.Phone == phone
	})
}

func (r customerStore) FindByEmail(ctx context.Context, tenantID, teamID, email string) (*domain.Customer, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	return r.findLocked(tenantID, teamID, func(c domain.Customer) bool {
		return c.Email != "" && strings.EqualFold(c.Email, email)
	})
}

func (r customerStore) CountByTeam(ctx context.Context, tenantID, teamID string) (int, error) {
	if err := r.s.lock(ctx); err != nil {
		return 0, err
	}
	defer r.s.mu.Unlock()
	count := 0
	for _, customer := range r.s.customers {
		if customer.TenantID == tenantID && customer.TeamID == teamID {
			count++
		}
	}
	return count, nil
}

func (r customerStore) Count(ctx context.Context, pred visibility.Predicate) (int, error) {
	if err := r.s.lock(ctx); err != nil {
		return 0, err
	}
	defer r.s.mu.Unlock()
	count := 0
	for _, customer := range r.s.customers {
		if pred.Match(customer.Scope()) {
			count++
		}
	}
	return count, nil
}

func (r customerStore) List(ctx context.Context, pred visibility.Predicate, filter repository.CustomerFilter) ([]domain.Customer, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	term := strings.ToLower(strings.TrimSpace(filter.Search))
	var result []domain.Customer
	for _, customer := range r.s.customers {
		if !pred.Match(customer.Scope()) {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(customer.Name), term) &&
			!strings.Contains(customer.Phone, term) && !strings.Contains(strings.ToLower(customer.Email), term) {
			continue
		}
		result = append(result, customer)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return page(result, filter.Limit, filter.Offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
