package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/repository"
	"github.com/mouradajaa1-dot/fix-manager/internal/visibility"
)

type actorStore struct{ s *Store }

func cloneActor(a domain.Actor) domain.Actor {
	a.CreatedBy = strPtr(a.CreatedBy)
	a.Permissions = slices.Clone(a.Permissions)
	a.Reports = nil
	return a
}

func (r actorStore) usernameTakenLocked(tenantID, username, exceptID string) bool {
	for _, existing := range r.s.actors {
		if existing.TenantID == tenantID && existing.Username == username && existing.ID != exceptID {
			return true
		}
	}
	return false
}

func (r actorStore) insertLocked(actor *domain.Actor) {
	now := r.s.now()
	actor.CreatedAt, actor.UpdatedAt = now, now
	r.s.actors[key(actor.TenantID, actor.ID)] = cloneActor(*actor)
	r.s.publishLocked(domain.Change{
		Kind: domain.KindSettings, Op: domain.ChangeAdded,
		TenantID: actor.TenantID, ID: actor.ID, Version: actor.DocVersion(),
	})
}

func (r actorStore) CreateIfAbsent(ctx context.Context, actor *domain.Actor) (bool, error) {
	if err := r.s.lock(ctx); err != nil {
		return false, err
	}
	defer r.s.mu.Unlock()
	if _, ok := r.s.actors[key(actor.TenantID, actor.ID)]; ok {
		return false, nil
	}
	if r.usernameTakenLocked(actor.TenantID, actor.Username, actor.ID) {
		return false, fmt.Errorf("%w: username", repository.ErrDuplicate)
	}
	r.insertLocked(actor)
	return true, nil
}

func (r actorStore) Create(ctx context.Context, actor *domain.Actor) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	if _, ok := r.s.actors[key(actor.TenantID, actor.ID)]; ok {
		return fmt.Errorf("%w: id", repository.ErrDuplicate)
	}
	if r.usernameTakenLocked(actor.TenantID, actor.Username, actor.ID) {
		return fmt.Errorf("%w: username", repository.ErrDuplicate)
	}
	r.insertLocked(actor)
	return nil
}

func (r actorStore) Update(ctx context.Context, actor *domain.Actor) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	k := key(actor.TenantID, actor.ID)
	existing, ok := r.s.actors[k]
	if !ok {
		return repository.ErrNotFound
	}
	if r.usernameTakenLocked(actor.TenantID, actor.Username, actor.ID) {
		return fmt.Errorf("%w: username", repository.ErrDuplicate)
	}
	now := r.s.now()
	if !now.After(existing.UpdatedAt) {
		now = existing.UpdatedAt.Add(time.Microsecond)
	}
	existing.Username = actor.Username
	existing.Role = actor.Role
	existing.Permissions = slices.Clone(actor.Permissions)
	existing.PasswordHash = actor.PasswordHash
	existing.UpdatedAt = now
	r.s.actors[k] = existing
	actor.UpdatedAt = now
	r.s.publishLocked(domain.Change{
		Kind: domain.KindSettings, Op: domain.ChangeModified,
		TenantID: actor.TenantID, ID: actor.ID, Version: existing.DocVersion(),
	})
	return nil
}

func (r actorStore) Delete(ctx context.Context, tenantID, id string) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	k := key(tenantID, id)
	existing, ok := r.s.actors[k]
	if !ok {
		return repository.ErrNotFound
	}
	delete(r.s.actors, k)
	r.s.publishLocked(domain.Change{
		Kind: domain.KindSettings, Op: domain.ChangeRemoved,
		TenantID: tenantID, ID: id, Version: existing.DocVersion(),
	})
	return nil
}

func (r actorStore) GetByID(ctx context.Context, tenantID, id string) (*domain.Actor, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	actor, ok := r.s.actors[key(tenantID, id)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneActor(actor)
	return &out, nil
}

func (r actorStore) GetByUsername(ctx context.Context, tenantID, username string) (*domain.Actor, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	for _, actor := range r.s.actors {
		if actor.TenantID == tenantID && actor.Username == username {
			out := cloneActor(actor)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r actorStore) ListReports(ctx context.Context, tenantID, creatorID string) ([]string, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var ids []string
	for _, actor := range r.s.actors {
		if actor.TenantID == tenantID && actor.CreatedBy != nil && *actor.CreatedBy == creatorID {
			ids = append(ids, actor.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r actorStore) List(ctx context.Context, pred visibility.Predicate) ([]domain.Actor, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var result []domain.Actor
	for _, actor := range r.s.actors {
		if pred.Match(actor.Scope()) {
			result = append(result, cloneActor(actor))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}
