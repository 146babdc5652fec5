// Package visibility decides which records an actor may see or write.
//
// Every list, detail, dashboard and subscription path derives its filter from
// ScopeFor so the rules live in one place. Predicates are recomputed on each
// call from the freshly resolved actor and must not be cached across requests.
package visibility

import (
	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
)

// ScopeFor returns the read predicate for actor over kind. It performs no I/O.
func ScopeFor(actor *domain.Actor, kind domain.ResourceKind) Predicate {
	if actor == nil {
		return None(kind, "")
	}
	switch actor.Role {
	case domain.RoleOwner:
		return All(kind, actor.TenantID)
	case domain.RoleAdmin:
		return adminScope(actor, kind)
	case domain.RoleTechnician:
		return technicianScope(actor, kind, false)
	default:
		return None(kind, actor.TenantID)
	}
}

// WriteScopeFor returns the predicate a record must satisfy for actor to
// create or mutate it.
func WriteScopeFor(actor *domain.Actor, kind domain.ResourceKind) Predicate {
	if actor == nil {
		return None(kind, "")
	}
	switch actor.Role {
	case domain.RoleOwner:
		return All(kind, actor.TenantID)
	case domain.RoleAdmin:
		return adminScope(actor, kind)
	case domain.RoleTechnician:
		return technicianScope(actor, kind, true)
	default:
		return None(kind, actor.TenantID)
	}
}

// CanSee is shorthand for ScopeFor(actor, kind).Match(scope).
func CanSee(actor *domain.Actor, kind domain.ResourceKind, scope domain.Scope) bool {
	return ScopeFor(actor, kind).Match(scope)
}

// CanWrite is shorthand for WriteScopeFor(actor, kind).Match(scope).
func CanWrite(actor *domain.Actor, kind domain.ResourceKind, scope domain.Scope) bool {
	return WriteScopeFor(actor, kind).Match(scope)
}

// An Admin sees its own team plus anything created by itself or its direct reports.
func adminScope(actor *domain.Actor, kind domain.ResourceKind) Predicate {
	creators := append([]string{actor.ID}, actor.Reports...)
	return Predicate{
		Kind:      kind,
		TenantID:  actor.TenantID,
		Mode:      MatchFilter,
		TeamIDs:   []string{actor.ID},
		CreatedBy: normalize(creators),
	}
}

func technicianScope(actor *domain.Actor, kind domain.ResourceKind, write bool) Predicate {
	switch kind {
	case domain.KindTickets:
		need := domain.PermissionViewRepairs
		if write {
			need = domain.PermissionEditRepairs
		}
		if !actor.Has(need) || actor.Username == "" {
			return None(kind, actor.TenantID)
		}
		return Predicate{
			Kind:       kind,
			TenantID:   actor.TenantID,
			Mode:       MatchFilter,
			AssignedTo: actor.Username,
		}
	case domain.KindCustomers:
		if !actor.Has(domain.PermissionViewCustomers) || actor.CreatedBy == nil {
			return None(kind, actor.TenantID)
		}
		// Technicians register customers at intake, which needs edit_repairs.
		if write && !actor.Has(domain.PermissionEditRepairs) {
			return None(kind, actor.TenantID)
		}
		return Predicate{
			Kind:     kind,
			TenantID: actor.TenantID,
			Mode:     MatchFilter,
			TeamIDs:  []string{*actor.CreatedBy},
		}
	default:
		return None(kind, actor.TenantID)
	}
}
