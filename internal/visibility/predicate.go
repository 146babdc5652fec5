package visibility

import (
	"slices"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
)

// Mode selects how a Predicate evaluates.
type Mode int

const (
	// MatchNone rejects every record.
	MatchNone Mode = iota
	// MatchAll accepts every record of the tenant.
	MatchAll
	// MatchFilter accepts a record when any clause matches.
	MatchFilter
)

func (m Mode) String() string {
	switch m {
	case MatchAll:
		return "all"
	case MatchFilter:
		return "filter"
	default:
		return "none"
	}
}

// Predicate restricts a query to the records an actor may see. It is a plain
// value so the same definition can be evaluated in memory and compiled to SQL.
//
// Under MatchFilter the clauses are OR-ed:
//
//	teamId ∈ TeamIDs OR createdBy ∈ CreatedBy OR assignedTo == AssignedTo
//
// Empty clauses never match. TenantID is always AND-ed.
type Predicate struct {
	Kind       domain.ResourceKind
	TenantID   string
	Mode       Mode
	TeamIDs    []string
	CreatedBy  []string
	AssignedTo string
}

// None builds a predicate that matches nothing.
func None(kind domain.ResourceKind, tenantID string) Predicate {
	return Predicate{Kind: kind, TenantID: tenantID, Mode: MatchNone}
}

// All builds a predicate that matches the whole tenant.
func All(kind domain.ResourceKind, tenantID string) Predicate {
	return Predicate{Kind: kind, TenantID: tenantID, Mode: MatchAll}
}

// IsNone reports whether the predicate can never match.
func (p Predicate) IsNone() bool {
	if p.Mode == MatchNone {
		return true
	}
	return p.Mode == MatchFilter && len(p.TeamIDs) == 0 && len(p.CreatedBy) == 0 && p.AssignedTo == ""
}

// Match evaluates the predicate against a record's scope.
func (p Predicate) Match(s domain.Scope) bool {
	if p.TenantID == "" || s.TenantID != p.TenantID {
		return false
	}
	switch p.Mode {
	case MatchAll:
		return true
	case MatchFilter:
		if s.TeamID != "" && slices.Contains(p.TeamIDs, s.TeamID) {
			return true
		}
		if s.CreatedBy != "" && slices.Contains(p.CreatedBy, s.CreatedBy) {
			return true
		}
		return p.AssignedTo != "" && s.AssignedTo == p.AssignedTo
	default:
		return false
	}
}

// Equal reports whether two predicates select the same records.
func (p Predicate) Equal(o Predicate) bool {
	return p.Kind == o.Kind &&
		p.TenantID == o.TenantID &&
		p.Mode == o.Mode &&
		slices.Equal(p.TeamIDs, o.TeamIDs) &&
		slices.Equal(p.CreatedBy, o.CreatedBy) &&
		p.AssignedTo == o.AssignedTo
}

func normalize(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
