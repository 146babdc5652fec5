package domain

import (
	"slices"
	"time"
)

// Role enumerates operator roles.
type Role string

const (
	RoleOwner      Role = "Owner"
	RoleAdmin      Role = "Admin"
	RoleTechnician Role = "Technician"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleTechnician:
		return true
	}
	return false
}

// Permission is a capability granted to an actor.
type Permission string

const (
	PermissionAll           Permission = "all"
	PermissionViewRepairs   Permission = "view_repairs"
	PermissionEditRepairs   Permission = "edit_repairs"
	PermissionViewCustomers Permission = "view_customers"
)

// Well-known ids of the actors provisioned for every new tenant.
const (
	RootActorID           = "owner"
	DefaultTechnicianID   = "technician"
	DefaultOwnerUsername  = "owner"
	DefaultTechnicianName = "tecnico"
)

// DefaultPermissions returns the preset granted to a role at provisioning time.
func DefaultPermissions(role Role) []Permission {
	switch role {
	case RoleOwner, RoleAdmin:
		return []Permission{PermissionAll}
	case RoleTechnician:
		return []Permission{PermissionViewRepairs, PermissionEditRepairs, PermissionViewCustomers}
	}
	return nil
}

// Actor is an authenticated operator of a tenant.
type Actor struct {
	ID           string
	TenantID     string
	Username     string
	Role         Role
	CreatedBy    *string
	Permissions  []Permission
	PasswordHash string
	// Reports holds ids of actors provisioned by this actor. Loaded on
	// every resolution, never persisted on the actor row.
	Reports   []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsRoot reports whether a is the tenant root.
func (a *Actor) IsRoot() bool {
	return a.ID == RootActorID
}

// Has reports whether a holds permission p, directly or through "all".
func (a *Actor) Has(p Permission) bool {
	return slices.Contains(a.Permissions, PermissionAll) || slices.Contains(a.Permissions, p)
}

// TeamID returns the team the actor produces records for.
func (a *Actor) TeamID() string {
	switch a.Role {
	case RoleOwner, RoleAdmin:
		return a.ID
	default:
		if a.CreatedBy != nil {
			return *a.CreatedBy
		}
		return ""
	}
}

// DocID implements the propagation document contract.
func (a *Actor) DocID() string { return a.ID }

// DocVersion reports the row's last update, in microseconds, as a version.
func (a *Actor) DocVersion() int64 { return a.UpdatedAt.UnixMicro() }

// Scope returns the fields visibility predicates test.
func (a *Actor) Scope() Scope {
	s := Scope{TenantID: a.TenantID, TeamID: a.TeamID()}
	if a.CreatedBy != nil {
		s.CreatedBy = *a.CreatedBy
	}
	return s
}
