package domain

// ResourceKind names a class of records guarded by visibility rules.
type ResourceKind string

const (
	KindTickets   ResourceKind = "tickets"
	KindCustomers ResourceKind = "customers"
	KindLedger    ResourceKind = "ledger"
	KindSettings  ResourceKind = "settings"
)

// Valid reports whether k is a known resource kind.
func (k ResourceKind) Valid() bool {
	switch k {
	case KindTickets, KindCustomers, KindLedger, KindSettings:
		return true
	}
	return false
}

// Scope carries the ownership fields every record exposes to predicates.
type Scope struct {
	TenantID   string
	TeamID     string
	CreatedBy  string
	AssignedTo string
}

// ChangeOp classifies a store mutation.
type ChangeOp string

const (
	ChangeAdded    ChangeOp = "added"
	ChangeModified ChangeOp = "modified"
	ChangeRemoved  ChangeOp = "removed"
)

// Change is one entry of the store's ordered mutation feed.
type Change struct {
	Kind     ResourceKind `json:"kind"`
	Op       ChangeOp     `json:"op"`
	TenantID string       `json:"tenant_id"`
	ID       string       `json:"id"`
	Version  int64        `json:"version"`
}
