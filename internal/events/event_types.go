package events

import (
	"time"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketUpdated       EventType = "ticket_updated"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventLedgerEntryAppended EventType = "ledger_entry_appended"
	EventCustomerCreated     EventType = "customer_created"
	EventActorProvisioned    EventType = "actor_provisioned"
)

// AllEventTypes lists every type a sink may subscribe to.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketUpdated,
	EventTicketStatusChanged,
	EventLedgerEntryAppended,
	EventCustomerCreated,
	EventActorProvisioned,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID   string      `json:"id"`
	Role domain.Role `json:"role"`
}

// ActorOf extracts event metadata from an actor.
func ActorOf(a *domain.Actor) Actor {
	if a == nil {
		return Actor{}
	}
	return Actor{ID: a.ID, Role: a.Role}
}

// Event represents a domain event emitted by services. SubjectID is the id
// of the ticket, customer, ledger entry or actor the event is about.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TenantID  string    `json:"tenant_id"`
	TeamID    string    `json:"team_id"`
	SubjectID string    `json:"subject_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	ShortID    string `json:"short_id"`
	CustomerID string `json:"customer_id"`
	AssignedTo string `json:"assigned_to"`
	Price      string `json:"price"`
	Deposit    string `json:"deposit"`
}

// TicketUpdatedPayload payload.
type TicketUpdatedPayload struct {
	Version int64 `json:"version"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus      domain.TicketStatus `json:"old_status"`
	NewStatus      domain.TicketStatus `json:"new_status"`
	LedgerEntryIDs []string            `json:"ledger_entry_ids,omitempty"`
}

// LedgerEntryAppendedPayload payload.
type LedgerEntryAppendedPayload struct {
	Type      domain.EntryType `json:"type"`
	Amount    string           `json:"amount"`
	TicketRef *string          `json:"ticket_ref,omitempty"`
}

// CustomerCreatedPayload payload.
type CustomerCreatedPayload struct {
	Name string `json:"name"`
}

// ActorProvisionedPayload payload.
type ActorProvisionedPayload struct {
	Username  string      `json:"username"`
	Role      domain.Role `json:"role"`
	CreatedBy string      `json:"created_by"`
}
