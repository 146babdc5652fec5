package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketStatus enumerates lifecycle states for repair tickets.
type TicketStatus string

const (
	TicketStatusQueued         TicketStatus = "Queued"
	TicketStatusInProgress     TicketStatus = "InProgress"
	TicketStatusQuoted         TicketStatus = "Quoted"
	TicketStatusAwaitingParts  TicketStatus = "AwaitingParts"
	TicketStatusReadyForPickup TicketStatus = "ReadyForPickup"
	TicketStatusDelivered      TicketStatus = "Delivered"
	TicketStatusArchived       TicketStatus = "Archived"
)

// AllTicketStatuses lists the persisted vocabulary in forward order.
var AllTicketStatuses = []TicketStatus{
	TicketStatusQueued,
	TicketStatusInProgress,
	TicketStatusQuoted,
	TicketStatusAwaitingParts,
	TicketStatusReadyForPickup,
	TicketStatusDelivered,
	TicketStatusArchived,
}

// Valid reports whether s belongs to the persisted vocabulary.
func (s TicketStatus) Valid() bool {
	for _, candidate := range AllTicketStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s ends the repair workflow.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusDelivered || s == TicketStatusArchived
}

// UnlockType describes how the device screen is secured.
type UnlockType string

const (
	UnlockNone     UnlockType = "None"
	UnlockPIN      UnlockType = "PIN"
	UnlockPattern  UnlockType = "Pattern"
	UnlockPassword UnlockType = "Password"
)

// Device identifies the item left for repair.
type Device struct {
	Category    string `json:"category"`
	Brand       string `json:"brand"`
	Model       string `json:"model"`
	Description string `json:"description"`
}

// Label returns a short human description, falling back to free text.
func (d Device) Label() string {
	switch {
	case d.Brand != "" && d.Model != "":
		return d.Brand + " " + d.Model
	case d.Model != "":
		return d.Model
	default:
		return d.Description
	}
}

// UnlockCode stores the customer supplied unlock secret.
type UnlockCode struct {
	Type  UnlockType `json:"type"`
	Value string     `json:"value"`
}

// CloudCredentials are optional account details needed for some repairs.
type CloudCredentials struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}

// Ticket is the repair aggregate.
type Ticket struct {
	ID                 string
	TenantID           string
	ShortID            string
	CustomerID         string
	CustomerName       string
	Device             Device
	Unlock             UnlockCode
	IMEI               string
	Accessories        string
	AestheticCondition string
	Cloud              *CloudCredentials
	IssueType          string
	IssueDescription   string
	InternalNotes      string
	Price              decimal.Decimal
	Deposit            decimal.Decimal
	AssignedTo         string
	Status             TicketStatus
	ArrivalDate        time.Time
	CreatedBy          string
	TeamID             string
	Version            int64
	UpdatedAt          time.Time
}

// BalanceDue is price minus deposit floored at zero, for display only.
func (t *Ticket) BalanceDue() decimal.Decimal {
	due := t.Price.Sub(t.Deposit)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

func (t *Ticket) DocID() string     { return t.ID }
func (t *Ticket) DocVersion() int64 { return t.Version }

// Scope returns the fields visibility predicates test.
func (t *Ticket) Scope() Scope {
	return Scope{TenantID: t.TenantID, TeamID: t.TeamID, CreatedBy: t.CreatedBy, AssignedTo: t.AssignedTo}
}
