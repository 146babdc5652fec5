package domain

import "time"

// TicketHistory is an immutable audit entry written with every status change.
type TicketHistory struct {
	ID        string
	TenantID  string
	TicketID  string
	ChangedBy string
	OldStatus TicketStatus
	NewStatus TicketStatus
	CreatedAt time.Time
}
