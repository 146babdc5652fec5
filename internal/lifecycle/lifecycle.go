// Package lifecycle holds the repair ticket state graph and the ledger
// effects that transitions produce. It performs no I/O; persistence and the
// compare-and-set write live in the ticket service.
package lifecycle

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/visibility"
	apperrors "github.com/mouradajaa1-dot/fix-manager/pkg/util"
)

// InitialStatus is assigned to every new ticket.
const InitialStatus = domain.TicketStatusQueued

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusQueued:         {domain.TicketStatusInProgress, domain.TicketStatusArchived},
	domain.TicketStatusInProgress:     {domain.TicketStatusQuoted, domain.TicketStatusAwaitingParts, domain.TicketStatusReadyForPickup, domain.TicketStatusArchived},
	domain.TicketStatusQuoted:         {domain.TicketStatusInProgress, domain.TicketStatusArchived},
	domain.TicketStatusAwaitingParts:  {domain.TicketStatusInProgress, domain.TicketStatusArchived},
	domain.TicketStatusReadyForPickup: {domain.TicketStatusDelivered, domain.TicketStatusArchived},
	domain.TicketStatusDelivered:      {domain.TicketStatusArchived},
	domain.TicketStatusArchived:       {},
}

// CanTransition reports whether from -> to is an edge of the state graph.
func CanTransition(from, to domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Next lists the statuses reachable from s in one step.
func Next(s domain.TicketStatus) []domain.TicketStatus {
	return append([]domain.TicketStatus(nil), allowedTransitions[s]...)
}

// LedgerEffect is a ledger entry a transition asks the caller to append.
type LedgerEffect struct {
	Type        domain.EntryType
	Amount      decimal.Decimal
	TicketRef   string
	TeamID      string
	Description string
}

// Apply validates moving ticket to next on behalf of actor and returns the
// updated copy with the ledger effects the move produces.
//
// Entering Delivered from any other status yields exactly one Income effect
// for the full quoted price; the deposit is not re-entered. A zero price
// yields no effect since no money changes hands.
func Apply(ticket domain.Ticket, next domain.TicketStatus, actor *domain.Actor) (domain.Ticket, []LedgerEffect, error) {
	if !visibility.CanWrite(actor, domain.KindTickets, ticket.Scope()) {
		actorID := ""
		if actor != nil {
			actorID = actor.ID
		}
		return ticket, nil, apperrors.NewScopeForbidden("ticket", actorID)
	}
	if !next.Valid() || !CanTransition(ticket.Status, next) {
		return ticket, nil, apperrors.NewIllegalTransition(string(ticket.Status), string(next))
	}

	previous := ticket.Status
	ticket.Status = next

	var effects []LedgerEffect
	if next == domain.TicketStatusDelivered && previous != domain.TicketStatusDelivered && ticket.Price.IsPositive() {
		effects = append(effects, LedgerEffect{
			Type:        domain.EntryIncome,
			Amount:      ticket.Price,
			TicketRef:   ticket.ID,
			TeamID:      ticket.TeamID,
			Description: fmt.Sprintf("Repair %s delivered", ticket.ShortID),
		})
	}
	return ticket, effects, nil
}
