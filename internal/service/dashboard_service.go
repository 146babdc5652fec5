package service

import (
	"context"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/repository"
	"github.com/mouradajaa1-dot/fix-manager/internal/visibility"
)

// DashboardService summarizes what an actor can see.
type DashboardService struct {
	tickets   repository.TicketRepository
	customers repository.CustomerRepository
	ledger    *LedgerService
}

// DashboardDependencies bundles collaborators for the dashboard.
type DashboardDependencies struct {
	TicketRepo    repository.TicketRepository
	CustomerRepo  repository.CustomerRepository
	LedgerService *LedgerService
}

// Dashboard is the landing summary.
type Dashboard struct {
	TicketsByStatus map[domain.TicketStatus]int
	Customers       int
	Month           MonthlyAggregate
}

// NewDashboardService constructs the service.
func NewDashboardService(deps DashboardDependencies) *DashboardService {
	return &DashboardService{
		tickets:   deps.TicketRepo,
		customers: deps.CustomerRepo,
		ledger:    deps.LedgerService,
	}
}

// Summary counts visible tickets per status and visible customers, and
// folds the current month's ledger. Every figure goes through the same
// predicates the list endpoints use.
func (s *DashboardService) Summary(ctx context.Context, actor *domain.Actor) (*Dashboard, error) {
	out := &Dashboard{TicketsByStatus: make(map[domain.TicketStatus]int, len(domain.AllTicketStatuses))}
	for _, status := range domain.AllTicketStatuses {
		out.TicketsByStatus[status] = 0
	}

	if pred := visibility.ScopeFor(actor, domain.KindTickets); !pred.IsNone() {
		counts, err := s.tickets.CountByStatus(ctx, pred)
		if err != nil {
			return nil, err
		}
		for status, n := range counts {
			out.TicketsByStatus[status] = n
		}
	}
	if pred := visibility.ScopeFor(actor, domain.KindCustomers); !pred.IsNone() {
		n, err := s.customers.Count(ctx, pred)
		if err != nil {
			return nil, err
		}
		out.Customers = n
	}

	year, month := s.ledger.CurrentMonth()
	agg, err := s.ledger.Aggregate(ctx, actor, year, month)
	if err != nil {
		return nil, err
	}
	out.Month = agg
	return out, nil
}
