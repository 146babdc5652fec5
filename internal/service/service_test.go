package service

import (
	"testing"

	"github.com/cenkalti/backoff/v5"

	"github.com/mouradajaa1-dot/fix-manager/internal/config"
	"github.com/mouradajaa1-dot/fix-manager/internal/customer"
	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/events"
	"github.com/mouradajaa1-dot/fix-manager/internal/observability"
	"github.com/mouradajaa1-dot/fix-manager/internal/repository/memory"
)

const testTenant = "t1"

type fixture struct {
	store      *memory.Store
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	identity   *IdentityService
	tickets    *TicketService
	customers  *CustomerService
	ledger     *LedgerService
	dashboard  *DashboardService
}

func testConfig() config.Config {
	return config.Config{
		Auth: config.AuthConfig{
			JWTSecret:                 "test-secret",
			AccessTokenTTLMinutes:     60,
			BcryptCost:                4,
			DefaultTenant:             testTenant,
			DefaultOwnerPassword:      "owner-pass",
			DefaultTechnicianPassword: "tech-pass",
		},
		Intake: config.IntakeConfig{
			CustomerCapPerTeam: 100,
			TicketPrefix:       "R",
			TicketSeqStart:     1000,
		},
		Ledger:    config.LedgerConfig{Timezone: "UTC"},
		Lifecycle: config.LifecycleConfig{MaxTransitionRetries: 3},
	}
}

func newFixture(t *testing.T, cfg config.Config) *fixture {
	t.Helper()
	store := memory.New(cfg.Intake.TicketSeqStart)
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	matcher := customer.NewMatcher(store.Customers(), cfg.Intake.CustomerCapPerTeam, nil)

	f := &fixture{store: store, dispatcher: dispatcher, metrics: metrics}
	f.identity = NewIdentityService(cfg, IdentityDependencies{
		ActorRepo:  store.Actors(),
		Dispatcher: dispatcher,
	})
	f.tickets = NewTicketService(cfg, TicketDependencies{
		TicketRepo:   store.Tickets(),
		CustomerRepo: store.Customers(),
		HistoryRepo:  store.History(),
		Matcher:      matcher,
		Sequencer:    store.Sequencer(),
		Dispatcher:   dispatcher,
		Metrics:      metrics,
	})
	f.tickets.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	f.customers = NewCustomerService(CustomerDependencies{
		CustomerRepo: store.Customers(),
		TicketRepo:   store.Tickets(),
		Matcher:      matcher,
		Dispatcher:   dispatcher,
	})
	f.ledger = NewLedgerService(cfg, LedgerDependencies{
		LedgerRepo: store.Ledger(),
		Dispatcher: dispatcher,
	})
	f.dashboard = NewDashboardService(DashboardDependencies{
		TicketRepo:    store.Tickets(),
		CustomerRepo:  store.Customers(),
		LedgerService: f.ledger,
	})
	return f
}

func strp(s string) *string { return &s }

func owner() *domain.Actor {
	return &domain.Actor{
		ID:          domain.RootActorID,
		TenantID:    testTenant,
		Username:    domain.DefaultOwnerUsername,
		Role:        domain.RoleOwner,
		Permissions: domain.DefaultPermissions(domain.RoleOwner),
	}
}

func admin(id string) *domain.Actor {
	return &domain.Actor{
		ID:          id,
		TenantID:    testTenant,
		Username:    id,
		Role:        domain.RoleAdmin,
		CreatedBy:   strp(domain.RootActorID),
		Permissions: domain.DefaultPermissions(domain.RoleAdmin),
	}
}

func technician(id, createdBy string) *domain.Actor {
	return &domain.Actor{
		ID:          id,
		TenantID:    testTenant,
		Username:    id,
		Role:        domain.RoleTechnician,
		CreatedBy:   strp(createdBy),
		Permissions: domain.DefaultPermissions(domain.RoleTechnician),
	}
}
