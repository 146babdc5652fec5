package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mouradajaa1-dot/fix-manager/internal/customer"
	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/events"
	"github.com/mouradajaa1-dot/fix-manager/internal/repository"
	apperrors "github.com/mouradajaa1-dot/fix-manager/pkg/util"
)

// editOnFirstWrite runs edit right before each status write, simulating a
// field edit that lands between a transition's read and its write.
type editOnFirstWrite struct {
	repository.TicketRepository
	edit func()
}

func (r *editOnFirstWrite) UpdateStatusIfVersion(ctx context.Context, change repository.StatusChange) (*domain.Ticket, error) {
	r.edit()
	return r.TicketRepository.UpdateStatusIfVersion(ctx, change)
}

func intake(name, phone, assignee string, price, deposit int64) TicketInput {
	return TicketInput{
		Contact:          customer.Contact{Name: name, Phone: phone},
		Device:           domain.Device{Category: "phone", Brand: "Acme", Model: "X1"},
		IssueDescription: "cracked screen",
		Price:            decimal.NewFromInt(price),
		Deposit:          decimal.NewFromInt(deposit),
		AssignedTo:       assignee,
	}
}

func walk(t *testing.T, f *fixture, actor *domain.Actor, id string, statuses ...domain.TicketStatus) {
	t.Helper()
	for _, status := range statuses {
		if _, err := f.tickets.ChangeStatus(context.Background(), actor, id, status); err != nil {
			t.Fatalf("move to %s: %v", status, err)
		}
	}
}

func TestCreateTicketAssignsShortIDAndResolvesCustomer(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	var created []events.Event
	f.dispatcher.Subscribe(events.EventCustomerCreated, func(_ context.Context, e events.Event) error {
		created = append(created, e)
		return nil
	})

	first, err := f.tickets.CreateTicket(ctx, owner(), intake("Alice", "555-1", "", 50, 0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := f.tickets.CreateTicket(ctx, owner(), intake("Someone Else", " 555-1 ", "", 70, 0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if first.ShortID != "R1001" || second.ShortID != "R1002" {
		t.Fatalf("short ids = %s, %s", first.ShortID, second.ShortID)
	}
	if first.Status != domain.TicketStatusQueued {
		t.Fatalf("status = %s, want Queued", first.Status)
	}
	if first.CustomerID != second.CustomerID || second.CustomerName != "Alice" {
		t.Fatalf("phone match should reuse Alice, got %s/%s", second.CustomerID, second.CustomerName)
	}
	if len(created) != 1 {
		t.Fatalf("customer_created events = %d, want 1", len(created))
	}
}

func TestConcurrentDeliveryAppendsOneLedgerEntry(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	o := owner()

	ticket, err := f.tickets.CreateTicket(ctx, o, intake("Bob", "777", "", 120, 30))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	walk(t, f, o, ticket.ID, domain.TicketStatusInProgress, domain.TicketStatusReadyForPickup)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.tickets.ChangeStatus(ctx, o, ticket.ID, domain.TicketStatusDelivered)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, apperrors.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 || conflicts != callers-1 {
		t.Fatalf("wins=%d conflicts=%d, want 1/%d", wins, conflicts, callers-1)
	}

	entries, err := f.ledger.ListEntries(ctx, o, LedgerQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var refs int
	for _, e := range entries {
		if e.TicketRef != nil && *e.TicketRef == ticket.ID {
			refs++
		}
	}
	if refs != 1 {
		t.Fatalf("ledger entries for ticket = %d, want 1", refs)
	}
	if f.metrics.Snapshot().Conflicts == 0 {
		t.Fatalf("conflicts were not recorded")
	}
}

func TestDeliveryIncomeIsFullPrice(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	o := owner()

	ticket, err := f.tickets.CreateTicket(ctx, o, intake("Carla", "888", "", 120, 30))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !ticket.BalanceDue().Equal(decimal.NewFromInt(90)) {
		t.Fatalf("balance due = %s, want 90", ticket.BalanceDue())
	}
	walk(t, f, o, ticket.ID,
		domain.TicketStatusInProgress,
		domain.TicketStatusReadyForPickup,
		domain.TicketStatusDelivered)

	year, month := f.ledger.CurrentMonth()
	agg, err := f.ledger.Aggregate(ctx, o, year, month)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if !agg.Totals.Income.Equal(decimal.NewFromInt(120)) || !agg.Totals.Net.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("totals = %+v, want income 120 net 120", agg.Totals)
	}

	detail, err := f.tickets.GetTicket(ctx, o, ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(detail.History) != 3 {
		t.Fatalf("history = %d, want 3", len(detail.History))
	}
	if detail.Customer == nil || detail.Customer.Name != "Carla" {
		t.Fatalf("detail customer = %+v", detail.Customer)
	}
	if len(detail.Next) != 1 || detail.Next[0] != domain.TicketStatusArchived {
		t.Fatalf("next = %v, want [Archived]", detail.Next)
	}
}

func TestChangeStatusRejections(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	o := owner()
	tech := technician("tina", domain.RootActorID)
	other := technician("tom", domain.RootActorID)

	ticket, err := f.tickets.CreateTicket(ctx, o, intake("Dan", "999", "tina", 40, 0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	tests := []struct {
		name  string
		actor *domain.Actor
		next  domain.TicketStatus
		want  error
	}{
		{"skip ahead", o, domain.TicketStatusDelivered, apperrors.ErrIllegalTransition},
		{"unknown status", o, domain.TicketStatus("Lost"), apperrors.ErrIllegalTransition},
		{"already queued", o, domain.TicketStatusQueued, apperrors.ErrConflict},
		{"not assigned", other, domain.TicketStatusInProgress, apperrors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.tickets.ChangeStatus(ctx, tt.actor, ticket.ID, tt.next)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	_, err = f.tickets.ChangeStatus(ctx, o, ticket.ID, domain.TicketStatusQueued)
	var derr *apperrors.DomainError
	if !errors.As(err, &derr) || derr.Message != "ticket is already Queued" {
		t.Fatalf("repeated status err = %v, want an already-Queued conflict", err)
	}

	if _, err := f.tickets.ChangeStatus(ctx, tech, ticket.ID, domain.TicketStatusInProgress); err != nil {
		t.Fatalf("assigned technician move: %v", err)
	}
}

func TestTechnicianWithoutEditPermissionIsForbidden(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	o := owner()
	viewer := technician("vic", domain.RootActorID)
	viewer.Permissions = []domain.Permission{domain.PermissionViewRepairs}

	ticket, err := f.tickets.CreateTicket(ctx, o, intake("Eve", "123", "vic", 10, 0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = f.tickets.ChangeStatus(ctx, viewer, ticket.ID, domain.TicketStatusInProgress)
	if !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("err = %v, want Forbidden", err)
	}
	_, err = f.tickets.UpdateTicket(ctx, viewer, ticket.ID, TicketPatch{InternalNotes: strp("x")})
	if !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("update err = %v, want Forbidden", err)
	}
}

func TestTechnicianIntakeIsSelfAssigned(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	tech := technician("tina", domain.RootActorID)

	ticket, err := f.tickets.CreateTicket(ctx, tech, intake("Fay", "321", "", 10, 0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ticket.AssignedTo != "tina" || ticket.TeamID != domain.RootActorID {
		t.Fatalf("assigned=%s team=%s", ticket.AssignedTo, ticket.TeamID)
	}
	_, err = f.tickets.CreateTicket(ctx, tech, intake("Gus", "322", "tom", 10, 0))
	if !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("assigning to another technician: err = %v, want Forbidden", err)
	}
}

func TestUpdateTicketKeepsStatus(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	o := owner()

	ticket, err := f.tickets.CreateTicket(ctx, o, intake("Hal", "444", "", 10, 0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	walk(t, f, o, ticket.ID, domain.TicketStatusInProgress)

	price := decimal.NewFromInt(80)
	updated, err := f.tickets.UpdateTicket(ctx, o, ticket.ID, TicketPatch{Price: &price, InternalNotes: strp("needs glass")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.TicketStatusInProgress || !updated.Price.Equal(price) {
		t.Fatalf("updated = %s %s", updated.Status, updated.Price)
	}

	negative := decimal.NewFromInt(-1)
	_, err = f.tickets.UpdateTicket(ctx, o, ticket.ID, TicketPatch{Deposit: &negative})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("negative deposit err = %v, want Validation", err)
	}
}

func TestStatusChangeRetriesAfterFieldEdit(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	o := owner()

	ticket, err := f.tickets.CreateTicket(ctx, o, intake("Ivy", "555", "", 10, 0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Bump the version between the read and the write of the first attempt.
	edited := false
	f.tickets.tickets = &editOnFirstWrite{
		TicketRepository: f.store.Tickets(),
		edit: func() {
			if edited {
				return
			}
			edited = true
			if _, err := f.tickets.UpdateTicket(ctx, o, ticket.ID, TicketPatch{InternalNotes: strp("bump")}); err != nil {
				t.Errorf("edit: %v", err)
			}
		},
	}

	saved, err := f.tickets.ChangeStatus(ctx, o, ticket.ID, domain.TicketStatusInProgress)
	if err != nil {
		t.Fatalf("change: %v", err)
	}
	if saved.Status != domain.TicketStatusInProgress || saved.InternalNotes != "bump" {
		t.Fatalf("saved = %s %q", saved.Status, saved.InternalNotes)
	}
	if f.metrics.Snapshot().Retries != 1 {
		t.Fatalf("retries = %d, want 1", f.metrics.Snapshot().Retries)
	}
}

func TestListTicketsFollowsScope(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	o := owner()
	a := admin("adm")
	t1 := technician("t1", domain.RootActorID)
	t2 := technician("t2", "adm")

	mustCreate := func(actor *domain.Actor, in TicketInput) {
		t.Helper()
		if _, err := f.tickets.CreateTicket(ctx, actor, in); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	mustCreate(o, intake("C1", "1", "t1", 10, 0))
	mustCreate(o, intake("C2", "2", "", 10, 0))
	mustCreate(a, intake("C3", "3", "t2", 10, 0))

	tests := []struct {
		actor *domain.Actor
		want  int
	}{
		{o, 3},
		{a, 1},
		{t1, 1},
		{t2, 1},
	}
	for _, tt := range tests {
		got, err := f.tickets.ListTickets(ctx, tt.actor, TicketQuery{})
		if err != nil {
			t.Fatalf("%s list: %v", tt.actor.ID, err)
		}
		if len(got) != tt.want {
			t.Fatalf("%s sees %d tickets, want %d", tt.actor.ID, len(got), tt.want)
		}
	}
}
