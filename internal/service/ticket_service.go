package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mouradajaa1-dot/fix-manager/internal/config"
	"github.com/mouradajaa1-dot/fix-manager/internal/customer"
	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/events"
	"github.com/mouradajaa1-dot/fix-manager/internal/ledger"
	"github.com/mouradajaa1-dot/fix-manager/internal/lifecycle"
	"github.com/mouradajaa1-dot/fix-manager/internal/observability"
	"github.com/mouradajaa1-dot/fix-manager/internal/repository"
	"github.com/mouradajaa1-dot/fix-manager/internal/visibility"
	apperrors "github.com/mouradajaa1-dot/fix-manager/pkg/util"
)

const ticketSequence = "tickets"

// TicketService coordinates ticket intake, edits and status transitions.
type TicketService struct {
	tickets    repository.TicketRepository
	customers  repository.CustomerRepository
	history    repository.TicketHistoryRepository
	matcher    *customer.Matcher
	sequencer  repository.Sequencer
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger

	prefix     string
	maxRetries int
	location   *time.Location
	newBackOff func() backoff.BackOff
	now        func() time.Time
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	CustomerRepo repository.CustomerRepository
	HistoryRepo  repository.TicketHistoryRepository
	Matcher      *customer.Matcher
	Sequencer    repository.Sequencer
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

// TicketInput describes an intake.
type TicketInput struct {
	// CustomerID links an existing customer; when empty Contact is resolved
	// through the matcher.
	CustomerID         string
	Contact            customer.Contact
	Device             domain.Device
	Unlock             domain.UnlockCode
	IMEI               string
	Accessories        string
	AestheticCondition string
	Cloud              *domain.CloudCredentials
	IssueType          string
	IssueDescription   string
	InternalNotes      string
	Price              decimal.Decimal
	Deposit            decimal.Decimal
	AssignedTo         string
	ArrivalDate        time.Time
}

// TicketPatch describes a field edit. Nil fields are left unchanged.
type TicketPatch struct {
	CustomerID         *string
	Device             *domain.Device
	Unlock             *domain.UnlockCode
	IMEI               *string
	Accessories        *string
	AestheticCondition *string
	Cloud              *domain.CloudCredentials
	IssueType          *string
	IssueDescription   *string
	InternalNotes      *string
	Price              *decimal.Decimal
	Deposit            *decimal.Decimal
	AssignedTo         *string
}

// TicketQuery narrows a listing within the caller's scope.
type TicketQuery struct {
	Statuses   []domain.TicketStatus
	AssignedTo string
	CustomerID string
	Search     string
	Limit      int
	Offset     int
}

// TicketDetail is a ticket with its customer and status history.
type TicketDetail struct {
	Ticket   *domain.Ticket
	Customer *domain.Customer
	History  []domain.TicketHistory
	Next     []domain.TicketStatus
}

// NewTicketService constructs the service.
func NewTicketService(cfg config.Config, deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := cfg.Ledger.Location()
	if err != nil {
		loc = time.UTC
	}
	retries := cfg.Lifecycle.MaxTransitionRetries
	if retries <= 0 {
		retries = 3
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		customers:  deps.CustomerRepo,
		history:    deps.HistoryRepo,
		matcher:    deps.Matcher,
		sequencer:  deps.Sequencer,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		prefix:     cfg.Intake.TicketPrefix,
		maxRetries: retries,
		location:   loc,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 10 * time.Millisecond
			b.MaxInterval = 200 * time.Millisecond
			return b
		},
		now: time.Now,
	}
}

// CreateTicket registers a device at intake. The new ticket starts Queued
// and belongs to the creating actor's team.
func (s *TicketService) CreateTicket(ctx context.Context, actor *domain.Actor, input TicketInput) (*domain.Ticket, error) {
	if err := validateMoney(input.Price, input.Deposit); err != nil {
		return nil, err
	}
	unlock, err := normalizeUnlock(input.Unlock)
	if err != nil {
		return nil, err
	}

	teamID := actor.TeamID()
	if teamID == "" {
		return nil, apperrors.NewForbidden("actor has no team to file tickets under")
	}
	assignedTo := strings.TrimSpace(input.AssignedTo)
	if actor.Role == domain.RoleTechnician {
		if assignedTo == "" {
			assignedTo = actor.Username
		}
		if assignedTo != actor.Username {
			return nil, apperrors.NewForbidden("technicians may only assign repairs to themselves")
		}
	}

	ticket := &domain.Ticket{
		ID:                 uuid.NewString(),
		TenantID:           actor.TenantID,
		Device:             input.Device,
		Unlock:             unlock,
		IMEI:               strings.TrimSpace(input.IMEI),
		Accessories:        input.Accessories,
		AestheticCondition: input.AestheticCondition,
		Cloud:              input.Cloud,
		IssueType:          input.IssueType,
		IssueDescription:   input.IssueDescription,
		InternalNotes:      input.InternalNotes,
		Price:              input.Price,
		Deposit:            input.Deposit,
		AssignedTo:         assignedTo,
		Status:             lifecycle.InitialStatus,
		ArrivalDate:        input.ArrivalDate,
		CreatedBy:          actor.ID,
		TeamID:             teamID,
	}
	if ticket.ArrivalDate.IsZero() {
		ticket.ArrivalDate = s.now()
	}
	if !visibility.CanWrite(actor, domain.KindTickets, ticket.Scope()) {
		return nil, apperrors.NewScopeForbidden("ticket", actor.ID)
	}

	cust, err := s.customerForIntake(ctx, actor, teamID, input)
	if err != nil {
		return nil, err
	}
	ticket.CustomerID = cust.ID
	ticket.CustomerName = cust.Name

	seq, err := s.sequencer.Next(ctx, actor.TenantID, ticketSequence)
	if err != nil {
		return nil, err
	}
	ticket.ShortID = s.prefix + strconv.FormatInt(seq, 10)

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, storeError(err, "ticket", map[string]any{"short_id": ticket.ShortID})
	}

	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("short_id", ticket.ShortID),
		zap.String("team_id", ticket.TeamID),
		zap.String("actor_id", actor.ID))
	s.publish(ctx, events.Event{
		Type:      events.EventTicketCreated,
		TenantID:  ticket.TenantID,
		TeamID:    ticket.TeamID,
		SubjectID: ticket.ID,
		Actor:     events.ActorOf(actor),
		Payload: events.TicketCreatedPayload{
			ShortID:    ticket.ShortID,
			CustomerID: ticket.CustomerID,
			AssignedTo: ticket.AssignedTo,
			Price:      ticket.Price.StringFixed(2),
			Deposit:    ticket.Deposit.StringFixed(2),
		},
	})
	return ticket, nil
}

func (s *TicketService) customerForIntake(ctx context.Context, actor *domain.Actor, teamID string, input TicketInput) (*domain.Customer, error) {
	if input.CustomerID != "" {
		return s.linkableCustomer(ctx, actor, teamID, input.CustomerID)
	}
	scope := domain.Scope{TenantID: actor.TenantID, TeamID: teamID, CreatedBy: actor.ID}
	if !visibility.CanWrite(actor, domain.KindCustomers, scope) {
		return nil, apperrors.NewScopeForbidden("customer", actor.ID)
	}
	res, err := s.matcher.Resolve(ctx, actor.TenantID, teamID, actor.ID, input.Contact)
	if err != nil {
		return nil, err
	}
	if res.Created {
		s.publish(ctx, events.Event{
			Type:      events.EventCustomerCreated,
			TenantID:  res.Customer.TenantID,
			TeamID:    res.Customer.TeamID,
			SubjectID: res.Customer.ID,
			Actor:     events.ActorOf(actor),
			Payload:   events.CustomerCreatedPayload{Name: res.Customer.Name},
		})
	}
	return res.Customer, nil
}

// linkableCustomer loads a customer a ticket of teamID may reference.
func (s *TicketService) linkableCustomer(ctx context.Context, actor *domain.Actor, teamID, customerID string) (*domain.Customer, error) {
	cust, err := s.customers.GetByID(ctx, actor.TenantID, customerID)
	if err != nil {
		return nil, storeError(err, "customer", map[string]any{"id": customerID})
	}
	if !visibility.CanSee(actor, domain.KindCustomers, cust.Scope()) {
		return nil, apperrors.NewNotFound("customer", map[string]any{"id": customerID})
	}
	if cust.TeamID != teamID {
		return nil, apperrors.NewForbidden("customer belongs to another team")
	}
	return cust, nil
}

// ListTickets returns the tickets visible to actor.
func (s *TicketService) ListTickets(ctx context.Context, actor *domain.Actor, query TicketQuery) ([]domain.Ticket, error) {
	pred := visibility.ScopeFor(actor, domain.KindTickets)
	if pred.IsNone() {
		return []domain.Ticket{}, nil
	}
	for _, status := range query.Statuses {
		if !status.Valid() {
			return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": status})
		}
	}
	return s.tickets.List(ctx, pred, repository.TicketFilter{
		Statuses:   query.Statuses,
		AssignedTo: query.AssignedTo,
		CustomerID: query.CustomerID,
		Search:     query.Search,
		Limit:      query.Limit,
		Offset:     query.Offset,
	})
}

// GetTicket returns a visible ticket with its customer and history. A ticket
// outside the actor's scope is reported as not found.
func (s *TicketService) GetTicket(ctx context.Context, actor *domain.Actor, id string) (*TicketDetail, error) {
	ticket, err := s.visibleTicket(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	detail := &TicketDetail{Ticket: ticket, Next: lifecycle.Next(ticket.Status)}

	cust, err := s.customers.GetByID(ctx, actor.TenantID, ticket.CustomerID)
	switch {
	case err == nil:
		detail.Customer = cust
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	if s.history != nil {
		history, err := s.history.ListByTicket(ctx, actor.TenantID, ticket.ID)
		if err != nil {
			return nil, err
		}
		detail.History = history
	}
	return detail, nil
}

func (s *TicketService) visibleTicket(ctx context.Context, actor *domain.Actor, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, actor.TenantID, id)
	if err != nil {
		return nil, storeError(err, "ticket", map[string]any{"id": id})
	}
	if !visibility.CanSee(actor, domain.KindTickets, ticket.Scope()) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
	}
	return ticket, nil
}

// UpdateTicket applies a field edit. Edits are last-write-wins and never
// touch status; use ChangeStatus for that.
func (s *TicketService) UpdateTicket(ctx context.Context, actor *domain.Actor, id string, patch TicketPatch) (*domain.Ticket, error) {
	ticket, err := s.visibleTicket(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !visibility.CanWrite(actor, domain.KindTickets, ticket.Scope()) {
		return nil, apperrors.NewScopeForbidden("ticket", actor.ID)
	}

	if patch.CustomerID != nil && *patch.CustomerID != ticket.CustomerID {
		cust, err := s.linkableCustomer(ctx, actor, ticket.TeamID, *patch.CustomerID)
		if err != nil {
			return nil, err
		}
		ticket.CustomerID, ticket.CustomerName = cust.ID, cust.Name
	}
	if patch.Device != nil {
		ticket.Device = *patch.Device
	}
	if patch.Unlock != nil {
		unlock, err := normalizeUnlock(*patch.Unlock)
		if err != nil {
			return nil, err
		}
		ticket.Unlock = unlock
	}
	setString(&ticket.IMEI, patch.IMEI)
	setString(&ticket.Accessories, patch.Accessories)
	setString(&ticket.AestheticCondition, patch.AestheticCondition)
	setString(&ticket.IssueType, patch.IssueType)
	setString(&ticket.IssueDescription, patch.IssueDescription)
	setString(&ticket.InternalNotes, patch.InternalNotes)
	if patch.Cloud != nil {
		ticket.Cloud = patch.Cloud
	}
	if patch.Price != nil {
		ticket.Price = *patch.Price
	}
	if patch.Deposit != nil {
		ticket.Deposit = *patch.Deposit
	}
	if patch.AssignedTo != nil {
		ticket.AssignedTo = strings.TrimSpace(*patch.AssignedTo)
	}
	if err := validateMoney(ticket.Price, ticket.Deposit); err != nil {
		return nil, err
	}
	// Reassigning must not move the ticket out of the editor's own scope.
	if !visibility.CanWrite(actor, domain.KindTickets, ticket.Scope()) {
		return nil, apperrors.NewScopeForbidden("ticket", actor.ID)
	}

	if err := s.tickets.UpdateFields(ctx, ticket); err != nil {
		return nil, storeError(err, "ticket", map[string]any{"id": id})
	}
	s.publish(ctx, events.Event{
		Type:      events.EventTicketUpdated,
		TenantID:  ticket.TenantID,
		TeamID:    ticket.TeamID,
		SubjectID: ticket.ID,
		Actor:     events.ActorOf(actor),
		Payload:   events.TicketUpdatedPayload{Version: ticket.Version},
	})
	return ticket, nil
}

// ChangeStatus moves a ticket along the state graph. The write is a
// compare-and-set on the version read; only the winning write appends the
// ledger entries the transition produces. A lost race is retried while the
// transition is still legal from the re-read status and reported as a
// conflict once it is already applied or no longer legal.
func (s *TicketService) ChangeStatus(ctx context.Context, actor *domain.Actor, id string, next domain.TicketStatus) (*domain.Ticket, error) {
	var (
		attempts int
		previous domain.TicketStatus
		entries  []domain.LedgerEntry
	)
	operation := func() (*domain.Ticket, error) {
		attempts++
		current, err := s.visibleTicket(ctx, actor, id)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		details := map[string]any{
			"ticket_id":      id,
			"current_status": current.Status,
			"requested":      next,
		}
		// A duplicate of an applied move, or one the graph no longer allows
		// after a lost race, is a conflict for the caller to re-decide.
		switch {
		case current.Status == next && attempts == 1:
			s.metrics.RecordConflict()
			return nil, backoff.Permanent(apperrors.NewConflict("ticket is already "+string(next), details))
		case current.Status == next || (attempts > 1 && !lifecycle.CanTransition(current.Status, next)):
			s.metrics.RecordConflict()
			return nil, backoff.Permanent(apperrors.NewConflict("ticket status changed concurrently", details))
		}

		updated, effects, err := lifecycle.Apply(*current, next, actor)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		now := s.now()
		entries = entries[:0]
		for _, effect := range effects {
			entry := ledger.FromEffect(effect, current.TenantID, actor.ID, now, s.location)
			entry.ID = uuid.NewString()
			if err := ledger.Validate(&entry); err != nil {
				return nil, backoff.Permanent(err)
			}
			entries = append(entries, entry)
		}

		saved, err := s.tickets.UpdateStatusIfVersion(ctx, repository.StatusChange{
			TenantID:        current.TenantID,
			TicketID:        current.ID,
			ExpectedVersion: current.Version,
			Status:          updated.Status,
			Entries:         entries,
			History: &domain.TicketHistory{
				ID:        uuid.NewString(),
				TenantID:  current.TenantID,
				TicketID:  current.ID,
				ChangedBy: actor.ID,
				OldStatus: current.Status,
				NewStatus: updated.Status,
			},
		})
		if errors.Is(err, repository.ErrVersionConflict) {
			s.metrics.RecordRetry()
			return nil, err
		}
		if err != nil {
			return nil, backoff.Permanent(storeError(err, "ticket", map[string]any{"id": id}))
		}
		previous = current.Status
		return saved, nil
	}

	saved, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(uint(s.maxRetries)+1))
	if err != nil {
		return nil, s.transitionError(err, id)
	}

	s.metrics.RecordTransition(previous, saved.Status)
	s.logger.Info("ticket status changed",
		zap.String("ticket_id", saved.ID),
		zap.String("team_id", saved.TeamID),
		zap.String("actor_id", actor.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(saved.Status)),
		zap.Int("attempts", attempts))

	entryIDs := make([]string, 0, len(entries))
	for _, entry := range entries {
		entryIDs = append(entryIDs, entry.ID)
	}
	s.publish(ctx, events.Event{
		Type:      events.EventTicketStatusChanged,
		TenantID:  saved.TenantID,
		TeamID:    saved.TeamID,
		SubjectID: saved.ID,
		Actor:     events.ActorOf(actor),
		Payload: events.TicketStatusChangedPayload{
			OldStatus:      previous,
			NewStatus:      saved.Status,
			LedgerEntryIDs: entryIDs,
		},
	})
	for _, entry := range entries {
		s.publish(ctx, ledgerEvent(entry, actor))
	}
	return saved, nil
}

func (s *TicketService) transitionError(err error, id string) error {
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	if errors.Is(err, repository.ErrVersionConflict) {
		s.metrics.RecordConflict()
		return apperrors.NewConflict("ticket kept changing; retries exhausted", map[string]any{"ticket_id": id})
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewUnavailable(err)
	}
	return err
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	publish(ctx, s.dispatcher, s.logger, event)
}

func ledgerEvent(entry domain.LedgerEntry, actor *domain.Actor) events.Event {
	return events.Event{
		Type:      events.EventLedgerEntryAppended,
		TenantID:  entry.TenantID,
		TeamID:    entry.TeamID,
		SubjectID: entry.ID,
		Actor:     events.ActorOf(actor),
		Payload: events.LedgerEntryAppendedPayload{
			Type:      entry.Type,
			Amount:    entry.Amount.StringFixed(2),
			TicketRef: entry.TicketRef,
		},
	}
}

func validateMoney(price, deposit decimal.Decimal) error {
	if price.IsNegative() {
		return apperrors.NewValidationError("price must not be negative", map[string]any{"price": price.String()})
	}
	if deposit.IsNegative() {
		return apperrors.NewValidationError("deposit must not be negative", map[string]any{"deposit": deposit.String()})
	}
	return nil
}

func normalizeUnlock(u domain.UnlockCode) (domain.UnlockCode, error) {
	switch u.Type {
	case "":
		u.Type = domain.UnlockNone
	case domain.UnlockNone, domain.UnlockPIN, domain.UnlockPattern, domain.UnlockPassword:
	default:
		return u, apperrors.NewValidationError("unknown unlock type", map[string]any{"unlock_type": u.Type})
	}
	if u.Type == domain.UnlockNone {
		u.Value = ""
	}
	return u, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
