package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mouradajaa1-dot/fix-manager/internal/customer"
	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/events"
	"github.com/mouradajaa1-dot/fix-manager/internal/repository"
	"github.com/mouradajaa1-dot/fix-manager/internal/visibility"
	apperrors "github.com/mouradajaa1-dot/fix-manager/pkg/util"
)

// CustomerService manages the customer directory of each team.
type CustomerService struct {
	customers  repository.CustomerRepository
	tickets    repository.TicketRepository
	matcher    *customer.Matcher
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// CustomerDependencies bundles repositories for the customer service.
type CustomerDependencies struct {
	CustomerRepo repository.CustomerRepository
	TicketRepo   repository.TicketRepository
	Matcher      *customer.Matcher
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
}

// CustomerQuery narrows a listing.
type CustomerQuery struct {
	Search string
	Limit  int
	Offset int
}

// CustomerPatch carries the contact fields to change. Nil fields are left
// as stored; an empty string clears an optional field.
type CustomerPatch struct {
	Name    *string
	Phone   *string
	Email   *string
	Address *string
}

// NewCustomerService constructs the service.
func NewCustomerService(deps CustomerDependencies) *CustomerService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CustomerService{
		customers:  deps.CustomerRepo,
		tickets:    deps.TicketRepo,
		matcher:    deps.Matcher,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

func (s *CustomerService) writableTeam(actor *domain.Actor) (string, error) {
	teamID := actor.TeamID()
	scope := domain.Scope{TenantID: actor.TenantID, TeamID: teamID, CreatedBy: actor.ID}
	if teamID == "" || !visibility.CanWrite(actor, domain.KindCustomers, scope) {
		return "", apperrors.NewScopeForbidden("customer", actor.ID)
	}
	return teamID, nil
}

// CreateCustomer registers a customer in the actor's team without matching.
func (s *CustomerService) CreateCustomer(ctx context.Context, actor *domain.Actor, contact customer.Contact) (*domain.Customer, error) {
	teamID, err := s.writableTeam(actor)
	if err != nil {
		return nil, err
	}
	contact = contact.Normalize()
	if contact.Name == "" {
		return nil, apperrors.NewValidationError("customer name required", map[string]any{"field": "name"})
	}
	created := &domain.Customer{
		ID:        uuid.NewString(),
		TenantID:  actor.TenantID,
		TeamID:    teamID,
		Name:      contact.Name,
		Phone:     contact.Phone,
		Email:     contact.Email,
		Address:   contact.Address,
		CreatedBy: actor.ID,
	}
	if err := s.matcher.Create(ctx, created); err != nil {
		return nil, storeError(err, "customer", nil)
	}
	s.published(ctx, actor, created)
	return created, nil
}

// ResolveCustomer finds or creates the customer identified by contact in
// the actor's team.
func (s *CustomerService) ResolveCustomer(ctx context.Context, actor *domain.Actor, contact customer.Contact) (customer.Result, error) {
	teamID, err := s.writableTeam(actor)
	if err != nil {
		return customer.Result{}, err
	}
	res, err := s.matcher.Resolve(ctx, actor.TenantID, teamID, actor.ID, contact)
	if err != nil {
		return customer.Result{}, err
	}
	if res.Created {
		s.published(ctx, actor, res.Customer)
	}
	return res, nil
}

// GetCustomer returns a visible customer.
func (s *CustomerService) GetCustomer(ctx context.Context, actor *domain.Actor, id string) (*domain.Customer, error) {
	cust, err := s.customers.GetByID(ctx, actor.TenantID, id)
	if err != nil {
		return nil, storeError(err, "customer", map[string]any{"id": id})
	}
	if !visibility.CanSee(actor, domain.KindCustomers, cust.Scope()) {
		return nil, apperrors.NewNotFound("customer", map[string]any{"id": id})
	}
	return cust, nil
}

// UpdateCustomer applies patch to the contact details, last write wins.
func (s *CustomerService) UpdateCustomer(ctx context.Context, actor *domain.Actor, id string, patch CustomerPatch) (*domain.Customer, error) {
	cust, err := s.GetCustomer(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !visibility.CanWrite(actor, domain.KindCustomers, cust.Scope()) {
		return nil, apperrors.NewScopeForbidden("customer", actor.ID)
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperrors.NewValidationError("name cannot be empty", map[string]any{"field": "name"})
		}
		cust.Name = name
	}
	if patch.Phone != nil {
		cust.Phone = strings.TrimSpace(*patch.Phone)
	}
	if patch.Email != nil {
		cust.Email = strings.TrimSpace(*patch.Email)
	}
	if patch.Address != nil {
		cust.Address = strings.TrimSpace(*patch.Address)
	}
	if err := s.customers.Update(ctx, cust); err != nil {
		return nil, storeError(err, "customer", map[string]any{"id": id})
	}
	return cust, nil
}

// DeleteCustomer removes a customer no open ticket references.
func (s *CustomerService) DeleteCustomer(ctx context.Context, actor *domain.Actor, id string) error {
	cust, err := s.GetCustomer(ctx, actor, id)
	if err != nil {
		return err
	}
	if actor.Role == domain.RoleTechnician || !visibility.CanWrite(actor, domain.KindCustomers, cust.Scope()) {
		return apperrors.NewScopeForbidden("customer", actor.ID)
	}
	open, err := s.tickets.CountOpenByCustomer(ctx, actor.TenantID, id)
	if err != nil {
		return err
	}
	if open > 0 {
		return apperrors.NewConflict("customer is referenced by open tickets", map[string]any{
			"customer_id":  id,
			"open_tickets": open,
		})
	}
	if err := s.customers.Delete(ctx, actor.TenantID, id); err != nil {
		return storeError(err, "customer", map[string]any{"id": id})
	}
	s.logger.Info("customer deleted",
		zap.String("customer_id", id),
		zap.String("team_id", cust.TeamID),
		zap.String("actor_id", actor.ID))
	return nil
}

// ListCustomers returns the customers visible to actor.
func (s *CustomerService) ListCustomers(ctx context.Context, actor *domain.Actor, query CustomerQuery) ([]domain.Customer, error) {
	pred := visibility.ScopeFor(actor, domain.KindCustomers)
	if pred.IsNone() {
		return []domain.Customer{}, nil
	}
	return s.customers.List(ctx, pred, repository.CustomerFilter{
		Search: strings.TrimSpace(query.Search),
		Limit:  query.Limit,
		Offset: query.Offset,
	})
}

func (s *CustomerService) published(ctx context.Context, actor *domain.Actor, cust *domain.Customer) {
	publish(ctx, s.dispatcher, s.logger, events.Event{
		Type:      events.EventCustomerCreated,
		TenantID:  cust.TenantID,
		TeamID:    cust.TeamID,
		SubjectID: cust.ID,
		Actor:     events.ActorOf(actor),
		Payload:   events.CustomerCreatedPayload{Name: cust.Name},
	})
}
