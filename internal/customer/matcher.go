// Package customer resolves the customer a new ticket belongs to from the
// partial contact data collected at intake.
package customer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/repository"
	apperrors "github.com/mouradajaa1-dot/fix-manager/pkg/util"
)

// Contact is the identity data typed in at intake.
type Contact struct {
	Name    string
	Phone   string
	Email   string
	Address string
}

// Normalize trims surrounding whitespace from every field.
func (c Contact) Normalize() Contact {
	return Contact{
		Name:    strings.TrimSpace(c.Name),
		Phone:   strings.TrimSpace(c.Phone),
		Email:   strings.TrimSpace(c.Email),
		Address: strings.TrimSpace(c.Address),
	}
}

// Result reports which customer was resolved and whether it was created.
type Result struct {
	Customer *domain.Customer
	Created  bool
}

// Matcher finds an existing customer by phone, then email, and otherwise
// provisions a new one while the team is under its cap.
type Matcher struct {
	customers repository.CustomerRepository
	capacity  int
	logger    *zap.Logger
	now       func() time.Time
}

// NewMatcher builds a Matcher. capacity <= 0 disables the cap.
func NewMatcher(customers repository.CustomerRepository, capacity int, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{customers: customers, capacity: capacity, logger: logger, now: time.Now}
}

// Resolve returns the team's customer identified by contact. An existing
// record is returned untouched even if the typed name differs.
func (m *Matcher) Resolve(ctx context.Context, tenantID, teamID, actorID string, contact Contact) (Result, error) {
	contact = contact.Normalize()
	if teamID == "" {
		return Result{}, apperrors.NewValidationError("team required to resolve customer", nil)
	}

	if contact.Phone != "" {
		existing, err := m.customers.FindByPhone(ctx, tenantID, teamID, contact.Phone)
		if err == nil {
			return Result{Customer: existing}, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return Result{}, err
		}
	}
	if contact.Email != "" {
		existing, err := m.customers.FindByEmail(ctx, tenantID, teamID, contact.Email)
		if err == nil {
			return Result{Customer: existing}, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return Result{}, err
		}
	}

	if contact.Name == "" {
		return Result{}, apperrors.NewValidationError("customer name required", map[string]any{"field": "name"})
	}
	if err := m.checkCapacity(ctx, tenantID, teamID); err != nil {
		return Result{}, err
	}

	created := &domain.Customer{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		TeamID:    teamID,
		Name:      contact.Name,
		Phone:     contact.Phone,
		Email:     contact.Email,
		Address:   contact.Address,
		CreatedBy: actorID,
	}
	if err := m.customers.Create(ctx, created); err != nil {
		return Result{}, err
	}
	m.logger.Info("customer provisioned",
		zap.String("customer_id", created.ID),
		zap.String("team_id", teamID),
		zap.String("actor_id", actorID))
	return Result{Customer: created, Created: true}, nil
}

// Create provisions a customer without matching, still honoring the cap.
func (m *Matcher) Create(ctx context.Context, customer *domain.Customer) error {
	if err := m.checkCapacity(ctx, customer.TenantID, customer.TeamID); err != nil {
		return err
	}
	return m.customers.Create(ctx, customer)
}

// checkCapacity counts immediately before a create. Two concurrent creates
// may both pass; the cap is a soft limit.
func (m *Matcher) checkCapacity(ctx context.Context, tenantID, teamID string) error {
	if m.capacity <= 0 {
		return nil
	}
	count, err := m.customers.CountByTeam(ctx, tenantID, teamID)
	if err != nil {
		return err
	}
	if count >= m.capacity {
		return apperrors.NewCapacityError("customer", m.capacity)
	}
	return nil
}
