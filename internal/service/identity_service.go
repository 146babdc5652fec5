package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mouradajaa1-dot/fix-manager/internal/auth"
	"github.com/mouradajaa1-dot/fix-manager/internal/config"
	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/events"
	"github.com/mouradajaa1-dot/fix-manager/internal/repository"
	"github.com/mouradajaa1-dot/fix-manager/internal/visibility"
	apperrors "github.com/mouradajaa1-dot/fix-manager/pkg/util"
)

// IdentityService is the bundled identity provider: it provisions tenant
// defaults, issues credentials at login and maps credentials back to actors.
type IdentityService struct {
	actors        repository.ActorRepository
	dispatcher    events.Dispatcher
	tokenMgr      *auth.TokenManager
	logger        *zap.Logger
	bcryptCost    int
	defaultTenant string
	ownerPassword string
	techPassword  string

	// provisioned caches tenants whose defaults are known to exist, sparing
	// a bcrypt hash per login.
	provisioned sync.Map
}

// IdentityDependencies encapsulates repo requirements for the identity service.
type IdentityDependencies struct {
	ActorRepo  repository.ActorRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// ActorInput describes a provisioning request.
type ActorInput struct {
	Username    string
	Password    string
	Role        domain.Role
	Permissions []domain.Permission
}

// ActorUpdate describes an edit. Nil fields are left unchanged.
type ActorUpdate struct {
	Username    *string
	Password    *string
	Role        *domain.Role
	Permissions []domain.Permission
}

// NewIdentityService builds the service.
func NewIdentityService(cfg config.Config, deps IdentityDependencies) *IdentityService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityService{
		actors:        deps.ActorRepo,
		dispatcher:    deps.Dispatcher,
		tokenMgr:      auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		logger:        logger,
		bcryptCost:    cfg.Auth.BcryptCost,
		defaultTenant: cfg.Auth.DefaultTenant,
		ownerPassword: cfg.Auth.DefaultOwnerPassword,
		techPassword:  cfg.Auth.DefaultTechnicianPassword,
	}
}

// TokenManager exposes the credential issuer.
func (s *IdentityService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

// DefaultTenant is used when a login names no tenant.
func (s *IdentityService) DefaultTenant() string {
	return s.defaultTenant
}

// EnsureTenantDefaults creates the root owner and the default technician
// when absent. Concurrent callers race on fixed ids, so exactly one insert
// of each wins.
func (s *IdentityService) EnsureTenantDefaults(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return apperrors.NewValidationError("tenant required", nil)
	}
	if _, ok := s.provisioned.Load(tenantID); ok {
		return nil
	}

	root := domain.RootActorID
	defaults := []struct {
		actor    domain.Actor
		password string
	}{
		{
			actor: domain.Actor{
				ID:          domain.RootActorID,
				TenantID:    tenantID,
				Username:    domain.DefaultOwnerUsername,
				Role:        domain.RoleOwner,
				Permissions: domain.DefaultPermissions(domain.RoleOwner),
			},
			password: s.ownerPassword,
		},
		{
			actor: domain.Actor{
				ID:          domain.DefaultTechnicianID,
				TenantID:    tenantID,
				Username:    domain.DefaultTechnicianName,
				Role:        domain.RoleTechnician,
				CreatedBy:   &root,
				Permissions: domain.DefaultPermissions(domain.RoleTechnician),
			},
			password: s.techPassword,
		},
	}

	for _, d := range defaults {
		if _, err := s.actors.GetByID(ctx, tenantID, d.actor.ID); err == nil {
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		hash, err := auth.HashPassword(d.password, s.bcryptCost)
		if err != nil {
			return apperrors.NewInternalError(err)
		}
		actor := d.actor
		actor.PasswordHash = hash
		created, err := s.actors.CreateIfAbsent(ctx, &actor)
		if err != nil && !errors.Is(err, repository.ErrDuplicate) {
			return err
		}
		if created {
			s.logger.Info("tenant default provisioned",
				zap.String("tenant_id", tenantID),
				zap.String("actor_id", actor.ID),
				zap.String("role", string(actor.Role)))
		}
	}
	s.provisioned.Store(tenantID, struct{}{})
	return nil
}

// Login checks a username and password and returns a bearer credential.
func (s *IdentityService) Login(ctx context.Context, tenantID, username, password string) (*domain.Actor, string, time.Time, error) {
	if tenantID == "" {
		tenantID = s.defaultTenant
	}
	if err := s.EnsureTenantDefaults(ctx, tenantID); err != nil {
		return nil, "", time.Time{}, err
	}
	actor, err := s.actors.GetByUsername(ctx, tenantID, strings.TrimSpace(username))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, "", time.Time{}, apperrors.NewAuthError("invalid credentials")
	}
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if err := auth.ComparePassword(actor.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewAuthError("invalid credentials")
	}
	token, exp, err := s.tokenMgr.GenerateToken(actor)
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}
	return actor, token, exp, nil
}

// ResolveActor verifies credential and loads the actor and its direct
// reports from the store. Nothing is cached between calls, so role edits
// take effect on the next request.
func (s *IdentityService) ResolveActor(ctx context.Context, credential string) (*domain.Actor, error) {
	claims, err := s.tokenMgr.ParseToken(credential)
	if err != nil {
		return nil, apperrors.NewAuthError("invalid or expired credential")
	}
	actor, err := s.actors.GetByID(ctx, claims.TenantID, claims.ActorID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewAuthError("actor no longer exists")
	}
	if err != nil {
		return nil, err
	}
	reports, err := s.actors.ListReports(ctx, actor.TenantID, actor.ID)
	if err != nil {
		return nil, err
	}
	actor.Reports = reports
	return actor, nil
}

// CreateActor provisions an actor under caller. Owners may create Admins
// and Technicians; Admins only Technicians.
func (s *IdentityService) CreateActor(ctx context.Context, caller *domain.Actor, input ActorInput) (*domain.Actor, error) {
	if !input.Role.Valid() || input.Role == domain.RoleOwner {
		return nil, apperrors.NewValidationError("role must be Admin or Technician", map[string]any{"role": input.Role})
	}
	switch caller.Role {
	case domain.RoleOwner:
	case domain.RoleAdmin:
		if input.Role != domain.RoleTechnician {
			return nil, apperrors.NewForbidden("admins may only provision technicians")
		}
	default:
		return nil, apperrors.NewForbidden("technicians may not provision actors")
	}

	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, apperrors.NewValidationError("username required", map[string]any{"field": "username"})
	}
	perms, err := permissionsFor(input.Role, input.Permissions)
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewValidationError("password required", map[string]any{"field": "password"})
	}

	createdBy := caller.ID
	actor := &domain.Actor{
		ID:           uuid.NewString(),
		TenantID:     caller.TenantID,
		Username:     username,
		Role:         input.Role,
		CreatedBy:    &createdBy,
		Permissions:  perms,
		PasswordHash: hash,
	}
	if err := s.actors.Create(ctx, actor); err != nil {
		return nil, storeError(err, "actor", map[string]any{"username": username})
	}
	s.publish(ctx, events.Event{
		Type:      events.EventActorProvisioned,
		TenantID:  actor.TenantID,
		TeamID:    actor.TeamID(),
		SubjectID: actor.ID,
		Actor:     events.ActorOf(caller),
		Payload: events.ActorProvisionedPayload{
			Username:  actor.Username,
			Role:      actor.Role,
			CreatedBy: createdBy,
		},
	})
	return actor, nil
}

// UpdateActor edits role, permissions or credentials. Owner only; the
// root's role cannot change.
func (s *IdentityService) UpdateActor(ctx context.Context, caller *domain.Actor, id string, update ActorUpdate) (*domain.Actor, error) {
	if caller.Role != domain.RoleOwner {
		return nil, apperrors.NewForbidden("only the owner may edit actors")
	}
	actor, err := s.actors.GetByID(ctx, caller.TenantID, id)
	if err != nil {
		return nil, storeError(err, "actor", map[string]any{"id": id})
	}

	if update.Role != nil && *update.Role != actor.Role {
		if actor.IsRoot() {
			return nil, apperrors.NewForbidden("the root owner's role is immutable")
		}
		if !update.Role.Valid() || *update.Role == domain.RoleOwner {
			return nil, apperrors.NewValidationError("role must be Admin or Technician", map[string]any{"role": *update.Role})
		}
		if *update.Role == domain.RoleTechnician {
			if err := s.requireNoReports(ctx, actor.TenantID, actor.ID, "demote"); err != nil {
				return nil, err
			}
		}
		actor.Role = *update.Role
		if update.Permissions == nil {
			actor.Permissions = domain.DefaultPermissions(actor.Role)
		}
	}
	if update.Permissions != nil {
		perms, err := permissionsFor(actor.Role, update.Permissions)
		if err != nil {
			return nil, err
		}
		actor.Permissions = perms
	}
	if update.Username != nil {
		username := strings.TrimSpace(*update.Username)
		if username == "" {
			return nil, apperrors.NewValidationError("username required", map[string]any{"field": "username"})
		}
		actor.Username = username
	}
	if update.Password != nil {
		hash, err := auth.HashPassword(*update.Password, s.bcryptCost)
		if err != nil {
			return nil, apperrors.NewValidationError("password required", map[string]any{"field": "password"})
		}
		actor.PasswordHash = hash
	}

	if err := s.actors.Update(ctx, actor); err != nil {
		return nil, storeError(err, "actor", map[string]any{"id": id})
	}
	return actor, nil
}

// DeleteActor removes an actor. Owner only; the root is never deleted.
func (s *IdentityService) DeleteActor(ctx context.Context, caller *domain.Actor, id string) error {
	if caller.Role != domain.RoleOwner {
		return apperrors.NewForbidden("only the owner may delete actors")
	}
	if id == domain.RootActorID {
		return apperrors.NewForbidden("the root owner cannot be deleted")
	}
	if err := s.requireNoReports(ctx, caller.TenantID, id, "delete"); err != nil {
		return err
	}
	if err := s.actors.Delete(ctx, caller.TenantID, id); err != nil {
		return storeError(err, "actor", map[string]any{"id": id})
	}
	s.logger.Info("actor deleted",
		zap.String("tenant_id", caller.TenantID),
		zap.String("actor_id", id),
		zap.String("deleted_by", caller.ID))
	return nil
}

// ListActors returns the actors visible in caller's settings scope.
func (s *IdentityService) ListActors(ctx context.Context, caller *domain.Actor) ([]domain.Actor, error) {
	pred := visibility.ScopeFor(caller, domain.KindSettings)
	if pred.IsNone() {
		return []domain.Actor{}, nil
	}
	return s.actors.List(ctx, pred)
}

// requireNoReports refuses changes that would leave id's technicians
// without a team.
func (s *IdentityService) requireNoReports(ctx context.Context, tenantID, id, action string) error {
	reports, err := s.actors.ListReports(ctx, tenantID, id)
	if err != nil {
		return storeError(err, "actor", map[string]any{"id": id})
	}
	if len(reports) > 0 {
		return apperrors.NewConflict("cannot "+action+" an actor that still has reports", map[string]any{
			"id":      id,
			"reports": reports,
		})
	}
	return nil
}

func permissionsFor(role domain.Role, requested []domain.Permission) ([]domain.Permission, error) {
	if len(requested) == 0 {
		return domain.DefaultPermissions(role), nil
	}
	out := make([]domain.Permission, 0, len(requested))
	for _, p := range requested {
		switch p {
		case domain.PermissionAll, domain.PermissionViewRepairs, domain.PermissionEditRepairs, domain.PermissionViewCustomers:
			out = append(out, p)
		default:
			return nil, apperrors.NewValidationError("unknown permission", map[string]any{"permission": p})
		}
	}
	return out, nil
}

func (s *IdentityService) publish(ctx context.Context, event events.Event) {
	publish(ctx, s.dispatcher, s.logger, event)
}
