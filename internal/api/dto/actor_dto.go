package dto

import (
	"time"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
)

// LoginRequest payload. TenantID defaults to the configured tenant.
type LoginRequest struct {
	TenantID string `json:"tenant_id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateActorRequest payload.
type CreateActorRequest struct {
	Username    string              `json:"username"`
	Password    string              `json:"password"`
	Role        domain.Role         `json:"role"`
	Permissions []domain.Permission `json:"permissions"`
}

// UpdateActorRequest payload. Omitted fields are left unchanged.
type UpdateActorRequest struct {
	Username    *string             `json:"username"`
	Password    *string             `json:"password"`
	Role        *domain.Role        `json:"role"`
	Permissions []domain.Permission `json:"permissions"`
}

// ActorResponse never carries the password hash.
type ActorResponse struct {
	ID          string              `json:"id"`
	TenantID    string              `json:"tenant_id"`
	Username    string              `json:"username"`
	Role        domain.Role         `json:"role"`
	CreatedBy   *string             `json:"created_by,omitempty"`
	TeamID      string              `json:"team_id"`
	Permissions []domain.Permission `json:"permissions"`
	Reports     []string            `json:"reports,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}
