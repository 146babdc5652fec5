package dto

import "time"

// CustomerRequest payload for create and resolve.
type CustomerRequest = ContactRequest

// UpdateCustomerRequest payload. Omitted fields keep their stored value.
type UpdateCustomerRequest struct {
	Name    *string `json:"name"`
	Phone   *string `json:"phone"`
	Email   *string `json:"email"`
	Address *string `json:"address"`
}

// CustomerResponse payload.
type CustomerResponse struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedBy string    `json:"created_by"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResolveCustomerResponse reports whether the matcher created a record.
type ResolveCustomerResponse struct {
	Customer CustomerResponse `json:"customer"`
	Created  bool             `json:"created"`
}
