package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
)

// ContactRequest identifies a customer by partial contact data.
type ContactRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

// CreateTicketRequest payload. Either CustomerID or Customer is required.
type CreateTicketRequest struct {
	CustomerID         string                   `json:"customer_id"`
	Customer           *ContactRequest          `json:"customer"`
	Device             domain.Device            `json:"device"`
	Unlock             domain.UnlockCode        `json:"unlock"`
	IMEI               string                   `json:"imei"`
	Accessories        string                   `json:"accessories"`
	AestheticCondition string                   `json:"aesthetic_condition"`
	Cloud              *domain.CloudCredentials `json:"cloud"`
	IssueType          string                   `json:"issue_type"`
	IssueDescription   string                   `json:"issue_description"`
	InternalNotes      string                   `json:"internal_notes"`
	Price              decimal.Decimal          `json:"price"`
	Deposit            decimal.Decimal          `json:"deposit"`
	AssignedTo         string                   `json:"assigned_to"`
	ArrivalDate        *time.Time               `json:"arrival_date"`
}

// UpdateTicketRequest payload. Omitted fields are left unchanged; status is
// changed through its own endpoint.
type UpdateTicketRequest struct {
	CustomerID         *string                  `json:"customer_id"`
	Device             *domain.Device           `json:"device"`
	Unlock             *domain.UnlockCode       `json:"unlock"`
	IMEI               *string                  `json:"imei"`
	Accessories        *string                  `json:"accessories"`
	AestheticCondition *string                  `json:"aesthetic_condition"`
	Cloud              *domain.CloudCredentials `json:"cloud"`
	IssueType          *string                  `json:"issue_type"`
	IssueDescription   *string                  `json:"issue_description"`
	InternalNotes      *string                  `json:"internal_notes"`
	Price              *decimal.Decimal         `json:"price"`
	Deposit            *decimal.Decimal         `json:"deposit"`
	AssignedTo         *string                  `json:"assigned_to"`
}

// ChangeStatusRequest payload.
type ChangeStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// TicketResponse is the list and stream shape of a ticket.
type TicketResponse struct {
	ID                 string                   `json:"id"`
	ShortID            string                   `json:"short_id"`
	CustomerID         string                   `json:"customer_id"`
	CustomerName       string                   `json:"customer_name"`
	Device             domain.Device            `json:"device"`
	DeviceLabel        string                   `json:"device_label"`
	Unlock             domain.UnlockCode        `json:"unlock"`
	IMEI               string                   `json:"imei"`
	Accessories        string                   `json:"accessories"`
	AestheticCondition string                   `json:"aesthetic_condition"`
	Cloud              *domain.CloudCredentials `json:"cloud,omitempty"`
	IssueType          string                   `json:"issue_type"`
	IssueDescription   string                   `json:"issue_description"`
	InternalNotes      string                   `json:"internal_notes"`
	Price              string                   `json:"price"`
	Deposit            string                   `json:"deposit"`
	BalanceDue         string                   `json:"balance_due"`
	AssignedTo         string                   `json:"assigned_to"`
	Status             domain.TicketStatus      `json:"status"`
	ArrivalDate        time.Time                `json:"arrival_date"`
	CreatedBy          string                   `json:"created_by"`
	TeamID             string                   `json:"team_id"`
	Version            int64                    `json:"version"`
	UpdatedAt          time.Time                `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketResponse
	Customer *CustomerResponse     `json:"customer,omitempty"`
	History  []HistoryResponse     `json:"history"`
	Next     []domain.TicketStatus `json:"next_statuses"`
}

// HistoryResponse is one status change.
type HistoryResponse struct {
	ID        string              `json:"id"`
	ChangedBy string              `json:"changed_by"`
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	CreatedAt time.Time           `json:"created_at"`
}

// DashboardResponse summarizes what the caller can see.
type DashboardResponse struct {
	Tickets   map[domain.TicketStatus]int `json:"tickets"`
	Customers int                         `json:"customers"`
	Month     AggregateResponse           `json:"month"`
}
