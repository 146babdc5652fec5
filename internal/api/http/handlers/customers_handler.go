package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/mouradajaa1-dot/fix-manager/internal/api/dto"
	"github.com/mouradajaa1-dot/fix-manager/internal/customer"
	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/service"
	apperrors "github.com/mouradajaa1-dot/fix-manager/pkg/util"
)

// CustomersHandler manages the customer directory.
type CustomersHandler struct {
	service *service.CustomerService
}

// NewCustomersHandler constructs handler.
func NewCustomersHandler(customerService *service.CustomerService) *CustomersHandler {
	return &CustomersHandler{service: customerService}
}

// List GET /customers.
func (h *CustomersHandler) List(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	limit, offset := pagination(c)
	customers, err := h.service.ListCustomers(c.UserContext(), actor, service.CustomerQuery{
		Search: c.Query("q"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return err
	}
	items := make([]dto.CustomerResponse, 0, len(customers))
	for i := range customers {
		items = append(items, customerResponse(&customers[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /customers/:id.
func (h *CustomersHandler) Get(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	cust, err := h.service.GetCustomer(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": customerResponse(cust)})
}

// Create POST /customers.
func (h *CustomersHandler) Create(c *fiber.Ctx) error {
	actor, contact, err := h.contactRequest(c)
	if err != nil {
		return err
	}
	cust, err := h.service.CreateCustomer(c.UserContext(), actor, contact)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": customerResponse(cust)})
}

// Resolve POST /customers/resolve.
func (h *CustomersHandler) Resolve(c *fiber.Ctx) error {
	actor, contact, err := h.contactRequest(c)
	if err != nil {
		return err
	}
	result, err := h.service.ResolveCustomer(c.UserContext(), actor, contact)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.ResolveCustomerResponse{
		Customer: customerResponse(result.Customer),
		Created:  result.Created,
	}})
}

// Update PATCH /customers/:id.
func (h *CustomersHandler) Update(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.UpdateCustomerRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	cust, err := h.service.UpdateCustomer(c.UserContext(), actor, c.Params("id"), service.CustomerPatch{
		Name:    req.Name,
		Phone:   req.Phone,
		Email:   req.Email,
		Address: req.Address,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": customerResponse(cust)})
}

// Delete DELETE /customers/:id.
func (h *CustomersHandler) Delete(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteCustomer(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func (h *CustomersHandler) contactRequest(c *fiber.Ctx) (*domain.Actor, customer.Contact, error) {
	actor, err := currentActor(c)
	if err != nil {
		return nil, customer.Contact{}, err
	}
	var req dto.CustomerRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, customer.Contact{}, apperrors.NewValidationError("invalid payload", nil)
	}
	return actor, contactFrom(req), nil
}

func contactFrom(req dto.ContactRequest) customer.Contact {
	return customer.Contact{Name: req.Name, Phone: req.Phone, Email: req.Email, Address: req.Address}
}

func customerResponse(cust *domain.Customer) dto.CustomerResponse {
	return dto.CustomerResponse{
		ID:        cust.ID,
		TeamID:    cust.TeamID,
		Name:      cust.Name,
		Phone:     cust.Phone,
		Email:     cust.Email,
		Address:   cust.Address,
		CreatedBy: cust.CreatedBy,
		Version:   cust.Version,
		CreatedAt: cust.CreatedAt,
		UpdatedAt: cust.UpdatedAt,
	}
}
