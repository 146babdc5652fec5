package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mouradajaa1-dot/fix-manager/internal/api/http/handlers"
	"github.com/mouradajaa1-dot/fix-manager/internal/auth"
	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Actors         *handlers.ActorsHandler
	Customers      *handlers.CustomersHandler
	Tickets        *handlers.TicketsHandler
	Ledger         *handlers.LedgerHandler
	Dashboard      *handlers.DashboardHandler
	Stream         *handlers.StreamHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Auth.Login)

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireActor())
	protected.Get("/me", cfg.Auth.Me)
	protected.Get("/metrics", auth.RequireRole(domain.RoleOwner), cfg.Health.Metrics)

	managers := auth.RequireRole(domain.RoleOwner, domain.RoleAdmin)
	actors := protected.Group("/actors", managers)
	actors.Get("/", cfg.Actors.List)
	actors.Post("/", cfg.Actors.Create)
	actors.Patch("/:id", cfg.Actors.Update)
	actors.Delete("/:id", cfg.Actors.Delete)

	customers := protected.Group("/customers")
	customers.Get("/", cfg.Customers.List)
	customers.Post("/", cfg.Customers.Create)
	customers.Post("/resolve", cfg.Customers.Resolve)
	customers.Get("/:id", cfg.Customers.Get)
	customers.Patch("/:id", cfg.Customers.Update)
	customers.Delete("/:id", cfg.Customers.Delete)

	tickets := protected.Group("/tickets")
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
	tickets.Post("/:id/status", cfg.Tickets.ChangeStatus)

	ledger := protected.Group("/ledger")
	ledger.Get("/", cfg.Ledger.List)
	ledger.Post("/", cfg.Ledger.Append)
	ledger.Get("/aggregate", cfg.Ledger.Aggregate)

	protected.Get("/dashboard", cfg.Dashboard.Summary)
	protected.Get("/stream/:kind", cfg.Stream.Stream)
}
