package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mouradajaa1-dot/fix-manager/internal/api/http/handlers"
	"github.com/mouradajaa1-dot/fix-manager/internal/auth"
	"github.com/mouradajaa1-dot/fix-manager/internal/config"
	"github.com/mouradajaa1-dot/fix-manager/internal/customer"
	"github.com/mouradajaa1-dot/fix-manager/internal/events"
	"github.com/mouradajaa1-dot/fix-manager/internal/observability"
	"github.com/mouradajaa1-dot/fix-manager/internal/propagation"
	"github.com/mouradajaa1-dot/fix-manager/internal/repository/memory"
	"github.com/mouradajaa1-dot/fix-manager/internal/service"
)

func testConfig() config.Config {
	return config.Config{
		App: config.AppConfig{Name: "fix-manager", Version: "test"},
		Auth: config.AuthConfig{
			JWTSecret:                 "test-secret",
			AccessTokenTTLMinutes:     60,
			BcryptCost:                4,
			DefaultTenant:             "t1",
			DefaultOwnerPassword:      "owner-pass",
			DefaultTechnicianPassword: "tech-pass",
		},
		Intake: config.IntakeConfig{
			CustomerCapPerTeam: 100,
			TicketPrefix:       "R",
			TicketSeqStart:     1000,
		},
		Ledger:    config.LedgerConfig{Timezone: "UTC"},
		Lifecycle: config.LifecycleConfig{MaxTransitionRetries: 3},
	}
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	cfg := testConfig()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	store := memory.New(cfg.Intake.TicketSeqStart)
	dispatcher := events.NewInMemoryDispatcher()
	matcher := customer.NewMatcher(store.Customers(), cfg.Intake.CustomerCapPerTeam, logger)

	identity := service.NewIdentityService(cfg, service.IdentityDependencies{ActorRepo: store.Actors(), Dispatcher: dispatcher})
	tickets := service.NewTicketService(cfg, service.TicketDependencies{
		TicketRepo:   store.Tickets(),
		CustomerRepo: store.Customers(),
		HistoryRepo:  store.History(),
		Matcher:      matcher,
		Sequencer:    store.Sequencer(),
		Dispatcher:   dispatcher,
		Metrics:      metrics,
	})
	customers := service.NewCustomerService(service.CustomerDependencies{
		CustomerRepo: store.Customers(),
		TicketRepo:   store.Tickets(),
		Matcher:      matcher,
		Dispatcher:   dispatcher,
	})
	ledger := service.NewLedgerService(cfg, service.LedgerDependencies{LedgerRepo: store.Ledger(), Dispatcher: dispatcher})
	dashboard := service.NewDashboardService(service.DashboardDependencies{
		TicketRepo:    store.Tickets(),
		CustomerRepo:  store.Customers(),
		LedgerService: ledger,
	})
	hub := propagation.NewHub(store.Feed(), propagation.RepositoryLoader{
		Actors:    store.Actors(),
		Customers: store.Customers(),
		Tickets:   store.Tickets(),
		Ledger:    store.Ledger(),
	}, propagation.Options{Logger: logger, Metrics: metrics})

	app := fiber.New()
	RegisterMiddlewares(app, MiddlewareConfig{Logger: logger, Metrics: metrics, CORSOrigins: "*"})
	RegisterRoutes(app, RouteConfig{
		Health: handlers.NewHealthHandler(handlers.HealthDependencies{
			ServiceName: cfg.App.Name,
			Version:     cfg.App.Version,
			Feed:        hub,
			Metrics:     metrics,
		}),
		Auth:           handlers.NewAuthHandler(identity),
		Actors:         handlers.NewActorsHandler(identity),
		Customers:      handlers.NewCustomersHandler(customers),
		Tickets:        handlers.NewTicketsHandler(tickets),
		Ledger:         handlers.NewLedgerHandler(ledger),
		Dashboard:      handlers.NewDashboardHandler(dashboard),
		Stream:         handlers.NewStreamHandler(hub, logger),
		AuthMiddleware: auth.NewAuthMiddleware(identity),
	})
	return app
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func call(t *testing.T, app *fiber.App, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
	return out
}

func login(t *testing.T, app *fiber.App, username, password string) string {
	t.Helper()
	status, env := call(t, app, fiber.MethodPost, "/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if status != fiber.StatusOK {
		t.Fatalf("login %s: status %d (%+v)", username, status, env.Error)
	}
	return decode[struct {
		Token string `json:"token"`
	}](t, env).Token
}

func errorCode(env envelope) string {
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app := newTestApp(t)

	status, env := call(t, app, fiber.MethodGet, "/tickets", "", nil)
	if status != fiber.StatusUnauthorized || errorCode(env) != "UNAUTHORIZED" {
		t.Fatalf("expected 401 UNAUTHORIZED, got %d %s", status, errorCode(env))
	}
	status, env = call(t, app, fiber.MethodGet, "/tickets", "not-a-token", nil)
	if status != fiber.StatusUnauthorized || env.Error.Details["relogin"] != true {
		t.Fatalf("expected relogin hint, got %d %+v", status, env.Error)
	}
	status, _ = call(t, app, fiber.MethodPost, "/auth/login", "", map[string]string{"username": "owner", "password": "wrong"})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", status)
	}
	status, _ = call(t, app, fiber.MethodGet, "/health/live", "", nil)
	if status != fiber.StatusOK {
		t.Fatalf("liveness probe: %d", status)
	}
}

func TestRepairFlowOverHTTP(t *testing.T) {
	app := newTestApp(t)
	ownerToken := login(t, app, "owner", "owner-pass")

	status, env := call(t, app, fiber.MethodPost, "/tickets", ownerToken, map[string]any{
		"customer":    map[string]string{"name": "Mario Rossi", "phone": " 333 123 "},
		"device":      map[string]string{"category": "Smartphone", "brand": "Apple", "model": "iPhone 12"},
		"issue_type":  "Screen",
		"price":       "120",
		"deposit":     "30",
		"assigned_to": "tecnico",
	})
	if status != fiber.StatusCreated {
		t.Fatalf("create ticket: %d %+v", status, env.Error)
	}
	type ticketView struct {
		ID         string `json:"id"`
		ShortID    string `json:"short_id"`
		Status     string `json:"status"`
		BalanceDue string `json:"balance_due"`
	}
	created := decode[ticketView](t, env)
	if created.ShortID != "R1001" || created.Status != "Queued" || created.BalanceDue != "90.00" {
		t.Fatalf("unexpected ticket %+v", created)
	}

	status, env = call(t, app, fiber.MethodPost, "/tickets/"+created.ID+"/status", ownerToken, map[string]string{"status": "Delivered"})
	if status != fiber.StatusUnprocessableEntity || errorCode(env) != "ILLEGAL_TRANSITION" {
		t.Fatalf("expected illegal transition, got %d %s", status, errorCode(env))
	}

	for _, next := range []string{"InProgress", "ReadyForPickup", "Delivered"} {
		status, env = call(t, app, fiber.MethodPost, "/tickets/"+created.ID+"/status", ownerToken, map[string]string{"status": next})
		if status != fiber.StatusOK {
			t.Fatalf("move to %s: %d %+v", next, status, env.Error)
		}
	}
	status, env = call(t, app, fiber.MethodPost, "/tickets/"+created.ID+"/status", ownerToken, map[string]string{"status": "Delivered"})
	if status != fiber.StatusConflict || errorCode(env) != "CONFLICT" || env.Error.Message != "ticket is already Delivered" {
		t.Fatalf("expected conflict on repeated delivery, got %d %+v", status, env.Error)
	}

	status, env = call(t, app, fiber.MethodGet, "/tickets/"+created.ID, ownerToken, nil)
	if status != fiber.StatusOK {
		t.Fatalf("get ticket: %d", status)
	}
	detail := decode[struct {
		Customer struct {
			Phone string `json:"phone"`
		} `json:"customer"`
		History []any    `json:"history"`
		Next    []string `json:"next_statuses"`
	}](t, env)
	if detail.Customer.Phone != "333 123" || len(detail.History) != 3 || len(detail.Next) != 1 || detail.Next[0] != "Archived" {
		t.Fatalf("unexpected detail %+v", detail)
	}

	type aggregate struct {
		Income  string `json:"income"`
		Expense string `json:"expense"`
		Net     string `json:"net"`
	}
	status, env = call(t, app, fiber.MethodGet, "/ledger/aggregate", ownerToken, nil)
	if status != fiber.StatusOK {
		t.Fatalf("aggregate: %d %+v", status, env.Error)
	}
	if got := decode[aggregate](t, env); got.Income != "120.00" || got.Net != "120.00" {
		t.Fatalf("owner aggregate %+v", got)
	}

	techToken := login(t, app, "tecnico", "tech-pass")
	status, env = call(t, app, fiber.MethodGet, "/ledger/aggregate", techToken, nil)
	if status != fiber.StatusOK {
		t.Fatalf("technician aggregate: %d", status)
	}
	if got := decode[aggregate](t, env); got.Income != "0.00" || got.Net != "0.00" {
		t.Fatalf("technician must see zero totals, got %+v", got)
	}
	status, _ = call(t, app, fiber.MethodPost, "/ledger", techToken, map[string]any{"type": "Expense", "amount": "10"})
	if status != fiber.StatusForbidden {
		t.Fatalf("technician ledger write: expected 403, got %d", status)
	}
	status, _ = call(t, app, fiber.MethodGet, "/actors", techToken, nil)
	if status != fiber.StatusForbidden {
		t.Fatalf("technician actor listing: expected 403, got %d", status)
	}
	status, env = call(t, app, fiber.MethodGet, "/tickets", techToken, nil)
	if status != fiber.StatusOK {
		t.Fatalf("technician list: %d", status)
	}
	if got := decode[[]ticketView](t, env); len(got) != 1 || got[0].ID != created.ID {
		t.Fatalf("technician should see the assigned ticket, got %+v", got)
	}
}

func TestLedgerAndDashboardOverHTTP(t *testing.T) {
	app := newTestApp(t)
	ownerToken := login(t, app, "owner", "owner-pass")

	status, env := call(t, app, fiber.MethodPost, "/ledger", ownerToken, map[string]any{
		"type": "Expense", "description": "rent", "amount": "500", "date": "2024-08-01",
	})
	if status != fiber.StatusCreated {
		t.Fatalf("append: %d %+v", status, env.Error)
	}
	status, env = call(t, app, fiber.MethodPost, "/ledger", ownerToken, map[string]any{
		"type": "Expense", "amount": "-5", "date": "2024-08-01",
	})
	if status != fiber.StatusBadRequest || errorCode(env) != "VALIDATION_FAILED" {
		t.Fatalf("expected validation failure, got %d %s", status, errorCode(env))
	}
	status, _ = call(t, app, fiber.MethodPost, "/ledger", ownerToken, map[string]any{
		"type": "Income", "amount": "5", "date": "01/08/2024",
	})
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected bad date to fail, got %d", status)
	}

	status, env = call(t, app, fiber.MethodGet, "/ledger/aggregate?year=2024&month=8", ownerToken, nil)
	if status != fiber.StatusOK {
		t.Fatalf("aggregate: %d", status)
	}
	got := decode[struct {
		Month int    `json:"month"`
		Net   string `json:"net"`
	}](t, env)
	if got.Month != 8 || got.Net != "-500.00" {
		t.Fatalf("august aggregate %+v", got)
	}
	status, _ = call(t, app, fiber.MethodGet, "/ledger/aggregate?year=2024&month=13", ownerToken, nil)
	if status != fiber.StatusBadRequest {
		t.Fatalf("month 13: expected 400, got %d", status)
	}

	status, env = call(t, app, fiber.MethodGet, "/ledger?year=2024&month=8", ownerToken, nil)
	if status != fiber.StatusOK {
		t.Fatalf("list: %d", status)
	}
	entries := decode[[]struct {
		Date   string `json:"date"`
		Amount string `json:"amount"`
	}](t, env)
	if len(entries) != 1 || entries[0].Date != "2024-08-01" || entries[0].Amount != "500.00" {
		t.Fatalf("unexpected entries %+v", entries)
	}

	status, env = call(t, app, fiber.MethodGet, "/dashboard", ownerToken, nil)
	if status != fiber.StatusOK {
		t.Fatalf("dashboard: %d", status)
	}
	dash := decode[struct {
		Tickets map[string]int `json:"tickets"`
	}](t, env)
	if len(dash.Tickets) != 7 || dash.Tickets["Queued"] != 0 {
		t.Fatalf("unexpected dashboard %+v", dash)
	}
}

func TestUnknownRoutesAndKinds(t *testing.T) {
	app := newTestApp(t)
	ownerToken := login(t, app, "owner", "owner-pass")

	status, env := call(t, app, fiber.MethodGet, "/stream/invoices", ownerToken, nil)
	if status != fiber.StatusBadRequest || errorCode(env) != "VALIDATION_FAILED" {
		t.Fatalf("unknown stream kind: %d %s", status, errorCode(env))
	}
	status, env = call(t, app, fiber.MethodGet, "/nowhere", ownerToken, nil)
	if status != fiber.StatusNotFound || errorCode(env) != "NOT_FOUND" {
		t.Fatalf("unknown route: %d %s", status, errorCode(env))
	}
	status, env = call(t, app, fiber.MethodGet, "/metrics", ownerToken, nil)
	if status != fiber.StatusOK {
		t.Fatalf("metrics: %d", status)
	}
	techToken := login(t, app, "tecnico", "tech-pass")
	status, _ = call(t, app, fiber.MethodGet, "/metrics", techToken, nil)
	if status != fiber.StatusForbidden {
		t.Fatalf("technician metrics: expected 403, got %d", status)
	}
}

func TestCustomerPartialPatchOverHTTP(t *testing.T) {
	app := newTestApp(t)
	ownerToken := login(t, app, "owner", "owner-pass")

	status, env := call(t, app, fiber.MethodPost, "/customers", ownerToken, map[string]string{
		"name": "Giulia", "phone": "555-7", "email": "giulia@x.io", "address": "Via Roma 1",
	})
	if status != fiber.StatusCreated {
		t.Fatalf("create customer: %d %+v", status, env.Error)
	}
	type customerView struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Phone   string `json:"phone"`
		Email   string `json:"email"`
		Address string `json:"address"`
	}
	created := decode[customerView](t, env)

	status, env = call(t, app, fiber.MethodPatch, "/customers/"+created.ID, ownerToken, map[string]string{"name": "Giulia B"})
	if status != fiber.StatusOK {
		t.Fatalf("patch: %d %+v", status, env.Error)
	}
	status, env = call(t, app, fiber.MethodGet, "/customers/"+created.ID, ownerToken, nil)
	if status != fiber.StatusOK {
		t.Fatalf("get: %d", status)
	}
	got := decode[customerView](t, env)
	if got.Name != "Giulia B" || got.Phone != "555-7" || got.Email != "giulia@x.io" || got.Address != "Via Roma 1" {
		t.Fatalf("name-only patch changed other fields: %+v", got)
	}
}
