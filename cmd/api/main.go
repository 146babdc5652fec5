package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/mouradajaa1-dot/fix-manager/internal/api/http"
	"github.com/mouradajaa1-dot/fix-manager/internal/api/http/handlers"
	"github.com/mouradajaa1-dot/fix-manager/internal/auth"
	"github.com/mouradajaa1-dot/fix-manager/internal/config"
	"github.com/mouradajaa1-dot/fix-manager/internal/customer"
	"github.com/mouradajaa1-dot/fix-manager/internal/events"
	"github.com/mouradajaa1-dot/fix-manager/internal/observability"
	"github.com/mouradajaa1-dot/fix-manager/internal/persistence"
	"github.com/mouradajaa1-dot/fix-manager/internal/propagation"
	"github.com/mouradajaa1-dot/fix-manager/internal/repository"
	"github.com/mouradajaa1-dot/fix-manager/internal/repository/memory"
	"github.com/mouradajaa1-dot/fix-manager/internal/service"
	"github.com/mouradajaa1-dot/fix-manager/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// stores is the set of repositories backing the services.
type stores struct {
	actors    repository.ActorRepository
	customers repository.CustomerRepository
	tickets   repository.TicketRepository
	history   repository.TicketHistoryRepository
	ledger    repository.LedgerRepository
	feed      repository.ChangeFeed
	sequencer repository.Sequencer
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	st := openStores(*cfg, pg, redis, logger)
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	matcher := customer.NewMatcher(st.customers, cfg.Intake.CustomerCapPerTeam, logger)

	identityService := service.NewIdentityService(*cfg, service.IdentityDependencies{
		ActorRepo:  st.actors,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	if err := identityService.EnsureTenantDefaults(ctx, cfg.Auth.DefaultTenant); err != nil {
		logger.Fatal("failed to provision default tenant", zap.Error(err))
	}
	ticketService := service.NewTicketService(*cfg, service.TicketDependencies{
		TicketRepo:   st.tickets,
		CustomerRepo: st.customers,
		HistoryRepo:  st.history,
		Matcher:      matcher,
		Sequencer:    st.sequencer,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
	})
	customerService := service.NewCustomerService(service.CustomerDependencies{
		CustomerRepo: st.customers,
		TicketRepo:   st.tickets,
		Matcher:      matcher,
		Dispatcher:   dispatcher,
		Logger:       logger,
	})
	ledgerService := service.NewLedgerService(*cfg, service.LedgerDependencies{
		LedgerRepo: st.ledger,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	dashboardService := service.NewDashboardService(service.DashboardDependencies{
		TicketRepo:    st.tickets,
		CustomerRepo:  st.customers,
		LedgerService: ledgerService,
	})

	var sink events.Sink
	if kafkaSink := events.NewKafkaSink(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic); kafkaSink != nil {
		sink = kafkaSink
		logger.Info("forwarding events to kafka", zap.Strings("brokers", cfg.Events.KafkaBrokers), zap.String("topic", cfg.Events.KafkaTopic))
	}
	notificationWorker := worker.NewNotificationWorker(sink, logger, 0)
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, notificationWorker, logger, cfg.Notification))

	hub := propagation.NewHub(st.feed, propagation.RepositoryLoader{
		Actors:    st.actors,
		Customers: st.customers,
		Tickets:   st.tickets,
		Ledger:    st.ledger,
	}, propagation.Options{
		MinBackoff: cfg.Propagation.MinBackoff(),
		MaxBackoff: cfg.Propagation.MaxBackoff(),
		MaxPending: cfg.Propagation.MaxPending,
		Logger:     logger,
		Metrics:    metrics,
	})

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, httptransport.MiddlewareConfig{
		Logger:         logger,
		Metrics:        metrics,
		RequestTimeout: cfg.App.RequestTimeout(),
		CORSOrigins:    cfg.App.CORSOrigins,
	})
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(handlers.HealthDependencies{
			ServiceName: cfg.App.Name,
			Version:     cfg.App.Version,
			Postgres:    pg,
			Redis:       redis,
			Feed:        hub,
			Metrics:     metrics,
		}),
		Auth:           handlers.NewAuthHandler(identityService),
		Actors:         handlers.NewActorsHandler(identityService),
		Customers:      handlers.NewCustomersHandler(customerService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Ledger:         handlers.NewLedgerHandler(ledgerService),
		Dashboard:      handlers.NewDashboardHandler(dashboardService),
		Stream:         handlers.NewStreamHandler(hub, logger),
		AuthMiddleware: auth.NewAuthMiddleware(identityService),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		return app.Listen(cfg.App.Addr())
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		return notificationWorker.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("service stopped", zap.Error(err))
	}
	logger.Info("stopped", zap.Int64("dropped_events", notificationWorker.Dropped()))
}

// openStores picks the backing store: postgres when configured, otherwise
// the in-memory store. Ticket counters prefer redis when it is reachable.
func openStores(cfg config.Config, pg *persistence.Postgres, redis *persistence.Redis, logger *zap.Logger) stores {
	timeout := cfg.Store.Timeout()
	pool := pg.PoolHandle()
	if pool == nil {
		mem := memory.New(cfg.Intake.TicketSeqStart)
		return stores{
			actors:    mem.Actors(),
			customers: mem.Customers(),
			tickets:   mem.Tickets(),
			history:   mem.History(),
			ledger:    mem.Ledger(),
			feed:      mem.Feed(),
			sequencer: mem.Sequencer(),
		}
	}

	st := stores{
		actors:    repository.NewActorRepository(pool, timeout),
		customers: repository.NewCustomerRepository(pool, timeout),
		tickets:   repository.NewTicketRepository(pool, timeout),
		history:   repository.NewTicketHistoryRepository(pool, timeout),
		ledger:    repository.NewLedgerRepository(pool, timeout),
		feed:      repository.NewChangeFeed(pool, logger),
		sequencer: repository.NewSequencer(pool, cfg.Intake.TicketSeqStart, timeout),
	}
	if redis != nil {
		st.sequencer = repository.NewRedisSequencer(redis.Client, cfg.Intake.TicketSeqStart, timeout)
	}
	return st
}
