package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"property_market_backend/internal/agents"
	"property_market_backend/internal/email"
	"property_market_backend/internal/events"
	apphttp "property_market_backend/internal/http"
	"property_market_backend/internal/http/router"
	"property_market_backend/internal/leads"
	"property_market_backend/internal/notification"
	"property_market_backend/internal/notification/outbox"
	"property_market_backend/internal/properties"
	"property_market_backend/internal/scheduler"
	"property_market_backend/internal/valuations"
	"property_market_backend/internal/valuations/handler"
	"property_market_backend/platform/config"
	"property_market_backend/platform/db"
	"property_market_backend/platform/logger"
	"property_market_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Task client for queuing suburb revaluations
	enqueuer, closeEnqueuer := initSchedulerClient(cfg, log)
	if closeEnqueuer != nil {
		defer closeEnqueuer()
	}

	sender := email.NewSender(cfg)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	// Notification module subscribes to domain events (not HTTP-facing)
	notification.NewService(outbox.New(pool), sender, eventBus, log)

	propertiesRepo := properties.New(pool)

	agentsModule := agents.NewModule(pool, val, log)
	leadsModule := leads.NewModule(pool, agentsModule.Repository(), eventBus, val, log, cfg.DefaultLeadSource)
	valuationsModule := valuations.NewModule(pool, propertiesRepo, eventBus, enqueuer, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			agentsModule,
			leadsModule,
			valuationsModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initSchedulerClient builds the asynq client when Redis is configured.
// Without Redis the admin revalue endpoint degrades to an explicit error
// while everything else keeps working.
func initSchedulerClient(cfg config.SchedulerConfig, log *logger.Logger) (handler.RevaluationEnqueuer, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; suburb revaluation queue disabled")
		return disabledEnqueuer{}, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		return disabledEnqueuer{}, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

type disabledEnqueuer struct{}

func (disabledEnqueuer) EnqueueSuburbRevaluation(ctx context.Context, suburb string) error {
	return errors.New("task queue not configured")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
