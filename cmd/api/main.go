package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wa_attribution_backend/internal/attribution"
	"wa_attribution_backend/internal/attribution/handler"
	"wa_attribution_backend/internal/attribution/ports"
	"wa_attribution_backend/internal/campaigns"
	"wa_attribution_backend/internal/events"
	"wa_attribution_backend/internal/http/router"
	"wa_attribution_backend/internal/leads"
	leadrepo "wa_attribution_backend/internal/leads/repository"
	"wa_attribution_backend/internal/scheduler"
	"wa_attribution_backend/internal/tracking"
	"wa_attribution_backend/internal/tracking/clickid"
	"wa_attribution_backend/internal/webhook"
	"wa_attribution_backend/platform/config"
	"wa_attribution_backend/platform/db"
	"wa_attribution_backend/platform/logger"
	"wa_attribution_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

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

	val := validator.New()

	// Redis-backed click-id provider; absent Redis just disables the
	// cross-page fallback, capture itself keeps working.
	var clickIDStore ports.ClickIDStore
	if store, err := clickid.New(cfg); err != nil {
		log.Warn("click id store unavailable, cross-page fallback disabled", "error", err)
	} else if store != nil {
		clickIDStore = store
		defer func() { _ = store.Close() }()
		log.Info("click id store initialized", "ttl", cfg.ClickIDTTL)
	}

	// Recorrelation batches go through asynq when Redis is configured,
	// otherwise they run inline in the request.
	var enqueuer handler.BatchEnqueuer
	if cfg.RedisURL != "" {
		client, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Warn("scheduler client unavailable, recorrelation runs inline", "error", err)
		} else {
			enqueuer = client
			defer func() { _ = client.Close() }()
		}
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	leadsRepo := leadrepo.New(pool)
	campaignsRepo := campaigns.New(pool)

	// Timeline recorder subscribes to attribution events (not HTTP-facing)
	leads.NewTimelineRecorder(leadsRepo, log).RegisterHandlers(eventBus)

	trackingModule := tracking.NewModule(pool, clickIDStore, leadsRepo, eventBus, val, log)
	attributionModule := attribution.NewModule(trackingModule.Store(), campaignsRepo, leadsRepo, enqueuer, eventBus, cfg, val, log)
	webhookModule := webhook.NewModule(leadsRepo, attributionModule.Resolver(), eventBus, cfg, val, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	engine := router.New(cfg, log, db.NewPoolAdapter(pool),
		trackingModule,
		attributionModule,
		webhookModule,
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		panic("server error: " + err.Error())
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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
