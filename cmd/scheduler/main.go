package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wa_attribution_backend/internal/attribution/correlator"
	"wa_attribution_backend/internal/attribution/resolver"
	"wa_attribution_backend/internal/campaigns"
	"wa_attribution_backend/internal/events"
	"wa_attribution_backend/internal/leads"
	leadrepo "wa_attribution_backend/internal/leads/repository"
	"wa_attribution_backend/internal/scheduler"
	trackrepo "wa_attribution_backend/internal/tracking/repository"
	"wa_attribution_backend/platform/config"
	"wa_attribution_backend/platform/db"
	"wa_attribution_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)

	leadsRepo := leadrepo.New(pool)
	leads.NewTimelineRecorder(leadsRepo, log).RegisterHandlers(eventBus)

	res := resolver.New(trackrepo.New(pool), campaigns.New(pool), log)
	corr := correlator.New(leadsRepo, leadsRepo, res, leadsRepo, eventBus, cfg.CorrelatorThrottle, log)

	worker, err := scheduler.NewWorker(cfg, corr, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
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
