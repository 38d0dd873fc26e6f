package main

import (
	"context"
	"time"

	"wa_attribution_backend/internal/attribution/correlator"
	"wa_attribution_backend/internal/attribution/resolver"
	"wa_attribution_backend/internal/campaigns"
	"wa_attribution_backend/internal/events"
	"wa_attribution_backend/internal/leads"
	leadrepo "wa_attribution_backend/internal/leads/repository"
	trackrepo "wa_attribution_backend/internal/tracking/repository"
	"wa_attribution_backend/platform/config"
	"wa_attribution_backend/platform/db"
	"wa_attribution_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// One-shot backfill: walks every lead still lacking attribution inside the
// configured window and runs it through the correlator in batches.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting attribution backfill", "windowDays", cfg.RecorrelateWindowDays)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	leadsRepo := leadrepo.New(pool)
	leads.NewTimelineRecorder(leadsRepo, log).RegisterHandlers(eventBus)
	res := resolver.New(trackrepo.New(pool), campaigns.New(pool), log)
	corr := correlator.New(leadsRepo, leadsRepo, res, leadsRepo, eventBus, cfg.CorrelatorThrottle, log)

	const batchSize = 50

	since := time.Now().UTC().AddDate(0, 0, -cfg.RecorrelateWindowDays)

	var processed int
	var updated int
	var failed int

	cursorTime := time.Time{}
	cursorID := uuid.Nil

	for {
		leads, err := listUnattributedLeads(ctx, pool, since, batchSize, cursorTime, cursorID)
		if err != nil {
			log.Error("failed to list leads", "error", err)
			break
		}
		if len(leads) == 0 {
			break
		}

		cursorTime = leads[len(leads)-1].createdAt
		cursorID = leads[len(leads)-1].id

		ids := make([]uuid.UUID, len(leads))
		for i, lead := range leads {
			ids[i] = lead.id
		}

		report, err := corr.RunBatch(ctx, ids)
		if err != nil {
			log.Error("batch aborted", "error", err)
			break
		}

		processed += report.Processed
		updated += report.Updated
		failed += report.Errors
	}

	log.Info("attribution backfill completed", "processed", processed, "updated", updated, "errors", failed)
}

type leadCursor struct {
	id        uuid.UUID
	createdAt time.Time
}

func listUnattributedLeads(ctx context.Context, pool *pgxpool.Pool, since time.Time, limit int, cursorTime time.Time, cursorID uuid.UUID) ([]leadCursor, error) {
	rows, err := pool.Query(ctx, `
    SELECT id, created_at
    FROM leads
    WHERE created_at >= $1
      AND (utm_source IS NULL OR tracking_method IS NULL OR tracking_method = 'organic')
      AND (created_at > $2 OR (created_at = $2 AND id > $3))
    ORDER BY created_at ASC, id ASC
    LIMIT $4
  `, since, cursorTime, cursorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]leadCursor, 0)
	for rows.Next() {
		var lead leadCursor
		if err := rows.Scan(&lead.id, &lead.createdAt); err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return leads, nil
}
