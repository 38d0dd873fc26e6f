package scheduler

import (
	"context"
	"fmt"

	"wa_attribution_backend/internal/attribution/correlator"
	"wa_attribution_backend/platform/config"
	"wa_attribution_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Worker consumes recorrelation tasks and drives the correlator.
type Worker struct {
	server     *asynq.Server
	mux        *asynq.ServeMux
	correlator *correlator.Service
	log        *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, corr *correlator.Service, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		// Batches are internally throttled; parallel batches would defeat that.
		concurrency = 1
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:     server,
		mux:        mux,
		correlator: corr,
		log:        log,
	}

	mux.HandleFunc(TaskRecorrelate, w.handleRecorrelate)

	return w, nil
}

func (w *Worker) handleRecorrelate(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseRecorrelatePayload(task)
	if err != nil {
		return err
	}

	leadIDs := make([]uuid.UUID, 0, len(payload.LeadIDs))
	for _, raw := range payload.LeadIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			w.log.Warn("skipping malformed lead id in recorrelation task", "leadId", raw)
			continue
		}
		leadIDs = append(leadIDs, id)
	}

	if len(leadIDs) == 0 {
		return nil
	}

	report, err := w.correlator.RunBatch(ctx, leadIDs)
	if err != nil {
		return err
	}

	w.log.Info("recorrelation task finished",
		"processed", report.Processed, "updated", report.Updated, "errors", report.Errors)

	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
