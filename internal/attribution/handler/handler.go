// Package handler exposes attribution resolution and retroactive
// recorrelation over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"wa_attribution_backend/internal/attribution/correlator"
	"wa_attribution_backend/internal/attribution/ports"
	"wa_attribution_backend/internal/attribution/resolver"
	"wa_attribution_backend/internal/attribution/transport"
	"wa_attribution_backend/internal/events"
	"wa_attribution_backend/internal/http/response"
	"wa_attribution_backend/platform/logger"
	"wa_attribution_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const defaultBatchLimit = 500

// EligibilityReader selects leads due for recorrelation.
type EligibilityReader interface {
	ListRecorrelationCandidates(ctx context.Context, since time.Time, limit int) ([]uuid.UUID, error)
}

// BatchEnqueuer hands a recorrelation batch to the task queue. nil when Redis
// is not configured; batches then run inline.
type BatchEnqueuer interface {
	EnqueueRecorrelation(ctx context.Context, leadIDs []uuid.UUID) error
}

// Handler serves the attribution endpoints.
type Handler struct {
	resolver    *resolver.Service
	correlator  *correlator.Service
	updater     ports.LeadAttributionWriter
	eligibility EligibilityReader
	enqueuer    BatchEnqueuer
	eventBus    events.Bus
	windowDays  int
	val         *validator.Validator
	log         *logger.Logger
}

// New creates an attribution handler. enqueuer may be nil.
func New(res *resolver.Service, corr *correlator.Service, updater ports.LeadAttributionWriter, eligibility EligibilityReader, enqueuer BatchEnqueuer, eventBus events.Bus, windowDays int, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{
		resolver:    res,
		correlator:  corr,
		updater:     updater,
		eligibility: eligibility,
		enqueuer:    enqueuer,
		eventBus:    eventBus,
		windowDays:  windowDays,
		val:         val,
		log:         log,
	}
}

// RegisterRoutes mounts attribution routes on the provided group.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/resolve", h.resolve)
	group.POST("/recorrelate", h.recorrelate)
}

func (h *Handler) resolve(c *gin.Context) {
	var req transport.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	result, err := h.resolver.Resolve(c.Request.Context(), req.EventContext())
	if err != nil {
		// Fail closed: a backing-store failure is reported as no attribution.
		h.log.Error("attribution resolution failed", "error", err)
		response.JSON(c, http.StatusOK, transport.ResolveResponse{Attributed: false})
		return
	}
	if result == nil {
		response.JSON(c, http.StatusOK, transport.ResolveResponse{Attributed: false})
		return
	}

	resp := transport.ResolveResponse{
		Attributed: true,
		Result:     transport.FromDomain(*result),
	}

	if req.LeadID != nil {
		if err := h.updater.ApplyAttribution(c.Request.Context(), *req.LeadID, *result); err != nil {
			h.log.Error("failed to apply attribution to lead", "leadId", *req.LeadID, "error", err)
		} else {
			resp.Applied = true
			h.log.AttributionEvent(req.LeadID.String(), result.MatchType, result.ConfidenceScore, true)
			h.eventBus.Publish(c.Request.Context(), events.LeadAttributed{
				BaseEvent:      events.NewBaseEvent(),
				LeadID:         *req.LeadID,
				MatchType:      result.MatchType,
				Score:          result.ConfidenceScore,
				CampaignName:   result.CampaignName,
				TrackingMethod: result.TrackingMethod(),
			})
		}
	}

	response.JSON(c, http.StatusOK, resp)
}

func (h *Handler) recorrelate(c *gin.Context) {
	var req transport.RecorrelateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		response.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	leadIDs := req.LeadIDs
	if len(leadIDs) == 0 {
		windowDays := req.WindowDays
		if windowDays == 0 {
			windowDays = h.windowDays
		}
		since := time.Now().UTC().AddDate(0, 0, -windowDays)

		ids, err := h.eligibility.ListRecorrelationCandidates(c.Request.Context(), since, defaultBatchLimit)
		if err != nil {
			h.log.DatabaseError("attribution.list_recorrelation_candidates", err)
			response.Error(c, http.StatusInternalServerError, "failed to select leads", nil)
			return
		}
		leadIDs = ids
	}

	if len(leadIDs) == 0 {
		response.JSON(c, http.StatusOK, transport.RecorrelateResponse{})
		return
	}

	if h.enqueuer != nil {
		if err := h.enqueuer.EnqueueRecorrelation(c.Request.Context(), leadIDs); err != nil {
			h.log.Error("failed to enqueue recorrelation batch", "error", err, "leads", len(leadIDs))
			response.Error(c, http.StatusInternalServerError, "failed to enqueue batch", nil)
			return
		}
		response.JSON(c, http.StatusAccepted, transport.RecorrelateResponse{Enqueued: true, Processed: len(leadIDs)})
		return
	}

	report, err := h.correlator.RunBatch(c.Request.Context(), leadIDs)
	if err != nil {
		h.log.Error("recorrelation batch aborted", "error", err)
		response.Error(c, http.StatusInternalServerError, "batch aborted", nil)
		return
	}

	response.JSON(c, http.StatusOK, transport.RecorrelateResponse{
		Processed: report.Processed,
		Updated:   report.Updated,
		Errors:    report.Errors,
	})
}
