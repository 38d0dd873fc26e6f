// Package tracking provides the visit capture bounded context module.
package tracking

import (
	"wa_attribution_backend/internal/attribution/ports"
	"wa_attribution_backend/internal/events"
	"wa_attribution_backend/internal/tracking/repository"
	"wa_attribution_backend/platform/logger"
	"wa_attribution_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the tracking bounded context module.
type Module struct {
	repo      *repository.Repository
	extractor *Extractor
	handler   *Handler
}

// NewModule creates and initializes the tracking module. clickIDs may be nil
// when no Redis-backed persisted-id provider is configured.
func NewModule(pool *pgxpool.Pool, clickIDs ports.ClickIDStore, devices DeviceRecorder, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	extractor := NewExtractor(repo, clickIDs, devices, eventBus, log)

	return &Module{
		repo:      repo,
		extractor: extractor,
		handler:   NewHandler(extractor, val),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "tracking"
}

// Store exposes the click event store for the attribution resolver.
func (m *Module) Store() ports.ClickEventStore {
	return m.repo
}

// Extractor exposes the fingerprint extractor for external callers.
func (m *Module) Extractor() *Extractor {
	return m.extractor
}

// RegisterRoutes mounts tracking routes.
func (m *Module) RegisterRoutes(v1 *gin.RouterGroup) {
	m.handler.RegisterRoutes(v1.Group("/track"))
}
