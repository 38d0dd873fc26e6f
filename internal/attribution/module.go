// Package attribution provides the attribution bounded context module:
// resolver, retroactive correlator and their HTTP surface.
package attribution

import (
	"wa_attribution_backend/internal/attribution/correlator"
	"wa_attribution_backend/internal/attribution/handler"
	"wa_attribution_backend/internal/attribution/ports"
	"wa_attribution_backend/internal/attribution/resolver"
	"wa_attribution_backend/internal/events"
	"wa_attribution_backend/platform/config"
	"wa_attribution_backend/platform/logger"
	"wa_attribution_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// LeadStore bundles the lead-side collaborators the attribution core needs.
// Satisfied by the leads repository.
type LeadStore interface {
	ports.LeadReader
	ports.DeviceLookup
	ports.LeadAttributionWriter
	handler.EligibilityReader
}

// Module is the attribution bounded context module.
type Module struct {
	resolver   *resolver.Service
	correlator *correlator.Service
	handler    *handler.Handler
}

// NewModule wires the resolver and correlator against their collaborators.
// enqueuer may be nil; recorrelation batches then run inline.
func NewModule(store ports.ClickEventStore, campaigns ports.CampaignNameReader, leadStore LeadStore, enqueuer handler.BatchEnqueuer, eventBus events.Bus, cfg config.CorrelatorConfig, val *validator.Validator, log *logger.Logger) *Module {
	res := resolver.New(store, campaigns, log)
	corr := correlator.New(leadStore, leadStore, res, leadStore, eventBus, cfg.GetCorrelatorThrottle(), log)

	return &Module{
		resolver:   res,
		correlator: corr,
		handler:    handler.New(res, corr, leadStore, leadStore, enqueuer, eventBus, cfg.GetRecorrelateWindowDays(), val, log),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "attribution"
}

// Resolver exposes the resolution service for the webhook module.
func (m *Module) Resolver() *resolver.Service {
	return m.resolver
}

// Correlator exposes the batch service for the scheduler worker and CLI.
func (m *Module) Correlator() *correlator.Service {
	return m.correlator
}

// RegisterRoutes mounts attribution routes.
func (m *Module) RegisterRoutes(v1 *gin.RouterGroup) {
	m.handler.RegisterRoutes(v1.Group("/attribution"))
}
