package webhook

import (
	"wa_attribution_backend/internal/events"
	"wa_attribution_backend/internal/http/middleware"
	"wa_attribution_backend/platform/config"
	"wa_attribution_backend/platform/logger"
	"wa_attribution_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Module is the inbound webhook bounded context module.
type Module struct {
	handler *Handler
	apiKey  string
}

// NewModule wires the webhook service against the lead store and resolver.
func NewModule(leads LeadStore, resolver Resolver, eventBus events.Bus, cfg config.WebhookConfig, val *validator.Validator, log *logger.Logger) *Module {
	service := NewService(leads, resolver, eventBus, log)
	return &Module{
		handler: NewHandler(service, val),
		apiKey:  cfg.GetWebhookAPIKey(),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes behind API key auth.
func (m *Module) RegisterRoutes(v1 *gin.RouterGroup) {
	group := v1.Group("/webhooks", middleware.RequireAPIKey(m.apiKey))
	m.handler.RegisterRoutes(group)
}
