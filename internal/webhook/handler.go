package webhook

import (
	"net/http"
	"time"

	"wa_attribution_backend/internal/http/response"
	"wa_attribution_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

type referralPayload struct {
	CtwaClickID string `json:"ctwaClid"`
	SourceID    string `json:"sourceId"`
	SourceURL   string `json:"sourceUrl"`
	MediaURL    string `json:"mediaUrl"`
}

type inboundMessageRequest struct {
	Phone     string           `json:"phone" validate:"required"`
	Name      string           `json:"name"`
	Timestamp *time.Time       `json:"timestamp"`
	Referral  *referralPayload `json:"referral"`
}

type inboundMessageResponse struct {
	LeadID         string `json:"leadId"`
	Created        bool   `json:"created"`
	Attributed     bool   `json:"attributed"`
	TrackingMethod string `json:"trackingMethod,omitempty"`
	Score          int    `json:"confidenceScore,omitempty"`
}

// Handler serves the inbound WhatsApp webhook.
type Handler struct {
	service *Service
	val     *validator.Validator
}

// NewHandler creates a webhook handler.
func NewHandler(service *Service, val *validator.Validator) *Handler {
	return &Handler{service: service, val: val}
}

// RegisterRoutes mounts webhook routes on the provided group.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/whatsapp", h.whatsappInbound)
}

func (h *Handler) whatsappInbound(c *gin.Context) {
	var req inboundMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		response.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	msg := InboundMessage{From: req.Phone, Name: req.Name}
	if req.Timestamp != nil {
		msg.OccurredAt = req.Timestamp.UTC()
	}
	if req.Referral != nil {
		msg.Referral = &Referral{
			CtwaClickID: req.Referral.CtwaClickID,
			SourceID:    req.Referral.SourceID,
			SourceURL:   req.Referral.SourceURL,
			MediaURL:    req.Referral.MediaURL,
		}
	}

	outcome, err := h.service.HandleInbound(c.Request.Context(), msg)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to process message", nil)
		return
	}

	resp := inboundMessageResponse{
		LeadID:     outcome.LeadID.String(),
		Created:    outcome.Created,
		Attributed: outcome.Attributed,
	}
	if outcome.Result != nil {
		resp.TrackingMethod = outcome.Result.TrackingMethod()
		resp.Score = outcome.Result.ConfidenceScore
	}

	response.OK(c, resp)
}
