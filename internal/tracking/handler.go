package tracking

import (
	"net/http"
	"net/url"

	"wa_attribution_backend/internal/http/response"
	"wa_attribution_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

type captureVisitRequest struct {
	SessionID        string `json:"sessionId" validate:"required"`
	VisitorID        string `json:"visitorId"`
	PageURL          string `json:"pageUrl" validate:"omitempty,url"`
	ScreenResolution string `json:"screenResolution"`
	Timezone         string `json:"timezone"`
	Language         string `json:"language"`
}

type whatsappClickRequest struct {
	SessionID        string `json:"sessionId" validate:"required"`
	VisitorID        string `json:"visitorId"`
	Phone            string `json:"phone" validate:"required"`
	PageURL          string `json:"pageUrl" validate:"omitempty,url"`
	ScreenResolution string `json:"screenResolution"`
	Timezone         string `json:"timezone"`
	Language         string `json:"language"`
}

type captureVisitResponse struct {
	SessionID string `json:"sessionId"`
	CtwaFound bool   `json:"ctwaFound"`
}

// Handler exposes the visit capture endpoint hit by the landing-page pixel.
type Handler struct {
	extractor *Extractor
	val       *validator.Validator
}

// NewHandler creates a tracking handler.
func NewHandler(extractor *Extractor, val *validator.Validator) *Handler {
	return &Handler{extractor: extractor, val: val}
}

// RegisterRoutes mounts tracking routes on the provided group.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/visit", h.captureVisit)
	group.POST("/whatsapp-click", h.whatsappClick)
}

func (h *Handler) captureVisit(c *gin.Context) {
	var req captureVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		response.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	var query url.Values
	if req.PageURL != "" {
		parsed, err := url.Parse(req.PageURL)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "invalid page url", nil)
			return
		}
		query = parsed.Query()
	}

	fp, err := h.extractor.Capture(c.Request.Context(), RawVisit{
		SessionID:        req.SessionID,
		VisitorID:        req.VisitorID,
		RemoteIP:         c.ClientIP(),
		UserAgent:        c.Request.UserAgent(),
		PageQuery:        query,
		ScreenResolution: req.ScreenResolution,
		Timezone:         req.Timezone,
		Language:         req.Language,
	})
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to capture visit", nil)
		return
	}

	response.JSON(c, http.StatusAccepted, captureVisitResponse{
		SessionID: fp.SessionID,
		CtwaFound: fp.CtwaClickID != nil,
	})
}

func (h *Handler) whatsappClick(c *gin.Context) {
	var req whatsappClickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		response.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	var query url.Values
	if req.PageURL != "" {
		parsed, err := url.Parse(req.PageURL)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "invalid page url", nil)
			return
		}
		query = parsed.Query()
	}

	fp, err := h.extractor.RecordWhatsAppClick(c.Request.Context(), req.Phone, RawVisit{
		SessionID:        req.SessionID,
		VisitorID:        req.VisitorID,
		RemoteIP:         c.ClientIP(),
		UserAgent:        c.Request.UserAgent(),
		PageQuery:        query,
		ScreenResolution: req.ScreenResolution,
		Timezone:         req.Timezone,
		Language:         req.Language,
	})
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to record click", nil)
		return
	}

	response.JSON(c, http.StatusAccepted, captureVisitResponse{
		SessionID: fp.SessionID,
		CtwaFound: fp.CtwaClickID != nil,
	})
}
