package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"property_market_backend/internal/agents/service"
	"property_market_backend/internal/agents/transport"
	"property_market_backend/platform/httpkit"
	"property_market_backend/platform/validator"
)

// Handler handles HTTP requests for agent subscriptions and metrics.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid subscription ID"
)

// New creates a new agents handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// CreateSubscription activates a subscription (admin only).
// POST /api/v1/admin/subscriptions
func (h *Handler) CreateSubscription(c *gin.Context) {
	var req transport.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.CreateSubscription(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, result)
}

// DeactivateSubscription ends a subscription (admin only).
// POST /api/v1/admin/subscriptions/:id/deactivate
func (h *Handler) DeactivateSubscription(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	result, err := h.svc.DeactivateSubscription(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ChangeTier updates the tier of an active subscription (admin only).
// PATCH /api/v1/admin/subscriptions/:id/tier
func (h *Handler) ChangeTier(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	var req transport.ChangeTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.ChangeTier(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetMetrics returns the calling agent's monthly metrics.
// GET /api/v1/agent/metrics?period=YYYY-MM
func (h *Handler) GetMetrics(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.GetMetrics(c.Request.Context(), identity.AgentID(), c.Query("period"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}
