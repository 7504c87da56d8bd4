package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"property_market_backend/internal/valuations/repository"
	"property_market_backend/internal/valuations/service"
	"property_market_backend/internal/valuations/transport"
	"property_market_backend/platform/httpkit"
)

// RevaluationEnqueuer queues a suburb-wide revaluation for background
// processing instead of running it inside the request.
type RevaluationEnqueuer interface {
	EnqueueSuburbRevaluation(ctx context.Context, suburb string) error
}

// Handler handles HTTP requests for property valuations.
type Handler struct {
	svc      *service.Service
	enqueuer RevaluationEnqueuer
}

// New creates a new valuations handler.
func New(svc *service.Service, enqueuer RevaluationEnqueuer) *Handler {
	return &Handler{svc: svc, enqueuer: enqueuer}
}

// GetValuation returns the current valuation for a property, computing one
// on demand when the stored estimate is stale or missing.
// GET /api/v1/properties/:id/valuation
func (h *Handler) GetValuation(c *gin.Context) {
	propertyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid property ID", nil)
		return
	}

	v, err := h.svc.GetOrComputeValuation(c.Request.Context(), propertyID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toValuationResponse(v))
}

// RevalueSuburb queues a revaluation of every property in a suburb (admin only).
// POST /api/v1/admin/suburbs/:suburb/revalue
func (h *Handler) RevalueSuburb(c *gin.Context) {
	suburb := strings.TrimSpace(c.Param("suburb"))
	if suburb == "" {
		httpkit.Error(c, http.StatusBadRequest, "suburb is required", nil)
		return
	}

	if err := h.enqueuer.EnqueueSuburbRevaluation(c.Request.Context(), suburb); err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "failed to queue revaluation", nil)
		return
	}

	httpkit.JSON(c, http.StatusAccepted, transport.RevalueResponse{Suburb: suburb, Status: "queued"})
}

func toValuationResponse(v repository.Valuation) transport.ValuationResponse {
	return transport.ValuationResponse{
		PropertyID:    v.PropertyID.String(),
		EstimateValue: v.EstimateValue,
		EstimateDate:  v.EstimateDate,
		ModelVersion:  v.ModelVersion,
		ConfidenceBand: transport.ConfidenceBand{
			Low:  v.ConfidenceBandLow,
			High: v.ConfidenceBandHigh,
		},
		Features: transport.FeaturesResponse{
			CV:           v.Features.CV,
			SuburbRatio:  v.Features.SuburbRatio,
			Adjustment:   v.Features.Adjustment,
			BaseEstimate: v.Features.BaseEstimate,
			Suburb:       v.Features.Suburb,
			PropertyType: v.Features.PropertyType,
			Bedrooms:     v.Features.Bedrooms,
			Bathrooms:    v.Features.Bathrooms,
		},
	}
}
