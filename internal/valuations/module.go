// Package valuations provides the heuristic valuation engine: on-demand
// estimates with confidence bands and queued suburb-wide revaluation.
package valuations

import (
	apphttp "property_market_backend/internal/http"
	"property_market_backend/internal/properties"
	"property_market_backend/internal/valuations/handler"
	"property_market_backend/internal/valuations/repository"
	"property_market_backend/internal/valuations/service"
	"property_market_backend/platform/events"
	"property_market_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the valuations bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the valuations module.
func NewModule(pool *pgxpool.Pool, props properties.Reader, bus events.Bus, enqueuer handler.RevaluationEnqueuer, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.NewService(repo, props, bus, log)
	h := handler.New(svc, enqueuer)

	return &Module{
		handler: h,
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "valuations"
}

// Service returns the service layer for background workers.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts valuation routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Public, but behind the intake rate limiter: valuations back the
	// public listing pages.
	ctx.V1.GET("/properties/:id/valuation", ctx.IntakeRateLimiter.RateLimit(), m.handler.GetValuation)

	// Suburb-wide recomputation runs in the background worker.
	ctx.Admin.POST("/suburbs/:suburb/revalue", m.handler.RevalueSuburb)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
