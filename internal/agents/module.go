// Package agents provides the agent capacity bounded context: suburb
// subscriptions (tier, lead cap, active window) and monthly performance
// metrics consumed by the lead ranking algorithm.
package agents

import (
	"property_market_backend/internal/agents/handler"
	"property_market_backend/internal/agents/repository"
	"property_market_backend/internal/agents/service"
	apphttp "property_market_backend/internal/http"
	"property_market_backend/platform/logger"
	"property_market_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the agents bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    repository.Repository
}

// NewModule creates and initializes the agents module with all its dependencies.
func NewModule(pool *pgxpool.Pool, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "agents"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository returns the repository for cross-module wiring (lead routing
// reads subscriptions and writes metrics through it).
func (m *Module) Repository() repository.Repository {
	return m.repo
}

// RegisterRoutes mounts agent routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Agent-facing analytics
	ctx.Protected.GET("/metrics", m.handler.GetMetrics)

	// Billing-driven subscription lifecycle (admin only)
	adminGroup := ctx.Admin.Group("/subscriptions")
	adminGroup.POST("", m.handler.CreateSubscription)
	adminGroup.POST("/:id/deactivate", m.handler.DeactivateSubscription)
	adminGroup.PATCH("/:id/tier", m.handler.ChangeTier)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
