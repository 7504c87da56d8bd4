// Package leads provides the lead routing bounded context: public intake,
// agent ranking, assignment, and lifecycle updates.
package leads

import (
	agents "property_market_backend/internal/agents/repository"
	apphttp "property_market_backend/internal/http"
	"property_market_backend/internal/leads/handler"
	"property_market_backend/internal/leads/ranking"
	"property_market_backend/internal/leads/repository"
	"property_market_backend/internal/leads/service"
	"property_market_backend/platform/events"
	"property_market_backend/platform/logger"
	"property_market_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the leads module. The agents repository
// is shared with the agents module so routing reads subscriptions and writes
// metrics through one store.
func NewModule(pool *pgxpool.Pool, agentRepo agents.Repository, bus events.Bus, val *validator.Validator, log *logger.Logger, defaultSource string) *Module {
	repo := repository.New(pool)
	ranker := ranking.New(repo, agentRepo, log)
	svc := service.New(repo, agentRepo, ranker, bus, log, defaultSource)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// RegisterRoutes mounts lead routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Public intake, rate limited per IP.
	ctx.V1.POST("/leads", ctx.IntakeRateLimiter.RateLimit(), m.handler.CreateLead)

	// Agent-facing lifecycle
	ctx.Protected.GET("/leads", m.handler.ListMyLeads)
	ctx.Protected.PATCH("/leads/:id/status", m.handler.UpdateLeadStatus)

	// Admin visibility
	ctx.Admin.GET("/leads/:id", m.handler.GetLead)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
