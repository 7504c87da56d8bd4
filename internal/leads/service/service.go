package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	agents "property_market_backend/internal/agents/repository"
	"property_market_backend/internal/events"
	"property_market_backend/internal/leads/domain"
	"property_market_backend/internal/leads/ranking"
	"property_market_backend/internal/leads/repository"
	"property_market_backend/internal/leads/transport"
	"property_market_backend/platform/apperr"
	"property_market_backend/platform/logger"
	"property_market_backend/platform/phone"
)

// Service implements lead routing and lifecycle updates.
type Service struct {
	leads         repository.Store
	agents        agents.Repository
	ranker        *ranking.Service
	bus           events.Bus
	log           *logger.Logger
	defaultSource string
}

// New creates a new leads service.
func New(leads repository.Store, agentRepo agents.Repository, ranker *ranking.Service, bus events.Bus, log *logger.Logger, defaultSource string) *Service {
	return &Service{
		leads:         leads,
		agents:        agentRepo,
		ranker:        ranker,
		bus:           bus,
		log:           log,
		defaultSource: defaultSource,
	}
}

// RouteLead persists an inbound lead and assigns it to the best available
// agent for its suburb. The lead is persisted even when no agent is
// available; the response states explicitly whether assignment happened.
func (s *Service) RouteLead(ctx context.Context, req transport.CreateLeadRequest) (transport.RouteLeadResponse, error) {
	params, err := s.createParams(req)
	if err != nil {
		return transport.RouteLeadResponse{}, err
	}

	lead, err := s.leads.Create(ctx, params)
	if err != nil {
		return transport.RouteLeadResponse{}, err
	}

	subscriptions, err := s.agents.ListActiveBySuburb(ctx, lead.Suburb)
	if err != nil {
		return transport.RouteLeadResponse{}, err
	}
	if len(subscriptions) == 0 {
		s.log.Warn("no agents subscribed to suburb", "suburb", lead.Suburb, "lead_id", lead.ID)
		return transport.RouteLeadResponse{Lead: toLeadResponse(lead)}, nil
	}

	candidates, err := s.ranker.RankAgents(ctx, subscriptions)
	if err != nil {
		return transport.RouteLeadResponse{}, err
	}
	if len(candidates) == 0 {
		s.log.Warn("no eligible agents for suburb", "suburb", lead.Suburb, "lead_id", lead.ID)
		return transport.RouteLeadResponse{Lead: toLeadResponse(lead)}, nil
	}

	top := candidates[0]
	lead, err = s.leads.AssignAgent(ctx, lead.ID, top.AgentID)
	if err != nil {
		return transport.RouteLeadResponse{}, err
	}

	if err := s.agents.IncrementLeadsAssigned(ctx, top.AgentID, agents.Period(time.Now())); err != nil {
		// The assignment already happened; a lost counter beats a lost lead.
		s.log.Error("increment leads_assigned failed", "agent_id", top.AgentID, "lead_id", lead.ID, "error", err)
	}

	s.log.Info("lead assigned", "lead_id", lead.ID, "agent_id", top.AgentID, "score", top.Score, "tier", top.Tier)

	agent, err := s.agents.GetAgent(ctx, top.AgentID)
	if err != nil {
		// Notification is fire-and-forget; routing already succeeded.
		s.log.Error("agent lookup for notification failed", "agent_id", top.AgentID, "error", err)
		return transport.RouteLeadResponse{
			Lead:          toLeadResponse(lead),
			AssignedAgent: &transport.AssignedAgentResponse{ID: top.AgentID.String()},
		}, nil
	}

	s.publishRouted(ctx, lead, agent)

	return transport.RouteLeadResponse{
		Lead: toLeadResponse(lead),
		AssignedAgent: &transport.AssignedAgentResponse{
			ID:    agent.ID.String(),
			Name:  agent.Name,
			Email: agent.Email,
		},
	}, nil
}

// UpdateLeadStatus moves a lead through its lifecycle on behalf of the
// assigned agent. Setting the current status again is a no-op, which keeps
// the metrics increments idempotent.
func (s *Service) UpdateLeadStatus(ctx context.Context, leadID, agentID uuid.UUID, newStatus domain.Status) (transport.LeadResponse, error) {
	if !newStatus.Valid() || newStatus == domain.StatusNew {
		return transport.LeadResponse{}, apperr.Validation("invalid lead status")
	}

	lead, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	if lead.AssignedAgentID == nil || *lead.AssignedAgentID != agentID {
		return transport.LeadResponse{}, apperr.Forbidden("lead is not assigned to this agent")
	}

	if lead.Status == newStatus {
		return toLeadResponse(lead), nil
	}
	if !domain.CanTransition(lead.Status, newStatus) {
		return transport.LeadResponse{}, apperr.Conflict("illegal status transition")
	}

	oldStatus := lead.Status
	lead, err = s.leads.UpdateStatus(ctx, leadID, newStatus)
	if err != nil {
		return transport.LeadResponse{}, err
	}

	period := agents.Period(time.Now())
	switch newStatus {
	case domain.StatusContacted:
		if err := s.agents.MarkContacted(ctx, agentID, period, s.responseSeconds(lead)); err != nil {
			s.log.Error("mark contacted failed", "agent_id", agentID, "lead_id", leadID, "error", err)
		}
	case domain.StatusClosedWon:
		if err := s.agents.MarkConverted(ctx, agentID, period); err != nil {
			s.log.Error("mark converted failed", "agent_id", agentID, "lead_id", leadID, "error", err)
		}
	}

	s.bus.Publish(ctx, events.LeadStatusChanged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		AgentID:   agentID,
		OldState:  string(oldStatus),
		NewState:  string(newStatus),
	})

	s.log.Info("lead status updated", "lead_id", leadID, "agent_id", agentID, "from", oldStatus, "to", newStatus)

	return toLeadResponse(lead), nil
}

// GetLead retrieves a lead by ID. Admin use.
func (s *Service) GetLead(ctx context.Context, id uuid.UUID) (transport.LeadResponse, error) {
	lead, err := s.leads.GetByID(ctx, id)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	return toLeadResponse(lead), nil
}

// ListAgentLeads returns the calling agent's leads, newest first.
func (s *Service) ListAgentLeads(ctx context.Context, agentID uuid.UUID, page, limit int) ([]transport.LeadResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}

	leads, err := s.leads.ListByAgent(ctx, agentID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}

	out := make([]transport.LeadResponse, len(leads))
	for i, l := range leads {
		out[i] = toLeadResponse(l)
	}
	return out, nil
}

func (s *Service) createParams(req transport.CreateLeadRequest) (repository.CreateParams, error) {
	params := repository.CreateParams{
		Type:     domain.Type(req.LeadType),
		Suburb:   req.Suburb,
		Name:     req.Name,
		Email:    req.Email,
		Message:  req.Message,
		Source:   s.defaultSource,
		Metadata: req.Metadata,
	}
	if !params.Type.Valid() {
		return repository.CreateParams{}, apperr.Validation("invalid lead type")
	}
	if req.Phone != nil {
		normalized := phone.NormalizeE164(*req.Phone)
		params.Phone = &normalized
	}
	if req.PropertyID != nil {
		propertyID, err := uuid.Parse(*req.PropertyID)
		if err != nil {
			return repository.CreateParams{}, apperr.Validation("invalid property ID")
		}
		params.PropertyID = &propertyID
	}
	return params, nil
}

// responseSeconds measures the agent's response time from assignment to the
// contacted transition. Zero when the assignment timestamp is missing.
func (s *Service) responseSeconds(lead repository.Lead) int64 {
	if lead.AssignedAt == nil {
		return 0
	}
	elapsed := int64(time.Since(*lead.AssignedAt).Seconds())
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

func (s *Service) publishRouted(ctx context.Context, lead repository.Lead, agent agents.Agent) {
	evt := events.LeadRouted{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     lead.ID,
		AgentID:    agent.ID,
		AgentName:  agent.Name,
		AgentEmail: agent.Email,
		LeadName:   lead.Name,
		LeadEmail:  lead.Email,
		LeadType:   string(lead.Type),
		Suburb:     lead.Suburb,
	}
	if lead.Phone != nil {
		evt.LeadPhone = *lead.Phone
	}
	if lead.Message != nil {
		evt.LeadMessage = *lead.Message
	}
	s.bus.Publish(ctx, evt)
}

func toLeadResponse(l repository.Lead) transport.LeadResponse {
	resp := transport.LeadResponse{
		ID:         l.ID.String(),
		LeadType:   string(l.Type),
		Suburb:     l.Suburb,
		Name:       l.Name,
		Email:      l.Email,
		Phone:      l.Phone,
		Message:    l.Message,
		Source:     l.Source,
		Status:     string(l.Status),
		AssignedAt: l.AssignedAt,
		Metadata:   l.Metadata,
		CreatedAt:  l.CreatedAt,
	}
	if l.PropertyID != nil {
		id := l.PropertyID.String()
		resp.PropertyID = &id
	}
	if l.AssignedAgentID != nil {
		id := l.AssignedAgentID.String()
		resp.AssignedAgentID = &id
	}
	return resp
}
