// Package service provides subscription lifecycle and metrics reporting for
// agents. Subscription activation happens on checkout completion and
// deactivation on cancellation or expiry; both are driven by external billing
// collaborators through the admin API.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"property_market_backend/internal/agents/repository"
	"property_market_backend/internal/agents/transport"
	"property_market_backend/platform/apperr"
	"property_market_backend/platform/logger"
)

// Service provides business logic for agent subscriptions and metrics.
type Service struct {
	repo repository.Repository
	log  *logger.Logger
}

// New creates a new agents service.
func New(repo repository.Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// CreateSubscription activates a suburb subscription for an agent.
func (s *Service) CreateSubscription(ctx context.Context, req transport.CreateSubscriptionRequest) (transport.SubscriptionResponse, error) {
	tier := repository.Tier(req.Tier)
	if !tier.Valid() {
		return transport.SubscriptionResponse{}, apperr.Validation("unknown subscription tier")
	}

	sub, err := s.repo.Create(ctx, repository.CreateSubscriptionParams{
		AgentID:           req.AgentID,
		Suburb:            req.Suburb,
		Tier:              tier,
		MonthlyPriceCents: req.MonthlyPriceCents,
		LeadCapPerMonth:   req.LeadCapPerMonth,
		ActiveFrom:        time.Now(),
	})
	if err != nil {
		return transport.SubscriptionResponse{}, err
	}

	s.log.Info("subscription activated",
		"subscriptionId", sub.ID,
		"agentId", sub.AgentID,
		"suburb", sub.Suburb,
		"tier", sub.Tier,
	)

	return toSubscriptionResponse(sub), nil
}

// DeactivateSubscription ends a subscription on cancellation or expiry.
func (s *Service) DeactivateSubscription(ctx context.Context, id uuid.UUID) (transport.SubscriptionResponse, error) {
	sub, err := s.repo.Deactivate(ctx, id)
	if err != nil {
		return transport.SubscriptionResponse{}, err
	}

	s.log.Info("subscription deactivated", "subscriptionId", sub.ID, "agentId", sub.AgentID, "suburb", sub.Suburb)

	return toSubscriptionResponse(sub), nil
}

// ChangeTier moves an active subscription to a different tier.
func (s *Service) ChangeTier(ctx context.Context, id uuid.UUID, req transport.ChangeTierRequest) (transport.SubscriptionResponse, error) {
	tier := repository.Tier(req.Tier)
	if !tier.Valid() {
		return transport.SubscriptionResponse{}, apperr.Validation("unknown subscription tier")
	}

	sub, err := s.repo.ChangeTier(ctx, id, tier, req.LeadCapPerMonth)
	if err != nil {
		return transport.SubscriptionResponse{}, err
	}

	return toSubscriptionResponse(sub), nil
}

// GetMetrics returns an agent's metrics for the given period, defaulting to
// the current calendar month. A missing row means no activity yet and is
// returned as zero counters rather than an error.
func (s *Service) GetMetrics(ctx context.Context, agentID uuid.UUID, period string) (transport.MetricsResponse, error) {
	if period == "" {
		period = repository.Period(time.Now())
	}

	m, err := s.repo.Get(ctx, agentID, period)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return transport.MetricsResponse{AgentID: agentID, Period: period}, nil
		}
		return transport.MetricsResponse{}, err
	}

	return toMetricsResponse(m), nil
}

func toSubscriptionResponse(sub repository.Subscription) transport.SubscriptionResponse {
	resp := transport.SubscriptionResponse{
		ID:                sub.ID,
		AgentID:           sub.AgentID,
		Suburb:            sub.Suburb,
		Tier:              string(sub.Tier),
		MonthlyPriceCents: sub.MonthlyPriceCents,
		LeadCapPerMonth:   sub.LeadCapPerMonth,
		ActiveFrom:        sub.ActiveFrom.Format(time.RFC3339),
		IsActive:          sub.IsActive,
	}
	if sub.ActiveTo != nil {
		formatted := sub.ActiveTo.Format(time.RFC3339)
		resp.ActiveTo = &formatted
	}
	return resp
}

func toMetricsResponse(m repository.Metrics) transport.MetricsResponse {
	resp := transport.MetricsResponse{
		AgentID:                m.AgentID,
		Period:                 m.Period,
		AvgResponseTimeSeconds: m.AvgResponseTimeSeconds,
		LeadsAssigned:          m.LeadsAssigned,
		LeadsContacted:         m.LeadsContacted,
		LeadsConverted:         m.LeadsConverted,
	}
	if m.LeadsAssigned > 0 {
		resp.ConversionRate = float64(m.LeadsConverted) / float64(m.LeadsAssigned)
	}
	return resp
}
