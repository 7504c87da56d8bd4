// Package ranking scores suburb-subscribed agents for lead assignment.
package ranking

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	agents "property_market_backend/internal/agents/repository"
	"property_market_backend/platform/apperr"
	"property_market_backend/platform/logger"
)

// Scoring weights. Tier reflects price paid; the bonuses reward fast,
// converting agents; the penalty spreads load away from nearly-full quotas.
const (
	tierWeightSeller  = 100.0
	tierWeightPremium = 50.0
	tierWeightBasic   = 10.0

	responseBonusMax   = 50.0
	responseBonusScale = 3600.0 // seconds per point lost

	conversionBonusMax = 30.0

	utilizationPenaltyMax = 20.0
)

// LeadCounter reports how many leads an agent has been assigned since a
// month boundary. Implemented by the leads repository.
type LeadCounter interface {
	CountAssignedInMonth(ctx context.Context, agentID uuid.UUID, monthStart time.Time) (int, error)
}

// MetricsReader provides current-period agent metrics for scoring.
type MetricsReader interface {
	Get(ctx context.Context, agentID uuid.UUID, period string) (agents.Metrics, error)
}

// Candidate is a scored, cap-eligible agent.
type Candidate struct {
	AgentID         uuid.UUID
	SubscriptionID  uuid.UUID
	Tier            agents.Tier
	Score           float64
	LeadsThisMonth  int
	LeadCapPerMonth *int
}

// Service ranks subscriptions for a suburb.
type Service struct {
	counter LeadCounter
	metrics MetricsReader
	log     *logger.Logger
	now     func() time.Time
}

// New creates a ranking service.
func New(counter LeadCounter, metrics MetricsReader, log *logger.Logger) *Service {
	return &Service{counter: counter, metrics: metrics, log: log, now: time.Now}
}

// WithClock overrides the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RankAgents filters out candidates at their monthly cap and orders the rest
// by score, highest first. Ties break by subscription ActiveFrom (earliest
// first), then subscription ID, so the order is stable regardless of input
// order.
func (s *Service) RankAgents(ctx context.Context, subscriptions []agents.Subscription) ([]Candidate, error) {
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	period := agents.Period(now)

	type scored struct {
		Candidate
		activeFrom time.Time
	}

	var ranked []scored
	for _, sub := range subscriptions {
		leadsThisMonth, err := s.counter.CountAssignedInMonth(ctx, sub.AgentID, monthStart)
		if err != nil {
			return nil, err
		}

		if sub.LeadCapPerMonth != nil && leadsThisMonth >= *sub.LeadCapPerMonth {
			s.log.Info("agent at monthly lead cap, skipping",
				"agent_id", sub.AgentID, "leads_this_month", leadsThisMonth, "cap", *sub.LeadCapPerMonth)
			continue
		}

		metrics, err := s.metrics.Get(ctx, sub.AgentID, period)
		if err != nil && !apperr.Is(err, apperr.KindNotFound) {
			return nil, err
		}

		ranked = append(ranked, scored{
			Candidate: Candidate{
				AgentID:         sub.AgentID,
				SubscriptionID:  sub.ID,
				Tier:            sub.Tier,
				Score:           score(sub, metrics, leadsThisMonth),
				LeadsThisMonth:  leadsThisMonth,
				LeadCapPerMonth: sub.LeadCapPerMonth,
			},
			activeFrom: sub.ActiveFrom,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if !ranked[i].activeFrom.Equal(ranked[j].activeFrom) {
			return ranked[i].activeFrom.Before(ranked[j].activeFrom)
		}
		return ranked[i].SubscriptionID.String() < ranked[j].SubscriptionID.String()
	})

	out := make([]Candidate, len(ranked))
	for i, r := range ranked {
		out[i] = r.Candidate
	}
	return out, nil
}

func score(sub agents.Subscription, metrics agents.Metrics, leadsThisMonth int) float64 {
	total := tierWeight(sub.Tier)

	if metrics.AvgResponseTimeSeconds != nil && *metrics.AvgResponseTimeSeconds > 0 {
		bonus := responseBonusMax - float64(*metrics.AvgResponseTimeSeconds)/responseBonusScale
		if bonus > 0 {
			total += bonus
		}
	}

	if metrics.LeadsAssigned > 0 {
		conversionRate := float64(metrics.LeadsConverted) / float64(metrics.LeadsAssigned)
		total += conversionRate * conversionBonusMax
	}

	if sub.LeadCapPerMonth != nil && *sub.LeadCapPerMonth > 0 {
		utilization := float64(leadsThisMonth) / float64(*sub.LeadCapPerMonth)
		total -= utilization * utilizationPenaltyMax
	}

	return total
}

func tierWeight(tier agents.Tier) float64 {
	switch tier {
	case agents.TierSeller:
		return tierWeightSeller
	case agents.TierPremium:
		return tierWeightPremium
	case agents.TierBasic:
		return tierWeightBasic
	}
	return 0
}
