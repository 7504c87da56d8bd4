package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Tier is an agent's subscription level. It determines routing priority and
// the monthly lead cap.
type Tier string

const (
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
	TierSeller  Tier = "seller"
)

// Valid reports whether the tier is one of the known levels.
func (t Tier) Valid() bool {
	switch t {
	case TierBasic, TierPremium, TierSeller:
		return true
	}
	return false
}

// Subscription is a paid claim on a suburb's leads. At most one active
// subscription may exist per (agent, suburb) pair; the constraint lives in
// the database as a partial unique index.
type Subscription struct {
	ID                uuid.UUID
	AgentID           uuid.UUID
	Suburb            string
	Tier              Tier
	MonthlyPriceCents int
	LeadCapPerMonth   *int // nil = unlimited
	ActiveFrom        time.Time
	ActiveTo          *time.Time
	IsActive          bool
}

// Agent carries the identity fields used in notification payloads.
type Agent struct {
	ID         uuid.UUID
	Name       string
	Email      string
	Phone      *string
	AgencyName *string
	IsActive   bool
}

// Metrics is the per-agent, per-calendar-month counter row. Period is
// formatted YYYY-MM.
type Metrics struct {
	AgentID                uuid.UUID
	Period                 string
	AvgResponseTimeSeconds *int
	LeadsAssigned          int
	LeadsContacted         int
	LeadsConverted         int
}

// CreateSubscriptionParams contains parameters for activating a subscription
// at checkout completion.
type CreateSubscriptionParams struct {
	AgentID           uuid.UUID
	Suburb            string
	Tier              Tier
	MonthlyPriceCents int
	LeadCapPerMonth   *int
	ActiveFrom        time.Time
}

// SubscriptionStore provides access to agent suburb subscriptions.
type SubscriptionStore interface {
	ListActiveBySuburb(ctx context.Context, suburb string) ([]Subscription, error)
	GetByID(ctx context.Context, id uuid.UUID) (Subscription, error)
	Create(ctx context.Context, params CreateSubscriptionParams) (Subscription, error)
	Deactivate(ctx context.Context, id uuid.UUID) (Subscription, error)
	ChangeTier(ctx context.Context, id uuid.UUID, tier Tier, leadCapPerMonth *int) (Subscription, error)
}

// AgentReader provides agent identity lookups for notification payloads.
type AgentReader interface {
	GetAgent(ctx context.Context, id uuid.UUID) (Agent, error)
}

// MetricsStore provides access to per-period agent metrics. All increments
// are single-statement atomic upserts so concurrent lead routing never loses
// an update.
type MetricsStore interface {
	Get(ctx context.Context, agentID uuid.UUID, period string) (Metrics, error)
	IncrementLeadsAssigned(ctx context.Context, agentID uuid.UUID, period string) error
	MarkContacted(ctx context.Context, agentID uuid.UUID, period string, responseSeconds int64) error
	MarkConverted(ctx context.Context, agentID uuid.UUID, period string) error
}

// Repository combines all agent-side store operations.
type Repository interface {
	SubscriptionStore
	AgentReader
	MetricsStore
}

// Period formats a point in time as the YYYY-MM metrics aggregation window.
func Period(t time.Time) string {
	return t.Format("2006-01")
}
