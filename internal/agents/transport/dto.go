package transport

import "github.com/google/uuid"

// CreateSubscriptionRequest activates a suburb subscription, typically called
// by the billing webhook translator after checkout completes.
type CreateSubscriptionRequest struct {
	AgentID           uuid.UUID `json:"agentId" validate:"required"`
	Suburb            string    `json:"suburb" validate:"required,min=1,max=100"`
	Tier              string    `json:"tier" validate:"required,oneof=basic premium seller"`
	MonthlyPriceCents int       `json:"monthlyPriceCents" validate:"min=0"`
	LeadCapPerMonth   *int      `json:"leadCapPerMonth,omitempty" validate:"omitempty,min=1"`
}

// ChangeTierRequest moves an active subscription to a different tier.
type ChangeTierRequest struct {
	Tier            string `json:"tier" validate:"required,oneof=basic premium seller"`
	LeadCapPerMonth *int   `json:"leadCapPerMonth,omitempty" validate:"omitempty,min=1"`
}

// SubscriptionResponse represents a subscription in API responses.
type SubscriptionResponse struct {
	ID                uuid.UUID `json:"id"`
	AgentID           uuid.UUID `json:"agentId"`
	Suburb            string    `json:"suburb"`
	Tier              string    `json:"tier"`
	MonthlyPriceCents int       `json:"monthlyPriceCents"`
	LeadCapPerMonth   *int      `json:"leadCapPerMonth,omitempty"`
	ActiveFrom        string    `json:"activeFrom"`
	ActiveTo          *string   `json:"activeTo,omitempty"`
	IsActive          bool      `json:"isActive"`
}

// MetricsResponse represents an agent's monthly metrics in API responses.
type MetricsResponse struct {
	AgentID                uuid.UUID `json:"agentId"`
	Period                 string    `json:"period"`
	AvgResponseTimeSeconds *int      `json:"avgResponseTimeSeconds,omitempty"`
	LeadsAssigned          int       `json:"leadsAssigned"`
	LeadsContacted         int       `json:"leadsContacted"`
	LeadsConverted         int       `json:"leadsConverted"`
	ConversionRate         float64   `json:"conversionRate"`
}
