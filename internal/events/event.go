// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"property_market_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Lead Domain Events
// =============================================================================

// LeadRouted is published when a lead has been assigned to an agent.
// It carries everything the notification pipeline needs so that the
// subscriber never has to reach back into the leads module.
type LeadRouted struct {
	BaseEvent
	LeadID      uuid.UUID `json:"leadId"`
	AgentID     uuid.UUID `json:"agentId"`
	AgentName   string    `json:"agentName"`
	AgentEmail  string    `json:"agentEmail"`
	LeadName    string    `json:"leadName"`
	LeadEmail   string    `json:"leadEmail"`
	LeadPhone   string    `json:"leadPhone"`
	LeadMessage string    `json:"leadMessage"`
	LeadType    string    `json:"leadType"`
	Suburb      string    `json:"suburb"`
}

func (e LeadRouted) EventName() string { return "leads.lead.routed" }

// LeadStatusChanged is published when an agent moves a lead through its
// lifecycle (contacted, qualified, closed).
type LeadStatusChanged struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	AgentID  uuid.UUID `json:"agentId"`
	OldState string    `json:"oldState"`
	NewState string    `json:"newState"`
}

func (e LeadStatusChanged) EventName() string { return "leads.lead.status_changed" }

// =============================================================================
// Notification Domain Events
// =============================================================================

// NotificationOutboxDue is published by the background worker when an outbox
// record is due for delivery.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
}

func (e NotificationOutboxDue) EventName() string { return "notification.outbox.due" }

// =============================================================================
// Valuation Domain Events
// =============================================================================

// ValuationComputed is published when the heuristic engine persists a new
// valuation row for a property.
type ValuationComputed struct {
	BaseEvent
	ValuationID   uuid.UUID `json:"valuationId"`
	PropertyID    uuid.UUID `json:"propertyId"`
	Suburb        string    `json:"suburb"`
	EstimateValue int       `json:"estimateValue"`
	ModelVersion  string    `json:"modelVersion"`
}

func (e ValuationComputed) EventName() string { return "valuations.valuation.computed" }
