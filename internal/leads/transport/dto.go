// Package transport defines request and response DTOs for the leads API.
package transport

import (
	"encoding/json"
	"time"
)

// CreateLeadRequest is the public lead-submission payload.
type CreateLeadRequest struct {
	LeadType   string          `json:"leadType" validate:"required,oneof=buyer seller mortgage rental"`
	Suburb     string          `json:"suburb" validate:"required,min=2,max=100"`
	Name       string          `json:"name" validate:"required,min=1,max=200"`
	Email      string          `json:"email" validate:"required,email"`
	Phone      *string         `json:"phone,omitempty" validate:"omitempty,max=30"`
	Message    *string         `json:"message,omitempty" validate:"omitempty,max=2000"`
	PropertyID *string         `json:"propertyId,omitempty" validate:"omitempty,uuid"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// UpdateLeadStatusRequest moves a lead through its lifecycle.
type UpdateLeadStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=delivered contacted qualified closed_won closed_lost"`
}

// LeadResponse is the lead payload returned to agents and admins.
type LeadResponse struct {
	ID              string          `json:"id"`
	LeadType        string          `json:"leadType"`
	Suburb          string          `json:"suburb"`
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Phone           *string         `json:"phone,omitempty"`
	Message         *string         `json:"message,omitempty"`
	PropertyID      *string         `json:"propertyId,omitempty"`
	Source          string          `json:"source"`
	Status          string          `json:"status"`
	AssignedAgentID *string         `json:"assignedAgentId,omitempty"`
	AssignedAt      *time.Time      `json:"assignedAt,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// AssignedAgentResponse identifies the agent a lead was routed to.
type AssignedAgentResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RouteLeadResponse is the lead-submission result. AssignedAgent is null when
// no eligible agent covers the suburb; the lead is persisted either way.
type RouteLeadResponse struct {
	Lead          LeadResponse           `json:"lead"`
	AssignedAgent *AssignedAgentResponse `json:"assignedAgent"`
}
