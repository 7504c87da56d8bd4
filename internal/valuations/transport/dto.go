// Package transport defines request and response DTOs for the valuations API.
package transport

import "time"

// ConfidenceBand is the uncertainty range around an estimate.
type ConfidenceBand struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

// FeaturesResponse exposes the computation breakdown behind an estimate.
type FeaturesResponse struct {
	CV           int     `json:"cv"`
	SuburbRatio  float64 `json:"suburbRatio"`
	Adjustment   float64 `json:"adjustment"`
	BaseEstimate int     `json:"baseEstimate"`
	Suburb       string  `json:"suburb"`
	PropertyType *string `json:"propertyType,omitempty"`
	Bedrooms     *int    `json:"bedrooms,omitempty"`
	Bathrooms    *int    `json:"bathrooms,omitempty"`
}

// ValuationResponse is the public valuation payload.
type ValuationResponse struct {
	PropertyID     string           `json:"propertyId"`
	EstimateValue  int              `json:"estimateValue"`
	EstimateDate   time.Time        `json:"estimateDate"`
	ModelVersion   string           `json:"modelVersion"`
	ConfidenceBand ConfidenceBand   `json:"confidenceBand"`
	Features       FeaturesResponse `json:"features"`
}

// RevalueResponse acknowledges a queued suburb revaluation.
type RevalueResponse struct {
	Suburb string `json:"suburb"`
	Status string `json:"status"`
}
