package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"property_market_backend/platform/apperr"
)

const valuationNotFoundMessage = "valuation not found"

// Features is the full computation breakdown persisted with every valuation
// so an estimate can always be explained after the fact.
type Features struct {
	CV           int     `json:"cv"`
	SuburbRatio  float64 `json:"suburbRatio"`
	Adjustment   float64 `json:"adjustment"`
	BaseEstimate int     `json:"baseEstimate"`
	Suburb       string  `json:"suburb"`
	PropertyType *string `json:"propertyType,omitempty"`
	Bedrooms     *int    `json:"bedrooms,omitempty"`
	Bathrooms    *int    `json:"bathrooms,omitempty"`
}

// Valuation is an immutable, append-only estimate row. The "current"
// valuation for a property is the most recent row.
type Valuation struct {
	ID                 uuid.UUID
	PropertyID         uuid.UUID
	EstimateValue      int
	EstimateDate       time.Time
	ModelVersion       string
	ConfidenceBandLow  int
	ConfidenceBandHigh int
	Features           Features
}

// InsertParams contains parameters for appending a valuation row.
type InsertParams struct {
	PropertyID         uuid.UUID
	EstimateValue      int
	ModelVersion       string
	ConfidenceBandLow  int
	ConfidenceBandHigh int
	Features           Features
}

// Store provides access to valuation rows.
type Store interface {
	Insert(ctx context.Context, params InsertParams) (Valuation, error)
	LatestByProperty(ctx context.Context, propertyID uuid.UUID) (Valuation, error)
}

// Repo implements Store with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new valuations repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Store.
var _ Store = (*Repo)(nil)

// Insert appends a new valuation row. Existing rows are never updated.
func (r *Repo) Insert(ctx context.Context, params InsertParams) (Valuation, error) {
	featureBytes, err := json.Marshal(params.Features)
	if err != nil {
		return Valuation{}, fmt.Errorf("marshal valuation features: %w", err)
	}

	query := `
		INSERT INTO valuations (property_id, estimate_value, estimate_date, model_version, confidence_band_low, confidence_band_high, features)
		VALUES ($1, $2, now(), $3, $4, $5, $6)
		RETURNING id, property_id, estimate_value, estimate_date, model_version, confidence_band_low, confidence_band_high, features`

	v, err := scanValuation(r.pool.QueryRow(ctx, query,
		params.PropertyID, params.EstimateValue, params.ModelVersion,
		params.ConfidenceBandLow, params.ConfidenceBandHigh, featureBytes,
	))
	if err != nil {
		return Valuation{}, fmt.Errorf("insert valuation: %w", err)
	}

	return v, nil
}

// LatestByProperty returns the most recent valuation row for a property.
func (r *Repo) LatestByProperty(ctx context.Context, propertyID uuid.UUID) (Valuation, error) {
	query := `
		SELECT id, property_id, estimate_value, estimate_date, model_version, confidence_band_low, confidence_band_high, features
		FROM valuations
		WHERE property_id = $1
		ORDER BY estimate_date DESC, created_at DESC
		LIMIT 1`

	v, err := scanValuation(r.pool.QueryRow(ctx, query, propertyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Valuation{}, apperr.NotFound(valuationNotFoundMessage)
		}
		return Valuation{}, fmt.Errorf("latest valuation by property: %w", err)
	}

	return v, nil
}

func scanValuation(row pgx.Row) (Valuation, error) {
	var v Valuation
	var featureBytes []byte
	err := row.Scan(
		&v.ID, &v.PropertyID, &v.EstimateValue, &v.EstimateDate, &v.ModelVersion,
		&v.ConfidenceBandLow, &v.ConfidenceBandHigh, &featureBytes,
	)
	if err != nil {
		return Valuation{}, err
	}
	if len(featureBytes) > 0 {
		if err := json.Unmarshal(featureBytes, &v.Features); err != nil {
			return Valuation{}, fmt.Errorf("unmarshal valuation features: %w", err)
		}
	}
	return v, nil
}
