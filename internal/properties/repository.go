// Package properties provides read access to the property catalogue and its
// suburb-level aggregates. Properties are owned by the ingestion pipeline;
// this core only consumes them as valuation inputs.
package properties

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"property_market_backend/platform/apperr"
)

const propertyNotFoundMessage = "property not found"

// Property is the subset of the property record the valuation engine needs.
type Property struct {
	ID           uuid.UUID
	AddressLine1 string
	Suburb       string
	City         string
	CVValue      int
	PropertyType *string
	Bedrooms     *int
	Bathrooms    *int
}

// SuburbStats carries suburb-level aggregates used for valuation calibration.
// AvgSalePrice covers sales from the recent sample window only; SampleSize is
// the number of sales backing it. Zero values mean no data.
type SuburbStats struct {
	Suburb       string
	AvgCVValue   float64
	AvgSalePrice float64
	SampleSize   int
}

// Reader provides read operations over the property catalogue.
type Reader interface {
	GetByID(ctx context.Context, id uuid.UUID) (Property, error)
	ListBySuburb(ctx context.Context, suburb string) ([]Property, error)
	SuburbStats(ctx context.Context, suburb string) (SuburbStats, error)
}

// recentSaleWindow bounds the sales sample used for suburb calibration.
const recentSaleWindow = "24 months"

// Repo implements Reader with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new properties repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Reader.
var _ Reader = (*Repo)(nil)

// GetByID retrieves a property by its ID.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (Property, error) {
	query := `
		SELECT id, address_line1, suburb, city, COALESCE(cv_value, 0), property_type, bedrooms, bathrooms
		FROM properties
		WHERE id = $1`

	var p Property
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.AddressLine1, &p.Suburb, &p.City, &p.CVValue, &p.PropertyType, &p.Bedrooms, &p.Bathrooms,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Property{}, apperr.NotFound(propertyNotFoundMessage)
		}
		return Property{}, fmt.Errorf("get property by id: %w", err)
	}

	return p, nil
}

// ListBySuburb retrieves all properties in a suburb, ordered by address.
func (r *Repo) ListBySuburb(ctx context.Context, suburb string) ([]Property, error) {
	query := `
		SELECT id, address_line1, suburb, city, COALESCE(cv_value, 0), property_type, bedrooms, bathrooms
		FROM properties
		WHERE suburb = $1
		ORDER BY address_line1 ASC`

	rows, err := r.pool.Query(ctx, query, suburb)
	if err != nil {
		return nil, fmt.Errorf("list properties by suburb: %w", err)
	}
	defer rows.Close()

	var results []Property
	for rows.Next() {
		var p Property
		if err := rows.Scan(&p.ID, &p.AddressLine1, &p.Suburb, &p.City, &p.CVValue, &p.PropertyType, &p.Bedrooms, &p.Bathrooms); err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		results = append(results, p)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("list properties by suburb: %w", rows.Err())
	}

	return results, nil
}

// SuburbStats computes suburb aggregates: average CV over all properties and
// average sale price over the recent sales window.
func (r *Repo) SuburbStats(ctx context.Context, suburb string) (SuburbStats, error) {
	query := `
		SELECT
			COALESCE(AVG(p.cv_value) FILTER (WHERE p.cv_value > 0), 0),
			COALESCE(AVG(s.sale_price), 0),
			COUNT(s.id)
		FROM properties p
		LEFT JOIN sales s
			ON s.property_id = p.id
			AND s.sale_date >= now() - interval '` + recentSaleWindow + `'
		WHERE p.suburb = $1`

	stats := SuburbStats{Suburb: suburb}
	err := r.pool.QueryRow(ctx, query, suburb).Scan(&stats.AvgCVValue, &stats.AvgSalePrice, &stats.SampleSize)
	if err != nil {
		return SuburbStats{}, fmt.Errorf("suburb stats: %w", err)
	}

	return stats, nil
}
