package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"property_market_backend/internal/events"
	"property_market_backend/internal/properties"
	"property_market_backend/internal/valuations/repository"
	"property_market_backend/platform/apperr"
	"property_market_backend/platform/logger"
)

const (
	modelVersion = "heuristic-v1"

	// fallbackCV stands in when a property has no capital value on record.
	fallbackCV = 500_000

	ratioMin = 0.8
	ratioMax = 1.3

	adjustmentMin = -0.05
	adjustmentMax = 0.15

	confidenceBandWidth = 0.10

	// freshnessWindow is how long a stored valuation is served as-is
	// before a read triggers recomputation.
	freshnessWindow = 30 * 24 * time.Hour
)

// Service implements the heuristic valuation engine.
type Service struct {
	store      repository.Store
	properties properties.Reader
	bus        events.Bus
	log        *logger.Logger

	// group collapses concurrent recomputations of the same property into
	// a single database round trip.
	group singleflight.Group
}

// NewService creates a new valuation service.
func NewService(store repository.Store, props properties.Reader, bus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, properties: props, bus: bus, log: log}
}

// GetOrComputeValuation returns the latest valuation for a property,
// recomputing it first when the stored one is older than the freshness
// window or missing entirely.
func (s *Service) GetOrComputeValuation(ctx context.Context, propertyID uuid.UUID) (repository.Valuation, error) {
	latest, err := s.store.LatestByProperty(ctx, propertyID)
	if err == nil && time.Since(latest.EstimateDate) < freshnessWindow {
		return latest, nil
	}
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return repository.Valuation{}, err
	}

	// The computation runs once for all callers collapsed into it, so it
	// must not inherit the first caller's cancellation.
	computeCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(propertyID.String(), func() (any, error) {
		return s.ComputeValuation(computeCtx, propertyID)
	})
	if err != nil {
		return repository.Valuation{}, err
	}

	return v.(repository.Valuation), nil
}

// ComputeValuation runs the heuristic for one property and appends the
// result as a new valuation row.
//
//	estimate = CV * suburbRatio * (1 + adjustment)
//
// where suburbRatio is avg recent sale price over avg CV for the suburb,
// clamped to [0.8, 1.3], and adjustment is a deterministic per-property
// offset in [-5%, +15%].
func (s *Service) ComputeValuation(ctx context.Context, propertyID uuid.UUID) (repository.Valuation, error) {
	prop, err := s.properties.GetByID(ctx, propertyID)
	if err != nil {
		return repository.Valuation{}, err
	}

	stats, statsErr := s.properties.SuburbStats(ctx, prop.Suburb)

	cv := prop.CVValue
	if cv <= 0 {
		if statsErr == nil && stats.AvgCVValue > 0 {
			cv = int(math.Round(stats.AvgCVValue))
			s.log.DataQuality("missing_cv", prop.ID.String(), "suburb", prop.Suburb, "fallback_suburb_avg", cv)
		} else {
			cv = fallbackCV
			s.log.DataQuality("missing_cv", prop.ID.String(), "suburb", prop.Suburb, "fallback", fallbackCV)
		}
	}

	ratio := s.suburbRatio(prop.Suburb, stats, statsErr)
	adjustment := SeededAdjustment(prop.ID.String(), adjustmentMin, adjustmentMax)

	base := float64(cv) * ratio
	estimate := int(math.Round(base * (1 + adjustment)))

	v, err := s.store.Insert(ctx, repository.InsertParams{
		PropertyID:         prop.ID,
		EstimateValue:      estimate,
		ModelVersion:       modelVersion,
		ConfidenceBandLow:  int(math.Round(float64(estimate) * (1 - confidenceBandWidth))),
		ConfidenceBandHigh: int(math.Round(float64(estimate) * (1 + confidenceBandWidth))),
		Features: repository.Features{
			CV:           cv,
			SuburbRatio:  ratio,
			Adjustment:   adjustment,
			BaseEstimate: int(math.Round(base)),
			Suburb:       prop.Suburb,
			PropertyType: prop.PropertyType,
			Bedrooms:     prop.Bedrooms,
			Bathrooms:    prop.Bathrooms,
		},
	})
	if err != nil {
		return repository.Valuation{}, err
	}

	s.bus.Publish(ctx, events.ValuationComputed{
		BaseEvent:     events.NewBaseEvent(),
		ValuationID:   v.ID,
		PropertyID:    v.PropertyID,
		Suburb:        prop.Suburb,
		EstimateValue: v.EstimateValue,
		ModelVersion:  v.ModelVersion,
	})

	return v, nil
}

// RecomputeForSuburb recomputes valuations for every property in a suburb
// and returns the fresh rows. Individual failures are logged and skipped so
// one bad record never stalls the batch.
func (s *Service) RecomputeForSuburb(ctx context.Context, suburb string) ([]repository.Valuation, error) {
	props, err := s.properties.ListBySuburb(ctx, suburb)
	if err != nil {
		return nil, err
	}

	recomputed := make([]repository.Valuation, 0, len(props))
	var failed []error
	for _, p := range props {
		if ctx.Err() != nil {
			return recomputed, ctx.Err()
		}
		v, err := s.ComputeValuation(ctx, p.ID)
		if err != nil {
			s.log.Error("suburb revaluation: property failed", "property_id", p.ID, "suburb", suburb, "error", err)
			failed = append(failed, fmt.Errorf("property %s: %w", p.ID, err))
			continue
		}
		recomputed = append(recomputed, v)
	}

	s.log.Info("suburb revaluation finished", "suburb", suburb, "recomputed", len(recomputed), "failed", len(failed))

	if len(recomputed) == 0 && len(failed) > 0 {
		return nil, errors.Join(failed...)
	}
	return recomputed, nil
}

// suburbRatio derives the market calibration ratio for a suburb, falling
// back to neutral when aggregates are missing or degenerate.
func (s *Service) suburbRatio(suburb string, stats properties.SuburbStats, statsErr error) float64 {
	if statsErr != nil {
		s.log.DataQuality("suburb_stats_unavailable", suburb, "error", statsErr.Error())
		return 1.0
	}
	if stats.AvgCVValue <= 0 || stats.AvgSalePrice <= 0 {
		s.log.DataQuality("suburb_stats_degenerate", suburb,
			"avg_cv", stats.AvgCVValue, "avg_sale_price", stats.AvgSalePrice, "sample_size", stats.SampleSize)
		return 1.0
	}

	ratio := stats.AvgSalePrice / stats.AvgCVValue
	if ratio < ratioMin {
		return ratioMin
	}
	if ratio > ratioMax {
		return ratioMax
	}
	return ratio
}
