package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"property_market_backend/internal/events"
	"property_market_backend/internal/properties"
	"property_market_backend/internal/valuations/repository"
	"property_market_backend/platform/apperr"
	"property_market_backend/platform/logger"
)

type fakeStore struct {
	latest   map[uuid.UUID]repository.Valuation
	inserted []repository.Valuation
}

func newFakeStore() *fakeStore {
	return &fakeStore{latest: map[uuid.UUID]repository.Valuation{}}
}

func (s *fakeStore) Insert(_ context.Context, p repository.InsertParams) (repository.Valuation, error) {
	v := repository.Valuation{
		ID:                 uuid.New(),
		PropertyID:         p.PropertyID,
		EstimateValue:      p.EstimateValue,
		EstimateDate:       time.Now(),
		ModelVersion:       p.ModelVersion,
		ConfidenceBandLow:  p.ConfidenceBandLow,
		ConfidenceBandHigh: p.ConfidenceBandHigh,
		Features:           p.Features,
	}
	s.inserted = append(s.inserted, v)
	s.latest[p.PropertyID] = v
	return v, nil
}

func (s *fakeStore) LatestByProperty(_ context.Context, propertyID uuid.UUID) (repository.Valuation, error) {
	v, ok := s.latest[propertyID]
	if !ok {
		return repository.Valuation{}, apperr.NotFound("valuation not found")
	}
	return v, nil
}

type fakeProperties struct {
	props    map[uuid.UUID]properties.Property
	stats    map[string]properties.SuburbStats
	statsErr error
}

func newFakeProperties() *fakeProperties {
	return &fakeProperties{
		props: map[uuid.UUID]properties.Property{},
		stats: map[string]properties.SuburbStats{},
	}
}

func (f *fakeProperties) GetByID(_ context.Context, id uuid.UUID) (properties.Property, error) {
	p, ok := f.props[id]
	if !ok {
		return properties.Property{}, apperr.NotFound("property not found")
	}
	return p, nil
}

func (f *fakeProperties) ListBySuburb(_ context.Context, suburb string) ([]properties.Property, error) {
	var out []properties.Property
	for _, p := range f.props {
		if p.Suburb == suburb {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProperties) SuburbStats(_ context.Context, suburb string) (properties.SuburbStats, error) {
	if f.statsErr != nil {
		return properties.SuburbStats{}, f.statsErr
	}
	return f.stats[suburb], nil
}

type recordingBus struct {
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event)          { b.published = append(b.published, event) }
func (b *recordingBus) PublishSync(_ context.Context, event events.Event) error { b.published = append(b.published, event); return nil }
func (b *recordingBus) Subscribe(string, events.Handler)                        {}

func newTestService() (*Service, *fakeStore, *fakeProperties, *recordingBus) {
	store := newFakeStore()
	props := newFakeProperties()
	bus := &recordingBus{}
	svc := NewService(store, props, bus, logger.New("development"))
	return svc, store, props, bus
}

func addProperty(props *fakeProperties, suburb string, cv int) uuid.UUID {
	id := uuid.New()
	props.props[id] = properties.Property{
		ID:           id,
		AddressLine1: "1 Test St",
		Suburb:       suburb,
		City:         "Auckland",
		CVValue:      cv,
	}
	return id
}

func TestComputeValuationBandInvariant(t *testing.T) {
	svc, _, props, _ := newTestService()
	id := addProperty(props, "Albany", 1_250_000)
	props.stats["Albany"] = properties.SuburbStats{Suburb: "Albany", AvgCVValue: 1_000_000, AvgSalePrice: 1_050_000, SampleSize: 12}

	v, err := svc.ComputeValuation(context.Background(), id)
	if err != nil {
		t.Fatalf("ComputeValuation: %v", err)
	}

	wantLow := int(math.Round(float64(v.EstimateValue) * 0.9))
	wantHigh := int(math.Round(float64(v.EstimateValue) * 1.1))
	if v.ConfidenceBandLow != wantLow || v.ConfidenceBandHigh != wantHigh {
		t.Fatalf("band = [%d, %d], want [%d, %d]", v.ConfidenceBandLow, v.ConfidenceBandHigh, wantLow, wantHigh)
	}
	if v.ConfidenceBandLow > v.EstimateValue || v.EstimateValue > v.ConfidenceBandHigh {
		t.Fatalf("estimate %d outside band [%d, %d]", v.EstimateValue, v.ConfidenceBandLow, v.ConfidenceBandHigh)
	}
	if v.ModelVersion != "heuristic-v1" {
		t.Fatalf("model version = %q", v.ModelVersion)
	}
}

func TestComputeValuationDeterministic(t *testing.T) {
	svc, _, props, _ := newTestService()
	id := addProperty(props, "Albany", 1_250_000)
	props.stats["Albany"] = properties.SuburbStats{Suburb: "Albany", AvgCVValue: 1_000_000, AvgSalePrice: 1_050_000, SampleSize: 12}

	first, err := svc.ComputeValuation(context.Background(), id)
	if err != nil {
		t.Fatalf("first ComputeValuation: %v", err)
	}
	second, err := svc.ComputeValuation(context.Background(), id)
	if err != nil {
		t.Fatalf("second ComputeValuation: %v", err)
	}

	if first.EstimateValue != second.EstimateValue {
		t.Fatalf("estimates differ across runs: %d vs %d", first.EstimateValue, second.EstimateValue)
	}
	if first.Features.Adjustment != second.Features.Adjustment {
		t.Fatalf("adjustments differ across runs: %v vs %v", first.Features.Adjustment, second.Features.Adjustment)
	}

	// Expected value from the formula itself.
	adj := SeededAdjustment(id.String(), adjustmentMin, adjustmentMax)
	want := int(math.Round(1_250_000 * 1.05 * (1 + adj)))
	if first.EstimateValue != want {
		t.Fatalf("estimate = %d, want %d", first.EstimateValue, want)
	}
}

func TestComputeValuationRatioClamp(t *testing.T) {
	cases := []struct {
		name      string
		avgCV     float64
		avgSale   float64
		wantRatio float64
	}{
		{"clamped high", 100_000, 500_000, 1.3},
		{"clamped low", 1_000_000, 100_000, 0.8},
		{"in range", 1_000_000, 1_050_000, 1.05},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, props, _ := newTestService()
			id := addProperty(props, "Ponsonby", 800_000)
			props.stats["Ponsonby"] = properties.SuburbStats{Suburb: "Ponsonby", AvgCVValue: tc.avgCV, AvgSalePrice: tc.avgSale, SampleSize: 5}

			v, err := svc.ComputeValuation(context.Background(), id)
			if err != nil {
				t.Fatalf("ComputeValuation: %v", err)
			}
			if v.Features.SuburbRatio != tc.wantRatio {
				t.Fatalf("ratio = %v, want %v", v.Features.SuburbRatio, tc.wantRatio)
			}
		})
	}
}

func TestComputeValuationMissingCVUsesSuburbAverage(t *testing.T) {
	svc, _, props, _ := newTestService()
	id := addProperty(props, "Albany", 0)
	props.stats["Albany"] = properties.SuburbStats{Suburb: "Albany", AvgCVValue: 1_000_000, AvgSalePrice: 1_000_000, SampleSize: 3}

	v, err := svc.ComputeValuation(context.Background(), id)
	if err != nil {
		t.Fatalf("ComputeValuation: %v", err)
	}
	if v.Features.CV != 1_000_000 {
		t.Fatalf("features CV = %d, want suburb average 1000000", v.Features.CV)
	}
}

func TestComputeValuationMissingCVAndStatsUsesFallbackConstant(t *testing.T) {
	svc, _, props, _ := newTestService()
	id := addProperty(props, "Nowhere", 0)
	// No stats entry: suburb average is zero too.

	v, err := svc.ComputeValuation(context.Background(), id)
	if err != nil {
		t.Fatalf("ComputeValuation: %v", err)
	}
	if v.Features.CV != fallbackCV {
		t.Fatalf("features CV = %d, want fallback %d", v.Features.CV, fallbackCV)
	}
}

func TestComputeValuationDegenerateStatsNeutralRatio(t *testing.T) {
	svc, _, props, _ := newTestService()
	id := addProperty(props, "Nowhere", 700_000)
	// No stats entry: zero averages.

	v, err := svc.ComputeValuation(context.Background(), id)
	if err != nil {
		t.Fatalf("ComputeValuation: %v", err)
	}
	if v.Features.SuburbRatio != 1.0 {
		t.Fatalf("ratio = %v, want neutral 1.0", v.Features.SuburbRatio)
	}
}

func TestComputeValuationStatsErrorNeutralRatio(t *testing.T) {
	svc, _, props, _ := newTestService()
	id := addProperty(props, "Albany", 700_000)
	props.statsErr = errors.New("stats query failed")

	v, err := svc.ComputeValuation(context.Background(), id)
	if err != nil {
		t.Fatalf("ComputeValuation: %v", err)
	}
	if v.Features.SuburbRatio != 1.0 {
		t.Fatalf("ratio = %v, want neutral 1.0", v.Features.SuburbRatio)
	}
}

func TestComputeValuationUnknownProperty(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.ComputeValuation(context.Background(), uuid.New())
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestComputeValuationPublishesEvent(t *testing.T) {
	svc, _, props, bus := newTestService()
	id := addProperty(props, "Albany", 900_000)

	v, err := svc.ComputeValuation(context.Background(), id)
	if err != nil {
		t.Fatalf("ComputeValuation: %v", err)
	}

	if len(bus.published) != 1 {
		t.Fatalf("published %d events, want 1", len(bus.published))
	}
	evt, ok := bus.published[0].(events.ValuationComputed)
	if !ok {
		t.Fatalf("published event is %T", bus.published[0])
	}
	if evt.PropertyID != id || evt.EstimateValue != v.EstimateValue {
		t.Fatalf("event %+v does not match valuation %+v", evt, v)
	}
}

func TestGetOrComputeValuationServesFresh(t *testing.T) {
	svc, store, props, _ := newTestService()
	id := addProperty(props, "Albany", 900_000)

	stored := repository.Valuation{
		ID:            uuid.New(),
		PropertyID:    id,
		EstimateValue: 123_456,
		EstimateDate:  time.Now().Add(-24 * time.Hour),
		ModelVersion:  "heuristic-v1",
	}
	store.latest[id] = stored

	v, err := svc.GetOrComputeValuation(context.Background(), id)
	if err != nil {
		t.Fatalf("GetOrComputeValuation: %v", err)
	}
	if v.ID != stored.ID {
		t.Fatalf("expected stored valuation, got recomputed one")
	}
	if len(store.inserted) != 0 {
		t.Fatalf("fresh valuation triggered %d inserts", len(store.inserted))
	}
}

func TestGetOrComputeValuationRecomputesStale(t *testing.T) {
	svc, store, props, _ := newTestService()
	id := addProperty(props, "Albany", 900_000)

	store.latest[id] = repository.Valuation{
		ID:            uuid.New(),
		PropertyID:    id,
		EstimateValue: 123_456,
		EstimateDate:  time.Now().Add(-31 * 24 * time.Hour),
		ModelVersion:  "heuristic-v1",
	}

	v, err := svc.GetOrComputeValuation(context.Background(), id)
	if err != nil {
		t.Fatalf("GetOrComputeValuation: %v", err)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("stale valuation triggered %d inserts, want 1", len(store.inserted))
	}
	if v.EstimateValue == 123_456 {
		t.Fatalf("expected recomputed estimate, got stored one")
	}
}

func TestGetOrComputeValuationComputesWhenMissing(t *testing.T) {
	svc, store, props, _ := newTestService()
	id := addProperty(props, "Albany", 900_000)

	if _, err := svc.GetOrComputeValuation(context.Background(), id); err != nil {
		t.Fatalf("GetOrComputeValuation: %v", err)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("missing valuation triggered %d inserts, want 1", len(store.inserted))
	}
}

func TestGetOrComputeValuationOutlivesCallerCancellation(t *testing.T) {
	props := newFakeProperties()
	id := addProperty(props, "Albany", 900_000)
	store := newFakeStore()
	svc := NewService(store, &cancelAwareReader{fakeProperties: props}, &recordingBus{}, logger.New("development"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The recomputation is shared across deduplicated callers, so one
	// cancelled request must not poison it.
	v, err := svc.GetOrComputeValuation(ctx, id)
	if err != nil {
		t.Fatalf("GetOrComputeValuation: %v", err)
	}
	if v.EstimateValue <= 0 {
		t.Fatalf("estimate = %d, want positive", v.EstimateValue)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("inserted %d valuations, want 1", len(store.inserted))
	}
}

func TestRecomputeForSuburbToleratesPartialFailure(t *testing.T) {
	props := newFakeProperties()
	good1 := addProperty(props, "Albany", 900_000)
	good2 := addProperty(props, "Albany", 1_100_000)

	// Listed but unfetchable: GetByID for this id returns NotFound.
	bad := properties.Property{ID: uuid.New(), Suburb: "Albany", CVValue: 500_000}
	reader := &listOverrideReader{
		fakeProperties: props,
		list:           []properties.Property{props.props[good1], bad, props.props[good2]},
	}
	svc := NewService(newFakeStore(), reader, &recordingBus{}, logger.New("development"))

	recomputed, err := svc.RecomputeForSuburb(context.Background(), "Albany")
	if err != nil {
		t.Fatalf("RecomputeForSuburb: %v", err)
	}
	if len(recomputed) != 2 {
		t.Fatalf("recomputed %d valuations, want 2", len(recomputed))
	}
	got := map[uuid.UUID]bool{}
	for _, v := range recomputed {
		got[v.PropertyID] = true
	}
	if !got[good1] || !got[good2] {
		t.Fatalf("returned valuations cover %v, want %s and %s", got, good1, good2)
	}
}

func TestRecomputeForSuburbAllFailed(t *testing.T) {
	props := newFakeProperties()
	badID := uuid.New()
	failing := &listOverrideReader{
		fakeProperties: props,
		list:           []properties.Property{{ID: badID, Suburb: "Albany", CVValue: 500_000}},
	}
	svc := NewService(newFakeStore(), failing, &recordingBus{}, logger.New("development"))

	recomputed, err := svc.RecomputeForSuburb(context.Background(), "Albany")
	if err == nil {
		t.Fatalf("expected error when every property fails")
	}
	if len(recomputed) != 0 {
		t.Fatalf("recomputed %d valuations, want 0", len(recomputed))
	}
}

// cancelAwareReader honors context cancellation, unlike the plain fake.
type cancelAwareReader struct {
	*fakeProperties
}

func (r *cancelAwareReader) GetByID(ctx context.Context, id uuid.UUID) (properties.Property, error) {
	if err := ctx.Err(); err != nil {
		return properties.Property{}, err
	}
	return r.fakeProperties.GetByID(ctx, id)
}

// listOverrideReader lists a fixed set of properties while delegating
// lookups, so listed-but-unfetchable properties can be simulated.
type listOverrideReader struct {
	*fakeProperties
	list []properties.Property
}

func (r *listOverrideReader) ListBySuburb(_ context.Context, suburb string) ([]properties.Property, error) {
	var out []properties.Property
	for _, p := range r.list {
		if p.Suburb == suburb {
			out = append(out, p)
		}
	}
	return out, nil
}
