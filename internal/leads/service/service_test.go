package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	agents "property_market_backend/internal/agents/repository"
	"property_market_backend/internal/events"
	"property_market_backend/internal/leads/domain"
	"property_market_backend/internal/leads/ranking"
	"property_market_backend/internal/leads/repository"
	"property_market_backend/internal/leads/transport"
	"property_market_backend/platform/apperr"
	"property_market_backend/platform/logger"
)

// fakeLeadStore is an in-memory repository.Store.
type fakeLeadStore struct {
	leads map[uuid.UUID]repository.Lead
}

func newFakeLeadStore() *fakeLeadStore {
	return &fakeLeadStore{leads: map[uuid.UUID]repository.Lead{}}
}

func (s *fakeLeadStore) Create(_ context.Context, p repository.CreateParams) (repository.Lead, error) {
	lead := repository.Lead{
		ID:         uuid.New(),
		Type:       p.Type,
		Suburb:     p.Suburb,
		Name:       p.Name,
		Email:      p.Email,
		Phone:      p.Phone,
		Message:    p.Message,
		PropertyID: p.PropertyID,
		Source:     p.Source,
		Status:     domain.StatusNew,
		Metadata:   p.Metadata,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	s.leads[lead.ID] = lead
	return lead, nil
}

func (s *fakeLeadStore) GetByID(_ context.Context, id uuid.UUID) (repository.Lead, error) {
	lead, ok := s.leads[id]
	if !ok {
		return repository.Lead{}, apperr.NotFound("lead not found")
	}
	return lead, nil
}

func (s *fakeLeadStore) AssignAgent(_ context.Context, leadID, agentID uuid.UUID) (repository.Lead, error) {
	lead, ok := s.leads[leadID]
	if !ok {
		return repository.Lead{}, apperr.NotFound("lead not found")
	}
	now := time.Now()
	lead.AssignedAgentID = &agentID
	lead.AssignedAt = &now
	lead.Status = domain.StatusDelivered
	lead.UpdatedAt = now
	s.leads[leadID] = lead
	return lead, nil
}

func (s *fakeLeadStore) UpdateStatus(_ context.Context, leadID uuid.UUID, status domain.Status) (repository.Lead, error) {
	lead, ok := s.leads[leadID]
	if !ok {
		return repository.Lead{}, apperr.NotFound("lead not found")
	}
	lead.Status = status
	lead.UpdatedAt = time.Now()
	s.leads[leadID] = lead
	return lead, nil
}

func (s *fakeLeadStore) CountAssignedInMonth(_ context.Context, agentID uuid.UUID, monthStart time.Time) (int, error) {
	count := 0
	for _, lead := range s.leads {
		if lead.AssignedAgentID != nil && *lead.AssignedAgentID == agentID &&
			lead.AssignedAt != nil && !lead.AssignedAt.Before(monthStart) {
			count++
		}
	}
	return count, nil
}

func (s *fakeLeadStore) ListByAgent(_ context.Context, agentID uuid.UUID, limit, offset int) ([]repository.Lead, error) {
	var out []repository.Lead
	for _, lead := range s.leads {
		if lead.AssignedAgentID != nil && *lead.AssignedAgentID == agentID {
			out = append(out, lead)
		}
	}
	return out, nil
}

// fakeAgentRepo is an in-memory agents.Repository.
type fakeAgentRepo struct {
	subs          map[string][]agents.Subscription
	agentRecords  map[uuid.UUID]agents.Agent
	metrics       map[string]agents.Metrics // key agentID|period
	agentErr      error
	contactedArgs []int64
}

func newFakeAgentRepo() *fakeAgentRepo {
	return &fakeAgentRepo{
		subs:         map[string][]agents.Subscription{},
		agentRecords: map[uuid.UUID]agents.Agent{},
		metrics:      map[string]agents.Metrics{},
	}
}

func metricsKey(agentID uuid.UUID, period string) string {
	return agentID.String() + "|" + period
}

func (f *fakeAgentRepo) ListActiveBySuburb(_ context.Context, suburb string) ([]agents.Subscription, error) {
	return f.subs[suburb], nil
}

func (f *fakeAgentRepo) GetByID(_ context.Context, id uuid.UUID) (agents.Subscription, error) {
	for _, list := range f.subs {
		for _, sub := range list {
			if sub.ID == id {
				return sub, nil
			}
		}
	}
	return agents.Subscription{}, apperr.NotFound("subscription not found")
}

func (f *fakeAgentRepo) Create(_ context.Context, p agents.CreateSubscriptionParams) (agents.Subscription, error) {
	return agents.Subscription{}, errors.New("not implemented")
}

func (f *fakeAgentRepo) Deactivate(_ context.Context, id uuid.UUID) (agents.Subscription, error) {
	return agents.Subscription{}, errors.New("not implemented")
}

func (f *fakeAgentRepo) ChangeTier(_ context.Context, id uuid.UUID, tier agents.Tier, cap *int) (agents.Subscription, error) {
	return agents.Subscription{}, errors.New("not implemented")
}

func (f *fakeAgentRepo) GetAgent(_ context.Context, id uuid.UUID) (agents.Agent, error) {
	if f.agentErr != nil {
		return agents.Agent{}, f.agentErr
	}
	a, ok := f.agentRecords[id]
	if !ok {
		return agents.Agent{}, apperr.NotFound("agent not found")
	}
	return a, nil
}

func (f *fakeAgentRepo) Get(_ context.Context, agentID uuid.UUID, period string) (agents.Metrics, error) {
	m, ok := f.metrics[metricsKey(agentID, period)]
	if !ok {
		return agents.Metrics{}, apperr.NotFound("agent metrics not found")
	}
	return m, nil
}

func (f *fakeAgentRepo) IncrementLeadsAssigned(_ context.Context, agentID uuid.UUID, period string) error {
	m := f.metrics[metricsKey(agentID, period)]
	m.AgentID = agentID
	m.Period = period
	m.LeadsAssigned++
	f.metrics[metricsKey(agentID, period)] = m
	return nil
}

func (f *fakeAgentRepo) MarkContacted(_ context.Context, agentID uuid.UUID, period string, responseSeconds int64) error {
	m := f.metrics[metricsKey(agentID, period)]
	m.AgentID = agentID
	m.Period = period
	m.LeadsContacted++
	f.metrics[metricsKey(agentID, period)] = m
	f.contactedArgs = append(f.contactedArgs, responseSeconds)
	return nil
}

func (f *fakeAgentRepo) MarkConverted(_ context.Context, agentID uuid.UUID, period string) error {
	m := f.metrics[metricsKey(agentID, period)]
	m.AgentID = agentID
	m.Period = period
	m.LeadsConverted++
	f.metrics[metricsKey(agentID, period)] = m
	return nil
}

type recordingBus struct {
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.published = append(b.published, event)
}

func (b *recordingBus) PublishSync(_ context.Context, event events.Event) error {
	b.published = append(b.published, event)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func newTestService() (*Service, *fakeLeadStore, *fakeAgentRepo, *recordingBus) {
	store := newFakeLeadStore()
	agentRepo := newFakeAgentRepo()
	bus := &recordingBus{}
	log := logger.New("development")
	ranker := ranking.New(store, agentRepo, log)
	svc := New(store, agentRepo, ranker, bus, log, "website")
	return svc, store, agentRepo, bus
}

func addAgentWithSubscription(repo *fakeAgentRepo, suburb string, tier agents.Tier, cap *int) agents.Agent {
	agent := agents.Agent{
		ID:       uuid.New(),
		Name:     "Jess Martin",
		Email:    "jess@agency.example",
		IsActive: true,
	}
	repo.agentRecords[agent.ID] = agent
	repo.subs[suburb] = append(repo.subs[suburb], agents.Subscription{
		ID:              uuid.New(),
		AgentID:         agent.ID,
		Suburb:          suburb,
		Tier:            tier,
		LeadCapPerMonth: cap,
		ActiveFrom:      time.Now().Add(-30 * 24 * time.Hour),
		IsActive:        true,
	})
	return agent
}

func intPtr(v int) *int { return &v }

func buyerRequest(suburb string) transport.CreateLeadRequest {
	return transport.CreateLeadRequest{
		LeadType: "buyer",
		Suburb:   suburb,
		Name:     "A",
		Email:    "a@x.com",
	}
}

func TestRouteLeadNoSubscriptions(t *testing.T) {
	svc, store, _, _ := newTestService()

	result, err := svc.RouteLead(context.Background(), buyerRequest("Albany"))
	if err != nil {
		t.Fatalf("RouteLead: %v", err)
	}
	if result.AssignedAgent != nil {
		t.Fatalf("expected nil assignedAgent, got %+v", result.AssignedAgent)
	}
	if result.Lead.Status != string(domain.StatusNew) {
		t.Fatalf("lead status = %s, want new", result.Lead.Status)
	}
	// Lead must be persisted even though routing found nobody.
	if len(store.leads) != 1 {
		t.Fatalf("persisted %d leads, want 1", len(store.leads))
	}
}

func TestRouteLeadAlbanyScenario(t *testing.T) {
	svc, _, agentRepo, bus := newTestService()
	agent := addAgentWithSubscription(agentRepo, "Albany", agents.TierPremium, intPtr(30))

	result, err := svc.RouteLead(context.Background(), buyerRequest("Albany"))
	if err != nil {
		t.Fatalf("RouteLead: %v", err)
	}

	if result.Lead.Status != string(domain.StatusDelivered) {
		t.Fatalf("lead status = %s, want delivered", result.Lead.Status)
	}
	if result.AssignedAgent == nil || result.AssignedAgent.ID != agent.ID.String() {
		t.Fatalf("assignedAgent = %+v, want agent %s", result.AssignedAgent, agent.ID)
	}

	period := agents.Period(time.Now())
	m := agentRepo.metrics[metricsKey(agent.ID, period)]
	if m.LeadsAssigned != 1 {
		t.Fatalf("leadsAssigned = %d, want 1", m.LeadsAssigned)
	}

	// Routing publishes the notification event with the full payload.
	var routed *events.LeadRouted
	for _, evt := range bus.published {
		if e, ok := evt.(events.LeadRouted); ok {
			routed = &e
		}
	}
	if routed == nil {
		t.Fatalf("no LeadRouted event published")
	}
	if routed.AgentEmail != agent.Email || routed.Suburb != "Albany" || routed.LeadType != "buyer" {
		t.Fatalf("LeadRouted payload wrong: %+v", routed)
	}
}

func TestRouteLeadAllAgentsAtCap(t *testing.T) {
	svc, store, agentRepo, _ := newTestService()
	agent := addAgentWithSubscription(agentRepo, "Albany", agents.TierBasic, intPtr(1))

	// Exhaust the cap with an existing assignment this month.
	existing, _ := store.Create(context.Background(), repository.CreateParams{
		Type: domain.TypeBuyer, Suburb: "Albany", Name: "B", Email: "b@x.com", Source: "website",
	})
	if _, err := store.AssignAgent(context.Background(), existing.ID, agent.ID); err != nil {
		t.Fatalf("seed assignment: %v", err)
	}

	result, err := svc.RouteLead(context.Background(), buyerRequest("Albany"))
	if err != nil {
		t.Fatalf("RouteLead: %v", err)
	}
	if result.AssignedAgent != nil {
		t.Fatalf("agent at cap must not receive leads")
	}
	if result.Lead.Status != string(domain.StatusNew) {
		t.Fatalf("lead status = %s, want new", result.Lead.Status)
	}
}

func TestRouteLeadNotificationFailureIsolated(t *testing.T) {
	svc, _, agentRepo, _ := newTestService()
	agent := addAgentWithSubscription(agentRepo, "Albany", agents.TierPremium, nil)
	agentRepo.agentErr = errors.New("identity service down")

	result, err := svc.RouteLead(context.Background(), buyerRequest("Albany"))
	if err != nil {
		t.Fatalf("RouteLead must not fail when notification lookup fails: %v", err)
	}
	if result.Lead.Status != string(domain.StatusDelivered) {
		t.Fatalf("lead status = %s, want delivered", result.Lead.Status)
	}
	if result.AssignedAgent == nil || result.AssignedAgent.ID != agent.ID.String() {
		t.Fatalf("assignment must survive notification failure")
	}
}

func TestRouteLeadNormalizesPhone(t *testing.T) {
	svc, store, agentRepo, _ := newTestService()
	addAgentWithSubscription(agentRepo, "Albany", agents.TierBasic, nil)

	req := buyerRequest("Albany")
	phone := "021 123 4567"
	req.Phone = &phone

	result, err := svc.RouteLead(context.Background(), req)
	if err != nil {
		t.Fatalf("RouteLead: %v", err)
	}

	leadID, _ := uuid.Parse(result.Lead.ID)
	stored := store.leads[leadID]
	if stored.Phone == nil || *stored.Phone != "+64211234567" {
		t.Fatalf("phone = %v, want E.164 +64211234567", stored.Phone)
	}
}

func TestUpdateLeadStatusForbiddenForOtherAgent(t *testing.T) {
	svc, store, _, _ := newTestService()

	lead, _ := store.Create(context.Background(), repository.CreateParams{
		Type: domain.TypeBuyer, Suburb: "Albany", Name: "A", Email: "a@x.com", Source: "website",
	})
	owner := uuid.New()
	if _, err := store.AssignAgent(context.Background(), lead.ID, owner); err != nil {
		t.Fatalf("seed assignment: %v", err)
	}

	_, err := svc.UpdateLeadStatus(context.Background(), lead.ID, uuid.New(), domain.StatusContacted)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestUpdateLeadStatusUnassignedLeadForbidden(t *testing.T) {
	svc, store, _, _ := newTestService()

	lead, _ := store.Create(context.Background(), repository.CreateParams{
		Type: domain.TypeBuyer, Suburb: "Albany", Name: "A", Email: "a@x.com", Source: "website",
	})

	_, err := svc.UpdateLeadStatus(context.Background(), lead.ID, uuid.New(), domain.StatusContacted)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestUpdateLeadStatusUnknownLead(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.UpdateLeadStatus(context.Background(), uuid.New(), uuid.New(), domain.StatusContacted)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestUpdateLeadStatusIllegalTransition(t *testing.T) {
	svc, store, _, _ := newTestService()

	lead, _ := store.Create(context.Background(), repository.CreateParams{
		Type: domain.TypeBuyer, Suburb: "Albany", Name: "A", Email: "a@x.com", Source: "website",
	})
	agentID := uuid.New()
	if _, err := store.AssignAgent(context.Background(), lead.ID, agentID); err != nil {
		t.Fatalf("seed assignment: %v", err)
	}

	// delivered -> closed_won skips contacted and qualified.
	_, err := svc.UpdateLeadStatus(context.Background(), lead.ID, agentID, domain.StatusClosedWon)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestUpdateLeadStatusContactedRecordsResponseTime(t *testing.T) {
	svc, store, agentRepo, _ := newTestService()

	lead, _ := store.Create(context.Background(), repository.CreateParams{
		Type: domain.TypeBuyer, Suburb: "Albany", Name: "A", Email: "a@x.com", Source: "website",
	})
	agentID := uuid.New()
	if _, err := store.AssignAgent(context.Background(), lead.ID, agentID); err != nil {
		t.Fatalf("seed assignment: %v", err)
	}

	// Backdate the assignment to get a measurable response time.
	stored := store.leads[lead.ID]
	past := time.Now().Add(-2 * time.Hour)
	stored.AssignedAt = &past
	store.leads[lead.ID] = stored

	result, err := svc.UpdateLeadStatus(context.Background(), lead.ID, agentID, domain.StatusContacted)
	if err != nil {
		t.Fatalf("UpdateLeadStatus: %v", err)
	}
	if result.Status != string(domain.StatusContacted) {
		t.Fatalf("status = %s, want contacted", result.Status)
	}

	if len(agentRepo.contactedArgs) != 1 {
		t.Fatalf("MarkContacted called %d times, want 1", len(agentRepo.contactedArgs))
	}
	got := agentRepo.contactedArgs[0]
	if got < 7195 || got > 7205 {
		t.Fatalf("responseSeconds = %d, want ~7200", got)
	}
}

func TestUpdateLeadStatusIdempotentOnSameValue(t *testing.T) {
	svc, store, agentRepo, _ := newTestService()

	lead, _ := store.Create(context.Background(), repository.CreateParams{
		Type: domain.TypeBuyer, Suburb: "Albany", Name: "A", Email: "a@x.com", Source: "website",
	})
	agentID := uuid.New()
	if _, err := store.AssignAgent(context.Background(), lead.ID, agentID); err != nil {
		t.Fatalf("seed assignment: %v", err)
	}

	if _, err := svc.UpdateLeadStatus(context.Background(), lead.ID, agentID, domain.StatusContacted); err != nil {
		t.Fatalf("first contacted: %v", err)
	}
	if _, err := svc.UpdateLeadStatus(context.Background(), lead.ID, agentID, domain.StatusContacted); err != nil {
		t.Fatalf("repeat contacted: %v", err)
	}

	period := agents.Period(time.Now())
	m := agentRepo.metrics[metricsKey(agentID, period)]
	if m.LeadsContacted != 1 {
		t.Fatalf("leadsContacted = %d, want 1 (idempotent)", m.LeadsContacted)
	}
}

func TestUpdateLeadStatusClosedWonIncrementsConversions(t *testing.T) {
	svc, store, agentRepo, _ := newTestService()

	lead, _ := store.Create(context.Background(), repository.CreateParams{
		Type: domain.TypeBuyer, Suburb: "Albany", Name: "A", Email: "a@x.com", Source: "website",
	})
	agentID := uuid.New()
	if _, err := store.AssignAgent(context.Background(), lead.ID, agentID); err != nil {
		t.Fatalf("seed assignment: %v", err)
	}

	for _, status := range []domain.Status{domain.StatusContacted, domain.StatusQualified, domain.StatusClosedWon} {
		if _, err := svc.UpdateLeadStatus(context.Background(), lead.ID, agentID, status); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	// Replaying closed_won is a no-op on a terminal state.
	if _, err := svc.UpdateLeadStatus(context.Background(), lead.ID, agentID, domain.StatusClosedWon); err != nil {
		t.Fatalf("repeat closed_won: %v", err)
	}

	period := agents.Period(time.Now())
	m := agentRepo.metrics[metricsKey(agentID, period)]
	if m.LeadsConverted != 1 {
		t.Fatalf("leadsConverted = %d, want 1", m.LeadsConverted)
	}
}

func TestUpdateLeadStatusPublishesEvent(t *testing.T) {
	svc, store, _, bus := newTestService()

	lead, _ := store.Create(context.Background(), repository.CreateParams{
		Type: domain.TypeBuyer, Suburb: "Albany", Name: "A", Email: "a@x.com", Source: "website",
	})
	agentID := uuid.New()
	if _, err := store.AssignAgent(context.Background(), lead.ID, agentID); err != nil {
		t.Fatalf("seed assignment: %v", err)
	}

	if _, err := svc.UpdateLeadStatus(context.Background(), lead.ID, agentID, domain.StatusContacted); err != nil {
		t.Fatalf("UpdateLeadStatus: %v", err)
	}

	var changed *events.LeadStatusChanged
	for _, evt := range bus.published {
		if e, ok := evt.(events.LeadStatusChanged); ok {
			changed = &e
		}
	}
	if changed == nil {
		t.Fatalf("no LeadStatusChanged event published")
	}
	if changed.OldState != "delivered" || changed.NewState != "contacted" {
		t.Fatalf("event states = %s -> %s", changed.OldState, changed.NewState)
	}
}

func TestUpdateLeadStatusRejectsNewStatus(t *testing.T) {
	svc, store, _, _ := newTestService()

	lead, _ := store.Create(context.Background(), repository.CreateParams{
		Type: domain.TypeBuyer, Suburb: "Albany", Name: "A", Email: "a@x.com", Source: "website",
	})
	agentID := uuid.New()
	if _, err := store.AssignAgent(context.Background(), lead.ID, agentID); err != nil {
		t.Fatalf("seed assignment: %v", err)
	}

	_, err := svc.UpdateLeadStatus(context.Background(), lead.ID, agentID, domain.StatusNew)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected Validation, got %v", err)
	}
}
