package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"property_market_backend/internal/leads/domain"
	"property_market_backend/platform/apperr"
)

const leadNotFoundMessage = "lead not found"

// Lead is a routed (or pending) inbound contact request. Leads are never
// deleted; the table is the audit trail.
type Lead struct {
	ID              uuid.UUID
	Type            domain.Type
	Suburb          string
	Name            string
	Email           string
	Phone           *string
	Message         *string
	PropertyID      *uuid.UUID
	Source          string
	Status          domain.Status
	AssignedAgentID *uuid.UUID
	AssignedAt      *time.Time
	Metadata        []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateParams contains parameters for persisting a new lead in its initial
// state.
type CreateParams struct {
	Type       domain.Type
	Suburb     string
	Name       string
	Email      string
	Phone      *string
	Message    *string
	PropertyID *uuid.UUID
	Source     string
	Metadata   []byte
}

// Store provides access to lead rows.
type Store interface {
	Create(ctx context.Context, params CreateParams) (Lead, error)
	GetByID(ctx context.Context, id uuid.UUID) (Lead, error)
	AssignAgent(ctx context.Context, leadID, agentID uuid.UUID) (Lead, error)
	UpdateStatus(ctx context.Context, leadID uuid.UUID, status domain.Status) (Lead, error)
	CountAssignedInMonth(ctx context.Context, agentID uuid.UUID, monthStart time.Time) (int, error)
	ListByAgent(ctx context.Context, agentID uuid.UUID, limit, offset int) ([]Lead, error)
}

// Repo implements Store with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new leads repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Store.
var _ Store = (*Repo)(nil)

const leadColumns = `id, lead_type, suburb, name, email, phone, message, property_id, source, status, assigned_agent_id, assigned_at, metadata, created_at, updated_at`

// Create persists a new lead with status "new".
func (r *Repo) Create(ctx context.Context, params CreateParams) (Lead, error) {
	query := `
		INSERT INTO leads (lead_type, suburb, name, email, phone, message, property_id, source, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + leadColumns

	lead, err := scanLead(r.pool.QueryRow(ctx, query,
		params.Type, params.Suburb, params.Name, params.Email, params.Phone,
		params.Message, params.PropertyID, params.Source, domain.StatusNew, params.Metadata,
	))
	if err != nil {
		return Lead{}, fmt.Errorf("create lead: %w", err)
	}

	return lead, nil
}

// GetByID retrieves a lead by its ID.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`

	lead, err := scanLead(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, apperr.NotFound(leadNotFoundMessage)
		}
		return Lead{}, fmt.Errorf("get lead by id: %w", err)
	}

	return lead, nil
}

// AssignAgent records a successful routing decision: the lead moves to
// "delivered" and the assignment timestamp starts the response-time clock.
func (r *Repo) AssignAgent(ctx context.Context, leadID, agentID uuid.UUID) (Lead, error) {
	query := `
		UPDATE leads
		SET assigned_agent_id = $2, assigned_at = now(), status = $3, updated_at = now()
		WHERE id = $1
		RETURNING ` + leadColumns

	lead, err := scanLead(r.pool.QueryRow(ctx, query, leadID, agentID, domain.StatusDelivered))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, apperr.NotFound(leadNotFoundMessage)
		}
		return Lead{}, fmt.Errorf("assign lead agent: %w", err)
	}

	return lead, nil
}

// UpdateStatus sets the lead's status. Transition legality is enforced by the
// service layer.
func (r *Repo) UpdateStatus(ctx context.Context, leadID uuid.UUID, status domain.Status) (Lead, error) {
	query := `
		UPDATE leads
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + leadColumns

	lead, err := scanLead(r.pool.QueryRow(ctx, query, leadID, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, apperr.NotFound(leadNotFoundMessage)
		}
		return Lead{}, fmt.Errorf("update lead status: %w", err)
	}

	return lead, nil
}

// CountAssignedInMonth counts leads assigned to an agent since the start of
// a calendar month. Used for quota checks during ranking.
func (r *Repo) CountAssignedInMonth(ctx context.Context, agentID uuid.UUID, monthStart time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM leads
		WHERE assigned_agent_id = $1 AND assigned_at >= $2`

	var count int
	if err := r.pool.QueryRow(ctx, query, agentID, monthStart).Scan(&count); err != nil {
		return 0, fmt.Errorf("count assigned leads: %w", err)
	}

	return count, nil
}

// ListByAgent returns an agent's leads, newest first.
func (r *Repo) ListByAgent(ctx context.Context, agentID uuid.UUID, limit, offset int) ([]Lead, error) {
	query := `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE assigned_agent_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, agentID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list leads by agent: %w", err)
	}
	defer rows.Close()

	var results []Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		results = append(results, lead)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("list leads by agent: %w", rows.Err())
	}

	return results, nil
}

func scanLead(row pgx.Row) (Lead, error) {
	var l Lead
	err := row.Scan(
		&l.ID, &l.Type, &l.Suburb, &l.Name, &l.Email, &l.Phone, &l.Message,
		&l.PropertyID, &l.Source, &l.Status, &l.AssignedAgentID, &l.AssignedAt,
		&l.Metadata, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return Lead{}, err
	}
	return l, nil
}
