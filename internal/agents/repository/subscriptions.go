package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"property_market_backend/platform/apperr"
)

const (
	subscriptionNotFoundMessage = "subscription not found"
	agentNotFoundMessage        = "agent not found"

	subscriptionColumns = `id, agent_id, suburb, tier, monthly_price_cents, lead_cap_per_month, active_from, active_to, is_active`

	// Postgres unique_violation; raised by the partial unique index on
	// (agent_id, suburb) WHERE is_active.
	pgUniqueViolation = "23505"
)

// Repo implements the Repository interface with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new agents repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

// ListActiveBySuburb retrieves every active subscription claiming the suburb,
// ordered by activation date so ranking tie-breaks are stable.
func (r *Repo) ListActiveBySuburb(ctx context.Context, suburb string) ([]Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM agent_subscriptions
		WHERE suburb = $1
		  AND is_active = true
		  AND active_from <= now()
		  AND (active_to IS NULL OR active_to > now())
		ORDER BY active_from ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, suburb)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

// GetByID retrieves a subscription by its ID.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM agent_subscriptions
		WHERE id = $1`

	sub, err := scanSubscription(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Subscription{}, apperr.NotFound(subscriptionNotFoundMessage)
		}
		return Subscription{}, fmt.Errorf("get subscription by id: %w", err)
	}

	return sub, nil
}

// Create activates a subscription for an (agent, suburb) pair. A second
// active subscription for the same pair violates the partial unique index
// and surfaces as a Conflict.
func (r *Repo) Create(ctx context.Context, params CreateSubscriptionParams) (Subscription, error) {
	query := `
		INSERT INTO agent_subscriptions (agent_id, suburb, tier, monthly_price_cents, lead_cap_per_month, active_from, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, true)
		RETURNING ` + subscriptionColumns

	sub, err := scanSubscription(r.pool.QueryRow(ctx, query,
		params.AgentID, params.Suburb, string(params.Tier),
		params.MonthlyPriceCents, params.LeadCapPerMonth, params.ActiveFrom,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Subscription{}, apperr.Conflict("agent already holds an active subscription for this suburb")
		}
		return Subscription{}, fmt.Errorf("create subscription: %w", err)
	}

	return sub, nil
}

// Deactivate ends a subscription. Deactivated rows stay immutable history.
func (r *Repo) Deactivate(ctx context.Context, id uuid.UUID) (Subscription, error) {
	query := `
		UPDATE agent_subscriptions
		SET is_active = false, active_to = now(), updated_at = now()
		WHERE id = $1 AND is_active = true
		RETURNING ` + subscriptionColumns

	sub, err := scanSubscription(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Subscription{}, apperr.NotFound(subscriptionNotFoundMessage)
		}
		return Subscription{}, fmt.Errorf("deactivate subscription: %w", err)
	}

	return sub, nil
}

// ChangeTier updates the tier (and its cap) of an active subscription.
// Tier change is the only mutation permitted on an active row.
func (r *Repo) ChangeTier(ctx context.Context, id uuid.UUID, tier Tier, leadCapPerMonth *int) (Subscription, error) {
	query := `
		UPDATE agent_subscriptions
		SET tier = $2, lead_cap_per_month = $3, updated_at = now()
		WHERE id = $1 AND is_active = true
		RETURNING ` + subscriptionColumns

	sub, err := scanSubscription(r.pool.QueryRow(ctx, query, id, string(tier), leadCapPerMonth))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Subscription{}, apperr.NotFound(subscriptionNotFoundMessage)
		}
		return Subscription{}, fmt.Errorf("change subscription tier: %w", err)
	}

	return sub, nil
}

// GetAgent retrieves agent identity fields for notification payloads.
func (r *Repo) GetAgent(ctx context.Context, id uuid.UUID) (Agent, error) {
	query := `
		SELECT id, name, email, phone, agency_name, is_active
		FROM agents
		WHERE id = $1`

	var a Agent
	err := r.pool.QueryRow(ctx, query, id).Scan(&a.ID, &a.Name, &a.Email, &a.Phone, &a.AgencyName, &a.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agent{}, apperr.NotFound(agentNotFoundMessage)
		}
		return Agent{}, fmt.Errorf("get agent by id: %w", err)
	}

	return a, nil
}

func scanSubscription(row pgx.Row) (Subscription, error) {
	var sub Subscription
	var tier string
	err := row.Scan(
		&sub.ID, &sub.AgentID, &sub.Suburb, &tier, &sub.MonthlyPriceCents,
		&sub.LeadCapPerMonth, &sub.ActiveFrom, &sub.ActiveTo, &sub.IsActive,
	)
	if err != nil {
		return Subscription{}, err
	}
	sub.Tier = Tier(tier)
	return sub, nil
}

func scanSubscriptions(rows pgx.Rows) ([]Subscription, error) {
	var results []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		results = append(results, sub)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return results, nil
}
