package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"property_market_backend/platform/apperr"
)

const metricsNotFoundMessage = "agent metrics not found"

// Get retrieves the metrics row for an agent and period.
func (r *Repo) Get(ctx context.Context, agentID uuid.UUID, period string) (Metrics, error) {
	query := `
		SELECT agent_id, period, avg_response_time_seconds, leads_assigned, leads_contacted, leads_converted
		FROM agent_metrics
		WHERE agent_id = $1 AND period = $2`

	var m Metrics
	err := r.pool.QueryRow(ctx, query, agentID, period).Scan(
		&m.AgentID, &m.Period, &m.AvgResponseTimeSeconds,
		&m.LeadsAssigned, &m.LeadsContacted, &m.LeadsConverted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Metrics{}, apperr.NotFound(metricsNotFoundMessage)
		}
		return Metrics{}, fmt.Errorf("get agent metrics: %w", err)
	}

	return m, nil
}

// IncrementLeadsAssigned bumps the assigned counter for the period in a
// single conditional upsert, so two concurrent routings never lose a count.
func (r *Repo) IncrementLeadsAssigned(ctx context.Context, agentID uuid.UUID, period string) error {
	query := `
		INSERT INTO agent_metrics (agent_id, period, leads_assigned)
		VALUES ($1, $2, 1)
		ON CONFLICT (agent_id, period)
		DO UPDATE SET
			leads_assigned = agent_metrics.leads_assigned + 1,
			updated_at = now()`

	if _, err := r.pool.Exec(ctx, query, agentID, period); err != nil {
		return fmt.Errorf("increment leads assigned: %w", err)
	}
	return nil
}

// MarkContacted bumps the contacted counter and folds the observed response
// time (seconds between delivery and first contact) into the running average,
// all in one statement.
func (r *Repo) MarkContacted(ctx context.Context, agentID uuid.UUID, period string, responseSeconds int64) error {
	query := `
		INSERT INTO agent_metrics (agent_id, period, leads_contacted, avg_response_time_seconds)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (agent_id, period)
		DO UPDATE SET
			avg_response_time_seconds = (
				(COALESCE(agent_metrics.avg_response_time_seconds, 0) * agent_metrics.leads_contacted + $3)
				/ (agent_metrics.leads_contacted + 1)
			),
			leads_contacted = agent_metrics.leads_contacted + 1,
			updated_at = now()`

	if _, err := r.pool.Exec(ctx, query, agentID, period, responseSeconds); err != nil {
		return fmt.Errorf("mark lead contacted: %w", err)
	}
	return nil
}

// MarkConverted bumps the converted counter for the period.
func (r *Repo) MarkConverted(ctx context.Context, agentID uuid.UUID, period string) error {
	query := `
		INSERT INTO agent_metrics (agent_id, period, leads_converted)
		VALUES ($1, $2, 1)
		ON CONFLICT (agent_id, period)
		DO UPDATE SET
			leads_converted = agent_metrics.leads_converted + 1,
			updated_at = now()`

	if _, err := r.pool.Exec(ctx, query, agentID, period); err != nil {
		return fmt.Errorf("mark lead converted: %w", err)
	}
	return nil
}
