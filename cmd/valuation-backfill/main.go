// Command valuation-backfill computes an initial valuation for every
// property that has none yet. Run once after importing a property dataset.
package main

import (
	"context"
	"time"

	"property_market_backend/internal/events"
	"property_market_backend/internal/properties"
	"property_market_backend/internal/valuations/repository"
	"property_market_backend/internal/valuations/service"
	"property_market_backend/platform/config"
	"property_market_backend/platform/db"
	"property_market_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting valuation backfill")

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	svc := service.NewService(repository.New(pool), properties.New(pool), eventBus, log)

	const batchSize = 100
	const delayBetweenBatches = 200 * time.Millisecond

	var processed int
	var succeeded int

	for {
		ids, err := listUnvaluedProperties(ctx, pool, batchSize)
		if err != nil {
			log.Error("failed to list properties", "error", err)
			break
		}
		if len(ids) == 0 {
			log.Info("no properties left to backfill", "processed", processed, "valued", succeeded)
			break
		}

		for _, id := range ids {
			processed++
			if _, err := svc.ComputeValuation(ctx, id); err != nil {
				log.Error("valuation failed", "property_id", id, "error", err)
				continue
			}
			succeeded++
		}

		log.Info("backfill progress", "processed", processed, "valued", succeeded)
		time.Sleep(delayBetweenBatches)
	}
}

func listUnvaluedProperties(ctx context.Context, pool *pgxpool.Pool, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT p.id
		FROM properties p
		LEFT JOIN valuations v ON v.property_id = p.id
		WHERE v.id IS NULL
		ORDER BY p.created_at ASC
		LIMIT $1`

	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
