package scheduler

import (
	"context"
	"fmt"

	"property_market_backend/internal/events"
	valuations "property_market_backend/internal/valuations/repository"
	"property_market_backend/platform/config"
	"property_market_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// SuburbRevaluer recomputes all valuations in a suburb. Implemented by the
// valuations service.
type SuburbRevaluer interface {
	RecomputeForSuburb(ctx context.Context, suburb string) ([]valuations.Valuation, error)
}

type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	revaluer SuburbRevaluer
	bus      events.Bus
	log      *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, revaluer SuburbRevaluer, bus events.Bus, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		revaluer: revaluer,
		bus:      bus,
		log:      log,
	}

	mux.HandleFunc(TaskNotificationOutboxDue, w.handleNotificationOutboxDue)
	mux.HandleFunc(TaskSuburbRevaluation, w.handleSuburbRevaluation)

	return w, nil
}

func (w *Worker) handleNotificationOutboxDue(ctx context.Context, task *asynq.Task) error {
	if w.bus == nil {
		return nil
	}

	payload, err := ParseNotificationOutboxDuePayload(task)
	if err != nil {
		return err
	}

	outboxID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return err
	}

	return w.bus.PublishSync(ctx, events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  outboxID,
	})
}

func (w *Worker) handleSuburbRevaluation(ctx context.Context, task *asynq.Task) error {
	if w.revaluer == nil {
		return nil
	}

	payload, err := ParseSuburbRevaluationPayload(task)
	if err != nil {
		return err
	}
	if payload.Suburb == "" {
		return fmt.Errorf("suburb revaluation task missing suburb")
	}

	recomputed, err := w.revaluer.RecomputeForSuburb(ctx, payload.Suburb)
	if err != nil {
		return err
	}

	w.log.Info("suburb revaluation task finished", "suburb", payload.Suburb, "recomputed", len(recomputed))
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
