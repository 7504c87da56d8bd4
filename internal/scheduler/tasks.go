// Package scheduler provides the asynq-backed background processing layer:
// task definitions, the enqueue client, the outbox dispatcher, and the worker.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskNotificationOutboxDue = "notification.outbox.due"

const TaskSuburbRevaluation = "valuations.suburb.recompute"

type NotificationOutboxDuePayload struct {
	OutboxID string `json:"outboxId"`
}

type SuburbRevaluationPayload struct {
	Suburb string `json:"suburb"`
}

func NewNotificationOutboxDueTask(payload NotificationOutboxDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationOutboxDue, data), nil
}

func ParseNotificationOutboxDuePayload(task *asynq.Task) (NotificationOutboxDuePayload, error) {
	var payload NotificationOutboxDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NotificationOutboxDuePayload{}, err
	}
	return payload, nil
}

func NewSuburbRevaluationTask(payload SuburbRevaluationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSuburbRevaluation, data), nil
}

func ParseSuburbRevaluationPayload(task *asynq.Task) (SuburbRevaluationPayload, error) {
	var payload SuburbRevaluationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SuburbRevaluationPayload{}, err
	}
	return payload, nil
}
