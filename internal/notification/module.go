// Package notification turns domain events into outbound messages. It
// subscribes to events and inverts the dependency: domain modules never need
// to know about email providers or templates.
//
// Delivery goes through a database outbox. The LeadRouted handler only
// inserts a row; the background dispatcher enqueues due rows and the worker
// publishes NotificationOutboxDue, which this module resolves into an actual
// SMTP send. A crash between assignment and delivery therefore loses nothing.
package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"property_market_backend/internal/email"
	"property_market_backend/internal/events"
	"property_market_backend/internal/notification/outbox"
	"property_market_backend/platform/logger"
)

const (
	kindEmail                = "email"
	templateLeadNotification = "lead_notification"

	// maxDeliveryAttempts bounds retries before a record is parked as failed.
	maxDeliveryAttempts = 5
)

// Service handles notification-related domain events.
type Service struct {
	outbox outbox.Store
	sender email.Sender
	log    *logger.Logger
}

// NewService creates the notification service and subscribes it to the
// events it consumes.
func NewService(store outbox.Store, sender email.Sender, bus events.Bus, log *logger.Logger) *Service {
	s := &Service{
		outbox: store,
		sender: sender,
		log:    log,
	}

	bus.Subscribe(events.LeadRouted{}.EventName(), events.HandlerFunc(s.handleLeadRouted))
	bus.Subscribe(events.NotificationOutboxDue{}.EventName(), events.HandlerFunc(s.handleOutboxDue))

	return s
}

// Outbox exposes the outbox store for the dispatcher loop.
func (s *Service) Outbox() outbox.Store {
	return s.outbox
}

func (s *Service) handleLeadRouted(ctx context.Context, event events.Event) error {
	evt, ok := event.(events.LeadRouted)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	id, err := s.outbox.Insert(ctx, outbox.InsertParams{
		Kind:     kindEmail,
		Template: templateLeadNotification,
		Payload: email.LeadNotification{
			AgentEmail:  evt.AgentEmail,
			AgentName:   evt.AgentName,
			LeadName:    evt.LeadName,
			LeadEmail:   evt.LeadEmail,
			LeadPhone:   evt.LeadPhone,
			LeadMessage: evt.LeadMessage,
			LeadType:    evt.LeadType,
			Suburb:      evt.Suburb,
		},
	})
	if err != nil {
		s.log.Error("outbox insert for lead notification failed", "lead_id", evt.LeadID, "error", err)
		return err
	}

	s.log.Info("lead notification queued", "lead_id", evt.LeadID, "outbox_id", id, "agent_email", evt.AgentEmail)
	return nil
}

func (s *Service) handleOutboxDue(ctx context.Context, event events.Event) error {
	evt, ok := event.(events.NotificationOutboxDue)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	rec, err := s.outbox.GetByID(ctx, evt.OutboxID)
	if err != nil {
		return fmt.Errorf("load outbox record %s: %w", evt.OutboxID, err)
	}
	if rec.Status == outbox.StatusSucceeded || rec.Status == outbox.StatusProcessing {
		return nil
	}

	if err := s.outbox.MarkProcessing(ctx, rec.ID); err != nil {
		return err
	}

	if err := s.deliver(ctx, rec); err != nil {
		s.log.Error("notification delivery failed",
			"outbox_id", rec.ID, "template", rec.Template, "attempts", rec.Attempts+1, "error", err)
		if rec.Attempts+1 >= maxDeliveryAttempts {
			return s.outbox.MarkFailed(ctx, rec.ID, err.Error())
		}
		msg := err.Error()
		return s.outbox.MarkPending(ctx, rec.ID, &msg)
	}

	return s.outbox.MarkSucceeded(ctx, rec.ID)
}

func (s *Service) deliver(ctx context.Context, rec outbox.Record) error {
	if rec.Kind != kindEmail {
		return fmt.Errorf("unsupported outbox kind %q", rec.Kind)
	}

	switch rec.Template {
	case templateLeadNotification:
		var payload email.LeadNotification
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			return fmt.Errorf("decode lead notification payload: %w", err)
		}
		return s.sender.SendLeadNotification(ctx, payload)
	default:
		return fmt.Errorf("unknown outbox template %q", rec.Template)
	}
}
