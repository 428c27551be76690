package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hireloop/webhook-dispatch/internal/domain"
)

// SubscriptionFinder looks up the active subscriptions for an event type.
type SubscriptionFinder interface {
	FindActiveSubscribers(ctx context.Context, eventType string) ([]domain.Subscription, error)
}

// AttemptScheduler creates a pending ledger row for a scheduled attempt.
type AttemptScheduler interface {
	ScheduleAttempt(ctx context.Context, subscriptionID, eventID string, attemptNumber int, scheduledAt time.Time) (*domain.DeliveryAttempt, error)
}

// Publisher fans an event out to all matching active subscriptions: one
// pending ledger row plus one queued job per subscription. Fan-out is
// best-effort and at-least-once; there is no cross-subscription transaction.
type Publisher struct {
	subs   SubscriptionFinder
	ledger AttemptScheduler
	queue  *Queue
	logger *slog.Logger
}

func NewPublisher(subs SubscriptionFinder, ledger AttemptScheduler, queue *Queue, logger *slog.Logger) *Publisher {
	return &Publisher{
		subs:   subs,
		ledger: ledger,
		queue:  queue,
		logger: logger,
	}
}

// Publish enqueues one delivery per matching active subscription and returns
// the number queued. Zero matches is a no-op. Delivery failures are never
// reported back through this path; they surface only in the ledger.
func (p *Publisher) Publish(ctx context.Context, event *domain.Event) (int, error) {
	subscriptions, err := p.subs.FindActiveSubscribers(ctx, event.EventType)
	if err != nil {
		return 0, fmt.Errorf("finding active subscribers: %w", err)
	}

	if len(subscriptions) == 0 {
		p.logger.Info("no matching subscriptions", "event_id", event.ID, "event_type", event.EventType)
		return 0, nil
	}

	now := time.Now().UTC()
	queued := 0

	for _, sub := range subscriptions {
		attempt, err := p.ledger.ScheduleAttempt(ctx, sub.ID, event.ID, 1, now)
		if err != nil {
			var conflict *domain.ConflictError
			if errors.As(err, &conflict) {
				// Already fanned out to this subscription (republish race).
				continue
			}
			p.logger.Error("failed to schedule attempt",
				"error", err,
				"event_id", event.ID,
				"subscription_id", sub.ID,
			)
			continue
		}

		job := DeliveryJob{
			AttemptID:      attempt.ID,
			EventID:        event.ID,
			SubscriptionID: sub.ID,
			EventType:      event.EventType,
			Payload:        event.Payload,
			OccurredAt:     event.OccurredAt,
			Attempt:        1,
		}

		if err := p.queue.Enqueue(ctx, job, now); err != nil {
			// The pending row stands; the sweeper will pick it up.
			p.logger.Error("failed to enqueue delivery job",
				"error", err,
				"event_id", event.ID,
				"subscription_id", sub.ID,
			)
		}
		queued++
	}

	p.logger.Info("fan-out complete",
		"event_id", event.ID,
		"event_type", event.EventType,
		"deliveries_queued", queued,
	)

	return queued, nil
}
