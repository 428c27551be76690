package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hireloop/webhook-dispatch/internal/engine"
	"github.com/hireloop/webhook-dispatch/internal/store"
)

// Sweeper is the ledger query used to recover scheduled attempts that never
// made it through the Redis fast path (process restart, lost queue state).
type Sweeper interface {
	DueForRetry(ctx context.Context, cutoff time.Time, limit int) ([]store.DueDelivery, error)
}

// Dispatcher feeds the worker pool from two sources: the Redis delivery
// queue (fast path) and a periodic ledger sweep (authoritative recovery).
type Dispatcher struct {
	queue         *engine.Queue
	sweeper       Sweeper
	pool          *Pool
	logger        *slog.Logger
	pollInterval  time.Duration
	sweepInterval time.Duration
	sweepGrace    time.Duration
	batchSize     int64
}

// NewDispatcher creates a dispatcher over the Redis queue and the ledger.
func NewDispatcher(queue *engine.Queue, sweeper Sweeper, pool *Pool, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:         queue,
		sweeper:       sweeper,
		pool:          pool,
		logger:        logger,
		pollInterval:  100 * time.Millisecond,
		sweepInterval: 5 * time.Second,
		sweepGrace:    30 * time.Second,
		batchSize:     10,
	}
}

// Start begins the polling loops. Runs until the context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("dispatcher started")

	poll := time.NewTicker(d.pollInterval)
	defer poll.Stop()
	sweep := time.NewTicker(d.sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping")
			return
		case <-poll.C:
			d.poll(ctx)
		case <-sweep.C:
			d.sweep(ctx)
		}
	}
}

// poll fetches a batch of due jobs from Redis and feeds them to workers.
func (d *Dispatcher) poll(ctx context.Context) {
	members, err := d.queue.Due(ctx, time.Now(), d.batchSize)
	if err != nil {
		d.logger.Error("failed to poll delivery queue", "error", err)
		return
	}

	for _, member := range members {
		claimed, err := d.queue.Claim(ctx, member)
		if err != nil {
			d.logger.Error("failed to claim queued job", "error", err)
			continue
		}
		if !claimed {
			// Another dispatcher instance already took this job.
			continue
		}

		var job engine.DeliveryJob
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			d.logger.Error("failed to unmarshal job", "error", err)
			continue
		}

		d.pool.Submit(job)
	}
}

// sweep re-dispatches pending ledger rows overdue past the grace period.
// The worker-side claim makes a duplicate of a fast-path job harmless.
func (d *Dispatcher) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-d.sweepGrace)

	due, err := d.sweeper.DueForRetry(ctx, cutoff, int(d.batchSize)*10)
	if err != nil {
		d.logger.Error("failed to sweep ledger for due attempts", "error", err)
		return
	}

	for _, dd := range due {
		d.pool.Submit(engine.DeliveryJob{
			AttemptID:      dd.Attempt.ID,
			EventID:        dd.Attempt.EventID,
			SubscriptionID: dd.Attempt.SubscriptionID,
			EventType:      dd.EventType,
			Payload:        dd.Payload,
			OccurredAt:     dd.OccurredAt,
			Attempt:        dd.Attempt.AttemptNumber,
		})
	}

	if len(due) > 0 {
		d.logger.Info("swept overdue attempts from ledger", "count", len(due))
	}
}
