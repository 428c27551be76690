package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hireloop/webhook-dispatch/internal/domain"
	"github.com/hireloop/webhook-dispatch/internal/engine"
	"github.com/hireloop/webhook-dispatch/internal/signature"
	"github.com/hireloop/webhook-dispatch/internal/store"
	ws "github.com/hireloop/webhook-dispatch/internal/websocket"
)

// Deferral delays used when a job is bounced without consuming an attempt.
const (
	rateLimitDeferral   = time.Second
	circuitOpenDeferral = 15 * time.Second
)

// Store is the subset of the persistence layer the deliverer needs: the
// subscription registry for the liveness re-check and the delivery ledger.
type Store interface {
	GetSubscription(ctx context.Context, id string) (*domain.Subscription, error)
	ClaimAttempt(ctx context.Context, attemptID string) (bool, error)
	ResolveAttempt(ctx context.Context, attemptID string, res store.AttemptResult) error
	ScheduleAttempt(ctx context.Context, subscriptionID, eventID string, attemptNumber int, scheduledAt time.Time) (*domain.DeliveryAttempt, error)
	InsertDeadLetter(ctx context.Context, rec store.DeadLetterRecord) error
}

// wirePayload is the JSON body POSTed to the subscriber endpoint.
type wirePayload struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Deliverer executes a single delivery attempt: liveness re-check, payload
// signing, the HTTP POST, outcome classification, ledger resolution, and
// retry scheduling. One worker runs one in-flight HTTP call at a time.
type Deliverer struct {
	httpClient *http.Client
	store      Store
	queue      *engine.Queue
	cb         *engine.CircuitBreaker
	rl         *engine.RateLimiter
	hub        *ws.Hub
	policy     engine.RetryPolicy
	logger     *slog.Logger
}

func NewDeliverer(st Store, queue *engine.Queue, cb *engine.CircuitBreaker, rl *engine.RateLimiter, hub *ws.Hub, policy engine.RetryPolicy, timeout time.Duration, logger *slog.Logger) *Deliverer {
	return &Deliverer{
		httpClient: &http.Client{Timeout: timeout},
		store:      st,
		queue:      queue,
		cb:         cb,
		rl:         rl,
		hub:        hub,
		policy:     policy,
		logger:     logger,
	}
}

// Deliver processes one delivery job end to end. Jobs bounced by the
// circuit breaker or rate limiter are re-queued unclaimed, so no attempt
// number is consumed.
func (d *Deliverer) Deliver(ctx context.Context, job engine.DeliveryJob) {
	if state, allowed := d.cb.AllowRequest(ctx, job.SubscriptionID); !allowed {
		d.requeue(ctx, job, circuitOpenDeferral)
		d.logger.Debug("delivery deferred: circuit open",
			"subscription_id", job.SubscriptionID,
			"event_id", job.EventID,
			"circuit_state", state,
		)
		return
	}

	sub, err := d.store.GetSubscription(ctx, job.SubscriptionID)
	if err != nil {
		d.logger.Error("failed to load subscription",
			"error", err,
			"subscription_id", job.SubscriptionID,
			"event_id", job.EventID,
		)
		return
	}

	// Pausing or deleting a subscription does not cancel attempts already in
	// flight, but it terminates any attempt that has not started yet.
	if sub.Status != domain.StatusActive {
		d.terminate(ctx, job, sub, nil, "subscription inactive", 0, false)
		return
	}

	if !d.rl.Allow(ctx, sub.ID, sub.RateLimitPerSecond) {
		d.requeue(ctx, job, rateLimitDeferral)
		return
	}

	claimed, err := d.store.ClaimAttempt(ctx, job.AttemptID)
	if err != nil {
		d.logger.Error("failed to claim attempt", "error", err, "attempt_id", job.AttemptID)
		return
	}
	if !claimed {
		// Another worker already executed this row (duplicate dispatch).
		return
	}

	body, err := json.Marshal(wirePayload{
		ID:        job.EventID,
		EventType: job.EventType,
		Timestamp: job.OccurredAt.UTC().Format(time.RFC3339),
		Data:      job.Payload,
	})
	if err != nil {
		d.terminate(ctx, job, sub, nil, fmt.Sprintf("failed to encode payload: %v", err), 0, true)
		return
	}

	sigHeader, err := signature.Header(sub.Secret, body)
	if err != nil {
		d.terminate(ctx, job, sub, nil, fmt.Sprintf("failed to sign payload: %v", err), 0, true)
		return
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.TargetURL, bytes.NewReader(body))
	if err != nil {
		d.terminate(ctx, job, sub, nil, fmt.Sprintf("failed to create request: %v", err), 0, true)
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", sigHeader)
	req.Header.Set("X-Webhook-Event", job.EventType)
	req.Header.Set("X-Webhook-ID", job.EventID)
	req.Header.Set("X-Webhook-Attempt", fmt.Sprintf("%d", job.Attempt))

	resp, err := d.httpClient.Do(req)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		// Timeout or connection error: retryable.
		d.retry(ctx, job, sub, nil, fmt.Sprintf("request failed: %v", err), elapsed)
		return
	}
	defer resp.Body.Close()

	// Drain a little of the body so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		d.succeed(ctx, job, sub, status, elapsed)
	case status >= 400 && status < 500 && status != http.StatusTooManyRequests:
		// The receiver explicitly rejected the request; retrying is wasted work.
		d.terminate(ctx, job, sub, &status, fmt.Sprintf("rejected with HTTP %d", status), elapsed, true)
	default:
		// 429, 5xx, or anything else unexpected.
		d.retry(ctx, job, sub, &status, fmt.Sprintf("HTTP %d", status), elapsed)
	}
}

// requeue bounces a job without touching the ledger.
func (d *Deliverer) requeue(ctx context.Context, job engine.DeliveryJob, delay time.Duration) {
	if err := d.queue.Enqueue(ctx, job, time.Now().Add(delay)); err != nil {
		// The pending ledger row stands; the sweeper will re-queue it.
		d.logger.Error("failed to re-queue deferred job", "error", err, "attempt_id", job.AttemptID)
	}
}

// succeed resolves the attempt as SUCCESS, ending the delivery sequence.
func (d *Deliverer) succeed(ctx context.Context, job engine.DeliveryJob, sub *domain.Subscription, status int, elapsed int64) {
	d.resolve(ctx, job, store.AttemptResult{
		Outcome:        domain.OutcomeSuccess,
		HTTPStatus:     &status,
		ResponseTimeMs: int(elapsed),
	})
	d.cb.RecordSuccess(ctx, sub.ID)

	d.logger.Info("delivery successful",
		"event_id", job.EventID,
		"subscription_id", sub.ID,
		"attempt", job.Attempt,
		"status_code", status,
		"response_time_ms", elapsed,
	)
	d.broadcast(job, sub, domain.OutcomeSuccess, &status, elapsed, "")
}

// retry resolves a transient failure. If the retry budget is exhausted the
// attempt becomes terminal and the delivery is dead-lettered; otherwise the
// next attempt row is scheduled with backoff.
func (d *Deliverer) retry(ctx context.Context, job engine.DeliveryJob, sub *domain.Subscription, status *int, detail string, elapsed int64) {
	d.cb.RecordFailure(ctx, sub.ID)

	if d.policy.Exhausted(job.Attempt) {
		d.terminate(ctx, job, sub, status, "retry budget exhausted: "+detail, elapsed, true)
		return
	}

	d.resolve(ctx, job, store.AttemptResult{
		Outcome:        domain.OutcomeFailedRetryable,
		HTTPStatus:     status,
		ErrorDetail:    detail,
		ResponseTimeMs: int(elapsed),
	})

	nextAt := d.policy.NextRetryAt(time.Now().UTC(), job.Attempt, nil)
	next, err := d.store.ScheduleAttempt(ctx, sub.ID, job.EventID, job.Attempt+1, nextAt)
	if err != nil {
		var conflict *domain.ConflictError
		if !errors.As(err, &conflict) {
			d.logger.Error("failed to schedule retry",
				"error", err,
				"event_id", job.EventID,
				"subscription_id", sub.ID,
			)
		}
		return
	}

	retryJob := job
	retryJob.AttemptID = next.ID
	retryJob.Attempt = job.Attempt + 1
	if err := d.queue.Enqueue(ctx, retryJob, nextAt); err != nil {
		d.logger.Error("failed to enqueue retry", "error", err, "attempt_id", next.ID)
	}

	d.logger.Warn("delivery failed, retry scheduled",
		"event_id", job.EventID,
		"subscription_id", sub.ID,
		"attempt", job.Attempt,
		"next_attempt_at", nextAt,
		"error", detail,
	)
	d.broadcast(job, sub, domain.OutcomeFailedRetryable, status, elapsed, detail)
}

// terminate resolves the attempt as FAILED_TERMINAL and, when the failure is
// actionable, dead-letters the delivery.
func (d *Deliverer) terminate(ctx context.Context, job engine.DeliveryJob, sub *domain.Subscription, status *int, detail string, elapsed int64, deadLetter bool) {
	d.resolve(ctx, job, store.AttemptResult{
		Outcome:        domain.OutcomeFailedTerminal,
		HTTPStatus:     status,
		ErrorDetail:    detail,
		ResponseTimeMs: int(elapsed),
	})

	if deadLetter {
		err := d.store.InsertDeadLetter(ctx, store.DeadLetterRecord{
			EventID:        job.EventID,
			SubscriptionID: sub.ID,
			TotalAttempts:  job.Attempt,
			LastHTTPStatus: status,
			LastError:      detail,
		})
		if err != nil {
			d.logger.Error("failed to insert dead letter",
				"error", err,
				"event_id", job.EventID,
				"subscription_id", sub.ID,
			)
		}
	}

	d.logger.Warn("delivery terminally failed",
		"event_id", job.EventID,
		"subscription_id", sub.ID,
		"attempt", job.Attempt,
		"error", detail,
	)
	d.broadcast(job, sub, domain.OutcomeFailedTerminal, status, elapsed, detail)
}

// resolve writes the attempt outcome, claiming first for the paths that
// bypass the normal claim (inactive subscription, signing failure).
func (d *Deliverer) resolve(ctx context.Context, job engine.DeliveryJob, res store.AttemptResult) {
	if _, err := d.store.ClaimAttempt(ctx, job.AttemptID); err != nil {
		d.logger.Error("failed to claim attempt", "error", err, "attempt_id", job.AttemptID)
	}
	if err := d.store.ResolveAttempt(ctx, job.AttemptID, res); err != nil {
		var conflict *domain.ConflictError
		if !errors.As(err, &conflict) {
			d.logger.Error("failed to resolve attempt",
				"error", err,
				"attempt_id", job.AttemptID,
				"outcome", res.Outcome,
			)
		}
	}
}

func (d *Deliverer) broadcast(job engine.DeliveryJob, sub *domain.Subscription, outcome string, status *int, elapsed int64, errDetail string) {
	d.hub.Broadcast(ws.AttemptEvent{
		EventID:        job.EventID,
		SubscriptionID: sub.ID,
		TargetURL:      sub.TargetURL,
		EventType:      job.EventType,
		Attempt:        job.Attempt,
		Outcome:        outcome,
		HTTPStatus:     status,
		ResponseMs:     elapsed,
		Error:          errDetail,
		Timestamp:      time.Now().UTC(),
	})
}
