package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hireloop/webhook-dispatch/internal/domain"
	"github.com/jackc/pgx/v5"
)

const attemptColumns = `id, subscription_id, event_id, attempt_number, outcome, http_status, error_detail, response_time_ms, scheduled_at, executed_at, created_at`

// AttemptResult carries the resolution of an executed attempt.
type AttemptResult struct {
	Outcome        string
	HTTPStatus     *int
	ErrorDetail    string
	ResponseTimeMs int
}

// ScheduleAttempt appends a pending ledger row for a future (or immediate)
// delivery attempt. The unique (subscription_id, event_id, attempt_number)
// constraint turns duplicate-write races into ConflictError.
func (s *PostgresStore) ScheduleAttempt(ctx context.Context, subscriptionID, eventID string, attemptNumber int, scheduledAt time.Time) (*domain.DeliveryAttempt, error) {
	var a domain.DeliveryAttempt
	err := s.pool.QueryRow(ctx, `
		INSERT INTO delivery_attempts (id, subscription_id, event_id, attempt_number, outcome, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+attemptColumns+`
	`, uuid.NewString(), subscriptionID, eventID, attemptNumber, domain.OutcomePending, scheduledAt).Scan(
		&a.ID, &a.SubscriptionID, &a.EventID, &a.AttemptNumber, &a.Outcome,
		&a.HTTPStatus, &a.ErrorDetail, &a.ResponseTimeMs, &a.ScheduledAt, &a.ExecutedAt, &a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &domain.ConflictError{
				Entity: "delivery_attempt",
				Detail: fmt.Sprintf("attempt %d for subscription %s event %s already recorded", attemptNumber, subscriptionID, eventID),
			}
		}
		return nil, fmt.Errorf("inserting delivery attempt: %w", err)
	}
	return &a, nil
}

// ClaimAttempt marks a pending attempt as in execution by setting
// executed_at. Returns false if another worker already claimed it, making
// duplicate dispatch of the same row harmless.
func (s *PostgresStore) ClaimAttempt(ctx context.Context, attemptID string) (bool, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE delivery_attempts SET executed_at = NOW()
		WHERE id = $1 AND executed_at IS NULL AND outcome = $2
	`, attemptID, domain.OutcomePending)
	if err != nil {
		return false, fmt.Errorf("claiming delivery attempt: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ResolveAttempt records the outcome of a claimed attempt. A row is resolved
// at most once; later calls are no-ops by the outcome guard.
func (s *PostgresStore) ResolveAttempt(ctx context.Context, attemptID string, res AttemptResult) error {
	var errDetail *string
	if res.ErrorDetail != "" {
		errDetail = &res.ErrorDetail
	}

	result, err := s.pool.Exec(ctx, `
		UPDATE delivery_attempts
		SET outcome = $2, http_status = $3, error_detail = $4, response_time_ms = $5
		WHERE id = $1 AND outcome = $6
	`, attemptID, res.Outcome, res.HTTPStatus, errDetail, res.ResponseTimeMs, domain.OutcomePending)
	if err != nil {
		return fmt.Errorf("resolving delivery attempt: %w", err)
	}
	if result.RowsAffected() == 0 {
		return &domain.ConflictError{Entity: "delivery_attempt", Detail: fmt.Sprintf("attempt %s already resolved", attemptID)}
	}
	return nil
}

// NextAttemptNumber returns one past the highest attempt number recorded for
// the (subscription, event) pair. Used by replay to keep the sequence
// contiguous.
func (s *PostgresStore) NextAttemptNumber(ctx context.Context, subscriptionID, eventID string) (int, error) {
	var max int
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(attempt_number), 0)
		FROM delivery_attempts
		WHERE subscription_id = $1 AND event_id = $2
	`, subscriptionID, eventID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("querying max attempt number: %w", err)
	}
	return max + 1, nil
}

// DueDelivery is a pending ledger row joined with the event data needed to
// rebuild its delivery job.
type DueDelivery struct {
	Attempt    domain.DeliveryAttempt
	EventType  string
	Payload    json.RawMessage
	OccurredAt time.Time
}

// DueForRetry returns pending, unclaimed attempts whose scheduled time is at
// or before cutoff. The sweeper passes now minus a grace period so the Redis
// fast path gets first chance at freshly due jobs.
func (s *PostgresStore) DueForRetry(ctx context.Context, cutoff time.Time, limit int) ([]DueDelivery, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.subscription_id, a.event_id, a.attempt_number, a.scheduled_at,
		       e.event_type, e.payload, e.occurred_at
		FROM delivery_attempts a
		JOIN events e ON e.id = a.event_id
		WHERE a.outcome = $1 AND a.executed_at IS NULL AND a.scheduled_at <= $2
		ORDER BY a.scheduled_at
		LIMIT $3
	`, domain.OutcomePending, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("querying due attempts: %w", err)
	}
	defer rows.Close()

	var due []DueDelivery
	for rows.Next() {
		var d DueDelivery
		err := rows.Scan(
			&d.Attempt.ID, &d.Attempt.SubscriptionID, &d.Attempt.EventID,
			&d.Attempt.AttemptNumber, &d.Attempt.ScheduledAt,
			&d.EventType, &d.Payload, &d.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning due attempt: %w", err)
		}
		d.Attempt.Outcome = domain.OutcomePending
		due = append(due, d)
	}

	if due == nil {
		due = []DueDelivery{}
	}

	return due, nil
}

// ListDeliveryAttempts returns ledger rows filtered by event, subscription,
// outcome, and time range.
func (s *PostgresStore) ListDeliveryAttempts(ctx context.Context, eventID, subscriptionID, outcome string, since, until time.Time, limit int) ([]domain.DeliveryAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM delivery_attempts`
	args := []interface{}{}
	argIdx := 1
	conditions := []string{}

	if eventID != "" {
		conditions = append(conditions, fmt.Sprintf("event_id = $%d", argIdx))
		args = append(args, eventID)
		argIdx++
	}
	if subscriptionID != "" {
		conditions = append(conditions, fmt.Sprintf("subscription_id = $%d", argIdx))
		args = append(args, subscriptionID)
		argIdx++
	}
	if outcome != "" {
		conditions = append(conditions, fmt.Sprintf("outcome = $%d", argIdx))
		args = append(args, outcome)
		argIdx++
	}
	if !since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, since)
		argIdx++
	}
	if !until.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, until)
		argIdx++
	}

	if len(conditions) > 0 {
		query += " WHERE "
		for i, c := range conditions {
			if i > 0 {
				query += " AND "
			}
			query += c
		}
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying delivery attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.DeliveryAttempt
	for rows.Next() {
		var a domain.DeliveryAttempt
		err := rows.Scan(
			&a.ID, &a.SubscriptionID, &a.EventID, &a.AttemptNumber, &a.Outcome,
			&a.HTTPStatus, &a.ErrorDetail, &a.ResponseTimeMs, &a.ScheduledAt, &a.ExecutedAt, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery attempt: %w", err)
		}
		attempts = append(attempts, a)
	}

	if attempts == nil {
		attempts = []domain.DeliveryAttempt{}
	}

	return attempts, nil
}

// GetDeliveryAttempt returns a single ledger row by ID.
func (s *PostgresStore) GetDeliveryAttempt(ctx context.Context, id string) (*domain.DeliveryAttempt, error) {
	var a domain.DeliveryAttempt
	err := s.pool.QueryRow(ctx, `
		SELECT `+attemptColumns+` FROM delivery_attempts WHERE id = $1
	`, id).Scan(
		&a.ID, &a.SubscriptionID, &a.EventID, &a.AttemptNumber, &a.Outcome,
		&a.HTTPStatus, &a.ErrorDetail, &a.ResponseTimeMs, &a.ScheduledAt, &a.ExecutedAt, &a.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, &domain.NotFoundError{Entity: "delivery_attempt", ID: id}
		}
		return nil, fmt.Errorf("querying delivery attempt: %w", err)
	}
	return &a, nil
}
