package store

import (
	"context"
	"fmt"

	"github.com/hireloop/webhook-dispatch/internal/domain"
)

// DeliveryMetrics holds aggregated delivery statistics.
type DeliveryMetrics struct {
	TotalAttempts       int     `json:"total_attempts"`
	SuccessCount        int     `json:"success_count"`
	RetryableCount      int     `json:"retryable_count"`
	TerminalCount       int     `json:"terminal_count"`
	PendingCount        int     `json:"pending_count"`
	SuccessRate         float64 `json:"success_rate"`
	AvgResponseMs       float64 `json:"avg_response_ms"`
	DeadLetterCount     int     `json:"dead_letter_count"`
	ActiveSubscriptions int     `json:"active_subscriptions"`
	TotalEvents         int     `json:"total_events"`
}

// GetDeliveryMetrics returns aggregated delivery statistics.
func (s *PostgresStore) GetDeliveryMetrics(ctx context.Context) (*DeliveryMetrics, error) {
	var m DeliveryMetrics

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE outcome = $1) AS success,
			COUNT(*) FILTER (WHERE outcome = $2) AS retryable,
			COUNT(*) FILTER (WHERE outcome = $3) AS terminal,
			COUNT(*) FILTER (WHERE outcome = $4) AS pending,
			COALESCE(AVG(response_time_ms) FILTER (WHERE response_time_ms > 0), 0) AS avg_response_ms
		FROM delivery_attempts
	`, domain.OutcomeSuccess, domain.OutcomeFailedRetryable, domain.OutcomeFailedTerminal, domain.OutcomePending).Scan(
		&m.TotalAttempts, &m.SuccessCount, &m.RetryableCount, &m.TerminalCount, &m.PendingCount, &m.AvgResponseMs,
	)
	if err != nil {
		return nil, fmt.Errorf("querying delivery metrics: %w", err)
	}

	if m.TotalAttempts > 0 {
		m.SuccessRate = float64(m.SuccessCount) / float64(m.TotalAttempts) * 100
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM dead_letters WHERE resolved_at IS NULL
	`).Scan(&m.DeadLetterCount)
	if err != nil {
		return nil, fmt.Errorf("querying dead letter count: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM subscriptions WHERE status = $1
	`, domain.StatusActive).Scan(&m.ActiveSubscriptions)
	if err != nil {
		return nil, fmt.Errorf("querying active subscriptions: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM events
	`).Scan(&m.TotalEvents)
	if err != nil {
		return nil, fmt.Errorf("querying total events: %w", err)
	}

	return &m, nil
}
