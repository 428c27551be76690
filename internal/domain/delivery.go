package domain

import (
	"time"
)

// Delivery attempt outcomes. A pending attempt is scheduled but not yet
// resolved; success and terminal failure end the delivery sequence.
const (
	OutcomePending         = "pending"
	OutcomeSuccess         = "success"
	OutcomeFailedRetryable = "failed_retryable"
	OutcomeFailedTerminal  = "failed_terminal"
)

// DeliveryAttempt is one concrete try within a delivery. Attempt numbers for
// a (subscription, event) pair form a contiguous sequence starting at 1; a
// new row is created for each retry, never mutating the previous one.
type DeliveryAttempt struct {
	ID             string     `json:"id"`
	SubscriptionID string     `json:"subscription_id"`
	EventID        string     `json:"event_id"`
	AttemptNumber  int        `json:"attempt_number"`
	Outcome        string     `json:"outcome"`
	HTTPStatus     *int       `json:"http_status,omitempty"`
	ErrorDetail    *string    `json:"error_detail,omitempty"`
	ResponseTimeMs *int       `json:"response_time_ms,omitempty"`
	ScheduledAt    time.Time  `json:"scheduled_at"`
	ExecutedAt     *time.Time `json:"executed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Terminal reports whether the attempt ended its delivery sequence.
func (a DeliveryAttempt) Terminal() bool {
	return a.Outcome == OutcomeSuccess || a.Outcome == OutcomeFailedTerminal
}

// DeadLetter records a delivery that terminally failed, for operator review
// and replay.
type DeadLetter struct {
	ID             string     `json:"id"`
	EventID        string     `json:"event_id"`
	SubscriptionID string     `json:"subscription_id"`
	TotalAttempts  int        `json:"total_attempts"`
	LastError      *string    `json:"last_error,omitempty"`
	LastHTTPStatus *int       `json:"last_http_status,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy     *string    `json:"resolved_by,omitempty"`
}
