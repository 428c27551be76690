package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hireloop/webhook-dispatch/internal/domain"
	"github.com/jackc/pgx/v5"
)

// CreateEvent persists an event. The ID is assigned if empty; re-publishing
// an existing ID returns ConflictError (events are immutable once published
// and the ID is the dedup key).
func (s *PostgresStore) CreateEvent(ctx context.Context, id, eventType string, payload []byte, source string, occurredAt time.Time) (*domain.Event, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	var event domain.Event
	err := s.pool.QueryRow(ctx, `
		INSERT INTO events (id, event_type, payload, source, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, event_type, payload, source, occurred_at, created_at
	`, id, eventType, payload, source, occurredAt).Scan(
		&event.ID, &event.EventType, &event.Payload, &event.Source, &event.OccurredAt, &event.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &domain.ConflictError{Entity: "event", Detail: fmt.Sprintf("event %s already published", id)}
		}
		return nil, fmt.Errorf("inserting event: %w", err)
	}
	return &event, nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	var event domain.Event
	err := s.pool.QueryRow(ctx, `
		SELECT id, event_type, payload, source, occurred_at, created_at
		FROM events WHERE id = $1
	`, id).Scan(
		&event.ID, &event.EventType, &event.Payload, &event.Source, &event.OccurredAt, &event.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, &domain.NotFoundError{Entity: "event", ID: id}
		}
		return nil, fmt.Errorf("querying event: %w", err)
	}
	return &event, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, eventType string, limit int) ([]domain.Event, error) {
	query := `SELECT id, event_type, payload, source, occurred_at, created_at FROM events`
	args := []interface{}{}
	argIdx := 1

	if eventType != "" {
		query += fmt.Sprintf(" WHERE event_type = $%d", argIdx)
		args = append(args, eventType)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		err := rows.Scan(&e.ID, &e.EventType, &e.Payload, &e.Source, &e.OccurredAt, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, e)
	}

	if events == nil {
		events = []domain.Event{}
	}

	return events, nil
}
