package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"

	"github.com/google/uuid"
	"github.com/hireloop/webhook-dispatch/internal/domain"
	"github.com/jackc/pgx/v5"
)

const subscriptionColumns = `id, owner_id, target_url, event_types, secret, status, rate_limit_per_second, created_at, updated_at`

// CreateSubscription registers a new endpoint. Registration is idempotent:
// a second create with the same (owner, target URL, event types) returns
// ConflictError.
func (s *PostgresStore) CreateSubscription(ctx context.Context, req domain.CreateSubscriptionRequest) (*domain.Subscription, error) {
	if req.OwnerID == "" {
		return nil, &domain.ValidationError{Field: "owner_id", Reason: "is required"}
	}
	if err := validateTargetURL(req.TargetURL); err != nil {
		return nil, err
	}
	eventTypes, err := canonicalEventTypes(req.EventTypes)
	if err != nil {
		return nil, err
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generating secret: %w", err)
	}

	var sub domain.Subscription
	err = s.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (id, owner_id, target_url, event_types, secret, rate_limit_per_second)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+subscriptionColumns+`
	`, uuid.NewString(), req.OwnerID, req.TargetURL, eventTypes, secret, req.RateLimitPerSecond).Scan(
		&sub.ID, &sub.OwnerID, &sub.TargetURL, &sub.EventTypes, &sub.Secret,
		&sub.Status, &sub.RateLimitPerSecond, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &domain.ConflictError{Entity: "subscription", Detail: "already registered for this target URL and event types"}
		}
		return nil, fmt.Errorf("inserting subscription: %w", err)
	}

	return &sub, nil
}

// GetSubscription returns a subscription by ID, including soft-deleted ones
// so ledger history stays attributable.
func (s *PostgresStore) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1
	`, id).Scan(
		&sub.ID, &sub.OwnerID, &sub.TargetURL, &sub.EventTypes, &sub.Secret,
		&sub.Status, &sub.RateLimitPerSecond, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, &domain.NotFoundError{Entity: "subscription", ID: id}
		}
		return nil, fmt.Errorf("querying subscription: %w", err)
	}
	return &sub, nil
}

// ListSubscriptions returns subscriptions, optionally filtered by owner.
// Deleted subscriptions are excluded unless includeDeleted is set.
func (s *PostgresStore) ListSubscriptions(ctx context.Context, ownerID string, includeDeleted bool) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions`
	args := []interface{}{}
	argIdx := 1
	conditions := []string{}

	if !includeDeleted {
		conditions = append(conditions, fmt.Sprintf("status <> '%s'", domain.StatusDeleted))
	}
	if ownerID != "" {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", argIdx))
		args = append(args, ownerID)
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

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	var subscriptions []domain.Subscription
	for rows.Next() {
		var sub domain.Subscription
		err := rows.Scan(
			&sub.ID, &sub.OwnerID, &sub.TargetURL, &sub.EventTypes, &sub.Secret,
			&sub.Status, &sub.RateLimitPerSecond, &sub.CreatedAt, &sub.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subscriptions = append(subscriptions, sub.Redacted())
	}

	if subscriptions == nil {
		subscriptions = []domain.Subscription{}
	}

	return subscriptions, nil
}

// UpdateSubscription patches a subscription. Rotating the secret invalidates
// previously issued signatures; in-flight attempts signed with the old
// secret are not re-signed.
func (s *PostgresStore) UpdateSubscription(ctx context.Context, id string, req domain.UpdateSubscriptionRequest) (*domain.Subscription, error) {
	setClauses := []string{}
	args := []interface{}{}
	argIdx := 1

	if req.TargetURL != nil {
		if err := validateTargetURL(*req.TargetURL); err != nil {
			return nil, err
		}
		setClauses = append(setClauses, fmt.Sprintf("target_url = $%d", argIdx))
		args = append(args, *req.TargetURL)
		argIdx++
	}
	if req.EventTypes != nil {
		eventTypes, err := canonicalEventTypes(req.EventTypes)
		if err != nil {
			return nil, err
		}
		setClauses = append(setClauses, fmt.Sprintf("event_types = $%d", argIdx))
		args = append(args, eventTypes)
		argIdx++
	}
	if req.RateLimitPerSecond != nil {
		setClauses = append(setClauses, fmt.Sprintf("rate_limit_per_second = $%d", argIdx))
		args = append(args, *req.RateLimitPerSecond)
		argIdx++
	}
	if req.RotateSecret {
		secret, err := generateSecret()
		if err != nil {
			return nil, fmt.Errorf("generating secret: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("secret = $%d", argIdx))
		args = append(args, secret)
		argIdx++
	}

	if len(setClauses) == 0 {
		return s.GetSubscription(ctx, id)
	}

	setClauses = append(setClauses, "updated_at = NOW()")

	query := fmt.Sprintf(`
		UPDATE subscriptions SET %s
		WHERE id = $%d AND status <> '%s'
		RETURNING `+subscriptionColumns+`
	`, joinStrings(setClauses, ", "), argIdx, domain.StatusDeleted)
	args = append(args, id)

	var sub domain.Subscription
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&sub.ID, &sub.OwnerID, &sub.TargetURL, &sub.EventTypes, &sub.Secret,
		&sub.Status, &sub.RateLimitPerSecond, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, &domain.NotFoundError{Entity: "subscription", ID: id}
		}
		if isUniqueViolation(err) {
			return nil, &domain.ConflictError{Entity: "subscription", Detail: "already registered for this target URL and event types"}
		}
		return nil, fmt.Errorf("updating subscription: %w", err)
	}

	return &sub, nil
}

// setSubscriptionStatus transitions a non-deleted subscription.
func (s *PostgresStore) setSubscriptionStatus(ctx context.Context, id, status string) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE subscriptions SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status <> $3
	`, id, status, domain.StatusDeleted)
	if err != nil {
		return fmt.Errorf("updating subscription status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return &domain.NotFoundError{Entity: "subscription", ID: id}
	}
	return nil
}

// PauseSubscription stops new deliveries without affecting history.
func (s *PostgresStore) PauseSubscription(ctx context.Context, id string) error {
	return s.setSubscriptionStatus(ctx, id, domain.StatusPaused)
}

// ResumeSubscription re-enables a paused subscription.
func (s *PostgresStore) ResumeSubscription(ctx context.Context, id string) error {
	return s.setSubscriptionStatus(ctx, id, domain.StatusActive)
}

// DeleteSubscription soft-deletes: the row stays so delivery history remains
// attributable, but the next publisher lookup excludes it.
func (s *PostgresStore) DeleteSubscription(ctx context.Context, id string) error {
	return s.setSubscriptionStatus(ctx, id, domain.StatusDeleted)
}

// FindActiveSubscribers returns the active subscriptions whose event type
// set contains eventType. Order is unspecified.
func (s *PostgresStore) FindActiveSubscribers(ctx context.Context, eventType string) ([]domain.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE status = $1 AND $2 = ANY(event_types)
	`, domain.StatusActive, eventType)
	if err != nil {
		return nil, fmt.Errorf("finding active subscribers: %w", err)
	}
	defer rows.Close()

	var subscriptions []domain.Subscription
	for rows.Next() {
		var sub domain.Subscription
		err := rows.Scan(
			&sub.ID, &sub.OwnerID, &sub.TargetURL, &sub.EventTypes, &sub.Secret,
			&sub.Status, &sub.RateLimitPerSecond, &sub.CreatedAt, &sub.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subscriptions = append(subscriptions, sub)
	}

	if subscriptions == nil {
		subscriptions = []domain.Subscription{}
	}

	return subscriptions, nil
}

// validateTargetURL requires a well-formed absolute HTTPS URL.
func validateTargetURL(raw string) error {
	if raw == "" {
		return &domain.ValidationError{Field: "target_url", Reason: "is required"}
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &domain.ValidationError{Field: "target_url", Reason: "must be an absolute URL"}
	}
	if u.Scheme != "https" {
		return &domain.ValidationError{Field: "target_url", Reason: "must use https"}
	}
	return nil
}

// canonicalEventTypes sorts and dedups the event type set so the duplicate
// registration guard is order-insensitive.
func canonicalEventTypes(eventTypes []string) ([]string, error) {
	if len(eventTypes) == 0 {
		return nil, &domain.ValidationError{Field: "event_types", Reason: "must not be empty"}
	}

	seen := make(map[string]struct{}, len(eventTypes))
	out := make([]string, 0, len(eventTypes))
	for _, et := range eventTypes {
		if et == "" {
			return nil, &domain.ValidationError{Field: "event_types", Reason: "must not contain empty strings"}
		}
		if _, ok := seen[et]; ok {
			continue
		}
		seen[et] = struct{}{}
		out = append(out, et)
	}
	sort.Strings(out)
	return out, nil
}

func generateSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(bytes), nil
}

func joinStrings(strs []string, sep string) string {
	result := ""
	for i, s := range strs {
		if i > 0 {
			result += sep
		}
		result += s
	}
	return result
}
