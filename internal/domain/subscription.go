package domain

import (
	"time"
)

// Subscription statuses.
const (
	StatusActive  = "active"
	StatusPaused  = "paused"
	StatusDeleted = "deleted"
)

// Subscription is a registered external endpoint plus the event types it
// wants delivered. Deleted subscriptions are soft-deleted so historical
// delivery attempts remain attributable.
type Subscription struct {
	ID                 string    `json:"id"`
	OwnerID            string    `json:"owner_id"`
	TargetURL          string    `json:"target_url"`
	EventTypes         []string  `json:"event_types"`
	Secret             string    `json:"secret,omitempty"`
	Status             string    `json:"status"`
	RateLimitPerSecond int       `json:"rate_limit_per_second"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Redacted returns a copy safe for listings: the secret is never exposed
// again after creation except in redacted form.
func (s Subscription) Redacted() Subscription {
	if len(s.Secret) > 8 {
		s.Secret = s.Secret[:8] + "..."
	} else if s.Secret != "" {
		s.Secret = "..."
	}
	return s
}

type CreateSubscriptionRequest struct {
	OwnerID            string   `json:"owner_id"`
	TargetURL          string   `json:"target_url"`
	EventTypes         []string `json:"event_types"`
	RateLimitPerSecond int      `json:"rate_limit_per_second,omitempty"`
}

type UpdateSubscriptionRequest struct {
	TargetURL          *string  `json:"target_url,omitempty"`
	EventTypes         []string `json:"event_types,omitempty"`
	RateLimitPerSecond *int     `json:"rate_limit_per_second,omitempty"`
	RotateSecret       bool     `json:"rotate_secret,omitempty"`
}

type CreateSubscriptionResponse struct {
	ID        string `json:"id"`
	TargetURL string `json:"target_url"`
	Secret    string `json:"secret"`
}
