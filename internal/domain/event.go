package domain

import (
	"encoding/json"
	"time"
)

// Event is a domain event emitted by the platform. Immutable once published;
// the ID is unique per emission and used for dedup.
type Event struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	Source     string          `json:"source,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	CreatedAt  time.Time       `json:"created_at"`
}
