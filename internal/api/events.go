package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hireloop/webhook-dispatch/internal/engine"
	"github.com/hireloop/webhook-dispatch/internal/store"
)

type EventHandler struct {
	store     *store.PostgresStore
	publisher *engine.Publisher
	queue     *engine.Queue
}

func NewEventHandler(s *store.PostgresStore, p *engine.Publisher, q *engine.Queue) *EventHandler {
	return &EventHandler{store: s, publisher: p, queue: q}
}

type publishEventRequest struct {
	ID         string          `json:"id,omitempty"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	Source     string          `json:"source,omitempty"`
	OccurredAt *time.Time      `json:"occurred_at,omitempty"`
}

type publishEventResponse struct {
	EventID          string `json:"event_id"`
	EventType        string `json:"event_type"`
	DeliveriesQueued int    `json:"deliveries_queued"`
}

// Create persists an event and fans it out. Delivery failures never surface
// here; the caller only learns how many deliveries were queued.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req publishEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.EventType == "" {
		respondError(w, http.StatusBadRequest, "event_type is required")
		return
	}
	if len(req.Payload) == 0 {
		respondError(w, http.StatusBadRequest, "payload is required")
		return
	}
	if !json.Valid(req.Payload) {
		respondError(w, http.StatusBadRequest, "payload must be valid JSON")
		return
	}

	var occurredAt time.Time
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}

	event, err := h.store.CreateEvent(r.Context(), req.ID, req.EventType, req.Payload, req.Source, occurredAt)
	if err != nil {
		respondDomainError(w, err, "failed to create event")
		return
	}

	queued, err := h.publisher.Publish(r.Context(), event)
	if err != nil {
		// Event is saved but fan-out failed; it can be replayed later.
		respondJSON(w, http.StatusCreated, publishEventResponse{
			EventID:   event.ID,
			EventType: event.EventType,
		})
		return
	}

	respondJSON(w, http.StatusCreated, publishEventResponse{
		EventID:          event.ID,
		EventType:        event.EventType,
		DeliveriesQueued: queued,
	})
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	eventType := r.URL.Query().Get("event_type")
	limitStr := r.URL.Query().Get("limit")

	limit := 50
	if limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := h.store.ListEvents(r.Context(), eventType, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	respondJSON(w, http.StatusOK, events)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	event, err := h.store.GetEvent(r.Context(), id)
	if err != nil {
		respondDomainError(w, err, "failed to get event")
		return
	}

	respondJSON(w, http.StatusOK, event)
}

type replayRequest struct {
	SubscriptionID string `json:"subscription_id"`
}

// Replay re-dispatches a historical event to one subscription, continuing
// that pair's attempt sequence.
func (h *EventHandler) Replay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req replayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SubscriptionID == "" {
		respondError(w, http.StatusBadRequest, "subscription_id is required")
		return
	}

	event, err := h.store.GetEvent(r.Context(), id)
	if err != nil {
		respondDomainError(w, err, "failed to get event")
		return
	}

	sub, err := h.store.GetSubscription(r.Context(), req.SubscriptionID)
	if err != nil {
		respondDomainError(w, err, "failed to get subscription")
		return
	}

	next, err := h.store.NextAttemptNumber(r.Context(), sub.ID, event.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to compute attempt number")
		return
	}

	now := time.Now().UTC()
	attempt, err := h.store.ScheduleAttempt(r.Context(), sub.ID, event.ID, next, now)
	if err != nil {
		respondDomainError(w, err, "failed to schedule replay")
		return
	}

	job := engine.DeliveryJob{
		AttemptID:      attempt.ID,
		EventID:        event.ID,
		SubscriptionID: sub.ID,
		EventType:      event.EventType,
		Payload:        event.Payload,
		OccurredAt:     event.OccurredAt,
		Attempt:        next,
	}
	if err := h.queue.Enqueue(r.Context(), job, now); err != nil {
		// The pending row stands; the sweeper will dispatch it.
		respondJSON(w, http.StatusAccepted, attempt)
		return
	}

	respondJSON(w, http.StatusAccepted, attempt)
}
