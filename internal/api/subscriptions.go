package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hireloop/webhook-dispatch/internal/domain"
	"github.com/hireloop/webhook-dispatch/internal/engine"
	"github.com/hireloop/webhook-dispatch/internal/store"
)

type SubscriptionHandler struct {
	store          *store.PostgresStore
	circuitBreaker *engine.CircuitBreaker
}

func NewSubscriptionHandler(s *store.PostgresStore, cb *engine.CircuitBreaker) *SubscriptionHandler {
	return &SubscriptionHandler{store: s, circuitBreaker: cb}
}

// Create registers a subscription. The secret is returned exactly once here.
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.store.CreateSubscription(r.Context(), req)
	if err != nil {
		respondDomainError(w, err, "failed to create subscription")
		return
	}

	respondJSON(w, http.StatusCreated, domain.CreateSubscriptionResponse{
		ID:        sub.ID,
		TargetURL: sub.TargetURL,
		Secret:    sub.Secret,
	})
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	subscriptions, err := h.store.ListSubscriptions(r.Context(), ownerID, includeDeleted)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	respondJSON(w, http.StatusOK, subscriptions)
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := h.store.GetSubscription(r.Context(), id)
	if err != nil {
		respondDomainError(w, err, "failed to get subscription")
		return
	}

	respondJSON(w, http.StatusOK, sub.Redacted())
}

// Update patches a subscription. Rotating the secret returns the new value
// once; it is redacted ever after.
func (h *SubscriptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req domain.UpdateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.store.UpdateSubscription(r.Context(), id, req)
	if err != nil {
		respondDomainError(w, err, "failed to update subscription")
		return
	}

	if req.RotateSecret {
		respondJSON(w, http.StatusOK, sub)
		return
	}
	respondJSON(w, http.StatusOK, sub.Redacted())
}

func (h *SubscriptionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.PauseSubscription(r.Context(), id); err != nil {
		respondDomainError(w, err, "failed to pause subscription")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": domain.StatusPaused})
}

func (h *SubscriptionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.ResumeSubscription(r.Context(), id); err != nil {
		respondDomainError(w, err, "failed to resume subscription")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": domain.StatusActive})
}

// Delete soft-deletes; the next publisher lookup excludes the subscription,
// but its delivery history is retained.
func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.DeleteSubscription(r.Context(), id); err != nil {
		respondDomainError(w, err, "failed to delete subscription")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Health reports the circuit breaker state for a subscription endpoint.
func (h *SubscriptionHandler) Health(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := h.store.GetSubscription(r.Context(), id)
	if err != nil {
		respondDomainError(w, err, "failed to get subscription")
		return
	}

	type healthResponse struct {
		SubscriptionID string              `json:"subscription_id"`
		TargetURL      string              `json:"target_url"`
		Status         string              `json:"status"`
		CircuitBreaker engine.CircuitState `json:"circuit_breaker"`
	}

	respondJSON(w, http.StatusOK, healthResponse{
		SubscriptionID: sub.ID,
		TargetURL:      sub.TargetURL,
		Status:         sub.Status,
		CircuitBreaker: h.circuitBreaker.GetState(r.Context(), id),
	})
}
