package api

import (
	"net/http"

	"github.com/hireloop/webhook-dispatch/internal/engine"
	"github.com/hireloop/webhook-dispatch/internal/store"
	ws "github.com/hireloop/webhook-dispatch/internal/websocket"
)

type DashboardHandler struct {
	store *store.PostgresStore
	queue *engine.Queue
	cb    *engine.CircuitBreaker
	hub   *ws.Hub
}

func NewDashboardHandler(s *store.PostgresStore, q *engine.Queue, cb *engine.CircuitBreaker, hub *ws.Hub) *DashboardHandler {
	return &DashboardHandler{store: s, queue: q, cb: cb, hub: hub}
}

// Metrics returns aggregated delivery statistics for the dashboard.
func (h *DashboardHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.store.GetDeliveryMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get metrics")
		return
	}

	queueDepth, err := h.queue.Depth(r.Context())
	if err != nil {
		queueDepth = 0
	}

	type metricsResponse struct {
		store.DeliveryMetrics
		QueueDepth       int64 `json:"queue_depth"`
		WebSocketClients int   `json:"websocket_clients"`
	}

	respondJSON(w, http.StatusOK, metricsResponse{
		DeliveryMetrics:  *metrics,
		QueueDepth:       queueDepth,
		WebSocketClients: h.hub.ClientCount(),
	})
}

// SubscriptionHealth returns circuit state for all listed subscriptions.
func (h *DashboardHandler) SubscriptionHealth(w http.ResponseWriter, r *http.Request) {
	subscriptions, err := h.store.ListSubscriptions(r.Context(), "", false)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	type subscriptionHealth struct {
		ID             string              `json:"id"`
		TargetURL      string              `json:"target_url"`
		Status         string              `json:"status"`
		CircuitBreaker engine.CircuitState `json:"circuit_breaker"`
	}

	result := make([]subscriptionHealth, 0, len(subscriptions))
	for _, sub := range subscriptions {
		result = append(result, subscriptionHealth{
			ID:             sub.ID,
			TargetURL:      sub.TargetURL,
			Status:         sub.Status,
			CircuitBreaker: h.cb.GetState(r.Context(), sub.ID),
		})
	}

	respondJSON(w, http.StatusOK, result)
}
