package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/hireloop/webhook-dispatch/internal/domain"
)

func TestRespondDomainError_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "validation error maps to 400",
			err:        &domain.ValidationError{Field: "target_url", Reason: "must be an absolute URL"},
			wantStatus: 400,
		},
		{
			name:       "not found error maps to 404",
			err:        &domain.NotFoundError{Entity: "subscription", ID: "sub-1"},
			wantStatus: 404,
		},
		{
			name:       "conflict error maps to 409",
			err:        &domain.ConflictError{Entity: "subscription", Detail: "already registered"},
			wantStatus: 409,
		},
		{
			name:       "wrapped domain error still maps",
			err:        fmt.Errorf("creating subscription: %w", &domain.NotFoundError{Entity: "event", ID: "evt-1"}),
			wantStatus: 404,
		},
		{
			name:       "unknown error maps to 500",
			err:        errors.New("connection reset"),
			wantStatus: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondDomainError(rec, tt.err, "internal error")

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("response is not JSON: %v", err)
			}
			if body.Error == "" {
				t.Error("error message should not be empty")
			}
		})
	}
}

func TestRespondDomainError_FallbackHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	respondDomainError(rec, errors.New("pq: password authentication failed"), "failed to create subscription")

	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if body.Error != "failed to create subscription" {
		t.Errorf("internal errors should return the fallback message, got %q", body.Error)
	}
}
