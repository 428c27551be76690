package store

import (
	"errors"
	"strings"
	"testing"

	"github.com/hireloop/webhook-dispatch/internal/domain"
)

func TestValidateTargetURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "https URL accepted", url: "https://hooks.example.com/deliver", wantErr: false},
		{name: "https with port and query accepted", url: "https://hooks.example.com:8443/deliver?team=hiring", wantErr: false},
		{name: "http rejected", url: "http://hooks.example.com/deliver", wantErr: true},
		{name: "relative path rejected", url: "/deliver", wantErr: true},
		{name: "missing host rejected", url: "https://", wantErr: true},
		{name: "bare hostname rejected", url: "hooks.example.com/deliver", wantErr: true},
		{name: "empty rejected", url: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTargetURL(tt.url)

			if !tt.wantErr {
				if err != nil {
					t.Fatalf("expected %q to be accepted, got %v", tt.url, err)
				}
				return
			}

			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError for %q, got %v", tt.url, err)
			}
			if verr.Field != "target_url" {
				t.Errorf("error field = %q, want %q", verr.Field, "target_url")
			}
		})
	}
}

func TestCanonicalEventTypes_SortsAndDedups(t *testing.T) {
	got, err := canonicalEventTypes([]string{"candidate.hired", "application.received", "candidate.hired"})
	if err != nil {
		t.Fatalf("canonicalization failed: %v", err)
	}

	want := []string{"application.received", "candidate.hired"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

// The registration guard compares event_types arrays byte-for-byte, so two
// orderings of the same set must canonicalize identically.
func TestCanonicalEventTypes_OrderInsensitive(t *testing.T) {
	a, err := canonicalEventTypes([]string{"interview.scheduled", "candidate.hired", "application.received"})
	if err != nil {
		t.Fatalf("canonicalization failed: %v", err)
	}
	b, err := canonicalEventTypes([]string{"application.received", "interview.scheduled", "candidate.hired"})
	if err != nil {
		t.Fatalf("canonicalization failed: %v", err)
	}

	if strings.Join(a, ",") != strings.Join(b, ",") {
		t.Errorf("orderings canonicalize differently: %v vs %v", a, b)
	}
}

func TestCanonicalEventTypes_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		types []string
	}{
		{name: "empty set", types: []string{}},
		{name: "nil set", types: nil},
		{name: "empty string member", types: []string{"candidate.hired", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := canonicalEventTypes(tt.types)

			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != "event_types" {
				t.Errorf("error field = %q, want %q", verr.Field, "event_types")
			}
		})
	}
}
