package engine

import (
	"math/rand"
	"testing"
	"time"
)

func TestBackoff_ExponentialGrowth(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 5 * time.Minute}

	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}

	for i, w := range want {
		got := p.Backoff(i + 1)
		if got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestBackoff_Monotonic(t *testing.T) {
	p := DefaultRetryPolicy()

	prev := time.Duration(0)
	for n := 1; n <= 30; n++ {
		d := p.Backoff(n)
		if d < prev {
			t.Fatalf("Backoff(%d) = %v decreased from %v", n, d, prev)
		}
		if d > p.MaxDelay {
			t.Fatalf("Backoff(%d) = %v exceeds cap %v", n, d, p.MaxDelay)
		}
		prev = d
	}
}

func TestBackoff_CapsAtMaxDelay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 100, BaseDelay: time.Second, MaxDelay: 30 * time.Second}

	if got := p.Backoff(6); got != 30*time.Second {
		t.Errorf("Backoff(6) = %v, want cap 30s", got)
	}
	// Deep attempt numbers must not overflow the shift.
	if got := p.Backoff(100); got != 30*time.Second {
		t.Errorf("Backoff(100) = %v, want cap 30s", got)
	}
}

func TestBackoff_InvalidAttemptClamped(t *testing.T) {
	p := DefaultRetryPolicy()

	if got := p.Backoff(0); got != p.BaseDelay {
		t.Errorf("Backoff(0) = %v, want %v", got, p.BaseDelay)
	}
	if got := p.Backoff(-3); got != p.BaseDelay {
		t.Errorf("Backoff(-3) = %v, want %v", got, p.BaseDelay)
	}
}

func TestNextRetryAt_JitterWithinBounds(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 10 * time.Second, MaxDelay: time.Hour}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		at := p.NextRetryAt(now, 1, rng)
		delay := at.Sub(now)

		// 10s ± 20%
		if delay < 8*time.Second || delay > 12*time.Second {
			t.Fatalf("jittered delay %v outside [8s, 12s]", delay)
		}
	}
}

func TestExhausted(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5}

	if p.Exhausted(4) {
		t.Error("attempt 4 of 5 should not be exhausted")
	}
	if !p.Exhausted(5) {
		t.Error("attempt 5 of 5 should be exhausted")
	}
	if !p.Exhausted(6) {
		t.Error("attempt 6 of 5 should be exhausted")
	}
}
