package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/webhooks")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.NumWorkers != 50 {
		t.Errorf("NumWorkers = %d, want 50", cfg.NumWorkers)
	}
	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.BaseDelay != time.Second {
		t.Errorf("BaseDelay = %v, want 1s", cfg.BaseDelay)
	}
	if cfg.MaxDelay != 5*time.Minute {
		t.Errorf("MaxDelay = %v, want 5m", cfg.MaxDelay)
	}
	if cfg.DeliveryTimeout != 10*time.Second {
		t.Errorf("DeliveryTimeout = %v, want 10s", cfg.DeliveryTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/webhooks")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("NUM_WORKERS", "8")
	t.Setenv("MAX_ATTEMPTS", "3")
	t.Setenv("BASE_DELAY", "500ms")
	t.Setenv("DELIVERY_TIMEOUT", "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.NumWorkers != 8 {
		t.Errorf("NumWorkers = %d, want 8", cfg.NumWorkers)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.BaseDelay != 500*time.Millisecond {
		t.Errorf("BaseDelay = %v, want 500ms", cfg.BaseDelay)
	}
	if cfg.DeliveryTimeout != 2*time.Second {
		t.Errorf("DeliveryTimeout = %v, want 2s", cfg.DeliveryTimeout)
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	if _, err := Load(); err == nil {
		t.Error("expected error when DATABASE_URL is missing")
	}
}

func TestLoad_InvalidWorkerCount(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/webhooks")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("NUM_WORKERS", "0")

	if _, err := Load(); err == nil {
		t.Error("expected error when NUM_WORKERS is zero")
	}
}
