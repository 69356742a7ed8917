package config

import (
	"testing"
	"time"
)

func TestLoad_RequiresAPIKey(t *testing.T) {
	t.Setenv("POSTHOG_API_KEY", "")
	if _, err := Load(); err == nil || err.Error() != "POSTHOG_API_KEY is required" {
		t.Fatalf("expected POSTHOG_API_KEY error, got %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POSTHOG_API_KEY", "phc_test")
	t.Setenv("POSTHOG_HOST", "")
	t.Setenv("WORKER_BATCH_SIZE", "")
	t.Setenv("WORKER_BATCH_INTERVAL_MS", "")
	t.Setenv("POSTHOG_FLUSH_INTERVAL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PostHogHost != "https://app.posthog.com" || cfg.NATSBatchSize != 200 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.BatchInterval != 2*time.Second || cfg.FlushInterval != 5*time.Second {
		t.Fatalf("unexpected intervals %s %s", cfg.BatchInterval, cfg.FlushInterval)
	}
}
