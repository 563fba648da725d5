package config

import (
	"strings"
	"testing"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	// TEST_INT_MISSING is not set.
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if got := err.Error(); got != `TEST_DUR_BAD="five-seconds" is not a valid duration` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("RADIANT_PORT", "abc")
	t.Setenv("RADIANT_HOT_GRACE", "soon")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	for _, want := range []string{"RADIANT_PORT", "abc", "RADIANT_HOT_GRACE"} {
		if !strings.Contains(got, want) {
			t.Fatalf("error should mention %s, got: %s", want, got)
		}
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.OversightTimeoutDays != 7 || cfg.OversightEscalationDays != 3 {
		t.Fatalf("unexpected oversight defaults: %d/%d", cfg.OversightTimeoutDays, cfg.OversightEscalationDays)
	}
	if !cfg.MCPEnabled {
		t.Fatal("expected MCP to be enabled by default")
	}
}

func TestValidate(t *testing.T) {
	base, err := Load()
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "missing dsn", mutate: func(c *Config) { c.DatabaseURL = "" }, want: "DATABASE_URL"},
		{name: "unknown kv backend", mutate: func(c *Config) { c.KVBackend = "memcached" }, want: "RADIANT_KV_BACKEND"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.ArchiveBackend = ArchiveGCS }, want: "RADIANT_GCS_BUCKET"},
		{name: "zero batch", mutate: func(c *Config) { c.PromoteBatch = 0 }, want: "RADIANT_PROMOTE_BATCH"},
		{name: "bad cron", mutate: func(c *Config) { c.CronArchive = "nightly" }, want: "RADIANT_CRON_ARCHIVE"},
		{name: "unknown preset", mutate: func(c *Config) { c.DefaultPreset = "yolo" }, want: "RADIANT_DEFAULT_PRESET"},
		{name: "zero rate limit", mutate: func(c *Config) { c.RateLimitPerMinute = 0 }, want: "RADIANT_RATE_LIMIT_PER_MINUTE"},
		{name: "escalation after expiry", mutate: func(c *Config) { c.OversightEscalationDays = 7 }, want: "RADIANT_OVERSIGHT_ESCALATION_DAYS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error should mention %s, got: %s", tt.want, err)
			}
		})
	}

	c := base
	c.CronDedup = ""
	if err := c.Validate(); err != nil {
		t.Fatalf("empty schedule disables a job, got: %v", err)
	}

	c = base
	c.RateLimitEnabled = false
	c.RateLimitPerMinute = 0
	if err := c.Validate(); err != nil {
		t.Fatalf("limits are ignored when rate limiting is off, got: %v", err)
	}
}
