package config

import (
	"os"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Port != "5175" || cfg.Addr() != ":5175" {
		t.Errorf("port = %q", cfg.Port)
	}
	if cfg.DatabasePath != "./data/ladders.db" || cfg.JWTExpiresDays != 14 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.RequestTimeout != 10*time.Second || cfg.OverlayTTL != 30*time.Second || cfg.WebhookTimeout != 5*time.Second {
		t.Errorf("durations = %+v", cfg)
	}
	if cfg.RedisURL != "" || cfg.WebhookURL != "" {
		t.Errorf("optional sinks should default empty: %+v", cfg)
	}
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("OVERLAY_CACHE_TTL", "1m")
	t.Setenv("JWT_EXPIRES_DAYS", "3")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Addr() != ":8080" || cfg.RedisURL != "redis://localhost:6379/1" || cfg.OverlayTTL != time.Minute || cfg.JWTExpiresDays != 3 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseRejects(t *testing.T) {
	for name, kv := range map[string][2]string{
		"bad duration": {"REQUEST_TIMEOUT", "soon"},
		"bad int":      {"JWT_EXPIRES_DAYS", "two"},
		"zero days":    {"JWT_EXPIRES_DAYS", "0"},
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := Parse(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadWithoutDotEnv(t *testing.T) {
	chdir(t, t.TempDir())
	if _, err := Load(); err != nil {
		t.Fatalf("Load without .env: %v", err)
	}
}

// chdir changes the working directory for the test and restores it on cleanup
// (equivalent to testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}
