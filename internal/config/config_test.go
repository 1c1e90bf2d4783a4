package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "LISTEN_ADDR", "SITE_BASE_URL", "GOOGLE_REDIRECT_URL", "AUTO_SUBSCRIBE",
		"ATTEMPT_TTL", "MAX_UPLOAD_BYTES", "BOOTSTRAP_ADMIN_EMAIL", "DATABASE_PATH",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.ListenAddr)
	}
	if cfg.GoogleRedirectURL != "http://localhost:8080/auth/callback" {
		t.Fatalf("unexpected redirect url %q", cfg.GoogleRedirectURL)
	}
	if !cfg.AutoSubscribe {
		t.Fatal("expected auto subscribe to default to true")
	}
	if cfg.AttemptTTL != 30*time.Minute {
		t.Fatalf("unexpected attempt ttl %v", cfg.AttemptTTL)
	}
	if cfg.BootstrapAdminEmail != "admin@example.com" {
		t.Fatalf("unexpected bootstrap email %q", cfg.BootstrapAdminEmail)
	}
	if cfg.DatabasePath != "contentgate.db" {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("SITE_BASE_URL", "https://gate.example.com/")
	t.Setenv("GOOGLE_REDIRECT_URL", "")
	t.Setenv("AUTO_SUBSCRIBE", "false")
	t.Setenv("ATTEMPT_TTL", "5m")
	t.Setenv("MAX_UPLOAD_BYTES", "not-a-number")

	cfg := Load()
	if cfg.ListenAddr != ":9000" {
		t.Fatalf("expected :9000, got %q", cfg.ListenAddr)
	}
	if cfg.SiteBaseURL != "https://gate.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.SiteBaseURL)
	}
	if cfg.GoogleRedirectURL != "https://gate.example.com/auth/callback" {
		t.Fatalf("unexpected redirect url %q", cfg.GoogleRedirectURL)
	}
	if cfg.AutoSubscribe {
		t.Fatal("expected auto subscribe disabled")
	}
	if cfg.AttemptTTL != 5*time.Minute {
		t.Fatalf("unexpected attempt ttl %v", cfg.AttemptTTL)
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Fatalf("expected fallback upload limit, got %d", cfg.MaxUploadBytes)
	}
}
