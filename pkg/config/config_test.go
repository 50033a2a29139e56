package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeEnvFile(t *testing.T, dir string, body string) string {
	t.Helper()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PEYK_ENV_FILE", "PEYK_SERVER_URL", "PEYK_ENVIRONMENT", "PEYK_SESSION_PATH",
		"PEYK_REQUEST_TIMEOUT", "PEYK_RECONNECT_DELAY", "PEYK_TYPING_IDLE_TIMEOUT", "PEYK_NOTIFICATIONS",
	} {
		_ = os.Unsetenv(key)
	}
}

func TestLoadReadsExplicitEnvFile(t *testing.T) {
	clearEnv(t)

	envPath := writeEnvFile(t, t.TempDir(), `
PEYK_SERVER_URL=https://chat.example.com/
PEYK_ENVIRONMENT=production
PEYK_SESSION_PATH=/var/lib/peyk/session.db
PEYK_REQUEST_TIMEOUT=30s
PEYK_RECONNECT_DELAY=5s
PEYK_TYPING_IDLE_TIMEOUT=1500ms
PEYK_NOTIFICATIONS=false
`)
	t.Setenv("PEYK_ENV_FILE", envPath)

	cfg := Load()

	if cfg.ServerURL != "https://chat.example.com" {
		t.Fatalf("ServerURL = %q, want trailing slash trimmed", cfg.ServerURL)
	}
	if cfg.Environment != "production" {
		t.Fatalf("Environment = %q, want %q", cfg.Environment, "production")
	}
	if cfg.SessionPath != "/var/lib/peyk/session.db" {
		t.Fatalf("SessionPath = %q", cfg.SessionPath)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("RequestTimeout = %v, want 30s", cfg.RequestTimeout)
	}
	if cfg.ReconnectDelay != 5*time.Second {
		t.Fatalf("ReconnectDelay = %v, want 5s", cfg.ReconnectDelay)
	}
	if cfg.TypingIdleTimeout != 1500*time.Millisecond {
		t.Fatalf("TypingIdleTimeout = %v, want 1.5s", cfg.TypingIdleTimeout)
	}
	if cfg.Notifications {
		t.Fatalf("Notifications = true, want false")
	}
}

func TestLoadEnvVarOverridesEnvFile(t *testing.T) {
	clearEnv(t)

	envPath := writeEnvFile(t, t.TempDir(), `
PEYK_SERVER_URL=http://file.example.com
PEYK_SESSION_PATH=/from-file.db
`)
	t.Setenv("PEYK_ENV_FILE", envPath)
	t.Setenv("PEYK_SERVER_URL", "http://override.example.com")

	cfg := Load()

	if cfg.ServerURL != "http://override.example.com" {
		t.Fatalf("ServerURL = %q, want process env to win", cfg.ServerURL)
	}
	if cfg.SessionPath != "/from-file.db" {
		t.Fatalf("SessionPath = %q, want value from env file", cfg.SessionPath)
	}
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("PEYK_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg := Load()

	if cfg.ServerURL != "http://localhost:8000" {
		t.Fatalf("ServerURL = %q, want default", cfg.ServerURL)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Fatalf("RequestTimeout = %v, want default 15s", cfg.RequestTimeout)
	}
	if cfg.ReconnectDelay != 3*time.Second {
		t.Fatalf("ReconnectDelay = %v, want default 3s", cfg.ReconnectDelay)
	}
	if !cfg.Notifications {
		t.Fatalf("Notifications = false, want default true")
	}
}

func TestLoadRejectsBadDurations(t *testing.T) {
	clearEnv(t)
	t.Setenv("PEYK_REQUEST_TIMEOUT", "not-a-duration")
	t.Setenv("PEYK_RECONNECT_DELAY", "-2s")

	cfg := Load()

	if cfg.RequestTimeout != 15*time.Second {
		t.Fatalf("RequestTimeout = %v, want default on parse failure", cfg.RequestTimeout)
	}
	if cfg.ReconnectDelay != 3*time.Second {
		t.Fatalf("ReconnectDelay = %v, want default for non-positive value", cfg.ReconnectDelay)
	}
}

func TestWSBaseURL(t *testing.T) {
	cases := []struct {
		server string
		want   string
	}{
		{"http://localhost:8000", "ws://localhost:8000"},
		{"https://chat.example.com", "wss://chat.example.com"},
	}

	for _, tc := range cases {
		cfg := &Config{ServerURL: tc.server}
		if got := cfg.WSBaseURL(); got != tc.want {
			t.Fatalf("WSBaseURL(%q) = %q, want %q", tc.server, got, tc.want)
		}
	}
}
