package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerURL         string
	Environment       string
	SessionPath       string
	RequestTimeout    time.Duration
	ReconnectDelay    time.Duration
	TypingIdleTimeout time.Duration
	Notifications     bool
}

func Load() *Config {
	// Optional env file: explicit path wins, otherwise .env in the working
	// directory. Already-set process variables are never overridden.
	if path, ok := os.LookupEnv("PEYK_ENV_FILE"); ok {
		godotenv.Load(path)
	} else {
		godotenv.Load()
	}

	return &Config{
		ServerURL:         strings.TrimRight(getEnv("PEYK_SERVER_URL", "http://localhost:8000"), "/"),
		Environment:       getEnv("PEYK_ENVIRONMENT", "development"),
		SessionPath:       getEnv("PEYK_SESSION_PATH", defaultSessionPath()),
		RequestTimeout:    parseDuration(getEnv("PEYK_REQUEST_TIMEOUT", "15s"), 15*time.Second),
		ReconnectDelay:    parseDuration(getEnv("PEYK_RECONNECT_DELAY", "3s"), 3*time.Second),
		TypingIdleTimeout: parseDuration(getEnv("PEYK_TYPING_IDLE_TIMEOUT", "2s"), 2*time.Second),
		Notifications:     parseBool(getEnv("PEYK_NOTIFICATIONS", "true")),
	}
}

// APIBaseURL returns the REST base, e.g. http://host:8000/api
func (c *Config) APIBaseURL() string {
	return c.ServerURL + "/api"
}

// WSBaseURL derives the websocket base from the server URL (http->ws, https->wss).
func (c *Config) WSBaseURL() string {
	switch {
	case strings.HasPrefix(c.ServerURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.ServerURL, "https://")
	case strings.HasPrefix(c.ServerURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.ServerURL, "http://")
	}
	return c.ServerURL
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./peyk-session.db"
	}
	return home + "/.peyk/session.db"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func parseDuration(s string, defaultValue time.Duration) time.Duration {
	val, err := time.ParseDuration(s)
	if err != nil || val <= 0 {
		return defaultValue
	}
	return val
}

func parseBool(s string) bool {
	val, err := strconv.ParseBool(s)
	if err != nil {
		return true
	}
	return val
}
