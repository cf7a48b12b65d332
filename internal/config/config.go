package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env          string
	ListenAddr   string
	DatabaseURL  string
	BrokerSecret string

	// DispatchURL is the consumer webhook the relay delivers to. Defaults to
	// this process's own /internal/dispatch endpoint.
	DispatchURL string

	DedupTTL            time.Duration
	RelayWorkers        int
	RelayPollInterval   time.Duration
	DispatchMaxAttempts int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:                 getenv("APP_ENV", "development"),
		ListenAddr:          getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		BrokerSecret:        os.Getenv("BROKER_SECRET"),
		DispatchURL:         getenv("DISPATCH_URL", "http://localhost:8080/internal/dispatch"),
		DedupTTL:            getenvDuration("DEDUP_TTL", time.Hour),
		RelayWorkers:        getenvInt("RELAY_WORKERS", 2),
		RelayPollInterval:   getenvDuration("RELAY_POLL_INTERVAL", 500*time.Millisecond),
		DispatchMaxAttempts: getenvInt("DISPATCH_MAX_ATTEMPTS", 5),
	}
	if cfg.DatabaseURL == "" {
		// Not fatal for early local runs; warn via error value so callers can decide.
		return cfg, fmt.Errorf("DATABASE_URL not set")
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var out int
		if _, err := fmt.Sscanf(v, "%d", &out); err == nil {
			return out
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
