package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string
	JWTSecret   string
	Port        string
	APIBaseURL  string

	// Engine tuning. Defaults match the mobile client's behavior.
	CacheTTL        time.Duration
	OfflineQueueMax int
	SyncInterval    time.Duration
	SyncMaxAge      time.Duration
	RefreshDelay    time.Duration
}

func Load() *Config {
	return &Config{
		DatabaseURL:     getEnv("DATABASE_URL", "ecogoals.db"),
		JWTSecret:       getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		Port:            getEnv("PORT", "8080"),
		APIBaseURL:      getEnv("API_BASE_URL", "http://localhost:8080"),
		CacheTTL:        getDuration("CACHE_TTL", 10*time.Minute),
		OfflineQueueMax: getInt("OFFLINE_QUEUE_MAX", 100),
		SyncInterval:    getDuration("SYNC_INTERVAL", 30*time.Second),
		SyncMaxAge:      getDuration("SYNC_MAX_AGE", 5*time.Minute),
		RefreshDelay:    getDuration("REFRESH_DELAY", 2*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
