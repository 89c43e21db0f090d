package config

import (
	"strings"
	"time"

	"freightline/api_compass/pkg/config"
)

// Config stores environment configuration for Compass.
type Config struct {
	Port               string
	DatabaseURL        string
	LedgerURL          string
	ServiceToken       string
	JWTSecret          string
	KafkaBrokers       []string
	UsageFlushInterval time.Duration
	BreakerThreshold   int
	BreakerCooldown    time.Duration
	ToolTimeout        time.Duration
	ToolConcurrency    int
	MaxHistoryTurns    int
}

// LoadConfig loads the Compass configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Port:               config.GetEnv("PORT", "18040"),
		DatabaseURL:        config.RequireEnv("DATABASE_URL"),
		LedgerURL:          config.GetEnv("LEDGER_URL", "http://localhost:18041"),
		ServiceToken:       config.GetEnv("SERVICE_TOKEN", ""),
		JWTSecret:          config.RequireEnv("JWT_SECRET"),
		KafkaBrokers:       parseList(config.GetEnv("KAFKA_BROKERS", "")),
		UsageFlushInterval: parseDuration(config.GetEnv("COMPASS_USAGE_FLUSH_INTERVAL", "30s"), 30*time.Second),
		BreakerThreshold:   config.GetEnvInt("COMPASS_BREAKER_THRESHOLD", 5),
		BreakerCooldown:    parseDuration(config.GetEnv("COMPASS_BREAKER_COOLDOWN", "60s"), 60*time.Second),
		ToolTimeout:        parseDuration(config.GetEnv("COMPASS_TOOL_TIMEOUT", "15s"), 15*time.Second),
		ToolConcurrency:    config.GetEnvInt("COMPASS_TOOL_CONCURRENCY", 3),
		MaxHistoryTurns:    config.GetEnvInt("COMPASS_MAX_HISTORY_TURNS", 20),
	}
}

func parseList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var result []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
