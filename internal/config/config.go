// Package config loads and validates application configuration from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/markromolecule/lakbai-core/internal/domain"
)

// Config holds all configuration values for one core process.
// Values are populated by Load from environment variables.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// Role is the declared audience role of this process: driver,
	// passenger, or admin. Defaults to driver. It gates device-level
	// notification delivery and whether the location detector runs.
	Role domain.Role

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// DatabaseURL is the Postgres connection string. Optional: when empty
	// the process keeps trip and earnings state in memory only.
	DatabaseURL string

	// BackendBaseURL is the base URL of the remote transit API. Required.
	BackendBaseURL string

	// RouteID is the route the location detector subscribes to.
	// Required for passenger processes; ignored otherwise.
	RouteID string

	// PollInterval is the location detector's polling period.
	// Set POLL_INTERVAL_SECONDS to override the default of 5 seconds.
	PollInterval time.Duration

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Set CORS_ORIGINS to a comma-separated list to override.
	CORSOrigins []string
}

// Load reads configuration from environment variables and returns a Config.
// Returns an error naming any required variable that is missing or invalid.
func Load() (Config, error) {
	cfg := Config{
		Port:         getEnv("PORT", "8080"),
		Role:         domain.Role(getEnv("ROLE", string(domain.RoleDriver))),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RouteID:      os.Getenv("ROUTE_ID"),
		PollInterval: time.Duration(cast.ToInt(getEnv("POLL_INTERVAL_SECONDS", "5"))) * time.Second,
		CORSOrigins:  splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
	}

	switch cfg.Role {
	case domain.RoleDriver, domain.RolePassenger, domain.RoleAdmin:
	default:
		return Config{}, fmt.Errorf("invalid ROLE %q: must be driver, passenger, or admin", cfg.Role)
	}

	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("invalid POLL_INTERVAL_SECONDS %q: must be a positive integer", os.Getenv("POLL_INTERVAL_SECONDS"))
	}

	cfg.BackendBaseURL = strings.TrimRight(os.Getenv("BACKEND_BASE_URL"), "/")
	if cfg.BackendBaseURL == "" {
		return Config{}, fmt.Errorf("required environment variable not set: BACKEND_BASE_URL")
	}

	if cfg.Role == domain.RolePassenger && cfg.RouteID == "" {
		return Config{}, fmt.Errorf("ROUTE_ID is required when ROLE=passenger")
	}

	return cfg, nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring
// empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
