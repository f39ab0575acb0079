package wapi

import (
	"os"
	"time"
)

// ConfigFromEnv builds a Config from environment variables with defaults:
//
//	TAHOE_WAPI_URL      WAPI endpoint (default http://localhost:3456)
//	TAHOE_WAPI_TIMEOUT  per-request timeout, Go duration syntax (default 30s)
func ConfigFromEnv() Config {
	return Config{
		BaseURL: envOr("TAHOE_WAPI_URL", DefaultURL),
		Timeout: envDuration("TAHOE_WAPI_TIMEOUT", 30*time.Second),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
