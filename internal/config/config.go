// Package config loads the proxy's runtime configuration from
// environment variables (spec §6), falling back to documented defaults
// and logging a warning on any invalid value - the same policy the
// teacher's pkg/theme.Load applies to a missing/malformed theme file,
// just sourced from the environment instead of JSON on disk.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/mrmarble/xiinoproxy/internal/device"
)

// Config is the full set of proxy-wide settings §6 names.
type Config struct {
	ListenAddr        string
	MaxPageWeight     int64
	MaxImages         int
	PageDeadline      time.Duration
	RequestsPerSecond rate.Limit
	BurstPerClient    int
	FetchTimeout      time.Duration
	MaxRedirects      int
	MaxRequestSize    int64
}

// Default returns the documented defaults (spec §6).
func Default() Config {
	return Config{
		ListenAddr:        ":8080",
		MaxPageWeight:     int64(device.DefaultMaxPageWeight),
		MaxImages:         40,
		PageDeadline:      20 * time.Second,
		RequestsPerSecond: 2,
		BurstPerClient:    5,
		FetchTimeout:      15 * time.Second,
		MaxRedirects:      5,
		MaxRequestSize:    1 << 20,
	}
}

// Load reads XIINOPROXY_* environment variables over the defaults,
// logging a warning and keeping the default for any value that fails to
// parse rather than refusing to start.
func Load(log zerolog.Logger) Config {
	cfg := Default()

	cfg.ListenAddr = stringEnv(log, "XIINOPROXY_LISTEN_ADDR", cfg.ListenAddr)
	cfg.MaxPageWeight = int64Env(log, "XIINOPROXY_MAX_PAGE_WEIGHT", cfg.MaxPageWeight)
	cfg.MaxImages = intEnv(log, "XIINOPROXY_MAX_IMAGES", cfg.MaxImages)
	cfg.PageDeadline = durationEnv(log, "XIINOPROXY_PAGE_DEADLINE", cfg.PageDeadline)
	cfg.RequestsPerSecond = rate.Limit(floatEnv(log, "XIINOPROXY_REQUESTS_PER_SECOND", float64(cfg.RequestsPerSecond)))
	cfg.BurstPerClient = intEnv(log, "XIINOPROXY_BURST_PER_CLIENT", cfg.BurstPerClient)
	cfg.FetchTimeout = durationEnv(log, "XIINOPROXY_FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.MaxRedirects = intEnv(log, "XIINOPROXY_MAX_REDIRECTS", cfg.MaxRedirects)
	cfg.MaxRequestSize = int64Env(log, "XIINOPROXY_MAX_REQUEST_SIZE", cfg.MaxRequestSize)

	return cfg
}

func stringEnv(_ zerolog.Logger, key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(log zerolog.Logger, key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("invalid config value, using default")
		return fallback
	}
	return v
}

func int64Env(log zerolog.Logger, key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("invalid config value, using default")
		return fallback
	}
	return v
}

func floatEnv(log zerolog.Logger, key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("invalid config value, using default")
		return fallback
	}
	return v
}

func durationEnv(log zerolog.Logger, key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("invalid config value, using default")
		return fallback
	}
	return v
}
