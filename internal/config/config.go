package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	defaultListenAddr = ":8080"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 14 * 24 * time.Hour
	defaultVerifyTTL  = 24 * time.Hour
	defaultRateBurst  = 20
	defaultRatePerSec = 10
)

// Config carries process-wide settings. It is loaded once at startup and
// treated as read-only afterwards.
type Config struct {
	ListenAddr  string
	DatabaseDSN string

	AuthSecret string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	VerifyTTL  time.Duration

	RateBurst  int
	RatePerSec int
}

// Load reads CREWBASE_* environment variables. The auth secret is the only
// hard requirement; everything else has a usable default.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:  envString("CREWBASE_LISTEN_ADDR", defaultListenAddr),
		DatabaseDSN: envString("CREWBASE_PG_DSN", ""),
		AuthSecret:  envString("CREWBASE_AUTH_SECRET", ""),
		Issuer:      envString("CREWBASE_TOKEN_ISSUER", "crewbase"),
		AccessTTL:   defaultAccessTTL,
		RefreshTTL:  defaultRefreshTTL,
		VerifyTTL:   defaultVerifyTTL,
		RateBurst:   defaultRateBurst,
		RatePerSec:  defaultRatePerSec,
	}

	if cfg.AuthSecret == "" {
		return Config{}, errors.New("config: CREWBASE_AUTH_SECRET is required")
	}

	var err error
	if cfg.AccessTTL, err = envMinutes("CREWBASE_ACCESS_TOKEN_MINUTES", cfg.AccessTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = envDays("CREWBASE_REFRESH_TOKEN_DAYS", cfg.RefreshTTL); err != nil {
		return Config{}, err
	}
	if cfg.RateBurst, err = envInt("CREWBASE_RATE_BURST", cfg.RateBurst); err != nil {
		return Config{}, err
	}
	if cfg.RatePerSec, err = envInt("CREWBASE_RATE_PER_SEC", cfg.RatePerSec); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("config: %s must be a positive integer", key)
	}
	return v, nil
}

func envMinutes(key string, def time.Duration) (time.Duration, error) {
	v, err := envInt(key, int(def/time.Minute))
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * time.Minute, nil
}

func envDays(key string, def time.Duration) (time.Duration, error) {
	v, err := envInt(key, int(def/(24*time.Hour)))
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * 24 * time.Hour, nil
}
