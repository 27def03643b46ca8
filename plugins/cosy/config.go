package cosy

import (
	"fmt"
	"strings"
	"time"

	"github.com/joshp123/geocosy/internal/config"
	"github.com/joshp123/geocosy/internal/rate"
)

const (
	defaultBaseURL          = config.DefaultCosyBaseURL
	defaultOverrideDuration = config.DefaultOverrideMinutes * time.Minute
	defaultTimeout          = config.DefaultTimeoutSeconds * time.Second
)

// Config defines runtime configuration for the Cosy client.
type Config struct {
	BaseURL  string
	Username string
	Password string

	// OverrideDuration is how long a comfy/cosy activation lasts.
	OverrideDuration     time.Duration
	Timeout              time.Duration
	MaxRequestsPerMinute int
}

func ConfigFromSettings(cfg config.CosyConfig) (Config, error) {
	if strings.TrimSpace(cfg.Username) == "" {
		return Config{}, fmt.Errorf("cosy username is required")
	}
	password, err := cfg.ResolvePassword()
	if err != nil {
		return Config{}, err
	}
	if cfg.OverrideMinutes < 0 || cfg.TimeoutSeconds < 0 {
		return Config{}, fmt.Errorf("cosy durations must not be negative")
	}

	return Config{
		BaseURL:              cfg.BaseURL,
		Username:             strings.TrimSpace(cfg.Username),
		Password:             password,
		OverrideDuration:     time.Duration(cfg.OverrideMinutes) * time.Minute,
		Timeout:              time.Duration(cfg.TimeoutSeconds) * time.Second,
		MaxRequestsPerMinute: cfg.MaxRequestsPerMinute,
	}, nil
}

// reloginReserve is held back from a header-reported minute budget so the
// controller can still log in again after a rejected token.
const reloginReserve = 1

// RateLimits declares the client-side request budget for the vendor API.
// A non-positive perMinute disables the guard.
func RateLimits(perMinute int) rate.Declaration {
	decl := rate.Provider("cosy")
	if perMinute <= 0 {
		return decl
	}
	return decl.
		MaxRequestsPer(rate.Minute, perMinute).
		BudgetFloor(rate.Minute, reloginReserve).
		ReadHeaders(rate.StandardHeaders())
}
