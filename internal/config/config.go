package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Settlement policy. The cancellation window is measured backwards from
	// session start; the refund window forwards from session end. The
	// asymmetry is deliberate product policy: pre-session vs post-session.
	CancellationWindowHours   int     `env:"CANCELLATION_WINDOW_HOURS" envDefault:"48"`
	RefundWindowDays          int     `env:"REFUND_WINDOW_DAYS" envDefault:"30"`
	PlatformCommissionPercent float64 `env:"PLATFORM_COMMISSION_PERCENT" envDefault:"15"`

	StripeSecretKey string `env:"STRIPE_SECRET_KEY"`
	StripeBaseURL   string `env:"STRIPE_BASE_URL" envDefault:"https://api.stripe.com"`

	NotifyWebhookURL string `env:"NOTIFY_WEBHOOK_URL" envDefault:""`

	CleanupIntervalMinutes int `env:"CLEANUP_INTERVAL_MINUTES" envDefault:"2"`

	BookingRateLimitPerMin int `env:"BOOKING_RATE_LIMIT_PER_MIN" envDefault:"10"`
}

func (c *Config) CancellationWindow() time.Duration {
	return time.Duration(c.CancellationWindowHours) * time.Hour
}

func (c *Config) RefundWindow() time.Duration {
	return time.Duration(c.RefundWindowDays) * 24 * time.Hour
}

func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMinutes) * time.Minute
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.CancellationWindowHours < 0 {
		return fmt.Errorf("CANCELLATION_WINDOW_HOURS must not be negative")
	}
	if c.RefundWindowDays < 0 {
		return fmt.Errorf("REFUND_WINDOW_DAYS must not be negative")
	}
	if c.PlatformCommissionPercent < 0 || c.PlatformCommissionPercent > 100 {
		return fmt.Errorf("PLATFORM_COMMISSION_PERCENT must be between 0 and 100")
	}
	if c.CleanupIntervalMinutes <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL_MINUTES must be positive")
	}

	if isProduction {
		if c.StripeSecretKey == "" {
			log.Warn().Msg("STRIPE_SECRET_KEY is empty in production: bookings that require payment will fail")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
