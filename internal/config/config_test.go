package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("CancellationWindow converts hours to duration", func(t *testing.T) {
		cfg := &Config{CancellationWindowHours: 48}
		assert.Equal(t, 48*time.Hour, cfg.CancellationWindow())
	})

	t.Run("RefundWindow converts days to duration", func(t *testing.T) {
		cfg := &Config{RefundWindowDays: 30}
		assert.Equal(t, 30*24*time.Hour, cfg.RefundWindow())
	})

	t.Run("CleanupInterval converts minutes to duration", func(t *testing.T) {
		cfg := &Config{CleanupIntervalMinutes: 2}
		assert.Equal(t, 2*time.Minute, cfg.CleanupInterval())
	})
}

func TestLoad(t *testing.T) {
	originalEnv := map[string]string{
		"PORT":                        os.Getenv("PORT"),
		"DATABASE_URL":                os.Getenv("DATABASE_URL"),
		"REDIS_URL":                   os.Getenv("REDIS_URL"),
		"CANCELLATION_WINDOW_HOURS":   os.Getenv("CANCELLATION_WINDOW_HOURS"),
		"REFUND_WINDOW_DAYS":          os.Getenv("REFUND_WINDOW_DAYS"),
		"PLATFORM_COMMISSION_PERCENT": os.Getenv("PLATFORM_COMMISSION_PERCENT"),
		"LOG_LEVEL":                   os.Getenv("LOG_LEVEL"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads config with defaults", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Unsetenv("PORT")
		os.Unsetenv("CANCELLATION_WINDOW_HOURS")
		os.Unsetenv("REFUND_WINDOW_DAYS")
		os.Unsetenv("PLATFORM_COMMISSION_PERCENT")
		os.Unsetenv("LOG_LEVEL")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
		assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
		assert.Equal(t, 48, cfg.CancellationWindowHours)
		assert.Equal(t, 30, cfg.RefundWindowDays)
		assert.Equal(t, 15.0, cfg.PlatformCommissionPercent)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("loads custom values", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Setenv("PORT", "3000")
		os.Setenv("CANCELLATION_WINDOW_HOURS", "24")
		os.Setenv("PLATFORM_COMMISSION_PERCENT", "20")
		os.Setenv("LOG_LEVEL", "debug")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Port)
		assert.Equal(t, 24, cfg.CancellationWindowHours)
		assert.Equal(t, 20.0, cfg.PlatformCommissionPercent)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("fails when DATABASE_URL missing", func(t *testing.T) {
		os.Unsetenv("DATABASE_URL")
		os.Setenv("REDIS_URL", "redis://localhost:6379")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			CancellationWindowHours:   48,
			RefundWindowDays:          30,
			PlatformCommissionPercent: 15,
			CleanupIntervalMinutes:    2,
		}
	}

	t.Run("accepts sane settings", func(t *testing.T) {
		assert.NoError(t, valid().Validate(false))
	})

	t.Run("rejects negative windows", func(t *testing.T) {
		cfg := valid()
		cfg.CancellationWindowHours = -1
		assert.Error(t, cfg.Validate(false))

		cfg = valid()
		cfg.RefundWindowDays = -1
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("rejects out-of-range commission", func(t *testing.T) {
		cfg := valid()
		cfg.PlatformCommissionPercent = 101
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("rejects non-positive cleanup interval", func(t *testing.T) {
		cfg := valid()
		cfg.CleanupIntervalMinutes = 0
		assert.Error(t, cfg.Validate(false))
	})
}
