package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.LemonSqueezy.MaxRetries)
	assert.Equal(t, time.Second, cfg.LemonSqueezy.RetryDelay)
	assert.Equal(t, "https://api.lemonsqueezy.com", cfg.LemonSqueezy.BaseURL)
	assert.Equal(t, 48*time.Hour, cfg.Cron.ApplyWindow)
	assert.Equal(t, 30*24*time.Hour, cfg.Membership.DefaultGracePeriod)
	assert.False(t, cfg.MinioEnabled())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("LEMONSQUEEZY_API_KEY", "ls_test_key")
	t.Setenv("LEMONSQUEEZY_MONTHLY_VARIANT_ID", "111")
	t.Setenv("LEMONSQUEEZY_YEARLY_VARIANT_ID", "222")
	t.Setenv("LEMONSQUEEZY_MONTHLY_PRODUCT_ID", "10")
	t.Setenv("LEMONSQUEEZY_YEARLY_PRODUCT_ID", "20")
	t.Setenv("CRON_SECRET", "cron-secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/leavedesk")
	t.Setenv("PORT", "9090")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ls_test_key", cfg.LemonSqueezy.APIKey)
	assert.Equal(t, "111", cfg.LemonSqueezy.MonthlyVariantID)
	assert.Equal(t, "222", cfg.LemonSqueezy.YearlyVariantID)
	assert.Equal(t, "10", cfg.LemonSqueezy.MonthlyProductID)
	assert.Equal(t, "20", cfg.LemonSqueezy.YearlyProductID)
	assert.Equal(t, "cron-secret", cfg.Cron.Secret)
	assert.Equal(t, "postgres://localhost/leavedesk", cfg.Database.URL)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("lemonsqueezy:\n  max_retries: 5\n  retry_delay: 250ms\ncron:\n  apply_window: 24h\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.LemonSqueezy.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.LemonSqueezy.RetryDelay)
	assert.Equal(t, 24*time.Hour, cfg.Cron.ApplyWindow)
}

func TestValidate_MissingRequired(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "CRON_SECRET is required")
	assert.Contains(t, err.Error(), "LEMONSQUEEZY_API_KEY is required")
}
