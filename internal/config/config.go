package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Minio        MinioConfig        `mapstructure:"minio"`
	Supabase     SupabaseConfig     `mapstructure:"supabase"`
	LemonSqueezy LemonSqueezyConfig `mapstructure:"lemonsqueezy"`
	Cron         CronConfig         `mapstructure:"cron"`
	Membership   MembershipConfig   `mapstructure:"membership"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Slack        SlackConfig        `mapstructure:"slack"`
	Log          LogConfig          `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
}

type SupabaseConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWKSURL   string `mapstructure:"jwks_url"`
}

type LemonSqueezyConfig struct {
	APIKey           string        `mapstructure:"api_key"`
	BaseURL          string        `mapstructure:"base_url"`
	WebhookSecret    string        `mapstructure:"webhook_secret"`
	MonthlyVariantID string        `mapstructure:"monthly_variant_id"`
	YearlyVariantID  string        `mapstructure:"yearly_variant_id"`
	MonthlyProductID string        `mapstructure:"monthly_product_id"`
	YearlyProductID  string        `mapstructure:"yearly_product_id"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

type CronConfig struct {
	Secret string `mapstructure:"secret"`
	// Schedule is the crontab expression of the in-process apply-pending job.
	// Empty disables the in-process scheduler.
	Schedule    string        `mapstructure:"schedule"`
	ApplyWindow time.Duration `mapstructure:"apply_window"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
}

type MembershipConfig struct {
	DefaultGracePeriod time.Duration `mapstructure:"default_grace_period"`
}

type CacheConfig struct {
	SeatUsageTTL time.Duration `mapstructure:"seat_usage_ttl"`
}

type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.url", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "billing-webhooks")
	v.SetDefault("supabase.jwt_secret", "")
	v.SetDefault("supabase.jwks_url", "")
	v.SetDefault("lemonsqueezy.api_key", "")
	v.SetDefault("lemonsqueezy.base_url", "https://api.lemonsqueezy.com")
	v.SetDefault("lemonsqueezy.webhook_secret", "")
	v.SetDefault("lemonsqueezy.monthly_variant_id", "")
	v.SetDefault("lemonsqueezy.yearly_variant_id", "")
	v.SetDefault("lemonsqueezy.monthly_product_id", "")
	v.SetDefault("lemonsqueezy.yearly_product_id", "")
	v.SetDefault("lemonsqueezy.max_retries", 3)
	v.SetDefault("lemonsqueezy.retry_delay", time.Second)
	v.SetDefault("lemonsqueezy.timeout", 30*time.Second)
	v.SetDefault("cron.secret", "")
	v.SetDefault("cron.schedule", "0 * * * *")
	v.SetDefault("cron.apply_window", 48*time.Hour)
	v.SetDefault("cron.lock_ttl", 10*time.Minute)
	v.SetDefault("membership.default_grace_period", 30*24*time.Hour)
	v.SetDefault("cache.seat_usage_ttl", 30*time.Second)
	v.SetDefault("slack.webhook_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration from the optional file at path and from the
// environment. Env names are the upper-cased keys with dots replaced by
// underscores (lemonsqueezy.api_key -> LEMONSQUEEZY_API_KEY).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port", "PORT", "SERVER_PORT"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Cron.Secret == "" {
		errs = append(errs, errors.New("CRON_SECRET is required"))
	}
	if c.LemonSqueezy.APIKey == "" {
		errs = append(errs, errors.New("LEMONSQUEEZY_API_KEY is required"))
	}
	if c.LemonSqueezy.WebhookSecret == "" {
		errs = append(errs, errors.New("LEMONSQUEEZY_WEBHOOK_SECRET is required"))
	}
	if c.Supabase.JWTSecret == "" && c.Supabase.JWKSURL == "" {
		errs = append(errs, errors.New("SUPABASE_JWT_SECRET or SUPABASE_JWKS_URL is required"))
	}
	return errors.Join(errs...)
}

// MinioEnabled reports whether webhook payload archiving is configured.
func (c *Config) MinioEnabled() bool {
	return c.Minio.Endpoint != "" && c.Minio.AccessKey != "" && c.Minio.SecretKey != ""
}
