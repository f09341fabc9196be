package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AuthSecret string `mapstructure:"AUTH_SECRET"`
	AuthIssuer string `mapstructure:"AUTH_ISSUER"`

	DefaultConsultationMinutes int `mapstructure:"DEFAULT_CONSULTATION_MINUTES"`
	BookingLockWaitMS          int `mapstructure:"BOOKING_LOCK_WAIT_MS"`

	SweepIntervalMinutes int    `mapstructure:"SWEEP_INTERVAL_MINUTES"`
	SweepHoursOverdue    int    `mapstructure:"SWEEP_HOURS_OVERDUE"`
	SweepStatuses        string `mapstructure:"SWEEP_STATUSES"`

	PaymentLedgerURL string `mapstructure:"PAYMENT_LEDGER_URL"`
	NotifyWebhookURL string `mapstructure:"NOTIFY_WEBHOOK_URL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("DEFAULT_CONSULTATION_MINUTES", 30)
	v.SetDefault("BOOKING_LOCK_WAIT_MS", 3000)
	v.SetDefault("SWEEP_INTERVAL_MINUTES", 15)
	v.SetDefault("SWEEP_HOURS_OVERDUE", 1)
	v.SetDefault("SWEEP_STATUSES", "both")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("DEFAULT_CONSULTATION_MINUTES")
	v.BindEnv("BOOKING_LOCK_WAIT_MS")
	v.BindEnv("SWEEP_INTERVAL_MINUTES")
	v.BindEnv("SWEEP_HOURS_OVERDUE")
	v.BindEnv("SWEEP_STATUSES")
	v.BindEnv("PAYMENT_LEDGER_URL")
	v.BindEnv("NOTIFY_WEBHOOK_URL")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active — all requests get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure AUTH_SECRET for production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// BookingLockWait returns the bounded wait budget for the per-doctor-day
// booking lock.
func (c *Config) BookingLockWait() time.Duration {
	return time.Duration(c.BookingLockWaitMS) * time.Millisecond
}

// SweepInterval returns how often the background overdue sweep runs.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// Validate checks that the configuration is safe to run. Outside development
// AUTH_SECRET must be set so that real JWT authentication is enforced.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSecret == "" {
		return fmt.Errorf(
			"AUTH_SECRET must be set when ENV is %q. "+
				"Refusing to start without authentication configuration. "+
				"Use ENV=development only for local work", c.Env)
	}
	if c.DefaultConsultationMinutes < 0 {
		return fmt.Errorf("DEFAULT_CONSULTATION_MINUTES must not be negative, got %d", c.DefaultConsultationMinutes)
	}
	if c.BookingLockWaitMS <= 0 {
		return fmt.Errorf("BOOKING_LOCK_WAIT_MS must be positive, got %d", c.BookingLockWaitMS)
	}
	if c.SweepHoursOverdue < 1 {
		return fmt.Errorf("SWEEP_HOURS_OVERDUE must be at least 1, got %d", c.SweepHoursOverdue)
	}
	switch c.SweepStatuses {
	case "scheduled", "in_progress", "both":
	default:
		return fmt.Errorf("SWEEP_STATUSES must be \"scheduled\", \"in_progress\", or \"both\", got %q", c.SweepStatuses)
	}
	return nil
}
