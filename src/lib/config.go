package lib

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Labels are the display names used in notifications and generated group names.
type Labels struct {
	Group        string `env:"GROUP_LABEL" envDefault:"Group"`
	GroupPlural  string `env:"GROUP_LABEL_PLURAL" envDefault:"Groups"`
	Member       string `env:"MEMBER_LABEL" envDefault:"Member"`
	MemberPlural string `env:"MEMBER_LABEL_PLURAL" envDefault:"Members"`
}

// Config contains runtime configuration loaded from environment variables.
type Config struct {
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"membershare.db"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"INFO"`

	JWTSecret         string `env:"JWT_SECRET"`
	SessionTTLMinutes int    `env:"SESSION_TTL_MINUTES" envDefault:"60"`
	WebhookSecret     string `env:"WEBHOOK_SECRET"`
	MaxEventSkewSecs  int    `env:"MAX_EVENT_SKEW_SECONDS" envDefault:"300"`

	InvitationTTLDays     int           `env:"INVITATION_TTL_DAYS" envDefault:"30"`
	TokenMaxAttempts      int           `env:"TOKEN_MAX_ATTEMPTS" envDefault:"16"`
	SweepInterval         time.Duration `env:"SWEEP_INTERVAL" envDefault:"24h"`
	InviteRateLimitBurst  int           `env:"INVITE_RATE_LIMIT_BURST" envDefault:"10"`
	InviteRateLimitPerMin int           `env:"INVITE_RATE_LIMIT_PER_MIN" envDefault:"5"`
	DeclineReleasesSeat   bool          `env:"DECLINE_RELEASES_SEAT" envDefault:"false"`

	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	SiteName      string `env:"SITE_NAME" envDefault:"Membershare"`
	Labels        Labels

	SMTPAddr     string `env:"SMTP_ADDR"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	OTelEnabled    bool     `env:"OTEL_ENABLED" envDefault:"true"`
	OTelEndpoint   string   `env:"OTEL_ENDPOINT"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q", DriverPostgres, DriverSQLite)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required")
	}
	if c.SessionTTLMinutes <= 0 {
		return fmt.Errorf("SESSION_TTL_MINUTES must be > 0")
	}
	if c.MaxEventSkewSecs <= 0 {
		return fmt.Errorf("MAX_EVENT_SKEW_SECONDS must be > 0")
	}
	if c.InvitationTTLDays <= 0 {
		return fmt.Errorf("INVITATION_TTL_DAYS must be > 0")
	}
	if c.TokenMaxAttempts <= 0 {
		return fmt.Errorf("TOKEN_MAX_ATTEMPTS must be > 0")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	if c.InviteRateLimitBurst <= 0 {
		return fmt.Errorf("INVITE_RATE_LIMIT_BURST must be > 0")
	}
	if c.InviteRateLimitPerMin <= 0 {
		return fmt.Errorf("INVITE_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.SMTPAddr != "" && c.SMTPFrom == "" {
		return fmt.Errorf("SMTP_FROM is required when SMTP_ADDR is set")
	}
	return nil
}

func (c Config) MaxEventSkew() time.Duration {
	return time.Duration(c.MaxEventSkewSecs) * time.Second
}

func (c Config) InvitationTTL() time.Duration {
	return time.Duration(c.InvitationTTLDays) * 24 * time.Hour
}

func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}
