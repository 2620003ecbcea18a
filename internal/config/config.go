package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"relaymail/internal/log"
)

type Config struct {
	HTTPAddr string `mapstructure:"http_addr"`

	DatabaseDriver string `mapstructure:"database_driver"`
	DatabaseURL    string `mapstructure:"database_url"`
	RedisURL       string `mapstructure:"redis_url"`

	RelayDomain   string `mapstructure:"relay_domain"`
	UserPrefix    string `mapstructure:"user_prefix"`
	ContactPrefix string `mapstructure:"contact_prefix"`

	WebhookSigningKey    string `mapstructure:"webhook_signing_key"`
	WebhookMaxAgeSeconds int    `mapstructure:"webhook_max_age_seconds"`

	MailerDriver string `mapstructure:"mailer_driver"`
	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUser     string `mapstructure:"smtp_user"`
	SMTPPass     string `mapstructure:"smtp_pass"`
	SMTPStartTLS bool   `mapstructure:"smtp_starttls"`

	IMAPHost    string `mapstructure:"imap_host"`
	IMAPPort    int    `mapstructure:"imap_port"`
	IMAPUser    string `mapstructure:"imap_user"`
	IMAPPass    string `mapstructure:"imap_pass"`
	PollSeconds int    `mapstructure:"poll_seconds"`

	MaxEmailBytes      int `mapstructure:"max_email_bytes"`
	SendTimeoutSeconds int `mapstructure:"send_timeout_seconds"`
	DBTimeoutSeconds   int `mapstructure:"db_timeout_seconds"`

	RateLimitSendPerMin    int `mapstructure:"rate_limit_send_per_min"`
	RateLimitWebhookPerMin int `mapstructure:"rate_limit_webhook_per_min"`

	AdminPassword string `mapstructure:"admin_password"`
	JWTSecret     string `mapstructure:"jwt_secret"`

	Log log.Options `mapstructure:"log"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"

	MailerSMTP = "smtp"
	MailerLog  = "log"
)

var (
	ErrRelayDomain    = errors.New("relay_domain is required")
	ErrDatabaseURL    = errors.New("database_url is required")
	ErrDatabaseDriver = errors.New("database_driver must be sqlite or pgx")
	ErrMailerDriver   = errors.New("mailer_driver must be smtp or log")
	ErrPrefixes       = errors.New("user_prefix and contact_prefix must differ")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("database_driver", DriverSQLite)
	v.SetDefault("database_url", "file:relaymail.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("relay_domain", "relay.localhost")
	v.SetDefault("user_prefix", "u-")
	v.SetDefault("contact_prefix", "c-")
	v.SetDefault("webhook_signing_key", "")
	v.SetDefault("webhook_max_age_seconds", 15*60)
	v.SetDefault("mailer_driver", MailerLog)
	v.SetDefault("smtp_host", "localhost")
	v.SetDefault("smtp_port", 587)
	v.SetDefault("smtp_user", "")
	v.SetDefault("smtp_pass", "")
	v.SetDefault("smtp_starttls", true)
	v.SetDefault("imap_host", "")
	v.SetDefault("imap_port", 993)
	v.SetDefault("imap_user", "")
	v.SetDefault("imap_pass", "")
	v.SetDefault("poll_seconds", 20)
	v.SetDefault("max_email_bytes", 5242880) // 5MB
	v.SetDefault("send_timeout_seconds", 15)
	v.SetDefault("db_timeout_seconds", 5)
	v.SetDefault("rate_limit_send_per_min", 30)
	v.SetDefault("rate_limit_webhook_per_min", 600)
	v.SetDefault("admin_password", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("log.path", log.DefaultOptions.Path)
	v.SetDefault("log.level", log.DefaultOptions.Level)
	v.SetDefault("log.format", log.DefaultOptions.Format)
}

// Load builds the config from defaults, an optional YAML file at path and
// environment variables (RELAY_DOMAIN, LOG_LEVEL, ...), in increasing priority.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(*os.PathError); !ok {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.RelayDomain = strings.ToLower(strings.TrimSpace(cfg.RelayDomain))

	return cfg, cfg.Verify()
}

func (c *Config) Verify() error {
	if c.RelayDomain == "" {
		return ErrRelayDomain
	}
	if c.DatabaseURL == "" {
		return ErrDatabaseURL
	}
	if c.DatabaseDriver != DriverSQLite && c.DatabaseDriver != DriverPostgres {
		return ErrDatabaseDriver
	}
	if c.MailerDriver != MailerSMTP && c.MailerDriver != MailerLog {
		return ErrMailerDriver
	}
	if c.UserPrefix == c.ContactPrefix {
		return ErrPrefixes
	}
	return c.Log.Verify()
}
