package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/xavierca1/quiz-mailer/internal/entity"
)

type Config struct {
	Database Database `mapstructure:"database"`
	HTTP     HTTP     `mapstructure:"http"`
	CORS     CORS     `mapstructure:"cors"`
	AMQP     AMQP     `mapstructure:"amqp"`
	Log      Log      `mapstructure:"log"`

	Resend Resend `mapstructure:"resend"`
	SMTP   SMTP   `mapstructure:"smtp"`
	Sender Sender `mapstructure:"sender"`
	Admin  Admin  `mapstructure:"admin"`

	Schedule  Schedule  `mapstructure:"schedule"`
	Batch     Batch     `mapstructure:"batch"`
	Reconcile Reconcile `mapstructure:"reconcile"`
	Resolve   Resolve   `mapstructure:"resolve"`
}

type Database struct {
	URL string `mapstructure:"url"`
}

type HTTP struct {
	Addr string `mapstructure:"addr"`
}

type CORS struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AMQP is optional; with no URL the lead event consumer is not started.
type AMQP struct {
	URL string `mapstructure:"url"`
}

type Log struct {
	Format string `mapstructure:"format"`
	Level  string `mapstructure:"level"`
}

type Resend struct {
	APIKey string `mapstructure:"api_key"`
}

type SMTP struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	UseTLS   bool   `mapstructure:"use_tls"`
}

type Sender struct {
	Email   string `mapstructure:"email"`
	Name    string `mapstructure:"name"`
	ReplyTo string `mapstructure:"reply_to"`
}

type Admin struct {
	NotifyEmail string `mapstructure:"notify_email"`
}

type Schedule struct {
	Reconcile string `mapstructure:"reconcile"`
	Resolve   string `mapstructure:"resolve"`
	Deliver   string `mapstructure:"deliver"`
}

type Batch struct {
	Reconcile int `mapstructure:"reconcile"`
	Resolve   int `mapstructure:"resolve"`
	Deliver   int `mapstructure:"deliver"`
}

type Reconcile struct {
	Grace    time.Duration `mapstructure:"grace"`
	Lookback time.Duration `mapstructure:"lookback"`
}

type Resolve struct {
	Grace time.Duration `mapstructure:"grace"`
}

var defaults = map[string]any{
	"database.url":         "",
	"http.addr":            ":8080",
	"cors.allowed_origins": []string{"*"},
	"amqp.url":             "",
	"log.format":           "json",
	"log.level":            "info",

	"resend.api_key": "",
	"smtp.host":      "",
	"smtp.port":      587,
	"smtp.username":  "",
	"smtp.password":  "",
	"smtp.use_tls":   false,

	"sender.email":       "",
	"sender.name":        "",
	"sender.reply_to":    "",
	"admin.notify_email": "",

	"schedule.reconcile": "@every 5m",
	"schedule.resolve":   "@every 30s",
	"schedule.deliver":   "@every 1m",

	"batch.reconcile": 20,
	"batch.resolve":   10,
	"batch.deliver":   10,

	"reconcile.grace":    "30s",
	"reconcile.lookback": "0s",
	"resolve.grace":      "10s",
}

// Load reads .env (if present), an optional config file and the
// environment. Keys map to env vars by upper-casing and replacing dots:
// smtp.use_tls is SMTP_USE_TLS.
func Load(file string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Batch.Reconcile < 1 || c.Batch.Resolve < 1 || c.Batch.Deliver < 1 {
		return fmt.Errorf("batch sizes must be positive")
	}
	if c.Reconcile.Lookback < 0 {
		return fmt.Errorf("reconcile lookback must not be negative")
	}
	if c.Reconcile.Lookback > 0 && c.Reconcile.Lookback <= c.Reconcile.Grace {
		return fmt.Errorf("reconcile lookback %s must exceed grace %s", c.Reconcile.Lookback, c.Reconcile.Grace)
	}
	return nil
}

// RequireDatabase is checked by commands that talk to Postgres.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	return nil
}

// ProviderDefaults is the env-level provider configuration. Values stored in
// email_settings take precedence field by field.
func (c *Config) ProviderDefaults() entity.ProviderConfig {
	return entity.ProviderConfig{
		ResendAPIKey:     c.Resend.APIKey,
		SMTPHost:         c.SMTP.Host,
		SMTPPort:         c.SMTP.Port,
		SMTPUsername:     c.SMTP.Username,
		SMTPPassword:     c.SMTP.Password,
		SMTPUseTLS:       c.SMTP.UseTLS,
		SenderEmail:      c.Sender.Email,
		SenderName:       c.Sender.Name,
		ReplyToEmail:     c.Sender.ReplyTo,
		AdminNotifyEmail: c.Admin.NotifyEmail,
	}
}

type SettingsStore interface {
	Load(ctx context.Context) (entity.ProviderConfig, error)
}

// LayeredProviderLoader resolves the provider config for one invocation:
// the stored settings row, with blanks filled from the environment.
type LayeredProviderLoader struct {
	Store    SettingsStore
	Fallback entity.ProviderConfig
}

func NewLayeredProviderLoader(store SettingsStore, fallback entity.ProviderConfig) *LayeredProviderLoader {
	return &LayeredProviderLoader{Store: store, Fallback: fallback}
}

func (l *LayeredProviderLoader) Load(ctx context.Context) (entity.ProviderConfig, error) {
	if l.Store == nil {
		return l.Fallback, nil
	}
	stored, err := l.Store.Load(ctx)
	if err != nil {
		return entity.ProviderConfig{}, err
	}
	return stored.Merge(l.Fallback), nil
}
