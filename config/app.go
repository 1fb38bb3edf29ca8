// config/app.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/formrelay/pantry/ratelimit"
	"github.com/go-playground/validator/v10"
)

// SMTPConfig is the outbound mail relay.
type SMTPConfig struct {
	Host     string        `validate:"omitempty,hostname_rfc1123|ip"`
	Port     int           `validate:"min=1,max=65535"`
	Username string        `validate:"required_with=Password"`
	Password string        `json:"-"`
	UseSSL   bool          // implicit TLS (port 465)
	Timeout  time.Duration `validate:"gt=0"`
}

// RateLimits are ratelimit.ParseRate specs, e.g. "5/minute".
type RateLimits struct {
	Default     string `validate:"required,ratelimit"`
	Contact     string `validate:"required,ratelimit"`
	Reservation string `validate:"required,ratelimit"`
	GenerateKey string `validate:"required,ratelimit"`
}

// RedisConfig enables the shared rate-limit store when Addr is set.
type RedisConfig struct {
	Addr     string `validate:"omitempty,hostname_port"`
	Password string `json:"-"`
	DB       int    `validate:"min=0,max=15"`
}

// AppConfig is the formrelay-specific configuration.
type AppConfig struct {
	SMTP SMTPConfig

	// Sender is the From address; Recipient receives every notification.
	Sender    string `validate:"required,email"`
	Recipient string `validate:"required,email"`

	APISecret string `json:"-" validate:"required,min=16"`

	StrictLanguage          bool
	StrictPhone             bool
	RequirePreferredContact bool

	// LabelsFile overrides entries of the built-in translations.
	LabelsFile string

	// Timezone used for timestamps in notifications (IANA name).
	Timezone string `validate:"required,timezone"`

	RateLimits        RateLimits
	TrustProxyHeaders bool

	Redis RedisConfig
}

// AppKeys lists the keys Load reads for AppConfig. The env aliases are the
// variable names used by earlier deployments.
var AppKeys = []AppKey{
	{Name: "smtp_host", Default: "smtp.gmail.com", Desc: "SMTP server host (empty = log notifications instead of sending, dev only)"},
	{Name: "smtp_port", Default: 587, Desc: "SMTP server port"},
	{Name: "smtp_username", Default: "", Desc: "SMTP username (defaults to sender)", EnvAliases: []string{"GMAIL_EMAIL"}},
	{Name: "smtp_password", Default: "", Desc: "SMTP password or app password", EnvAliases: []string{"GMAIL_APP_PASSWORD"}, Secret: true},
	{Name: "smtp_use_ssl", Default: false, Desc: "Use implicit TLS instead of STARTTLS"},
	{Name: "smtp_timeout", Default: "30s", Desc: "SMTP dial and send timeout"},
	{Name: "sender", Default: "", Desc: "From address of notifications", EnvAliases: []string{"GMAIL_EMAIL"}},
	{Name: "recipient", Default: "", Desc: "Address that receives notifications (defaults to sender)", EnvAliases: []string{"RECIPIENT_EMAIL"}},
	{Name: "api_secret", Default: "", Desc: "Shared secret for request signatures and key generation", EnvAliases: []string{"API_SECRET_KEY"}, Secret: true},
	{Name: "strict_language", Default: false, Desc: "Reject unsupported language values"},
	{Name: "strict_phone", Default: false, Desc: "Require international phone numbers"},
	{Name: "require_preferred_contact", Default: false, Desc: "Require the field for the chosen contact method"},
	{Name: "labels_file", Default: "", Desc: "YAML or JSON file overriding built-in labels"},
	{Name: "timezone", Default: "Europe/Warsaw", Desc: "Time zone for notification timestamps"},
	{Name: "rate_limit_default", Default: "100/hour", Desc: "Per-client limit for all endpoints"},
	{Name: "rate_limit_contact", Default: "5/minute", Desc: "Per-client limit for /api/contact"},
	{Name: "rate_limit_reservation", Default: "3/minute", Desc: "Per-client limit for /api/reservation"},
	{Name: "rate_limit_generate_key", Default: "1/hour", Desc: "Per-client limit for /api/generate-key"},
	{Name: "trust_proxy_headers", Default: false, Desc: "Use X-Forwarded-For / X-Real-IP for client addresses"},
	{Name: "redis_addr", Default: "", Desc: "Redis host:port for shared rate limits (empty = in-memory)"},
	{Name: "redis_password", Default: "", Desc: "Redis password", Secret: true},
	{Name: "redis_db", Default: 0, Desc: "Redis database number"},
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("ratelimit", func(fl validator.FieldLevel) bool {
		_, err := ratelimit.ParseRate(fl.Field().String())
		return err == nil
	})
	return v
}

// NewAppConfig builds and validates an AppConfig from loaded values.
// env is the core runtime environment; outside "dev" an SMTP host is required.
func NewAppConfig(vals AppConfigValues, env string) (AppConfig, error) {
	cfg := AppConfig{
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(vals.String("smtp_host")),
			Port:     vals.Int("smtp_port"),
			Username: strings.TrimSpace(vals.String("smtp_username")),
			Password: vals.String("smtp_password"),
			UseSSL:   vals.Bool("smtp_use_ssl"),
			Timeout:  vals.Duration("smtp_timeout", 30*time.Second),
		},
		Sender:                  strings.TrimSpace(vals.String("sender")),
		Recipient:               strings.TrimSpace(vals.String("recipient")),
		APISecret:               vals.String("api_secret"),
		StrictLanguage:          vals.Bool("strict_language"),
		StrictPhone:             vals.Bool("strict_phone"),
		RequirePreferredContact: vals.Bool("require_preferred_contact"),
		LabelsFile:              strings.TrimSpace(vals.String("labels_file")),
		Timezone:                strings.TrimSpace(vals.String("timezone")),
		RateLimits: RateLimits{
			Default:     vals.String("rate_limit_default"),
			Contact:     vals.String("rate_limit_contact"),
			Reservation: vals.String("rate_limit_reservation"),
			GenerateKey: vals.String("rate_limit_generate_key"),
		},
		TrustProxyHeaders: vals.Bool("trust_proxy_headers"),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(vals.String("redis_addr")),
			Password: vals.String("redis_password"),
			DB:       vals.Int("redis_db"),
		},
	}

	if cfg.SMTP.Username == "" {
		cfg.SMTP.Username = cfg.Sender
	}
	if cfg.Recipient == "" {
		cfg.Recipient = cfg.Sender
	}

	if err := validate.Struct(cfg); err != nil {
		return AppConfig{}, fmt.Errorf("app configuration errors: %w", err)
	}
	if cfg.SMTP.Host == "" && env != "dev" {
		return AppConfig{}, fmt.Errorf("app configuration errors: smtp_host is required when env=%q", env)
	}
	return cfg, nil
}

// Location returns the configured time zone, or UTC if it cannot be loaded.
func (c AppConfig) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	return time.UTC
}
