package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func loadArgs(t *testing.T, args ...string) (*CoreConfig, AppConfigValues, error) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	return load(zap.NewNop(), fs, args, AppKeys)
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, app, err := loadArgs(t)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Env != "dev" || cfg.HTTP.HTTPPort != 8080 {
		t.Errorf("env = %q, http_port = %d", cfg.Env, cfg.HTTP.HTTPPort)
	}
	if cfg.HTTP.ReadTimeout != 15*time.Second || cfg.HTTP.ShutdownTimeout != 15*time.Second {
		t.Errorf("timeouts = %+v", cfg.HTTP)
	}
	if !cfg.CORS.EnableCORS || !reflect.DeepEqual(cfg.CORS.CORSAllowedOrigins, []string{"*"}) {
		t.Errorf("cors = %+v", cfg.CORS)
	}
	if cfg.MaxRequestBodyBytes != 64<<10 {
		t.Errorf("max_request_body_bytes = %d", cfg.MaxRequestBodyBytes)
	}

	if app.String("smtp_host") != "smtp.gmail.com" || app.Int("smtp_port") != 587 {
		t.Errorf("smtp = %q:%d", app.String("smtp_host"), app.Int("smtp_port"))
	}
	if app.String("rate_limit_contact") != "5/minute" {
		t.Errorf("rate_limit_contact = %q", app.String("rate_limit_contact"))
	}
	if app.Duration("smtp_timeout", 0) != 30*time.Second {
		t.Errorf("smtp_timeout = %v", app.Duration("smtp_timeout", 0))
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := "http_port: 9090\nhttps_port: 9443\nsmtp_port: 2525\nsender: file@example.com\nstrict_phone: true\n"
	if err := os.WriteFile("config.yaml", []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FORMRELAY_HTTPS_PORT", "8443")
	t.Setenv("FORMRELAY_SMTP_PORT", "465")

	cfg, app, err := loadArgs(t, "--http_port=7070", "--sender=flag@example.com")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.HTTP.HTTPPort != 7070 {
		t.Errorf("http_port = %d, want flag value 7070", cfg.HTTP.HTTPPort)
	}
	if cfg.HTTP.HTTPSPort != 8443 {
		t.Errorf("https_port = %d, want env value 8443", cfg.HTTP.HTTPSPort)
	}
	if app.Int("smtp_port") != 465 {
		t.Errorf("smtp_port = %d, want env value 465", app.Int("smtp_port"))
	}
	if app.String("sender") != "flag@example.com" {
		t.Errorf("sender = %q, want flag value", app.String("sender"))
	}
	if !app.Bool("strict_phone") {
		t.Error("strict_phone from config file was lost")
	}
}

func TestLoadEnvAliases(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GMAIL_EMAIL", "owner@example.com")
	t.Setenv("GMAIL_APP_PASSWORD", "app-password")
	t.Setenv("RECIPIENT_EMAIL", "desk@example.com")
	t.Setenv("API_SECRET_KEY", "legacy-secret-value")
	t.Setenv("FORMRELAY_API_SECRET", "prefixed-secret-value")

	_, app, err := loadArgs(t)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := map[string]string{
		"sender":        "owner@example.com",
		"smtp_username": "owner@example.com",
		"smtp_password": "app-password",
		"recipient":     "desk@example.com",
		"api_secret":    "prefixed-secret-value",
	}
	for k, v := range want {
		if got := app.String(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestLoadDoesNotLogSecrets(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FORMRELAY_API_SECRET", "super-secret-value")
	t.Setenv("FORMRELAY_SMTP_PASSWORD", "hunter2-hunter2")

	core, logs := observer.New(zapcore.InfoLevel)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if _, _, err := load(zap.New(core), fs, nil, AppKeys); err != nil {
		t.Fatalf("load: %v", err)
	}

	entries := logs.FilterMessage("app config loaded").All()
	if len(entries) != 1 {
		t.Fatalf("got %d app config log entries", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["api_secret_set"] != true || ctx["smtp_password_set"] != true {
		t.Errorf("secret presence not logged: %v", ctx)
	}
	for k, v := range ctx {
		if s, ok := v.(string); ok && (strings.Contains(s, "super-secret") || strings.Contains(s, "hunter2")) {
			t.Errorf("secret logged under %q", k)
		}
	}
}

func TestLoadDurations(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FORMRELAY_READ_TIMEOUT", "5")
	t.Setenv("FORMRELAY_WRITE_TIMEOUT", "not-a-duration")

	cfg, _, err := loadArgs(t, "--idle_timeout=2m")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.ReadTimeout != 5*time.Second {
		t.Errorf("read_timeout = %v", cfg.HTTP.ReadTimeout)
	}
	if cfg.HTTP.WriteTimeout != 30*time.Second {
		t.Errorf("write_timeout = %v, want default", cfg.HTTP.WriteTimeout)
	}
	if cfg.HTTP.IdleTimeout != 2*time.Minute {
		t.Errorf("idle_timeout = %v", cfg.HTTP.IdleTimeout)
	}
}

func TestLoadCORSListFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FORMRELAY_CORS_ALLOWED_ORIGINS", `["https://a.example","https://b.example"]`)

	cfg, _, err := loadArgs(t)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"https://a.example", "https://b.example"}
	if !reflect.DeepEqual(cfg.CORS.CORSAllowedOrigins, want) {
		t.Errorf("origins = %v", cfg.CORS.CORSAllowedOrigins)
	}
}

func TestLoadRejectsInvalidCore(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"lets encrypt without https", []string{"--use_lets_encrypt=true"}, "requires use_https=true"},
		{"manual tls without files", []string{"--use_https=true"}, "for manual TLS"},
		{"bad port", []string{"--http_port=70000"}, "http_port must be in 1..65535"},
		{"credentials with wildcard", []string{"--cors_allow_credentials=true"}, `cannot use "*"`},
		{"log file without size", []string{"--log_file=x.log", "--log_max_size_mb=0"}, "log_max_size_mb"},
		{"negative body", []string{"--max_request_body_bytes=-1"}, "max_request_body_bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			_, _, err := loadArgs(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestRegisterAppFlagsConflict(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	registerCoreFlags(fs)
	err := registerAppFlags(fs, []AppKey{{Name: "http_port", Default: 1}})
	if err == nil {
		t.Fatal("expected conflict error")
	}
}

func TestAppConfigValues(t *testing.T) {
	vals := AppConfigValues{
		"int_str":  " 42 ",
		"float":    float64(7),
		"bool_str": "yes",
		"dur_num":  90,
		"dur_bad":  "soon",
		"slice":    []string{"a"},
	}
	if vals.Int("int_str") != 42 || vals.Int("float") != 7 || vals.Int("missing") != 0 {
		t.Error("Int conversions")
	}
	if !vals.Bool("bool_str") || vals.Bool("int_str") {
		t.Error("Bool conversions")
	}
	if vals.Duration("dur_num", time.Second) != 90*time.Second {
		t.Error("Duration from seconds")
	}
	if vals.Duration("dur_bad", time.Second) != time.Second {
		t.Error("Duration fallback")
	}
	if !reflect.DeepEqual(vals.StringSlice("slice"), []string{"a"}) || vals.StringSlice("int_str") != nil {
		t.Error("StringSlice")
	}
}
