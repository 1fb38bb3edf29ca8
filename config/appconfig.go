// config/appconfig.go
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// AppKey defines an application configuration key. App keys are read from
// the same config files and flags as the core keys and from env vars under
// EnvPrefix.
type AppKey struct {
	// Name is the key name (e.g., "smtp_host", "api_secret").
	// This is used as-is for config files and CLI flags.
	// For env vars, it's uppercased and prefixed (e.g., FORMRELAY_SMTP_HOST).
	Name string

	// Default is the default value if not set elsewhere.
	// Supported types: string, int, int64, bool, []string.
	Default any

	// Desc is a short description for --help output.
	Desc string

	// EnvAliases are extra, unprefixed env var names accepted for the key.
	// The prefixed name always wins when both are set.
	EnvAliases []string

	// Secret keeps the value out of logs.
	Secret bool
}

// AppConfigValues holds the loaded app configuration values.
// Keys are the AppKey.Name values, values are the loaded configuration.
type AppConfigValues map[string]any

// String returns a string value or empty string if not found/wrong type.
func (a AppConfigValues) String(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

// Int returns an int value or 0 if not found/wrong type.
// Handles int, int64 and numeric strings (env vars arrive as strings).
func (a AppConfigValues) Int(key string) int {
	switch v := a[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return 0
}

// Bool returns a bool value or false if not found/wrong type.
// Strings such as "true", "1" and "yes" count as true.
func (a AppConfigValues) Bool(key string) bool {
	switch v := a[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "yes", "y", "on":
			return true
		}
	}
	return false
}

// StringSlice returns a []string value or nil if not found/wrong type.
func (a AppConfigValues) StringSlice(key string) []string {
	if v, ok := a[key].([]string); ok {
		return v
	}
	return nil
}

// Duration parses a duration value from the config.
// Accepts:
//   - Duration strings: "10m", "1h30m", "90s", "2h"
//   - Numeric values: interpreted as seconds (e.g., 600 = 10 minutes)
//   - Plain numeric strings: "600" = 600 seconds
//
// Returns the default value if the key is not found, empty, or invalid.
func (a AppConfigValues) Duration(key string, def time.Duration) time.Duration {
	raw := a[key]
	if raw == nil {
		return def
	}
	dur, err := parseDurationFlexible(raw, def)
	if err != nil {
		return def
	}
	return dur
}

func isAppKey(keys []AppKey, name string) bool {
	for _, k := range keys {
		if k.Name == name {
			return true
		}
	}
	return false
}

// loadAppConfig loads app-specific configuration using the same precedence
// as core config: flags > env > env aliases > config files > defaults.
//
// Config files must already be merged into v and flags parsed on fs.
func loadAppConfig(logger *zap.Logger, v *viper.Viper, fs *pflag.FlagSet, envPrefix string, keys []AppKey) (AppConfigValues, error) {
	if len(keys) == 0 {
		return make(AppConfigValues), nil
	}

	appV := viper.New()
	appV.SetEnvPrefix(envPrefix)
	appV.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	for _, key := range keys {
		// Config file values live in the main viper instance. They replace
		// the default so that env and flags still win over them.
		def := key.Default
		if v.InConfig(key.Name) {
			def = v.Get(key.Name)
		}
		appV.SetDefault(key.Name, def)

		// The prefixed name is listed first so it wins over aliases.
		envNames := append([]string{key.Name, envPrefix + "_" + strings.ToUpper(key.Name)}, key.EnvAliases...)
		_ = appV.BindEnv(envNames...)

		// Bind pflag if it was explicitly set
		if f := fs.Lookup(key.Name); f != nil && f.Changed {
			_ = appV.BindPFlag(key.Name, f)
		}
	}

	result := make(AppConfigValues, len(keys))
	for _, key := range keys {
		val := appV.Get(key.Name)
		if _, isSlice := key.Default.([]string); isSlice {
			arr, err := toStringSlice(val)
			if err != nil {
				return nil, fmt.Errorf("config key %q: %w", key.Name, err)
			}
			val = arr
		}
		result[key.Name] = val
	}

	fields := make([]zap.Field, 0, len(keys))
	for _, key := range keys {
		if key.Secret || looksSecret(key.Name) {
			fields = append(fields, zap.Bool(key.Name+"_set", result.String(key.Name) != ""))
			continue
		}
		fields = append(fields, zap.Any(key.Name, result[key.Name]))
	}
	logger.Info("app config loaded", fields...)

	return result, nil
}

func looksSecret(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "key") ||
		strings.Contains(n, "secret") ||
		strings.Contains(n, "password") ||
		strings.Contains(n, "token")
}

func toStringSlice(val any) ([]string, error) {
	switch t := val.(type) {
	case nil:
		return nil, nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, fmt.Sprint(e))
		}
		return out, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		var arr []string
		if err := json.Unmarshal([]byte(s), &arr); err != nil {
			return nil, fmt.Errorf("expects a JSON array string, got %q: %w", s, err)
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unexpected type %T for list", val)
}

// registerAppFlags registers command-line flags for app config keys.
// Must be called before fs.Parse.
func registerAppFlags(fs *pflag.FlagSet, keys []AppKey) error {
	for _, key := range keys {
		if fs.Lookup(key.Name) != nil {
			return fmt.Errorf("config key %q conflicts with existing flag", key.Name)
		}

		switch d := key.Default.(type) {
		case string:
			fs.String(key.Name, d, key.Desc)
		case int:
			fs.Int(key.Name, d, key.Desc)
		case int64:
			fs.Int64(key.Name, d, key.Desc)
		case bool:
			fs.Bool(key.Name, d, key.Desc)
		case []string:
			// For string slices, accept JSON array on command line
			fs.String(key.Name, "", key.Desc+" (JSON array)")
		default:
			return fmt.Errorf("config key %q has unsupported default type %T", key.Name, key.Default)
		}
	}
	return nil
}
