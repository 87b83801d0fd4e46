// Package config loads the bootstrap settings of the session and credential
// store.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to the env tag of every field.
const EnvPrefix = "SESSIONVAULT_"

// DefaultSessionDuration is the inactivity window used when the file does
// not set one.
const DefaultSessionDuration = 24 * 60 * 60

// Config holds the settings this module consumes. The JSON file is shared
// with the rest of the console, so unknown keys are ignored.
type Config struct {
	// SessionStore is the path of the bbolt file. Empty means the console
	// is not configured yet and runs with placeholder stores.
	SessionStore string `json:"session_store" env:"SESSION_STORE"`
	// SessionDuration is the number of seconds a session may stay idle.
	SessionDuration int `json:"session_duration" env:"SESSION_DURATION"`
	// The cookie flags are not interpreted here; they are kept for the
	// request-handling layer that sets the session cookie.
	SessionCookieHTTPOnly bool `json:"session_cookie_http_only" env:"SESSION_COOKIE_HTTP_ONLY"`
	SessionCookieSecure   bool `json:"session_cookie_secure" env:"SESSION_COOKIE_SECURE"`
}

// Default returns the configuration used when nothing else is specified.
func Default() Config {
	return Config{
		SessionDuration:       DefaultSessionDuration,
		SessionCookieHTTPOnly: true,
		SessionCookieSecure:   true,
	}
}

// Load starts from Default, applies the JSON file at path (skipped when path
// is empty) and then any SESSIONVAULT_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("reading environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the stores cannot work with.
func (c Config) Validate() error {
	if c.SessionDuration <= 0 {
		return errors.New("session_duration must be a positive number of seconds")
	}
	return nil
}

// Configured reports whether a persistent store has been set up.
func (c Config) Configured() bool {
	return c.SessionStore != ""
}

// MaxDuration returns SessionDuration as a time.Duration.
func (c Config) MaxDuration() time.Duration {
	return time.Duration(c.SessionDuration) * time.Second
}
