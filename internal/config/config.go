package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBFile           string
	AdminAddr        string
	APIAddr          string
	BaseURL          string
	SessionTTL       time.Duration
	EditWindow       time.Duration
	EventBuffer      int
	ConnectionBuffer int
	MaxMessageLength int
	LogLevel         slog.Level

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string
}

// Load reads the configuration from the environment. Variables from the env
// file (LICHKA_ENV_FILE, default .env) are applied first without overriding
// ones already set. In cliMode only the addresses matter and server-only
// checks are skipped.
func Load(cliMode bool) (*Config, error) {
	envFile := getEnv("LICHKA_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	var errs []error
	durationEnv := func(key, fallback string) time.Duration {
		d, err := time.ParseDuration(getEnv(key, fallback))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}
	intEnv := func(key string, fallback int) int {
		raw, ok := os.LookupEnv(key)
		if !ok {
			return fallback
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return n
	}

	cfg := &Config{
		DBFile:           getEnv("LICHKA_DB", "lichka.db"),
		AdminAddr:        getEnv("ADMIN_ADDR", "localhost:8081"),
		APIAddr:          getEnv("API_ADDR", ":8080"),
		BaseURL:          getEnv("BASE_URL", "http://localhost:8080"),
		SessionTTL:       durationEnv("SESSION_TTL", "24h"),
		EditWindow:       durationEnv("EDIT_WINDOW", "5m"),
		EventBuffer:      intEnv("EVENT_BUFFER", 256),
		ConnectionBuffer: intEnv("CONNECTION_BUFFER", 64),
		MaxMessageLength: intEnv("MAX_MESSAGE_LENGTH", 4000),
		VAPIDPublicKey:   os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey:  os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubscriber:  getEnv("VAPID_SUBSCRIBER", "admin@localhost"),
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate(cliMode bool) error {
	if c.AdminAddr == "" {
		return fmt.Errorf("ADMIN_ADDR is required")
	}
	if cliMode {
		return nil
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be greater than 0")
	}
	if c.EventBuffer <= 0 || c.ConnectionBuffer <= 0 {
		return fmt.Errorf("EVENT_BUFFER and CONNECTION_BUFFER must be greater than 0")
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be greater than 0")
	}
	if c.BaseURL != "" {
		if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("BASE_URL must be an absolute URL, got %q", c.BaseURL)
		}
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return fmt.Errorf("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}

	return nil
}

// PushEnabled reports whether offline web push is configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
