// Package config reads server settings from the environment.
//
// A .env file in the working directory is loaded first when present;
// variables already set in the process environment take precedence over it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	minSecretLength = 16
)

// Config is the full runtime configuration.
type Config struct {
	Port       int
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int

	StoreDriver string
	DBPath      string // sqlite
	DatabaseURL string // postgres

	MaxUploadBytes   int64
	ThumbnailSize    int // 0 disables thumbnails
	SeedWelcomePhoto bool

	AMQPURL   string // empty disables the queue publisher
	AMQPQueue string

	LogLevel  slog.Level
	LogFormat string
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads .env (if any) and then the process environment.
func Load() (Config, error) {
	// A missing .env file is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: reading .env: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary variable source.
func FromLookup(lookup LookupFunc) (Config, error) {
	env := reader{lookup: lookup}

	cfg := Config{
		Port:             env.integer("PORT", 4000),
		JWTSecret:        env.str("JWT_SECRET", ""),
		TokenTTL:         env.duration("TOKEN_TTL", 2*time.Hour),
		BcryptCost:       env.integer("BCRYPT_COST", 12),
		StoreDriver:      strings.ToLower(env.str("STORE_DRIVER", DriverMemory)),
		DBPath:           env.str("DB_PATH", ":memory:"),
		DatabaseURL:      env.str("DATABASE_URL", ""),
		MaxUploadBytes:   int64(env.integer("MAX_UPLOAD_BYTES", 10<<20)),
		ThumbnailSize:    env.integer("THUMBNAIL_SIZE", 320),
		SeedWelcomePhoto: env.boolean("SEED_WELCOME_PHOTO", false),
		AMQPURL:          env.str("AMQP_URL", ""),
		AMQPQueue:        env.str("AMQP_QUEUE", "photosphere.events"),
		LogLevel:         env.level("LOG_LEVEL", slog.LevelInfo),
		LogFormat:        strings.ToLower(env.str("LOG_FORMAT", "text")),
	}

	if err := errors.Join(env.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field and range constraints.
func (c Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: PORT must be between 1 and 65535, got %d", c.Port))
	}
	if len(c.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("config: JWT_SECRET is required and must be at least %d characters", minSecretLength))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("config: TOKEN_TTL must be positive"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("config: MAX_UPLOAD_BYTES must be positive"))
	}
	if c.ThumbnailSize < 0 {
		errs = append(errs, errors.New("config: THUMBNAIL_SIZE must not be negative"))
	}

	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("config: DB_PATH is required for the sqlite store"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("config: DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver))
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// reader collects parse errors so every bad variable is reported at once.
type reader struct {
	lookup LookupFunc
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v, ok := r.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("config: %s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (r *reader) boolean(key string, def bool) bool {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("config: %s: invalid boolean %q", key, v))
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("config: %s: invalid duration %q", key, v))
		return def
	}
	return d
}

func (r *reader) level(key string, def slog.Level) slog.Level {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		r.errs = append(r.errs, fmt.Errorf("config: %s: invalid log level %q", key, v))
		return def
	}
	return l
}
