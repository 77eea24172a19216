package database

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds PostgreSQL connection settings.
type Config struct {
	// URL, when set, is used verbatim and the discrete fields are ignored.
	URL string

	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN renders the pgx-compatible connection string.
func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LoadConfigFromEnv reads connection settings from the environment.
// DATABASE_URL wins over the discrete DB_* variables when both are present.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		URL:             os.Getenv("DATABASE_URL"),
		Host:            envOr("DB_HOST", "localhost"),
		User:            envOr("DB_USER", "convoflow"),
		Password:        os.Getenv("DB_PASSWORD"),
		Database:        envOr("DB_NAME", "convoflow"),
		SSLMode:         envOr("DB_SSLMODE", "disable"),
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}

	var err error
	if cfg.Port, err = envInt("DB_PORT", 5432); err != nil {
		return Config{}, err
	}
	if cfg.MaxOpenConns, err = envInt("DB_MAX_OPEN_CONNS", 10); err != nil {
		return Config{}, err
	}
	if cfg.MaxIdleConns, err = envInt("DB_MAX_IDLE_CONNS", 5); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
