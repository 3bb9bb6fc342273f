// Package dbconfig assembles the Postgres connection settings for the
// document store from DB_* environment variables.
package dbconfig

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds Postgres connection and pool settings. The pool defaults are
// sized for the store's write pattern: many short fire-and-forget mutations
// plus one full-collection read per committed write for the snapshot feed.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	AppName  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewConfigFromEnv reads DB_* environment variables (with defaults).
func NewConfigFromEnv() Config {
	return Config{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvAsInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		Database: getEnv("DB_NAME", "trierg"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
		AppName:  getEnv("DB_APP_NAME", "trierg"),

		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 16),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 8),
		ConnMaxLifetime: time.Duration(getEnvAsInt("DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
	}
}

// DSN returns the Postgres connection URL.
func (c Config) DSN() string {
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	if c.AppName != "" {
		q.Set("application_name", c.AppName)
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User), url.QueryEscape(c.Password),
		c.Host, c.Port, c.Database, q.Encode(),
	)
}

// ConfigurePool applies the pool limits to an open handle.
func (c Config) ConfigurePool(db *sql.DB) {
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetConnMaxLifetime(c.ConnMaxLifetime)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
