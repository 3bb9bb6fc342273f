package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/trierg/go/internal/store"
)

// Config is the application configuration, loaded from a YAML file with
// environment variable overrides on top.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Store struct {
		// Backend is "postgres" or "memory". The memory backend keeps
		// everything in-process and needs neither Postgres nor NATS.
		Backend string `yaml:"backend"`
	} `yaml:"store"`

	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		JWTIssuer string `yaml:"jwt_issuer"`
	} `yaml:"auth"`
}

func defaultConfig() *Config {
	natsDefaults := store.DefaultNATSConfig()

	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Store.Backend = "postgres"
	cfg.NATS.URL = natsDefaults.URL
	cfg.NATS.SubjectPrefix = natsDefaults.SubjectPrefix
	cfg.Auth.JWTIssuer = "trierg"
	return cfg
}

// loadConfig reads the YAML config file when one exists, then applies
// environment overrides. A missing file is fine; the env alone is enough.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Store.Backend = getEnv("STORE_BACKEND", cfg.Store.Backend)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.JWTIssuer = getEnv("JWT_ISSUER", cfg.Auth.JWTIssuer)

	if cfg.Store.Backend == "postgres" && cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
