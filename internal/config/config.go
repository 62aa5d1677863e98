// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Storage backends.
const (
	StoreMemory = "memory"
	StoreMySQL  = "mysql"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable; command-line flags may override some of them
// after Load.
type Config struct {
	Env          string // application environment (dev, test, prod)
	Port         string // HTTP port to listen on
	Store        string // memory or mysql
	DBUser       string
	DBPass       string // empty allowed
	DBHost       string
	DBPort       string
	DBName       string
	CatalogFile  string // YAML train catalog
	RabbitMQURL  string // empty disables ticket events
	TicketLogDir string // where the event consumer appends tickets.log
}

// Load reads and validates the configuration.  DB_* variables are
// required only when the mysql store is selected.
func Load() (Config, error) {
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FromEnv reads the configuration without validating it, for callers
// that apply flag overrides first.
func FromEnv() Config {
	return Config{
		Env:          getenv("APP_ENV", "dev"),
		Port:         getenv("APP_PORT", "8080"),
		Store:        strings.ToLower(getenv("STORE", StoreMemory)),
		DBPass:       os.Getenv("DB_PASS"),
		CatalogFile:  getenv("CATALOG_FILE", "trains.yaml"),
		RabbitMQURL:  getenv("RABBITMQ_URL", os.Getenv("AMQP_URL")),
		TicketLogDir: getenv("TICKET_LOG_DIR", "logs"),
	}
}

// Validate checks the store selection and, for mysql, that every
// required DB_* variable is present.  Missing DB fields are filled from
// the environment.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory:
		return nil
	case StoreMySQL:
	default:
		return fmt.Errorf("config: unknown store %q (want %s or %s)", c.Store, StoreMemory, StoreMySQL)
	}
	var missing []string
	c.DBUser = must("DB_USER", c.DBUser, &missing)
	c.DBHost = must("DB_HOST", c.DBHost, &missing)
	c.DBPort = must("DB_PORT", c.DBPort, &missing)
	c.DBName = must("DB_NAME", c.DBName, &missing)
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

// IsProd reports whether the app runs in production.
func (c Config) IsProd() bool {
	return strings.EqualFold(c.Env, "prod") || strings.EqualFold(c.Env, "production")
}

// must returns current when set, otherwise the env var key, and records
// key in missing when neither has a value.
func must(key, current string, missing *[]string) string {
	if current != "" {
		return current
	}
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		*missing = append(*missing, key)
	}
	return v
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
