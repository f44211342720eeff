// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Supported storage backends.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds every setting the server reads at startup. Fields map to
// environment variables through their envconfig tags.
type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	Env      string `envconfig:"ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DBDriver          string `envconfig:"DB_DRIVER" default:"postgres"`
	DatabaseURL       string `envconfig:"DATABASE_URL"`
	DBHost            string `envconfig:"DB_HOST" default:"localhost"`
	DBPort            string `envconfig:"DB_PORT" default:"5432"`
	DBUser            string `envconfig:"DB_USER" default:"postgres"`
	DBPassword        string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName            string `envconfig:"DB_NAME" default:"fitreserve"`
	DBSSLMode         string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns        int32  `envconfig:"DB_MAX_CONNS" default:"20"`
	DBMinConns        int32  `envconfig:"DB_MIN_CONNS" default:"2"`
	DBConnectAttempts int    `envconfig:"DB_CONNECT_ATTEMPTS" default:"5"`
	SQLitePath        string `envconfig:"SQLITE_PATH" default:"fitreserve.db"`

	JWTSecret  string        `envconfig:"JWT_SECRET" required:"true"`
	JWTTTL     time.Duration `envconfig:"JWT_TTL" default:"24h"`
	BcryptCost int           `envconfig:"BCRYPT_COST" default:"10"`

	// Minimum lead time before class start during which a reservation can
	// no longer be cancelled.
	CancellationWindow time.Duration `envconfig:"CANCELLATION_WINDOW" default:"2h"`

	AdminName     string `envconfig:"ADMIN_NAME" default:"Administrator"`
	AdminEmail    string `envconfig:"ADMIN_EMAIL"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	switch c.DBDriver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.CancellationWindow < 0 {
		return fmt.Errorf("CANCELLATION_WINDOW must not be negative")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	return nil
}

// PostgresDSN returns DATABASE_URL when set, otherwise a libpq-compatible
// connection string assembled from the DB_* variables.
func (c *Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
