// Package config provides application configuration loaded from environment
// variables, an optional config file and command line flags.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Quotes   QuotesConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds
}

// DatabaseConfig holds connection settings. Driver is "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver   string
	Path     string // sqlite file
	DSNRaw   string // DATABASE_DSN, takes precedence over the fields below
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Debug    bool
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Dev        bool
	Migrations bool
}

// QuotesConfig tunes quote handling.
type QuotesConfig struct {
	AllocationAttempts int
	ValidityDays       int
	DefaultTitle       string
}

// LogConfig selects the log level and encoding ("json" or "console").
type LogConfig struct {
	Level  string
	Format string
}

// DSN returns the PostgreSQL connection string in key=value format.
func (d DatabaseConfig) DSN() string {
	if raw := NormalizeDSN(d.DSNRaw); raw != "" {
		return raw
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL returns the PostgreSQL connection string in URL format.
func (d DatabaseConfig) URL() string {
	if raw := NormalizeDSN(d.DSNRaw); raw != "" {
		return ToURLDSN(raw)
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// IsPostgres reports whether the postgres driver is selected.
func (d DatabaseConfig) IsPostgres() bool {
	return strings.EqualFold(d.Driver, "postgres") || strings.EqualFold(d.Driver, "postgresql")
}

// env maps configuration keys to their environment variables.
var env = map[string]string{
	"server.port":                "PORT",
	"server.read_timeout":        "SERVER_READ_TIMEOUT",
	"server.write_timeout":       "SERVER_WRITE_TIMEOUT",
	"server.idle_timeout":        "SERVER_IDLE_TIMEOUT",
	"db.driver":                  "DB_DRIVER",
	"db.path":                    "DB_PATH",
	"db.dsn":                     "DATABASE_DSN",
	"db.host":                    "DB_HOST",
	"db.port":                    "DB_PORT",
	"db.user":                    "DB_USER",
	"db.password":                "DB_PASSWORD",
	"db.name":                    "DB_NAME",
	"db.sslmode":                 "DB_SSLMODE",
	"db.debug":                   "DB_DEBUG",
	"app.dev":                    "DEV",
	"app.migrations":             "MIGRATIONS",
	"quotes.allocation_attempts": "QUOTES_ALLOCATION_ATTEMPTS",
	"quotes.validity_days":       "QUOTES_VALIDITY_DAYS",
	"quotes.default_title":       "QUOTES_DEFAULT_TITLE",
	"log.level":                  "LOG_LEVEL",
	"log.format":                 "LOG_FORMAT",
}

// New returns a viper instance with defaults and environment bindings.
// Command line flags may be bound to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)
	v.SetDefault("server.idle_timeout", 60)

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.path", "quotes.db")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "quotes")
	v.SetDefault("db.password", "quotes")
	v.SetDefault("db.name", "quotes")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.debug", false)

	v.SetDefault("app.dev", true)
	v.SetDefault("app.migrations", false)

	v.SetDefault("quotes.allocation_attempts", 3)
	v.SetDefault("quotes.validity_days", 30)
	v.SetDefault("quotes.default_title", "Devis")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	for key, name := range env {
		_ = v.BindEnv(key, name)
	}
	return v
}

// Load reads the optional .env and config files and returns the resulting
// configuration. configFile may be empty, in which case config.toml is
// looked up in ./config and the working directory.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	// .env values never override the real environment
	_ = godotenv.Load()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath("config")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config file")
		}
	}
	return FromViper(v), nil
}

// FromViper builds a Config from the current values of v.
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("server.port"),
			ReadTimeout:  v.GetInt("server.read_timeout"),
			WriteTimeout: v.GetInt("server.write_timeout"),
			IdleTimeout:  v.GetInt("server.idle_timeout"),
		},
		Database: DatabaseConfig{
			Driver:   strings.ToLower(v.GetString("db.driver")),
			Path:     v.GetString("db.path"),
			DSNRaw:   v.GetString("db.dsn"),
			Host:     v.GetString("db.host"),
			Port:     v.GetInt("db.port"),
			User:     v.GetString("db.user"),
			Password: v.GetString("db.password"),
			DBName:   v.GetString("db.name"),
			SSLMode:  v.GetString("db.sslmode"),
			Debug:    v.GetBool("db.debug"),
		},
		App: AppConfig{
			Dev:        v.GetBool("app.dev"),
			Migrations: v.GetBool("app.migrations"),
		},
		Quotes: QuotesConfig{
			AllocationAttempts: v.GetInt("quotes.allocation_attempts"),
			ValidityDays:       v.GetInt("quotes.validity_days"),
			DefaultTitle:       strings.TrimSpace(v.GetString("quotes.default_title")),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
	}
	if cfg.Quotes.AllocationAttempts < 1 {
		cfg.Quotes.AllocationAttempts = 1
	}
	if cfg.Quotes.ValidityDays < 0 {
		cfg.Quotes.ValidityDays = 0
	}
	if cfg.Quotes.DefaultTitle == "" {
		cfg.Quotes.DefaultTitle = "Devis"
	}
	return cfg
}
