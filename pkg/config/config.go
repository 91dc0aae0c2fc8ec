// Package config loads application configuration from environment
// variables, with an optional .env file for local development.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config groups all application settings.
type Config struct {
	App    AppConfig
	HTTP   HTTPConfig
	DB     DBConfig
	JWT    JWTConfig
	Log    LogConfig
	Fiscal FiscalConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

// IsDevelopment reports whether the app runs in development mode.
func (c AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns the listen address (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DBConfig holds PostgreSQL settings.
type DBConfig struct {
	// URL is the full connection string (postgres://...). Required.
	URL string

	MaxConns         int32
	MinConns         int32
	StatementTimeout time.Duration
}

// JWTConfig holds token signing settings.
type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// FiscalConfig holds settings for the fiscal authority client.
// Environment selects which endpoint receives submissions.
type FiscalConfig struct {
	// Environment: "production" or "homologation" (test environment).
	Environment string

	EndpointProduction   string
	EndpointHomologation string

	// CertPath points to the A1 certificate bundle (.pfx / .p12).
	CertPath     string
	CertPassword string

	Timeout time.Duration
}

// Endpoint returns the submission URL for the configured environment.
func (c FiscalConfig) Endpoint() string {
	if c.Environment == "production" {
		return c.EndpointProduction
	}
	return c.EndpointHomologation
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; real env vars win.
func Load() (*Config, error) {
	// Best effort: absence of .env is not an error.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Env:  v.GetString("APP_ENV"),
			Name: v.GetString("APP_NAME"),
		},
		HTTP: HTTPConfig{
			Host:            v.GetString("HTTP_HOST"),
			Port:            v.GetInt("HTTP_PORT"),
			ReadTimeout:     v.GetDuration("HTTP_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("HTTP_WRITE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("HTTP_SHUTDOWN_TIMEOUT"),
		},
		DB: DBConfig{
			URL:              v.GetString("DATABASE_URL"),
			MaxConns:         v.GetInt32("DB_MAX_CONNS"),
			MinConns:         v.GetInt32("DB_MIN_CONNS"),
			StatementTimeout: v.GetDuration("DB_STATEMENT_TIMEOUT"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("JWT_SECRET"),
			Expiration: v.GetDuration("JWT_EXPIRATION"),
			Issuer:     v.GetString("JWT_ISSUER"),
		},
		Log: LogConfig{
			Level:       v.GetString("LOG_LEVEL"),
			Development: v.GetString("APP_ENV") == "development",
		},
		Fiscal: FiscalConfig{
			Environment:          v.GetString("FISCAL_ENVIRONMENT"),
			EndpointProduction:   v.GetString("FISCAL_ENDPOINT_PRODUCTION"),
			EndpointHomologation: v.GetString("FISCAL_ENDPOINT_HOMOLOGATION"),
			CertPath:             v.GetString("FISCAL_CERT_PATH"),
			CertPassword:         v.GetString("FISCAL_CERT_PASSWORD"),
			Timeout:              v.GetDuration("FISCAL_TIMEOUT"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "caixa")

	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("HTTP_READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("HTTP_SHUTDOWN_TIMEOUT", 30*time.Second)

	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_STATEMENT_TIMEOUT", 30*time.Second)

	v.SetDefault("JWT_EXPIRATION", 12*time.Hour)
	v.SetDefault("JWT_ISSUER", "caixa")

	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("FISCAL_ENVIRONMENT", "homologation")
	v.SetDefault("FISCAL_TIMEOUT", 30*time.Second)
}

func (c *Config) validate() error {
	if c.DB.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWT.Secret == "" && c.App.Env == "production" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.Fiscal.Environment != "production" && c.Fiscal.Environment != "homologation" {
		return fmt.Errorf("FISCAL_ENVIRONMENT must be production or homologation, got %q", c.Fiscal.Environment)
	}
	return nil
}
