// Package config provides configuration management for Makazi
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the runtime configuration
type Config struct {
	Env      string
	Server   ServerConfig
	Auth     AuthConfig
	Session  SessionConfig
	CORS     CORSConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Log      LogConfig
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port         string
	Mode         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AuthConfig holds token settings
type AuthConfig struct {
	JWTSecret     string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

// SessionConfig holds browser session cookie settings
type SessionConfig struct {
	Name   string
	Secret string
	Domain string
	Secure bool
	MaxAge int
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
}

// DatabaseConfig holds database settings. Driver is "postgres" or "sqlite";
// for sqlite Name is the database file path.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN builds the driver specific connection string
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Name
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig holds redis settings. An empty URL keeps shared state in memory.
type RedisConfig struct {
	URL string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string
}

// IsProduction reports whether the service runs with production safeguards
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{
		Env: getEnv("MAKAZI_ENV", "development"),
		Server: ServerConfig{
			Port:         getEnv("PORT", "8090"),
			Mode:         getEnv("SERVER_MODE", "debug"),
			ReadTimeout:  time.Duration(getInt("SERVER_READ_TIMEOUT", 30)) * time.Second,
			WriteTimeout: time.Duration(getInt("SERVER_WRITE_TIMEOUT", 30)) * time.Second,
		},
		Auth: AuthConfig{
			JWTSecret:     os.Getenv("JWT_SECRET"),
			AccessExpiry:  time.Duration(getInt("JWT_ACCESS_EXPIRY_HOURS", 8)) * time.Hour,
			RefreshExpiry: time.Duration(getInt("JWT_REFRESH_EXPIRY_HOURS", 168)) * time.Hour,
			Issuer:        "makazi",
		},
		Session: SessionConfig{
			Name:   getEnv("SESSION_NAME", "makazi-session"),
			Secret: os.Getenv("SESSION_SECRET"),
			Domain: os.Getenv("SESSION_DOMAIN"),
			Secure: getBool("SESSION_SECURE", false),
			MaxAge: getInt("SESSION_MAX_AGE", 8*3600),
		},
		CORS: CORSConfig{
			AllowedOrigins:   splitString(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080")),
			AllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", true),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "makazi"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     getEnv("DB_NAME", "makazi"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want postgres or sqlite)", c.Database.Driver)
	}
	if c.IsProduction() {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if len(c.Session.Secret) < 32 {
			return fmt.Errorf("SESSION_SECRET must be at least 32 characters in production")
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "true" || v == "1" || v == "yes"
}

// splitString splits a comma-separated string into a slice
func splitString(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
