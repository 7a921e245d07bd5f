package api

import (
	"os"
	"strconv"
	"time"

	"github.com/signsinfo/capacity/internal/access"
)

// User is an operator known to the API, addressed by bearer token.
type User struct {
	Level     string `yaml:"level" json:"level"`
	FirstName string `yaml:"first_name" json:"firstName"`
	LastName  string `yaml:"last_name" json:"lastName"`
	Email     string `yaml:"email" json:"email"`
}

// Config holds the API server configuration
type Config struct {
	// Host is the interface to bind (default: all)
	Host string

	// Port is the port to listen on; 0 picks a free port
	Port int

	// Users maps bearer tokens to operators
	Users map[string]User

	// Table grants capabilities per permission level (default: access.DefaultTable)
	Table access.Table

	// WriteRPS is the per-IP rate of write requests per second
	WriteRPS float64

	// WriteBurst is the per-IP burst of write requests
	WriteBurst int

	// AllowedOrigins lists websocket origins besides localhost; "*" allows any
	AllowedOrigins []string

	// ShutdownTimeout bounds graceful shutdown (default: 5s)
	ShutdownTimeout time.Duration

	// Version is reported by /health
	Version string

	// Debug enables verbose debug logging
	Debug bool
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:            getEnvInt("CAPACITY_PORT", 8080),
		Users:           map[string]User{},
		Table:           access.DefaultTable(),
		WriteRPS:        5,
		WriteBurst:      20,
		ShutdownTimeout: 5 * time.Second,
		Debug:           getEnvBool("CAPACITY_API_DEBUG", false),
	}
}

// getEnvInt returns the environment variable as an int or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as a bool or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.WriteRPS <= 0 || c.WriteBurst < 1 {
		return ErrInvalidRateLimit
	}
	if len(c.Users) == 0 {
		return ErrNoUsers
	}
	return nil
}
