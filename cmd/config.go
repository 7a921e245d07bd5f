// cmd/config.go
package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signsinfo/capacity/internal/access"
	"github.com/signsinfo/capacity/internal/api"
	"github.com/signsinfo/capacity/internal/utilization"
)

// Configuration errors
var (
	// ErrInvalidAPIURL indicates an api value that is not an http(s) URL
	ErrInvalidAPIURL = errors.New("api must be an http or https URL")

	// ErrInvalidInterval indicates a non-positive reconcile interval
	ErrInvalidInterval = errors.New("reconcile interval must be positive")

	// ErrEmptyAreaUnit indicates a blank area unit
	ErrEmptyAreaUnit = errors.New("area_unit must not be empty")
)

// RedisConfig configures the Redis event publisher.
type RedisConfig struct {
	URL          string `yaml:"url"`
	Password     string `yaml:"password"`
	Channel      string `yaml:"channel"`
	Stream       string `yaml:"stream"`
	StreamMaxLen int64  `yaml:"stream_max_len"`
}

// ServerConfig configures `capacity serve`.
type ServerConfig struct {
	Host           string              `yaml:"host"`
	Port           int                 `yaml:"port"`
	Users          map[string]api.User `yaml:"users"`
	WriteRPS       float64             `yaml:"write_rps"`
	WriteBurst     int                 `yaml:"write_burst"`
	AllowedOrigins []string            `yaml:"allowed_origins"`
}

// Config is the CLI configuration file.
type Config struct {
	// API is the base URL of a capacity API; empty means the local database
	API string `yaml:"api"`

	// Token is the bearer token sent to the API
	Token string `yaml:"token"`

	// Level is the permission level to act as; empty asks the login endpoint
	Level string `yaml:"level"`

	// LoginURL overrides <api>/login
	LoginURL string `yaml:"login_url"`

	// DB is the local SQLite database path
	DB string `yaml:"db"`

	// AreaUnit is the unit counted by the shop-wide figures
	AreaUnit string `yaml:"area_unit"`

	// Levels overrides the capability table: level -> capability names
	Levels map[string][]string `yaml:"levels"`

	// ReconcileInterval is how often `capacity watch` reconciles
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`

	Redis  RedisConfig  `yaml:"redis"`
	Server ServerConfig `yaml:"server"`
}

// defaultConfig returns the configuration used when no file exists.
func defaultConfig() *Config {
	return &Config{
		DB:                filepath.Join(configDir(), "capacity.db"),
		AreaUnit:          utilization.AreaUnit,
		ReconcileInterval: 5 * time.Minute,
		Server: ServerConfig{
			Port:       8080,
			Users:      map[string]api.User{},
			WriteRPS:   5,
			WriteBurst: 20,
		},
	}
}

// loadConfig reads path (or the default location), then applies environment
// and flag overrides. A missing default file is not an error.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(configDir(), "config.yaml")
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("could not parse config %s: %w", path, err)
		}
		Debug("loaded config from %s", path)
	case os.IsNotExist(err) && !explicit:
		Debug("no config at %s, using defaults", path)
	default:
		return nil, fmt.Errorf("could not read config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyFlags()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.API = getEnvOrDefault("CAPACITY_API", c.API)
	c.Token = getEnvOrDefault("CAPACITY_TOKEN", c.Token)
	c.Level = getEnvOrDefault("CAPACITY_LEVEL", c.Level)
	c.DB = getEnvOrDefault("CAPACITY_DB", c.DB)
	c.Redis.URL = getEnvOrDefault("REDIS_URL", c.Redis.URL)
	c.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", c.Redis.Password)
	if port, err := strconv.Atoi(os.Getenv("CAPACITY_PORT")); err == nil {
		c.Server.Port = port
	}
}

func (c *Config) applyFlags() {
	if apiURL != "" {
		c.API = apiURL
	}
	if dbPath != "" {
		c.DB = dbPath
	}
	if apiToken != "" {
		c.Token = apiToken
	}
	if permissionLevel != "" {
		c.Level = permissionLevel
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.API != "" {
		u, err := url.Parse(c.API)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%q: %w", c.API, ErrInvalidAPIURL)
		}
	}
	if c.ReconcileInterval <= 0 {
		return ErrInvalidInterval
	}
	if c.AreaUnit == "" {
		return ErrEmptyAreaUnit
	}
	if _, err := c.table(); err != nil {
		return err
	}
	return nil
}

// table returns the capability table, merged with any configured levels.
func (c *Config) table() (access.Table, error) {
	t := access.DefaultTable()
	if len(c.Levels) == 0 {
		return t, nil
	}
	custom, err := access.TableFromConfig(c.Levels)
	if err != nil {
		return nil, fmt.Errorf("config levels: %w", err)
	}
	for level, caps := range custom {
		t[level] = caps
	}
	return t, nil
}

// loginURL returns the login endpoint of the configured API.
func (c *Config) loginURL() string {
	if c.LoginURL != "" {
		return c.LoginURL
	}
	return c.API + "/login"
}
