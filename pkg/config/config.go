package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/sirosfoundation/go-realtime-shell/pkg/logging"
)

// EnvPrefix is the prefix for environment variable overrides.
// envconfig falls back to the bare tag name when the prefixed variable is
// unset, so tags must never collide with names shells export (PATH, HOST, PORT).
const EnvPrefix = "RTSHELL"

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
	CORS      CORSConfig      `yaml:"cors" envconfig:"CORS"`
	Logging   logging.Config  `yaml:"logging" envconfig:"LOGGING"`
	Metrics   MetricsConfig   `yaml:"metrics" envconfig:"METRICS"`

	// ShutdownTimeoutSeconds bounds the graceful shutdown of all services
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds" envconfig:"SHUTDOWN_TIMEOUT_SECONDS"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host        string `yaml:"host" envconfig:"LISTEN_HOST"`
	Port        int    `yaml:"port" envconfig:"LISTEN_PORT"`
	Environment string `yaml:"environment" envconfig:"ENVIRONMENT"` // development, production
	ServerID    string `yaml:"server_id" envconfig:"ID"`
}

// WebSocketConfig contains realtime transport configuration
type WebSocketConfig struct {
	// Path is where the transport is mounted on the HTTP listener
	Path           string          `yaml:"path" envconfig:"MOUNT_PATH"`
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	AllowedMethods []string        `yaml:"allowed_methods" envconfig:"ALLOWED_METHODS"`
	MaxMessageSize int64           `yaml:"max_message_size" envconfig:"MAX_MESSAGE_SIZE"`
	SendBuffer     int             `yaml:"send_buffer" envconfig:"SEND_BUFFER"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig limits inbound frames per connection. Burst 0 disables it.
type RateLimitConfig struct {
	Burst      int     `yaml:"burst" envconfig:"BURST"`
	PerSeconds float64 `yaml:"per_seconds" envconfig:"PER_SECONDS"`
}

// CORSConfig contains HTTP CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	AllowedMethods   []string `yaml:"allowed_methods" envconfig:"ALLOWED_METHODS"`
	AllowedHeaders   []string `yaml:"allowed_headers" envconfig:"ALLOWED_HEADERS"`
	ExposedHeaders   []string `yaml:"exposed_headers" envconfig:"EXPOSED_HEADERS"`
	AllowCredentials bool     `yaml:"allow_credentials" envconfig:"ALLOW_CREDENTIALS"`
	MaxAge           int      `yaml:"max_age" envconfig:"MAX_AGE"` // seconds
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" envconfig:"ENABLED"`
	Path      string `yaml:"path" envconfig:"ENDPOINT"`
	Namespace string `yaml:"namespace" envconfig:"NAMESPACE"`
}

// Load loads configuration from a .env file, the YAML file and environment variables
func Load(configFile string) (*Config, error) {
	// .env is optional; real environment variables always win over it
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := DefaultConfig()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, that's ok - we'll use defaults and env vars
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        3000,
			Environment: "development",
			ServerID:    "default",
		},
		WebSocket: WebSocketConfig{
			Path:           "/socket",
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET"},
			MaxMessageSize: 64 * 1024,
			SendBuffer:     256,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:         12 * 60 * 60,
		},
		Logging: logging.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "rtshell",
		},
		ShutdownTimeoutSeconds: 60,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if !strings.HasPrefix(c.WebSocket.Path, "/") {
		return fmt.Errorf("websocket path must start with '/': %q", c.WebSocket.Path)
	}

	if c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("invalid websocket max_message_size: %d", c.WebSocket.MaxMessageSize)
	}

	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("invalid websocket send_buffer: %d", c.WebSocket.SendBuffer)
	}

	if c.WebSocket.RateLimit.Burst < 0 {
		return fmt.Errorf("invalid websocket rate_limit burst: %d", c.WebSocket.RateLimit.Burst)
	}

	if c.WebSocket.RateLimit.Burst > 0 && c.WebSocket.RateLimit.PerSeconds <= 0 {
		return fmt.Errorf("websocket rate_limit per_seconds must be positive when burst is set")
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		return fmt.Errorf("cors allowed_origins must not be empty")
	}

	if c.Logging.Output == "file" && c.Logging.File.Path == "" {
		return fmt.Errorf("logging file path is required when output is file")
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with '/': %q", c.Metrics.Path)
	}

	if c.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid shutdown_timeout_seconds: %d", c.ShutdownTimeoutSeconds)
	}

	return nil
}

// IsDevelopment reports whether the server runs in development mode
func (c *ServerConfig) IsDevelopment() bool {
	return c.Environment == "" || c.Environment == "development"
}

// Address returns the server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
