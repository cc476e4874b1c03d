package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Security SecurityConfig `json:"security"`
	Cloud    CloudConfig    `json:"cloud"`
	Telegram TelegramConfig `json:"telegram"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `json:"path"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	APIKey string `json:"api_key"`
}

// CloudConfig contains Bosch cloud API and polling settings. Endpoint and
// client fields left empty fall back to the vendor defaults built into the
// auth and pointt packages.
type CloudConfig struct {
	DeviceID    string `json:"device_id"`
	BaseURL     string `json:"base_url"`
	TokenURL    string `json:"token_url"`
	LoginURL    string `json:"login_url"`
	ClientID    string `json:"client_id"`
	RedirectURI string `json:"redirect_uri"`

	PollIntervalSeconds  int      `json:"poll_interval_seconds"`
	CycleTimeoutSeconds  int      `json:"cycle_timeout_seconds"`
	FailureThreshold     int      `json:"failure_threshold"`
	Roots                []string `json:"roots"`
	MaxConcurrentFetches int      `json:"max_concurrent_fetches"`
}

// TelegramConfig contains notification settings
type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  int64  `json:"chat_id"`
}

// defaultRoots are the resource subtrees polled when none are configured.
var defaultRoots = []string{
	"/gateway",
	"/heatingCircuits/hc1",
	"/dhwCircuits/dhw1",
	"/system/sensors",
	"/system/appliance",
	"/zones/zn1",
	"/energy",
}

// Validate validates the configuration and fills polling defaults
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port", ErrInvalidConfig)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalidConfig)
	}

	if c.Security.APIKey == "" {
		return fmt.Errorf("%w: API key is required", ErrInvalidConfig)
	}

	if c.Cloud.DeviceID == "" {
		return fmt.Errorf("%w: cloud device id is required", ErrInvalidConfig)
	}

	if c.Cloud.PollIntervalSeconds < 0 || c.Cloud.CycleTimeoutSeconds < 0 {
		return fmt.Errorf("%w: polling intervals must not be negative", ErrInvalidConfig)
	}

	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == 0) {
		return fmt.Errorf("%w: telegram token and chat id are required when enabled", ErrInvalidConfig)
	}

	if len(c.Cloud.Roots) == 0 {
		c.Cloud.Roots = defaultRoots
	}

	return nil
}

// Load loads configuration from a JSON file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigFileNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadFromEnv loads configuration from environment variables
// This is useful for containerized deployments
func LoadFromEnv() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host: getEnv("BRIDGE_HOST", "0.0.0.0"),
			Port: getEnvInt("BRIDGE_PORT", 8080),
		},
		Database: DatabaseConfig{
			Path: getEnv("BRIDGE_DB_PATH", "./pointtbridge.db"),
		},
		Security: SecurityConfig{
			APIKey: getEnv("BRIDGE_API_KEY", ""),
		},
		Cloud: CloudConfig{
			DeviceID:             getEnv("BRIDGE_DEVICE_ID", ""),
			BaseURL:              getEnv("BRIDGE_BASE_URL", ""),
			TokenURL:             getEnv("BRIDGE_TOKEN_URL", ""),
			LoginURL:             getEnv("BRIDGE_LOGIN_URL", ""),
			ClientID:             getEnv("BRIDGE_CLIENT_ID", ""),
			RedirectURI:          getEnv("BRIDGE_REDIRECT_URI", ""),
			PollIntervalSeconds:  getEnvInt("BRIDGE_POLL_INTERVAL_SECONDS", 60),
			CycleTimeoutSeconds:  getEnvInt("BRIDGE_CYCLE_TIMEOUT_SECONDS", 120),
			FailureThreshold:     getEnvInt("BRIDGE_FAILURE_THRESHOLD", 3),
			MaxConcurrentFetches: getEnvInt("BRIDGE_MAX_CONCURRENT_FETCHES", 4),
		},
		Telegram: TelegramConfig{
			Enabled: getEnvBool("BRIDGE_TELEGRAM_ENABLED", false),
			Token:   getEnv("BRIDGE_TELEGRAM_TOKEN", ""),
			ChatID:  int64(getEnvInt("BRIDGE_TELEGRAM_CHAT_ID", 0)),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		fmt.Sscanf(value, "%d", &intVal)
		return intVal
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
