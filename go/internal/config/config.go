// Package config loads console settings from the environment and an optional YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the console binary needs to run.
type Config struct {
	LogLevel string `yaml:"log_level"`

	API    APIConfig    `yaml:"api"`
	Push   PushConfig   `yaml:"push"`
	View   ViewConfig   `yaml:"view"`
	Relay  RelayConfig  `yaml:"relay"`
	Status StatusConfig `yaml:"status"`
}

// APIConfig holds backend REST settings.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	JWTKey  string        `yaml:"jwt_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// PushConfig holds websocket and global bus settings.
type PushConfig struct {
	WSBaseURL           string        `yaml:"ws_base_url"`
	ReconnectInterval   time.Duration `yaml:"reconnect_interval"`
	PingInterval        time.Duration `yaml:"ping_interval"`
	ReconcileInterval   time.Duration `yaml:"reconcile_interval"`
	MaxReconcileBackoff time.Duration `yaml:"max_reconcile_backoff"`
	// DisplayWindows maps event tipo to how long the latest event stays visible.
	DisplayWindows map[string]time.Duration `yaml:"display_windows"`
}

// ViewConfig selects the auction detail view to follow. AuctionID 0 disables it.
type ViewConfig struct {
	AuctionID      int64         `yaml:"auction_id"`
	ResyncInterval time.Duration `yaml:"resync_interval"`
	TickInterval   time.Duration `yaml:"tick_interval"`
}

// RelayConfig holds NATS relay settings. An empty URL disables the relay.
type RelayConfig struct {
	NATSURL       string `yaml:"nats_url"`
	StreamName    string `yaml:"stream_name"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// StatusConfig holds the status HTTP server settings.
type StatusConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		API: APIConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 30 * time.Second,
		},
		Push: PushConfig{
			WSBaseURL:           "ws://localhost:8000",
			ReconnectInterval:   3 * time.Second,
			PingInterval:        25 * time.Second,
			ReconcileInterval:   30 * time.Second,
			MaxReconcileBackoff: 5 * time.Minute,
		},
		View: ViewConfig{
			ResyncInterval: 30 * time.Second,
			TickInterval:   time.Second,
		},
		Relay: RelayConfig{
			StreamName:    "SUBASTA_EVENTS",
			SubjectPrefix: "subastas.events",
		},
		Status: StatusConfig{
			Port:           "8090",
			AllowedOrigins: []string{"*"},
		},
	}
}

// Load builds the config from defaults, then the environment, then the YAML
// file named by CONSOLE_CONFIG when set.
func Load() (Config, error) {
	cfg := FromEnv()
	if path := os.Getenv("CONSOLE_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv reads the recognized environment variables over the defaults.
func FromEnv() Config {
	cfg := DefaultConfig()

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.API.BaseURL = getEnv("API_BASE_URL", cfg.API.BaseURL)
	cfg.API.Token = getEnv("API_TOKEN", cfg.API.Token)
	cfg.API.JWTKey = getEnv("JWT_KEY", cfg.API.JWTKey)
	cfg.API.Timeout = getEnvAsDuration("API_TIMEOUT", cfg.API.Timeout)

	cfg.Push.WSBaseURL = getEnv("WS_BASE_URL", cfg.Push.WSBaseURL)
	cfg.Push.ReconnectInterval = getEnvAsDuration("RECONNECT_INTERVAL", cfg.Push.ReconnectInterval)
	cfg.Push.PingInterval = getEnvAsDuration("PING_INTERVAL", cfg.Push.PingInterval)
	cfg.Push.ReconcileInterval = getEnvAsDuration("RECONCILE_INTERVAL", cfg.Push.ReconcileInterval)

	cfg.View.AuctionID = int64(getEnvAsInt("AUCTION_ID", int(cfg.View.AuctionID)))
	cfg.View.ResyncInterval = getEnvAsDuration("RESYNC_INTERVAL", cfg.View.ResyncInterval)

	cfg.Relay.NATSURL = getEnv("NATS_URL", cfg.Relay.NATSURL)
	cfg.Relay.SubjectPrefix = getEnv("RELAY_SUBJECT_PREFIX", cfg.Relay.SubjectPrefix)

	cfg.Status.Port = getEnv("STATUS_PORT", cfg.Status.Port)
	if origins := getEnv("STATUS_ALLOWED_ORIGINS", ""); origins != "" {
		cfg.Status.AllowedOrigins = strings.Split(origins, ",")
	}

	return cfg
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Validate rejects settings the console cannot run with.
func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base url is required")
	}
	if c.Push.ReconnectInterval <= 0 {
		return fmt.Errorf("reconnect interval must be positive, got %s", c.Push.ReconnectInterval)
	}
	if c.View.ResyncInterval <= 0 {
		return fmt.Errorf("resync interval must be positive, got %s", c.View.ResyncInterval)
	}
	if c.View.AuctionID < 0 {
		return fmt.Errorf("auction id must not be negative, got %d", c.View.AuctionID)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("3s") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
