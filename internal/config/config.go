package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	API       APIConfig       `mapstructure:"api"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Networks  NetworksConfig  `mapstructure:"networks"`
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite
	DSN    string `mapstructure:"dsn"`    // Connection string
}

// APIConfig holds scheduling API settings
type APIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	// Token injection from environment (for headless deployment)
	AccessToken    string `mapstructure:"access_token"`
	RefreshToken   string `mapstructure:"refresh_token"`
	TokenExpiresAt string `mapstructure:"token_expires_at"`
	// Profile directory cache lifetime
	ProfileCacheTTL time.Duration `mapstructure:"profile_cache_ttl"`
}

// PublisherConfig holds dispatch pipeline settings
type PublisherConfig struct {
	// Minimum seconds between dispatches for the same item on the update
	// action; absorbs page builders that save multiple times per user action
	UpdateCooldownSeconds int    `mapstructure:"update_cooldown_seconds"`
	LogEnabled            bool   `mapstructure:"log_enabled"`
	SiteName              string `mapstructure:"site_name"`
	SettingsPath          string `mapstructure:"settings_path"` // Where users configure statuses, referenced in errors
}

// NetworksConfig holds per-service message length limits (0 = unlimited)
type NetworksConfig struct {
	CharacterLimits map[string]int `mapstructure:"character_limits"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// SchedulerConfig holds repost scheduler settings
type SchedulerConfig struct {
	RepostEnabled bool   `mapstructure:"repost_enabled"`
	RepostCron    string `mapstructure:"repost_cron"`
	RepostMaxAge  string `mapstructure:"repost_max_age"` // Skip items older than this, e.g. "720h"
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	APIRequestsPerMinute int `mapstructure:"api_requests_per_minute"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or file path
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in current directory and configs folder
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		// Also check user's home directory
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".social-publisher"))
		}
	}

	// Environment variables
	v.SetEnvPrefix("PUBLISHER")
	v.AutomaticEnv()

	// Explicit bindings for nested keys (Viper doesn't auto-bind underscored nested keys)
	v.BindEnv("api.base_url", "PUBLISHER_API_BASE_URL")
	v.BindEnv("api.access_token", "PUBLISHER_API_ACCESS_TOKEN")
	v.BindEnv("api.refresh_token", "PUBLISHER_API_REFRESH_TOKEN")
	v.BindEnv("database.driver", "PUBLISHER_DATABASE_DRIVER")
	v.BindEnv("database.dsn", "PUBLISHER_DATABASE_DSN")
	v.BindEnv("server.addr", "PUBLISHER_SERVER_ADDR")
	v.BindEnv("publisher.log_enabled", "PUBLISHER_PUBLISHER_LOG_ENABLED")
	v.BindEnv("publisher.update_cooldown_seconds", "PUBLISHER_PUBLISHER_UPDATE_COOLDOWN_SECONDS")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/publisher.db")

	// API defaults
	v.SetDefault("api.base_url", "https://api.bufferapp.com/1")
	v.SetDefault("api.timeout_seconds", 30)
	v.SetDefault("api.profile_cache_ttl", 12*time.Hour)

	// Publisher defaults
	v.SetDefault("publisher.update_cooldown_seconds", 5)
	v.SetDefault("publisher.log_enabled", true)
	v.SetDefault("publisher.site_name", "")
	v.SetDefault("publisher.settings_path", "Settings > Status Templates")

	// Network character limits (0 = unlimited)
	v.SetDefault("networks.character_limits", map[string]int{
		"twitter":   280,
		"pinterest": 500,
		"instagram": 2200,
		"facebook":  5000,
		"linkedin":  700,
		"google":    5000,
	})

	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")

	// Scheduler defaults
	v.SetDefault("scheduler.repost_enabled", false)
	v.SetDefault("scheduler.repost_cron", "0 9 * * *") // 9am daily
	v.SetDefault("scheduler.repost_max_age", "720h")

	// Rate limit defaults
	v.SetDefault("rate_limit.api_requests_per_minute", 60)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Publisher.UpdateCooldownSeconds < 0 {
		return fmt.Errorf("publisher.update_cooldown_seconds must not be negative")
	}
	return nil
}

// UpdateCooldown returns the update cooldown as a duration
func (c *Config) UpdateCooldown() time.Duration {
	return time.Duration(c.Publisher.UpdateCooldownSeconds) * time.Second
}
