package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Storage       StorageConfig       `mapstructure:"storage"`
	SMTP          SMTPConfig          `mapstructure:"smtp"`
	Chat          ChatConfig          `mapstructure:"chat"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// SMTPConfig contains email transport configuration. Host left empty
// means email delivery is not configured and sends soft-fail.
type SMTPConfig struct {
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	FromEmail string        `mapstructure:"from_email"`
	FromName  string        `mapstructure:"from_name"`
	UseTLS    bool          `mapstructure:"use_tls"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ChatConfig contains Google Chat webhook configuration
type ChatConfig struct {
	DefaultWebhookURL string        `mapstructure:"default_webhook_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// NotificationsConfig contains engine-level notification settings
type NotificationsConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BroadcastRole string `mapstructure:"broadcast_role"`
	BaseURL       string `mapstructure:"base_url"`
}

// SchedulerConfig contains daily reminder scheduler configuration
type SchedulerConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	RunAt      string `mapstructure:"run_at"` // HH:MM, local time
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./internal/config")
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("CONTROL_TOWER")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override with environment variables if present
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}
	if smtpPass := os.Getenv("SMTP_PASSWORD"); smtpPass != "" {
		config.SMTP.Password = smtpPass
	}
	if webhook := os.Getenv("GOOGLE_CHAT_WEBHOOK_URL"); webhook != "" {
		config.Chat.DefaultWebhookURL = webhook
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "control-tower-notifier")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// Storage defaults
	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.connection_string", "./data/notifier.db")
	viper.SetDefault("storage.max_connections", 25)
	viper.SetDefault("storage.max_idle_time", "15m")

	// SMTP defaults (host intentionally empty: email disabled until configured)
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("smtp.from_email", "noreply@control-tower.local")
	viper.SetDefault("smtp.from_name", "Control Tower")
	viper.SetDefault("smtp.use_tls", true)
	viper.SetDefault("smtp.timeout", "30s")

	// Chat defaults
	viper.SetDefault("chat.timeout", "15s")

	// Notification defaults
	viper.SetDefault("notifications.enabled", true)
	viper.SetDefault("notifications.broadcast_role", "general_manager")
	viper.SetDefault("notifications.base_url", "http://localhost:3000")

	// Scheduler defaults
	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.run_at", "08:00")
	viper.SetDefault("scheduler.run_on_start", false)

	// Server defaults
	viper.SetDefault("server.port", 8081)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("server.enable_metrics", true)
	viper.SetDefault("server.enable_health", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Storage.Type != "sqlite" && c.Storage.Type != "postgres" {
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	if c.Notifications.BroadcastRole == "" {
		return fmt.Errorf("broadcast role is required")
	}
	if c.Scheduler.Enabled {
		var hh, mm int
		if _, err := fmt.Sscanf(c.Scheduler.RunAt, "%d:%d", &hh, &mm); err != nil {
			return fmt.Errorf("invalid scheduler run_at %q: %w", c.Scheduler.RunAt, err)
		}
		if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
			return fmt.Errorf("invalid scheduler run_at %q", c.Scheduler.RunAt)
		}
	}
	return nil
}
