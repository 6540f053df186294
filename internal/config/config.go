package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"autoagenda/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig           `yaml:"app"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Logging       LoggingConfig       `yaml:"logging"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	API           APIConfig           `yaml:"api"`
	Booking       BookingConfig       `yaml:"booking"`
	Alerts        AlertsConfig        `yaml:"alerts"`
	Calendar      CalendarConfig      `yaml:"calendar"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Telegram      TelegramConfig      `yaml:"telegram"`
	Exports       ExportConfig        `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// BookingConfig tunes the coordinator's slot lock and key canonicalization.
type BookingConfig struct {
	LockWaitSeconds        int `yaml:"lock_wait_seconds"`
	LockTTLSeconds         int `yaml:"lock_ttl_seconds"`
	SlotGranularityMinutes int `yaml:"slot_granularity_minutes"`
}

// AlertsConfig tunes the alert rate limiter. The ceiling and window are
// deliberately configuration, not constants.
type AlertsConfig struct {
	RateLimit     int    `yaml:"rate_limit"`
	WindowSeconds int    `yaml:"window_seconds"`
	AdminChatID   int64  `yaml:"admin_chat_id"`
	AdminEmail    string `yaml:"admin_email"`
}

type CalendarConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	CalendarID      string `yaml:"calendar_id"`
	Timezone        string `yaml:"timezone"`
}

type NotificationsConfig struct {
	MaxRetries          int `yaml:"max_retries"`
	TTLMinutes          int `yaml:"ttl_minutes"`
	PollSeconds         int `yaml:"poll_seconds"`
	InitialDelaySeconds int `yaml:"initial_delay_seconds"`
	BatchSize           int `yaml:"batch_size"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; environment may already be populated.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Booking.LockWaitSeconds < 0 {
		return errors.New("booking.lock_wait_seconds must not be negative")
	}
	if c.Alerts.RateLimit < 0 {
		return errors.New("alerts.rate_limit must not be negative")
	}
	if c.Notifications.MaxRetries < 1 {
		return errors.New("notifications.max_retries must be at least 1")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "autoagenda"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.Auth.Enabled && c.API.Enabled {
		c.API.Auth.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}

	if c.Booking.LockWaitSeconds == 0 {
		c.Booking.LockWaitSeconds = models.DefaultLockWaitSeconds
	}
	if c.Booking.LockTTLSeconds == 0 {
		c.Booking.LockTTLSeconds = models.DefaultLockTTLSeconds
	}
	if c.Booking.SlotGranularityMinutes == 0 {
		c.Booking.SlotGranularityMinutes = models.DefaultSlotGranularityMinutes
	}

	if c.Alerts.RateLimit == 0 {
		c.Alerts.RateLimit = models.DefaultAlertRateLimit
	}
	if c.Alerts.WindowSeconds == 0 {
		c.Alerts.WindowSeconds = models.DefaultAlertWindow
	}

	if c.Notifications.MaxRetries == 0 {
		c.Notifications.MaxRetries = models.DefaultNotifyMaxRetries
	}
	if c.Notifications.TTLMinutes == 0 {
		c.Notifications.TTLMinutes = models.DefaultNotifyTTLMinutes
	}
	if c.Notifications.PollSeconds == 0 {
		c.Notifications.PollSeconds = 5
	}
	if c.Notifications.InitialDelaySeconds == 0 {
		c.Notifications.InitialDelaySeconds = 2
	}
	if c.Notifications.BatchSize == 0 {
		c.Notifications.BatchSize = 20
	}

	if c.Calendar.Timezone == "" {
		c.Calendar.Timezone = "America/Santiago"
	}
}

// LockWait is the bounded wait for slot lock acquisition.
func (c *BookingConfig) LockWait() time.Duration {
	return time.Duration(c.LockWaitSeconds) * time.Second
}

// LockTTL is the slot lock expiry in the backing store.
func (c *BookingConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// SlotGranularity is the canonicalization step for slot keys.
func (c *BookingConfig) SlotGranularity() time.Duration {
	return time.Duration(c.SlotGranularityMinutes) * time.Minute
}

// Window is the alert rate-limit window duration.
func (c *AlertsConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// TTL is the notification retry time-to-live.
func (c *NotificationsConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// PollInterval is the worker scan period.
func (c *NotificationsConfig) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}
