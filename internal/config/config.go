package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/joshp123/geocosy/internal/logger"
)

const (
	SchemaVersion               = 1
	DefaultPath                 = "/etc/geocosy/config.yaml"
	DefaultHTTPAddr             = "0.0.0.0:8080"
	DefaultDashboardDir         = "/var/lib/geocosy/dashboards"
	DefaultLogLevel             = logger.InfoLevel
	DefaultCosyBaseURL          = "https://cosy.geotogether.com/api/userapi/"
	DefaultOverrideMinutes      = 60
	DefaultTimeoutSeconds       = 15
	DefaultMaxRequestsPerMinute = 30
	DefaultMQTTTopicPrefix      = "geocosy"
	DefaultMQTTPollSeconds      = 60
	EnvPrefix                   = "GEOCOSY"
)

// Config is the root configuration document.
type Config struct {
	SchemaVersion int           `mapstructure:"schema_version"`
	Core          CoreConfig    `mapstructure:"core"`
	Cosy          CosyConfig    `mapstructure:"cosy"`
	MQTT          MQTTConfig    `mapstructure:"mqtt"`
	Journal       JournalConfig `mapstructure:"journal"`
}

type CoreConfig struct {
	HTTPAddr     string `mapstructure:"http_addr"`
	DashboardDir string `mapstructure:"dashboard_dir"`
	LogLevel     string `mapstructure:"log_level"`
}

// CosyConfig holds the account credentials and vendor API tuning.
type CosyConfig struct {
	BaseURL              string `mapstructure:"base_url"`
	Username             string `mapstructure:"username"`
	Password             string `mapstructure:"password"`
	PasswordFile         string `mapstructure:"password_file"`
	OverrideMinutes      int    `mapstructure:"override_minutes"`
	TimeoutSeconds       int    `mapstructure:"timeout_seconds"`
	MaxRequestsPerMinute int    `mapstructure:"max_requests_per_minute"`
}

// MQTTConfig enables the MQTT bridge when Broker is set.
type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	PollSeconds int    `mapstructure:"poll_seconds"`
}

// JournalConfig enables the command journal when Path is set.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// Load reads the YAML config file, overlays GEOCOSY_* environment variables,
// applies defaults, and validates.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return decode(v)
}

// FromEnv builds a config from defaults and GEOCOSY_* environment variables only.
func FromEnv() (*Config, error) {
	return decode(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// setDefaults registers every key so AutomaticEnv can resolve it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("schema_version", SchemaVersion)
	v.SetDefault("core.http_addr", DefaultHTTPAddr)
	v.SetDefault("core.dashboard_dir", DefaultDashboardDir)
	v.SetDefault("core.log_level", DefaultLogLevel)

	v.SetDefault("cosy.base_url", DefaultCosyBaseURL)
	v.SetDefault("cosy.username", "")
	v.SetDefault("cosy.password", "")
	v.SetDefault("cosy.password_file", "")
	v.SetDefault("cosy.override_minutes", DefaultOverrideMinutes)
	v.SetDefault("cosy.timeout_seconds", DefaultTimeoutSeconds)
	v.SetDefault("cosy.max_requests_per_minute", DefaultMaxRequestsPerMinute)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.topic_prefix", DefaultMQTTTopicPrefix)
	v.SetDefault("mqtt.poll_seconds", DefaultMQTTPollSeconds)

	v.SetDefault("journal.path", "")
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces required invariants beyond typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema_version must be %d", SchemaVersion)
	}

	if cfg.Core.HTTPAddr == "" {
		return fmt.Errorf("core.http_addr is required")
	}
	if !logger.ValidLevel(cfg.Core.LogLevel) {
		return fmt.Errorf("core.log_level %q is not one of debug, info, warn, error", cfg.Core.LogLevel)
	}

	if strings.TrimSpace(cfg.Cosy.Username) == "" {
		return fmt.Errorf("cosy.username is required")
	}
	if cfg.Cosy.Password == "" && cfg.Cosy.PasswordFile == "" {
		return fmt.Errorf("cosy.password or cosy.password_file is required")
	}
	if cfg.Cosy.OverrideMinutes <= 0 {
		return fmt.Errorf("cosy.override_minutes must be positive")
	}
	if cfg.Cosy.TimeoutSeconds <= 0 {
		return fmt.Errorf("cosy.timeout_seconds must be positive")
	}
	if cfg.Cosy.MaxRequestsPerMinute < 0 {
		return fmt.Errorf("cosy.max_requests_per_minute must not be negative")
	}

	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.TopicPrefix == "" {
			return fmt.Errorf("mqtt.topic_prefix is required")
		}
		if cfg.MQTT.PollSeconds <= 0 {
			return fmt.Errorf("mqtt.poll_seconds must be positive")
		}
	}

	return nil
}

// EnabledPlugins maps enabled plugin IDs based on config presence.
func EnabledPlugins(cfg *Config) map[string]bool {
	enabled := make(map[string]bool)
	if cfg == nil {
		return enabled
	}
	if cfg.Cosy.Username != "" {
		enabled["cosy"] = true
	}
	return enabled
}

// ResolvePassword returns the inline password or the trimmed contents of
// password_file.
func (c CosyConfig) ResolvePassword() (string, error) {
	if c.Password != "" {
		return c.Password, nil
	}
	data, err := os.ReadFile(c.PasswordFile)
	if err != nil {
		return "", fmt.Errorf("read cosy password file: %w", err)
	}
	password := strings.TrimSpace(string(data))
	if password == "" {
		return "", fmt.Errorf("cosy password file %s is empty", c.PasswordFile)
	}
	return password, nil
}
