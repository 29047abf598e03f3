// Package config provides configuration management for livefeed using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultHandshakeTimeout  = 10 * time.Second
	defaultReadLimit         = "16MiB"
	defaultReconnectDelay    = time.Second
	defaultMaxReconnectDelay = 30 * time.Second
	defaultQueueMaxBytes     = "10MiB"
	defaultTrimThreshold     = 60 * time.Second
	defaultTrimAmount        = 10 * time.Second
	defaultDriftCheckEvery   = 50
	defaultDriftTolerance    = 1500 * time.Millisecond
	defaultMinAppendsForSeek = 20
	defaultAutoplayAfter     = 20
	defaultDropLogEvery      = 200
	defaultControlPort       = 8089
	defaultServerTimeout     = 15 * time.Second
	defaultShutdownTimeout   = 5 * time.Second
	defaultMaxOpenConns      = 4
	defaultMaxIdleConns      = 2
	defaultConnMaxIdleTime   = 30 * time.Minute
	defaultHistoryRetention  = 30 * 24 * time.Hour
	defaultPruneSchedule     = "0 3 * * *"
)

// Config holds all configuration for the application.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Transport TransportConfig `mapstructure:"transport"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Recorder  RecorderConfig  `mapstructure:"recorder"`
	Control   ControlConfig   `mapstructure:"control"`
	Database  DatabaseConfig  `mapstructure:"database"`
	History   HistoryConfig   `mapstructure:"history"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// TransportConfig holds the websocket feed connection settings.
type TransportConfig struct {
	URL               string            `mapstructure:"url"`
	HandshakeTimeout  time.Duration     `mapstructure:"handshake_timeout"`
	ReadLimit         ByteSize          `mapstructure:"read_limit"` // max single message size
	Reconnect         bool              `mapstructure:"reconnect"`
	ReconnectDelay    time.Duration     `mapstructure:"reconnect_delay"`
	MaxReconnectDelay time.Duration     `mapstructure:"max_reconnect_delay"`
	Headers           map[string]string `mapstructure:"headers"`
}

// EngineConfig holds the buffering engine tuning.
type EngineConfig struct {
	// QueueMaxBytes bounds chunks waiting for the source buffer.
	// Supports human-readable values like "10MiB".
	QueueMaxBytes     ByteSize      `mapstructure:"queue_max_bytes"`
	TrimThreshold     time.Duration `mapstructure:"trim_threshold"`
	TrimAmount        time.Duration `mapstructure:"trim_amount"`
	DriftCheckEvery   int           `mapstructure:"drift_check_every"`
	DriftTolerance    time.Duration `mapstructure:"drift_tolerance"`
	MinAppendsForSeek int           `mapstructure:"min_appends_for_seek"`
	AutoplayAfter     int           `mapstructure:"autoplay_after"`
	DropLogEvery      int           `mapstructure:"drop_log_every"`
}

// RecorderConfig controls writing accepted media to disk.
type RecorderConfig struct {
	OutputPath string `mapstructure:"output_path"` // empty disables recording
}

// ControlConfig holds the control/status HTTP API configuration.
type ControlConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// HistoryConfig controls the session history store.
type HistoryConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Retention     time.Duration `mapstructure:"retention"`
	PruneSchedule string        `mapstructure:"prune_schedule"` // 5-field cron expression
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with LIVEFEED_ and use underscores for nesting.
// Example: LIVEFEED_TRANSPORT_URL=wss://camera.local/feed.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/livefeed")
		v.AddConfigPath("$HOME/.livefeed")
	}

	v.SetEnvPrefix("LIVEFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return Unmarshal(v)
}

// Unmarshal decodes and validates the settings held by v.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(DecodeHook())); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// DecodeHook converts string settings into durations and ByteSize values.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	)
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Transport defaults
	v.SetDefault("transport.url", "")
	v.SetDefault("transport.handshake_timeout", defaultHandshakeTimeout)
	v.SetDefault("transport.read_limit", defaultReadLimit)
	v.SetDefault("transport.reconnect", true)
	v.SetDefault("transport.reconnect_delay", defaultReconnectDelay)
	v.SetDefault("transport.max_reconnect_delay", defaultMaxReconnectDelay)

	// Engine defaults
	v.SetDefault("engine.queue_max_bytes", defaultQueueMaxBytes)
	v.SetDefault("engine.trim_threshold", defaultTrimThreshold)
	v.SetDefault("engine.trim_amount", defaultTrimAmount)
	v.SetDefault("engine.drift_check_every", defaultDriftCheckEvery)
	v.SetDefault("engine.drift_tolerance", defaultDriftTolerance)
	v.SetDefault("engine.min_appends_for_seek", defaultMinAppendsForSeek)
	v.SetDefault("engine.autoplay_after", defaultAutoplayAfter)
	v.SetDefault("engine.drop_log_every", defaultDropLogEvery)

	// Recorder defaults
	v.SetDefault("recorder.output_path", "")

	// Control API defaults
	v.SetDefault("control.enabled", true)
	v.SetDefault("control.host", "127.0.0.1")
	v.SetDefault("control.port", defaultControlPort)
	v.SetDefault("control.read_timeout", defaultServerTimeout)
	v.SetDefault("control.write_timeout", defaultServerTimeout)
	v.SetDefault("control.shutdown_timeout", defaultShutdownTimeout)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "livefeed.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// History defaults
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.retention", defaultHistoryRetention)
	v.SetDefault("history.prune_schedule", defaultPruneSchedule)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Transport.URL != "" {
		if err := ValidateFeedURL(c.Transport.URL); err != nil {
			return fmt.Errorf("transport.url: %w", err)
		}
	}
	if c.Transport.ReadLimit < 0 {
		return fmt.Errorf("transport.read_limit must not be negative")
	}
	if c.Transport.Reconnect && c.Transport.ReconnectDelay <= 0 {
		return fmt.Errorf("transport.reconnect_delay must be positive when reconnect is enabled")
	}

	if c.Engine.QueueMaxBytes <= 0 {
		return fmt.Errorf("engine.queue_max_bytes must be positive")
	}
	if c.Engine.TrimAmount <= 0 || c.Engine.TrimAmount >= c.Engine.TrimThreshold {
		return fmt.Errorf("engine.trim_amount must be positive and below engine.trim_threshold")
	}
	if c.Engine.DriftCheckEvery < 1 {
		return fmt.Errorf("engine.drift_check_every must be at least 1")
	}
	if c.Engine.DriftTolerance <= 0 {
		return fmt.Errorf("engine.drift_tolerance must be positive")
	}
	if c.Engine.MinAppendsForSeek < 0 || c.Engine.AutoplayAfter < 0 {
		return fmt.Errorf("engine.min_appends_for_seek and engine.autoplay_after must not be negative")
	}
	if c.Engine.DropLogEvery < 1 {
		return fmt.Errorf("engine.drop_log_every must be at least 1")
	}

	const maxPort = 65535
	if c.Control.Enabled && (c.Control.Port < 1 || c.Control.Port > maxPort) {
		return fmt.Errorf("control.port must be between 1 and %d", maxPort)
	}

	if c.History.Enabled {
		validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
		if !validDrivers[c.Database.Driver] {
			return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
		}
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required")
		}
		if c.History.Retention < 0 {
			return fmt.Errorf("history.retention must not be negative")
		}
	}

	return nil
}

// ValidateFeedURL checks that raw is an absolute ws:// or wss:// URL.
func ValidateFeedURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

// Address returns the control API address in host:port format.
func (c *ControlConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
