// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig            `yaml:"server"`
	Transport TransportConfig         `yaml:"transport"`
	Store     StoreConfig             `yaml:"store"`
	YouTube   YouTubeConfig           `yaml:"youtube"`
	Filters   map[string]FilterConfig `yaml:"filters"`
	Mirror    MirrorConfig            `yaml:"mirror"`
	Admin     AdminConfig             `yaml:"admin"`
	Messages  MessagesConfig          `yaml:"messages"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr           string      `yaml:"addr" default:":8080"`
	Hooks          HooksConfig `yaml:"hooks"`
	AllowedOrigins []string    `yaml:"allowed_origins"`
	// ShutdownTimeoutSec bounds graceful shutdown.
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec" default:"10" validate:"gte=1,lte=120"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// TransportConfig represents WebSocket transport configuration.
type TransportConfig struct {
	PingPeriodSec   int `yaml:"ping_period_sec" default:"30" validate:"gte=1,lte=300"`
	WriteTimeoutSec int `yaml:"write_timeout_sec" default:"10" validate:"gte=1,lte=60"`
	ReadLimit       int `yaml:"read_limit" default:"8192" validate:"gte=512,lte=1048576"`
	SendBuffer      int `yaml:"send_buffer" default:"32" validate:"gte=1,lte=1024"`
	SendTimeoutMs   int `yaml:"send_timeout_ms" default:"500" validate:"gte=10,lte=10000"`
}

// PingPeriod returns the keepalive ping period.
func (t TransportConfig) PingPeriod() time.Duration {
	return time.Duration(t.PingPeriodSec) * time.Second
}

// WriteTimeout returns the per-frame write deadline.
func (t TransportConfig) WriteTimeout() time.Duration {
	return time.Duration(t.WriteTimeoutSec) * time.Second
}

// SendTimeout returns the per-connection fan-out timeout.
func (t TransportConfig) SendTimeout() time.Duration {
	return time.Duration(t.SendTimeoutMs) * time.Millisecond
}

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// StoreConfig represents session store configuration.
type StoreConfig struct {
	Driver string       `yaml:"driver" default:"sqlite" validate:"oneof=memory sqlite redis"`
	SQLite SQLiteConfig `yaml:"sqlite"`
	Redis  RedisConfig  `yaml:"redis"`
}

// SQLiteConfig represents SQLite backend configuration.
type SQLiteConfig struct {
	Path string `yaml:"path" default:"data/karaoke.db"`
}

// RedisConfig represents Redis backend configuration.
type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0,lte=15"`
	Prefix   string `yaml:"prefix" default:"karaoke"`
}

// YouTubeConfig represents YouTube Data API configuration.
// Either an API key or OAuth client credentials with a refresh token are required.
type YouTubeConfig struct {
	APIKey       string `yaml:"api_key" validate:"required_without=RefreshToken"`
	ClientID     string `yaml:"client_id" validate:"required_with=RefreshToken"`
	ClientSecret string `yaml:"client_secret" validate:"required_with=RefreshToken"`
	RefreshToken string `yaml:"refresh_token"`
	CacheTTLSec  int    `yaml:"cache_ttl_sec" default:"900" validate:"gte=0"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// MirrorConfig represents the STOMP mirror configuration.
type MirrorConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Addr              string `yaml:"addr" validate:"required_if=Enabled true"`
	Login             string `yaml:"login"`
	Passcode          string `yaml:"passcode"`
	Host              string `yaml:"host" default:"/"`
	DestinationPrefix string `yaml:"destination_prefix" default:"/topic/karaoke"`
}

// AdminConfig represents admin-related configuration.
type AdminConfig struct {
	Token string `yaml:"token" validate:"required"`
}

// MessagesConfig represents user-facing messages for rejection codes.
type MessagesConfig struct {
	Success         string `yaml:"success"`
	DefaultError    string `yaml:"default_error"`
	SessionNotFound string `yaml:"session_not_found"`
	SessionEnded    string `yaml:"session_ended"`
	InvalidVideo    string `yaml:"invalid_video"`
	VideoNotFound   string `yaml:"video_not_found"`
	RateLimited     string `yaml:"rate_limited"`
	QueueFull       string `yaml:"queue_full"`
	GuestLimit      string `yaml:"guest_limit"`
	BlockedKeyword  string `yaml:"blocked_keyword"`
	DuplicateVideo  string `yaml:"duplicate_video"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses, overrides, defaults and validates YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	overrides := map[string]*string{
		"ADMIN_TOKEN":           &c.Admin.Token,
		"YOUTUBE_API_KEY":       &c.YouTube.APIKey,
		"YOUTUBE_CLIENT_ID":     &c.YouTube.ClientID,
		"YOUTUBE_CLIENT_SECRET": &c.YouTube.ClientSecret,
		"YOUTUBE_REFRESH_TOKEN": &c.YouTube.RefreshToken,
		"REDIS_PASSWORD":        &c.Store.Redis.Password,
		"STOMP_PASSCODE":        &c.Mirror.Passcode,
	}
	for key, dst := range overrides {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Store.Redis.DB = db
		}
	}
}

// GetMessage returns the message for the given code.
func (c *Config) GetMessage(code string) string {
	var msg string
	switch code {
	case "success":
		msg = c.Messages.Success
	case "session_not_found":
		msg = c.Messages.SessionNotFound
	case "session_ended":
		msg = c.Messages.SessionEnded
	case "invalid_video":
		msg = c.Messages.InvalidVideo
	case "video_not_found":
		msg = c.Messages.VideoNotFound
	case "rate_limited":
		msg = c.Messages.RateLimited
	case "queue_full":
		msg = c.Messages.QueueFull
	case "guest_limit":
		msg = c.Messages.GuestLimit
	case "blocked_keyword":
		msg = c.Messages.BlockedKeyword
	case "duplicate_video":
		msg = c.Messages.DuplicateVideo
	}
	if msg == "" {
		return c.Messages.DefaultError
	}
	return msg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	if c.Store.Driver == DriverSQLite && c.Store.SQLite.Path == "" {
		return errors.New("store.sqlite.path is required for the sqlite driver")
	}
	return nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}
