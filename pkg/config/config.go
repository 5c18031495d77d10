package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap/zapcore"

	"github.com/ahmetcdevelopment/task-management-api/internal/models"
	"github.com/ahmetcdevelopment/task-management-api/internal/storage"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TASKS_"

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
	minJWTSecretBytes = 32
)

// Broker names accepted by realtime.broker.
const (
	BrokerMemory = "memory"
	BrokerNATS   = "nats"
)

// Config is the server configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Auth          AuthConfig          `koanf:"auth"`
	Realtime      RealtimeConfig      `koanf:"realtime"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Metrics       MetricsConfig       `koanf:"metrics"`
	Log           LogConfig           `koanf:"log"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Address         string        `koanf:"address"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	TLS             TLSConfig     `koanf:"tls"`
}

// TLSConfig enables HTTPS on the API listener.
type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path            string         `koanf:"path"`
	MaxOpenConns    int            `koanf:"max_open_conns"`
	MaxIdleConns    int            `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration  `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration  `koanf:"conn_max_idle_time"`
	BusyTimeout     time.Duration  `koanf:"busy_timeout"`
	Tables          storage.Tables `koanf:"tables"`
}

// AuthConfig configures tokens, lockout and request limits.
type AuthConfig struct {
	JWTSecret            string        `koanf:"jwt_secret"`
	Issuer               string        `koanf:"issuer"`
	AccessTokenTTL       time.Duration `koanf:"access_token_ttl"`
	RefreshTokenTTL      time.Duration `koanf:"refresh_token_ttl"`
	LockoutThreshold     int           `koanf:"lockout_threshold"`
	LockoutDuration      time.Duration `koanf:"lockout_duration"`
	RateLimitPerIP       int           `koanf:"rate_limit_per_ip"`
	RateLimitPerUser     int           `koanf:"rate_limit_per_user"`
	TokenCleanupInterval time.Duration `koanf:"token_cleanup_interval"`
}

// RealtimeConfig configures the notification hub.
type RealtimeConfig struct {
	Broker     string        `koanf:"broker"`
	NATSURL    string        `koanf:"nats_url"`
	BufferSize int           `koanf:"buffer_size"`
	Heartbeat  time.Duration `koanf:"heartbeat"`
}

// NotificationsConfig configures retention and external channels.
type NotificationsConfig struct {
	RetentionDays   int           `koanf:"retention_days"`
	SweepInterval   time.Duration `koanf:"sweep_interval"`
	RatePerMinute   int           `koanf:"rate_per_minute"`
	DispatchTimeout time.Duration `koanf:"dispatch_timeout"`
	Slack           SlackConfig   `koanf:"slack"`
}

// SlackConfig enables the Slack webhook channel when WebhookURL is set.
type SlackConfig struct {
	WebhookURL string   `koanf:"webhook_url"`
	BaseURL    string   `koanf:"base_url"`
	Types      []string `koanf:"types"`
}

// Enabled reports whether a webhook is configured.
func (c SlackConfig) Enabled() bool {
	return c.WebhookURL != ""
}

// NotificationTypes returns Types as notification types.
func (c SlackConfig) NotificationTypes() []models.NotificationType {
	out := make([]models.NotificationType, 0, len(c.Types))
	for _, t := range c.Types {
		out = append(out, models.NotificationType(t))
	}
	return out
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Address string `koanf:"address"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

// ZapLevel parses Level.
func (c LogConfig) ZapLevel() (zapcore.Level, error) {
	return zapcore.ParseLevel(c.Level)
}

// subsections lists nested blocks whose keys contain underscores in env
// form, e.g. TASKS_NOTIFICATIONS_SLACK_WEBHOOK_URL.
var subsections = map[string][]string{
	"server":        {"tls"},
	"database":      {"tables"},
	"notifications": {"slack"},
}

// envKey maps TASKS_AUTH_JWT_SECRET to auth.jwt_secret.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	section, field := parts[0], parts[1]
	for _, sub := range subsections[section] {
		if strings.HasPrefix(field, sub+"_") {
			return section + "." + sub + "." + strings.TrimPrefix(field, sub+"_")
		}
	}
	return section + "." + field
}

// Load reads the YAML file at path, if any, then applies TASKS_ environment
// overrides, defaults and validation.
//
// Precedence (highest to lowest):
//  1. Environment variables
//  2. YAML config file
//  3. Defaults
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Notifications.Slack.Types = splitList(cfg.Notifications.Slack.Types)
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return content, nil
}

// splitList flattens comma separated entries, which is how list values
// arrive from the environment.
func splitList(in []string) []string {
	var out []string
	for _, v := range in {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Database.Path == "" {
		c.Database.Path = "./data/tasks.db"
	}

	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "task-management-api"
	}
	if c.Auth.AccessTokenTTL == 0 {
		c.Auth.AccessTokenTTL = time.Hour
	}
	if c.Auth.RefreshTokenTTL == 0 {
		c.Auth.RefreshTokenTTL = 7 * 24 * time.Hour // 7 days
	}
	if c.Auth.LockoutThreshold == 0 {
		c.Auth.LockoutThreshold = 5
	}
	if c.Auth.LockoutDuration == 0 {
		c.Auth.LockoutDuration = 15 * time.Minute
	}
	if c.Auth.TokenCleanupInterval == 0 {
		c.Auth.TokenCleanupInterval = time.Hour
	}

	if c.Realtime.Broker == "" {
		c.Realtime.Broker = BrokerMemory
	}
	if c.Realtime.Heartbeat == 0 {
		c.Realtime.Heartbeat = 30 * time.Second
	}

	if c.Notifications.RetentionDays == 0 {
		c.Notifications.RetentionDays = 30
	}
	if c.Notifications.SweepInterval == 0 {
		c.Notifications.SweepInterval = 24 * time.Hour
	}
	if c.Notifications.RatePerMinute == 0 {
		c.Notifications.RatePerMinute = 10
	}

	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Auth.JWTSecret) < minJWTSecretBytes {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least %d bytes", minJWTSecretBytes))
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		errs = append(errs, errors.New("server.tls.cert_file and server.tls.key_file are required when TLS is enabled"))
	}

	if err := c.Database.Tables.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("database.tables: %w", err))
	}

	switch c.Realtime.Broker {
	case BrokerMemory:
	case BrokerNATS:
		if c.Realtime.NATSURL == "" {
			errs = append(errs, errors.New("realtime.nats_url is required for the nats broker"))
		}
	default:
		errs = append(errs, fmt.Errorf("realtime.broker must be %q or %q, got %q", BrokerMemory, BrokerNATS, c.Realtime.Broker))
	}

	if c.Notifications.RetentionDays < 0 {
		errs = append(errs, errors.New("notifications.retention_days must not be negative"))
	}
	for _, t := range c.Notifications.Slack.NotificationTypes() {
		if !t.Valid() {
			errs = append(errs, fmt.Errorf("notifications.slack.types: unknown type %q", t))
		}
	}

	if _, err := c.Log.ZapLevel(); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}
