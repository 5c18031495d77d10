package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ahmetcdevelopment/task-management-api/internal/models"
	"github.com/ahmetcdevelopment/task-management-api/internal/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  address: ":9000"
auth:
  jwt_secret: "`+testSecret+`"
  access_token_ttl: 30m
database:
  path: /tmp/tasks.db
  tables:
    users: app_users
notifications:
  slack:
    webhook_url: https://hooks.slack.com/services/T/B/X
    types: [TaskAssigned, TaskCompleted]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, 30*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTokenTTL)
	assert.Equal(t, "app_users", cfg.Database.Tables.Users)
	assert.Equal(t, BrokerMemory, cfg.Realtime.Broker)
	assert.Equal(t, 30, cfg.Notifications.RetentionDays)
	assert.Equal(t, 24*time.Hour, cfg.Notifications.SweepInterval)
	assert.True(t, cfg.Notifications.Slack.Enabled())
	assert.Equal(t,
		[]models.NotificationType{models.NotificationTaskAssigned, models.NotificationTaskCompleted},
		cfg.Notifications.Slack.NotificationTypes())
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "auth:\n  jwt_secret: short\n")
	t.Setenv("TASKS_AUTH_JWT_SECRET", testSecret)
	t.Setenv("TASKS_SERVER_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("TASKS_REALTIME_BROKER", "nats")
	t.Setenv("TASKS_REALTIME_NATS_URL", "nats://127.0.0.1:4222")
	t.Setenv("TASKS_NOTIFICATIONS_SLACK_TYPES", "Error, Warning")
	t.Setenv("TASKS_DATABASE_TABLES_WORKITEMS", "tasks")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, testSecret, cfg.Auth.JWTSecret)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, BrokerNATS, cfg.Realtime.Broker)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Realtime.NATSURL)
	assert.Equal(t, []string{"Error", "Warning"}, cfg.Notifications.Slack.Types)
	assert.Equal(t, "tasks", cfg.Database.Tables.WorkItems)
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"TASKS_AUTH_JWT_SECRET":                 "auth.jwt_secret",
		"TASKS_NOTIFICATIONS_SLACK_WEBHOOK_URL": "notifications.slack.webhook_url",
		"TASKS_NOTIFICATIONS_RETENTION_DAYS":    "notifications.retention_days",
		"TASKS_SERVER_TLS_CERT_FILE":            "server.tls.cert_file",
		"TASKS_LOG_LEVEL":                       "log.level",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "jwt_secret"},
		{"unknown broker", func(c *Config) { c.Realtime.Broker = "kafka" }, "realtime.broker"},
		{"nats without url", func(c *Config) { c.Realtime.Broker = BrokerNATS }, "nats_url"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad slack type", func(c *Config) { c.Notifications.Slack.Types = []string{"Gossip"} }, "Gossip"},
		{"tls without files", func(c *Config) { c.Server.TLS.Enabled = true }, "cert_file"},
		{"table name with hyphen", func(c *Config) { c.Database.Tables.WorkItems = "work-items" }, "database.tables"},
		{"custom table names", func(c *Config) { c.Database.Tables = storage.Tables{Users: "app_users", Notifications: "inbox"} }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Auth: AuthConfig{JWTSecret: testSecret}}
			cfg.SetDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
		})
	}
}

func TestLoad_RejectsTableNameFromEnv(t *testing.T) {
	path := writeConfig(t, "auth:\n  jwt_secret: "+testSecret+"\n")
	t.Setenv("TASKS_DATABASE_TABLES_WORKITEMS", "work-items")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "work-items")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWatchLogLevel(t *testing.T) {
	path := writeConfig(t, "auth:\n  jwt_secret: "+testSecret+"\nlog:\n  level: info\n")
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- WatchLogLevel(ctx, path, level, zap.NewNop()) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  jwt_secret: "+testSecret+"\nlog:\n  level: debug\n"), 0o600))

	assert.Eventually(t, func() bool { return level.Level() == zapcore.DebugLevel }, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
