package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ahmetcdevelopment/task-management-api/internal/api"
	"github.com/ahmetcdevelopment/task-management-api/internal/notifier"
	"github.com/ahmetcdevelopment/task-management-api/internal/storage"
	"github.com/ahmetcdevelopment/task-management-api/pkg/config"
)

// newLogger builds the process logger with a level that can change at runtime.
func newLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel, error) {
	lvl, err := cfg.ZapLevel()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("parse log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := zc.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("build logger: %w", err)
	}
	return logger, zc.Level, nil
}

func storageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		BusyTimeout:     cfg.Database.BusyTimeout,
		Tables:          cfg.Database.Tables,
	}
}

func apiConfig(cfg *config.Config) *api.Config {
	return &api.Config{
		Address:          cfg.Server.Address,
		HTTPTLSEnabled:   cfg.Server.TLS.Enabled,
		HTTPTLSCertFile:  cfg.Server.TLS.CertFile,
		HTTPTLSKeyFile:   cfg.Server.TLS.KeyFile,
		ReadTimeout:      cfg.Server.ReadTimeout,
		IdleTimeout:      cfg.Server.IdleTimeout,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
		RateLimitPerIP:   cfg.Auth.RateLimitPerIP,
		RateLimitPerUser: cfg.Auth.RateLimitPerUser,
		Heartbeat:        cfg.Realtime.Heartbeat,
		Version:          config.Version,
	}
}

// newDispatcher returns nil when no external channel is configured.
func newDispatcher(cfg config.NotificationsConfig) (*notifier.Dispatcher, error) {
	if !cfg.Slack.Enabled() {
		return nil, nil
	}

	slack, err := notifier.NewSlackNotifier(notifier.SlackConfig{
		WebhookURL: cfg.Slack.WebhookURL,
		BaseURL:    cfg.Slack.BaseURL,
		Types:      cfg.Slack.NotificationTypes(),
	})
	if err != nil {
		return nil, err
	}

	d := notifier.NewDispatcherWithRateLimit(notifier.RateLimitConfig{
		PerMinute: cfg.RatePerMinute,
		Enabled:   true,
	})
	d.Register(slack)
	return d, nil
}
