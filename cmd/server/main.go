// Package main provides the task management API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ahmetcdevelopment/task-management-api/internal/api"
	"github.com/ahmetcdevelopment/task-management-api/internal/api/health"
	"github.com/ahmetcdevelopment/task-management-api/internal/auth"
	"github.com/ahmetcdevelopment/task-management-api/internal/metrics"
	"github.com/ahmetcdevelopment/task-management-api/internal/realtime"
	"github.com/ahmetcdevelopment/task-management-api/internal/service"
	"github.com/ahmetcdevelopment/task-management-api/internal/storage"
	"github.com/ahmetcdevelopment/task-management-api/pkg/config"
)

// lockoutSweepInterval is how often expired lockout entries are dropped.
const lockoutSweepInterval = 5 * time.Minute

var configFile string

var rootCmd = &cobra.Command{
	Use:   "task-server",
	Short: "Task management API server",
	Long: `task-server serves the project, work item and notification API,
the real-time notification hub and the Prometheus metrics endpoint.

Settings come from an optional YAML file and TASKS_* environment variables.`,
	SilenceUsage: true,
	RunE:         runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("task-server %s\n", config.Version)
		fmt.Printf("  commit: %s\n", config.Commit)
		fmt.Printf("  built:  %s\n", config.BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, level, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	metrics.SetBuildInfo(config.Version, config.Commit, config.BuildTime)

	// Auto-create data directory
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	store := storage.NewSQLiteStorage(storageConfig(cfg))
	if err := store.Open(); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	// Create default admin user on first run
	if err := store.EnsureAdminUser(); err != nil {
		return fmt.Errorf("ensure admin user: %w", err)
	}
	logger.Info("database initialized", zap.String("path", cfg.Database.Path))

	var (
		broker     realtime.Broker
		natsBroker *realtime.NATSBroker
	)
	switch cfg.Realtime.Broker {
	case config.BrokerNATS:
		natsBroker, err = realtime.DialNATSBroker(cfg.Realtime.NATSURL, logger.Named("nats"))
		if err != nil {
			return err
		}
		broker = natsBroker
	default:
		broker = realtime.NewMemoryBroker()
	}
	hub := realtime.NewHub(broker, logger.Named("hub"), cfg.Realtime.BufferSize)
	defer hub.Close()

	opts := []service.NotificationOption{service.WithPusher(hub)}
	dispatcher, err := newDispatcher(cfg.Notifications)
	if err != nil {
		return fmt.Errorf("configure notifier: %w", err)
	}
	if dispatcher != nil {
		defer dispatcher.Close()
		opts = append(opts, service.WithDispatcher(dispatcher, cfg.Notifications.DispatchTimeout))
		logger.Info("slack notifications enabled", zap.Strings("types", cfg.Notifications.Slack.Types))
	}

	tokens := auth.NewTokenService(store, cfg.Auth.RefreshTokenTTL)
	lockout := auth.NewLockoutTracker(cfg.Auth.LockoutThreshold, cfg.Auth.LockoutDuration)

	notifications := service.NewNotificationService(store, logger.Named("notifications"), opts...)
	defer notifications.Wait()
	users := service.NewUserService(store, logger.Named("users"))
	services := api.Services{
		Auth: service.NewAuthService(store, users,
			auth.NewJWTService([]byte(cfg.Auth.JWTSecret), cfg.Auth.AccessTokenTTL, cfg.Auth.Issuer),
			tokens, lockout, logger.Named("auth")),
		Users:         users,
		Projects:      service.NewProjectService(store, notifications, logger.Named("projects")),
		WorkItems:     service.NewWorkItemService(store, notifications, logger.Named("workitems")),
		Notifications: notifications,
		Hub:           hub,
	}

	srv, err := api.New(apiConfig(cfg), services, logger)
	if err != nil {
		return fmt.Errorf("create api server: %w", err)
	}
	srv.RegisterHealthChecker(health.NewSQLiteChecker(store.DB()))
	if natsBroker != nil {
		srv.RegisterHealthChecker(health.NewNATSChecker(natsBroker.Conn()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error {
		return notifications.RunRetention(ctx, cfg.Notifications.RetentionDays, cfg.Notifications.SweepInterval)
	})
	g.Go(func() error {
		return tokens.RunCleanup(ctx, cfg.Auth.TokenCleanupInterval, logger.Named("tokens"))
	})
	g.Go(func() error { return lockout.Run(ctx, lockoutSweepInterval) })

	if cfg.Metrics.Enabled {
		ms := metrics.NewServer(cfg.Metrics.Address, logger.Named("metrics"))
		g.Go(ms.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return ms.Shutdown(shutdownCtx)
		})
	}

	if configFile != "" {
		g.Go(func() error {
			return config.WatchLogLevel(ctx, configFile, level, logger.Named("config"))
		})
	}

	logger.Info("starting task-server",
		zap.String("version", config.Version),
		zap.String("broker", cfg.Realtime.Broker))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run server: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
