// Package api provides the HTTP REST API server.
package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ahmetcdevelopment/task-management-api/internal/api/health"
	"github.com/ahmetcdevelopment/task-management-api/internal/api/middleware"
	"github.com/ahmetcdevelopment/task-management-api/internal/realtime"
	"github.com/ahmetcdevelopment/task-management-api/internal/service"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address          string
	HTTPTLSEnabled   bool   // Enable HTTPS for API server
	HTTPTLSCertFile  string // HTTPS certificate file
	HTTPTLSKeyFile   string // HTTPS private key file
	ReadTimeout      time.Duration
	IdleTimeout      time.Duration
	ShutdownTimeout  time.Duration
	RateLimitPerIP   int // Requests per minute on the public auth endpoints
	RateLimitPerUser int // Requests per minute per authenticated user
	Heartbeat        time.Duration
	Version          string
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.RateLimitPerIP == 0 {
		c.RateLimitPerIP = 20
	}
	if c.RateLimitPerUser == 0 {
		c.RateLimitPerUser = 300
	}
	if c.Version == "" {
		c.Version = "dev"
	}
}

// Services are the application services the handlers call.
type Services struct {
	Auth          *service.AuthService
	Users         *service.UserService
	Projects      *service.ProjectService
	WorkItems     *service.WorkItemService
	Notifications *service.NotificationService
	Hub           *realtime.Hub
}

func (s Services) validate() error {
	switch {
	case s.Auth == nil:
		return errors.New("auth service is required")
	case s.Users == nil:
		return errors.New("user service is required")
	case s.Projects == nil:
		return errors.New("project service is required")
	case s.WorkItems == nil:
		return errors.New("work item service is required")
	case s.Notifications == nil:
		return errors.New("notification service is required")
	case s.Hub == nil:
		return errors.New("realtime hub is required")
	}
	return nil
}

// Server is the HTTP API server.
type Server struct {
	config        *Config
	services      Services
	logger        *zap.Logger
	server        *http.Server
	healthHandler *health.Handler
	ipLimiter     *middleware.RateLimiter
	userLimiter   *middleware.RateLimiter
}

// New creates a new API server.
func New(cfg *Config, services Services, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := services.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.SetDefaults()

	s := &Server{
		config:        cfg,
		services:      services,
		logger:        logger.Named("api"),
		healthHandler: health.NewHandler(cfg.Version),
		ipLimiter:     middleware.NewRateLimiter(cfg.RateLimitPerIP),
		userLimiter:   middleware.NewRateLimiter(cfg.RateLimitPerUser),
	}

	s.server = &http.Server{
		Addr:        cfg.Address,
		Handler:     s.setupRouter(),
		ReadTimeout: cfg.ReadTimeout,
		// Event streams stay open for the life of the client, so there is
		// no global write deadline.
		WriteTimeout: 0,
		IdleTimeout:  cfg.IdleTimeout,
	}
	if cfg.HTTPTLSEnabled {
		s.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run starts the HTTP server and blocks until context is canceled.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.ipLimiter.Run(ctx) })
	g.Go(func() error { return s.userLimiter.Run(ctx) })
	g.Go(func() error {
		s.logger.Info("HTTP API listening", zap.String("address", s.config.Address), zap.Bool("tls", s.config.HTTPTLSEnabled))
		var err error
		if s.config.HTTPTLSEnabled {
			err = s.server.ListenAndServeTLS(s.config.HTTPTLSCertFile, s.config.HTTPTLSKeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("shutting down HTTP API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// RegisterHealthChecker adds a health checker to the server.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	if s.healthHandler != nil {
		s.healthHandler.RegisterChecker(c)
	}
}
