// Package api implements the PulseWatch HTTP API server.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/good-yellow-bee/pulsewatch/internal/api/auth"
	"github.com/good-yellow-bee/pulsewatch/internal/api/health"
	"github.com/good-yellow-bee/pulsewatch/internal/incident"
	"github.com/good-yellow-bee/pulsewatch/internal/ingest"
	"github.com/good-yellow-bee/pulsewatch/internal/storage"
)

// Config holds HTTP server settings.
type Config struct {
	Host            string
	Port            int
	JWTSecret       string
	JWTTTL          time.Duration
	RateLimit       int
	RateWindow      time.Duration
	LockoutAttempts int
	LockoutDuration time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// SetDefaults fills zero-value fields with sane defaults.
func (c *Config) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.JWTTTL == 0 {
		c.JWTTTL = 24 * time.Hour
	}
	if c.RateLimit == 0 {
		c.RateLimit = 300
	}
	if c.RateWindow == 0 {
		c.RateWindow = time.Minute
	}
	if c.LockoutAttempts == 0 {
		c.LockoutAttempts = 5
	}
	if c.LockoutDuration == 0 {
		c.LockoutDuration = 15 * time.Minute
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Server bundles the HTTP API and its dependencies.
type Server struct {
	config    Config
	store     storage.Storage
	telemetry storage.TelemetryStorage
	ingest    *ingest.Service
	incidents *incident.Service

	jwtService *auth.JWTService
	lockout    *auth.LockoutTracker
	health     *health.Handler

	httpServer *http.Server
}

// New creates a Server. The JWT secret must be non-empty.
func New(config Config, store storage.Storage, telemetry storage.TelemetryStorage,
	ingestSvc *ingest.Service, incidents *incident.Service) (*Server, error) {

	config.SetDefaults()
	if config.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	s := &Server{
		config:     config,
		store:      store,
		telemetry:  telemetry,
		ingest:     ingestSvc,
		incidents:  incidents,
		jwtService: auth.NewJWTService([]byte(config.JWTSecret), config.JWTTTL),
		lockout:    auth.NewLockoutTracker(config.LockoutAttempts, config.LockoutDuration),
		health:     health.NewHandler(),
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.Router(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s, nil
}

// RegisterHealthChecker adds a dependency to the readiness probe.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	s.health.Register(c)
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Run serves HTTP until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("API server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}
