package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/artpar/panelship/internal/core/crypto"
	"github.com/artpar/panelship/internal/shell/api"
	"github.com/artpar/panelship/internal/shell/deploy"
	"github.com/artpar/panelship/internal/shell/docker"
	"github.com/artpar/panelship/internal/shell/mcpserver"
	"github.com/artpar/panelship/internal/shell/metrics"
	"github.com/artpar/panelship/internal/shell/onepanel"
	"github.com/artpar/panelship/internal/shell/store"
	"github.com/artpar/panelship/internal/shell/workers"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitHTTPServerError = 3
)

const defaultPingTimeout = 5 * time.Second

// =============================================================================
// Server
// =============================================================================

// Server represents the panelship application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	store      *store.SQLiteStore
	engine     docker.Client
	dispatcher *workers.Dispatcher
	monitor    *workers.HostMonitor
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	s, err := openStore(cfg)
	if err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}

	// The engine is optional; remote management works without it.
	var engine docker.Client
	if cfg.Docker.Enabled {
		engine, err = connectEngine(cfg.Docker.Host)
		if err != nil {
			logger.Warn("container engine unavailable, builds are disabled", "error", err)
		}
	} else {
		logger.Info("container engine disabled")
	}

	if cfg.Deploy.TempDir != "" {
		if err := os.MkdirAll(cfg.Deploy.TempDir, 0o755); err != nil {
			s.Close()
			if engine != nil {
				engine.Close()
			}
			return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitConfigError}
		}
	}

	m := metrics.New()
	panels := onepanel.Factory{
		Timeout:         cfg.Remote.Timeout,
		TransferTimeout: cfg.Remote.TransferTimeout,
		Logger:          logger,
	}

	pipeline := deploy.NewPipeline(engine, s, deploy.OnePanelRemotes(panels), deploy.Config{
		TempDir:   cfg.Deploy.TempDir,
		UploadDir: cfg.Remote.UploadDir,
	}, m, logger)

	dispatcher := workers.NewDispatcher(workers.DispatcherConfig{
		Workers:   cfg.Deploy.Workers,
		QueueSize: cfg.Deploy.QueueSize,
	}, m, logger)
	background := deploy.NewBackground(pipeline, dispatcher, s, logger)

	var monitor *workers.HostMonitor
	if cfg.Monitor.Enabled {
		monitor = workers.NewHostMonitor(s, workers.OnePanelPinger(panels), workers.HostMonitorConfig{
			Interval:      cfg.Monitor.Interval,
			HostTimeout:   cfg.Monitor.Timeout,
			MaxConcurrent: cfg.Monitor.MaxConcurrent,
		}, m, logger)
		logger.Info("host monitor enabled", "interval", cfg.Monitor.Interval)
	}

	var mcpHandler http.Handler
	if cfg.MCP.Enabled {
		mcpHandler = mcpserver.Handler(mcpserver.New(s, pipeline, Version, logger))
		logger.Info("mcp endpoint enabled", "path", "/mcp")
	}

	handler := api.NewHandler(api.Config{
		Store:      s,
		Engine:     engine,
		Panels:     api.OnePanelFactory(panels),
		Pipeline:   pipeline,
		Background: background,
		Monitor:    monitor,
		Metrics:    m,
		MCP:        mcpHandler,
		Version:    Version,
		Logger:     logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		store:      s,
		engine:     engine,
		dispatcher: dispatcher,
		monitor:    monitor,
		logger:     logger,
	}, nil
}

// openStore opens the SQLite store, creating its directory and deriving
// the credential key when one is configured.
func openStore(cfg *Config) (*store.SQLiteStore, error) {
	dsn := cfg.Database.DSN
	if !strings.Contains(dsn, ":memory:") {
		path := strings.TrimPrefix(strings.SplitN(dsn, "?", 2)[0], "file:")
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	var opts []store.Option
	if cfg.Security.EncryptionKey != "" {
		opts = append(opts, store.WithEncryptionKey(crypto.DeriveKey(cfg.Security.EncryptionKey)))
	}
	return store.NewSQLiteStore(dsn, opts...)
}

// connectEngine returns a pinged engine client, or an error when the
// daemon is not reachable.
func connectEngine(host string) (docker.Client, error) {
	d, err := docker.NewDockerClient(host)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()
	if err := d.Ping(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	s.dispatcher.Start()
	if s.monitor != nil {
		s.monitor.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		s.Shutdown(context.Background())
		return &ServerError{Op: "Start", Err: err, ExitCode: ExitHTTPServerError}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server. Running deployments are
// allowed to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.monitor != nil {
		s.monitor.Stop()
	}
	s.dispatcher.Stop()

	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			s.logger.Error("Docker client close error", "error", err)
		}
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
