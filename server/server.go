// Package server provides an HTTP server for running e2eflow suites as a service.
//
// The server exposes a REST API to trigger suite runs, follow the runs in progress and
// browse the snapshots of finished runs. Configured schedules are started with the
// server.
//
// # Endpoints
//
//   - GET /health - Simple health check, returns "ok"
//   - GET /api/status - Consolidated status (active runs, schedules, next run)
//   - GET /api/suites - Configured suites
//   - GET /config - Returns current configuration as YAML, with secrets redacted
//   - POST /reload - Reloads configuration from disk
//   - POST /run - Triggers a run of the suites named in the body
//   - GET /history - Returns a summary of every saved run, most recent first
//   - GET /history/{id} - Returns the snapshots, metrics and report of one run
//   - GET /metrics - Prometheus metrics, when a scrape registry is configured
//
// # Architecture
//
// The configuration is swapped atomically on reload. Workflows are created fresh for
// each run from the current configuration, so changes take effect on the next run
// without interrupting a run in progress. Schedules are read once, when the server is
// created.
//
// # Example
//
//	srv, err := server.New("/etc/e2eflow/config.yaml", server.WithOpener(opener))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nomis52/e2eflow/apps"
	"github.com/nomis52/e2eflow/buildinfo"
	"github.com/nomis52/e2eflow/config"
	"github.com/nomis52/e2eflow/metrics"
	"github.com/nomis52/e2eflow/runner"
	"github.com/nomis52/e2eflow/schedule"
	"github.com/nomis52/e2eflow/server/handlers"
	"github.com/nomis52/e2eflow/server/types"
	"github.com/nomis52/e2eflow/workflow"
	"github.com/nomis52/e2eflow/workflows"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// serverDeps holds config-derived dependencies that are swapped atomically on reload.
type serverDeps struct {
	config *config.Config
}

// Server is the HTTP server for e2eflow.
type Server struct {
	addr       string
	configPath string
	logger     *slog.Logger
	deps       atomic.Pointer[serverDeps]
	httpServer *http.Server
	props      types.ServerProperties

	runner     *runner.Runner
	opener     apps.Opener
	capturer   workflow.Capturer
	httpClient *http.Client
	scrape     *metrics.ScrapeRegistry
	specs      []schedule.Spec
	schedules  *schedule.Manager
	certLoader *CertLoader
}

// Option configures a Server.
type Option func(*Server) error

// WithListenAddr overrides the listen address from the configuration.
func WithListenAddr(addr string) Option {
	return func(s *Server) error {
		s.addr = addr
		return nil
	}
}

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithRunner sets the runner suites are executed by. By default a runner with an
// in-memory snapshot store is used.
func WithRunner(r *runner.Runner) Option {
	return func(s *Server) error {
		s.runner = r
		return nil
	}
}

// WithOpener sets how application surfaces are opened. It is required.
func WithOpener(opener apps.Opener) Option {
	return func(s *Server) error {
		s.opener = opener
		return nil
	}
}

// WithCapturer sets the diagnostic capturer used for failed steps.
func WithCapturer(c workflow.Capturer) Option {
	return func(s *Server) error {
		s.capturer = c
		return nil
	}
}

// WithHTTPClient sets the client used by API steps.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Server) error {
		s.httpClient = client
		return nil
	}
}

// WithScrapeRegistry serves the registry's metrics at /metrics.
func WithScrapeRegistry(reg *metrics.ScrapeRegistry) Option {
	return func(s *Server) error {
		s.scrape = reg
		return nil
	}
}

// WithSchedule replaces the configured schedules with the given spec, in the
// "suite1,suite2:cron;suite3:cron" format.
func WithSchedule(spec string) Option {
	return func(s *Server) error {
		available := make(map[string]bool)
		for _, name := range s.Config().SuiteNames() {
			available[name] = true
		}
		specs, err := schedule.ParseSpecs(spec, available)
		if err != nil {
			return fmt.Errorf("parsing schedule: %w", err)
		}
		s.specs = specs
		return nil
	}
}

// New creates a new Server with the given config path and options.
// It loads the configuration and initializes all dependencies.
func New(configPath string, opts ...Option) (*Server, error) {
	s := &Server{
		configPath: configPath,
		logger:     slog.Default(),
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.opener == nil {
		return nil, errors.New("an opener is required")
	}
	if s.runner == nil {
		s.runner = runner.New(runner.WithLogger(s.logger))
	}

	cfg := s.Config()
	if s.addr == "" {
		s.addr = cfg.Server.Addr
	}

	if s.specs == nil {
		specs, err := schedule.FromConfig(cfg)
		if err != nil {
			return nil, err
		}
		s.specs = specs
	}
	if len(s.specs) > 0 {
		m, err := schedule.NewManager(s.specs, s, s.logger)
		if err != nil {
			return nil, fmt.Errorf("creating schedules: %w", err)
		}
		s.schedules = m
	}

	if cfg.Server.TLSEnabled() {
		loader, err := NewCertLoader(cfg.Server.TLSCert, cfg.Server.TLSKey, s.logger)
		if err != nil {
			return nil, err
		}
		s.certLoader = loader
	}

	hostname, err := os.Hostname()
	if err != nil {
		s.logger.Warn("failed to get hostname", "error", err)
	}
	s.props = types.ServerProperties{
		Build:      buildinfo.Get(),
		StartedAt:  time.Now(),
		Hostname:   hostname,
		Addr:       s.addr,
		ConfigPath: s.configPath,
		TLS:        s.certLoader != nil,
	}

	return s, nil
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// Reload reads the config from disk. A config that fails to load leaves the current
// one in place.
func (s *Server) Reload() error {
	cfg, err := config.LoadConfig(s.configPath)
	if err != nil {
		return err
	}

	s.deps.Store(&serverDeps{
		config: &cfg,
	})

	s.logger.Info("configuration loaded", "config_path", s.configPath, "suites", len(cfg.Suites))
	return nil
}

// Config returns the current configuration.
func (s *Server) Config() *config.Config {
	return s.deps.Load().config
}

// Properties returns metadata about the running server.
func (s *Server) Properties() types.ServerProperties {
	return s.props
}

// Active returns the workflows currently executing.
func (s *Server) Active() []runner.ActiveRun {
	return s.runner.Active()
}

// Running returns the suite groups being run in the background.
func (s *Server) Running() []string {
	return s.runner.Running()
}

// Schedules returns the registered schedules.
func (s *Server) Schedules() []schedule.Entry {
	if s.schedules == nil {
		return nil
	}
	return s.schedules.Entries()
}

// NextRun returns the next scheduled run time, or nil if no schedule is configured.
func (s *Server) NextRun() *time.Time {
	if s.schedules == nil {
		return nil
	}
	next := s.schedules.NextRun()
	return &next
}

// StartSuites runs the named suites in the background. It returns
// runner.ErrRunInProgress if the same suites are already running.
func (s *Server) StartSuites(names []string) error {
	return s.start(names, nil)
}

// RunSuites runs the named suites and waits for them to finish. It implements
// schedule.Runnable.
func (s *Server) RunSuites(ctx context.Context, names []string) error {
	done := make(chan []runner.Result, 1)
	if err := s.start(names, func(results []runner.Result) { done <- results }); err != nil {
		return err
	}

	select {
	case results := <-done:
		failed := 0
		for _, res := range results {
			if !res.Success {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d suites failed", failed, len(results))
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) start(names []string, done func([]runner.Result)) error {
	cfg := s.Config()
	wfs, err := workflows.NewSuites(s.params(cfg), names)
	if err != nil {
		return err
	}

	list := make([]runner.Workflow, len(wfs))
	for i, wf := range wfs {
		list[i] = wf
	}

	opts := runner.Options{
		ContinueOnError: cfg.Engine.ContinueSequence,
		Parallel:        cfg.Engine.Parallel,
		MaxParallel:     cfg.Engine.MaxParallel,
	}
	return s.runner.Start(strings.Join(names, ","), list, opts, func(results []runner.Result) {
		for _, res := range results {
			s.logger.Info("suite finished",
				"suite", res.Workflow,
				"run_id", res.RunID,
				"success", res.Success,
				"skipped", res.Skipped,
				"error", res.Error,
			)
		}
		if done != nil {
			done(results)
		}
	})
}

func (s *Server) params(cfg *config.Config) workflows.Params {
	return workflows.Params{
		Config:        cfg,
		Logger:        s.logger,
		Opener:        s.opener,
		Capturer:      s.capturer,
		StatusHandler: s.runner.StatusHandler(),
		LogCollector:  s.runner.LogCollector(),
		HTTPClient:    s.httpClient,
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It performs a graceful shutdown when the context is done.
// Configured schedules are started with the server.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}
	if s.certLoader != nil {
		s.httpServer.TLSConfig = s.certLoader.TLSConfig()
	}

	if s.schedules != nil {
		s.logger.Info("starting schedules", "next_run", s.schedules.NextRun())
		s.schedules.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"addr", s.addr,
			"config_path", s.configPath,
			"tls", s.certLoader != nil,
		)
		var err error
		if s.certLoader != nil {
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	history := s.runner.Manager()

	mux.Handle("GET /health", handlers.NewHealthHandler(s))
	mux.Handle("GET /api/status", handlers.NewAPIStatusHandler(s))
	mux.Handle("GET /api/suites", handlers.NewSuitesHandler(s))
	mux.Handle("GET /config", handlers.NewConfigHandler(s))
	mux.Handle("POST /reload", handlers.NewReloadHandler(s.logger, s))
	mux.Handle("POST /run", handlers.NewRunHandler(s))
	mux.Handle("GET /history", handlers.NewHistoryHandler(history))
	mux.Handle("GET /history/{id}", handlers.NewRunDetailHandler(history))
	if s.scrape != nil {
		mux.Handle("GET /metrics", s.scrape.Handler())
	}
}
