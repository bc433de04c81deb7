package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"ethvaluation/internal/config"
	apierrors "ethvaluation/internal/errors"
	"ethvaluation/internal/files"
	"ethvaluation/internal/infrastructure"
	customMiddleware "ethvaluation/internal/middleware"
	"ethvaluation/internal/pipeline"
	"ethvaluation/internal/services"
	handlers "ethvaluation/internal/transport/http"
	ws "ethvaluation/internal/websocket"
)

// AppName names the server in logs and telemetry.
const AppName = "valuation-server"

// Version and BuildTime are set at link time with -ldflags "-X".
var (
	Version   = "dev"
	BuildTime = ""
)

// Options selects the configuration file and the directory relative paths
// are anchored at. An empty BaseDir means the executable's directory.
type Options struct {
	ConfigPath string
	BaseDir    string
}

// Application wires configuration, telemetry, services and the HTTP server.
type Application struct {
	Config    *config.Config
	Paths     config.Paths
	Logger    *slog.Logger
	Telemetry *infrastructure.Telemetry
	Hub       *ws.Hub
	Analysis  *services.AnalysisService
	Health    *services.HealthService
	Router    chi.Router
	Server    *http.Server

	errorHandler *apierrors.ErrorHandler
	logCloser    io.Closer
}

// New loads the configuration and builds every component. Nothing is
// started until Run.
func New(opts Options) (*Application, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewWithConfig(cfg, opts.BaseDir)
}

// NewWithConfig builds the application from an already loaded configuration.
func NewWithConfig(cfg *config.Config, baseDir string) (*Application, error) {
	if baseDir == "" {
		dir, err := config.ExecutableDir()
		if err != nil {
			return nil, err
		}
		baseDir = dir
	}
	paths := cfg.Paths.Resolve(baseDir)
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	logCfg := cfg.Logging
	if logCfg.FilePath != "" && !filepath.IsAbs(logCfg.FilePath) {
		logCfg.FilePath = filepath.Join(baseDir, logCfg.FilePath)
	}
	logger, logCloser, err := infrastructure.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	slog.SetDefault(logger)

	logger.Info("application starting",
		slog.String("name", AppName),
		slog.String("version", Version),
		slog.String("data_dir", paths.DataDir),
		slog.String("output_dir", paths.OutputDir))

	tel, err := infrastructure.NewTelemetry(cfg.Telemetry, Version, logger)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	hubMetrics, err := ws.NewHubMetrics(tel.Meter)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("failed to create websocket metrics: %w", err)
	}
	hub := ws.NewHub(logger, hubMetrics)

	loader := files.NewLoader(paths, logger)
	analysis := services.NewAnalysisService(cfg, paths, loader, logger,
		pipeline.WithTracer(tel.Tracer),
		pipeline.WithMetrics(tel.Metrics),
		pipeline.WithObserver(hub),
	)
	health := services.NewHealthService(Version, BuildTime, paths, analysis, hub, logger)

	a := &Application{
		Config:       cfg,
		Paths:        paths,
		Logger:       logger,
		Telemetry:    tel,
		Hub:          hub,
		Analysis:     analysis,
		Health:       health,
		errorHandler: apierrors.NewErrorHandler(logger, false),
		logCloser:    logCloser,
	}
	if err := a.setupRouter(loader); err != nil {
		logCloser.Close()
		return nil, err
	}
	a.Server = &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)),
		Handler:           a.Router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	return a, nil
}

func (a *Application) setupRouter(loader *files.Loader) error {
	r := chi.NewRouter()
	eh := a.errorHandler

	// Middleware that does not wrap the ResponseWriter, safe for websocket upgrades.
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.Recoverer(eh))
	r.NotFound(eh.NotFound)
	r.MethodNotAllowed(eh.MethodNotAllowed)

	r.Handle("/ws", ws.NewHandler(a.Hub, a.Config.Server.AllowedOrigins, a.Logger))
	r.Handle("/metrics", a.Telemetry.MetricsHandler())

	otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.Telemetry, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create telemetry middleware: %w", err)
	}

	var startLimit func(http.Handler) http.Handler
	if rl := a.Config.Server.RateLimit; rl.Enabled {
		startLimit = customMiddleware.NewRateLimiter(rl.RPS, rl.Burst, eh, a.Logger).Handler
	}

	validator := customMiddleware.NewValidator(eh, a.Logger)
	runs := handlers.NewAnalysisHandler(a.Analysis, validator, eh, startLimit, a.Logger)
	inputs := handlers.NewInputsHandler(loader, eh, a.Logger)
	health := handlers.NewHealthHandler(a.Health, a.Logger)

	r.Group(func(r chi.Router) {
		r.Use(otelMiddleware.Handler)
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.DefaultSecureHeaders().Handler)
		r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{AllowedOrigins: a.Config.Server.AllowedOrigins}))
		r.Use(customMiddleware.AuditLog(a.Logger))

		r.Get("/healthz", health.LivenessCheck)
		r.Get("/readyz", health.ReadinessCheck)

		r.Route("/api", func(r chi.Router) {
			r.Use(render.SetContentType(render.ContentTypeJSON))
			r.Use(customMiddleware.ContentTypeValidator(eh, "application/json"))

			r.Get("/health", health.HealthCheck)
			r.Get("/health/ready", health.ReadinessCheck)
			r.Get("/health/live", health.LivenessCheck)
			r.Get("/health/detailed", health.Detailed)
			r.Get("/version", health.Version)
			r.Get("/inputs", inputs.ListInputs)
			r.Mount("/analysis/runs", runs.Routes())
		})
	})

	a.Router = r
	return nil
}

// Run serves HTTP until ctx is cancelled or the server fails, then shuts
// everything down.
func (a *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *Application) Serve(ctx context.Context, ln net.Listener) error {
	a.Hub.Start()
	a.Logger.InfoContext(ctx, "server listening",
		slog.String("address", ln.Addr().String()),
		slog.String("version", Version))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
		defer cancel()
		return a.Stop(shutdownCtx)
	})
	return g.Wait()
}

// Stop shuts the server down, cancels running analyses, disconnects the
// websocket clients and flushes telemetry.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	var errs []error
	if err := a.Server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if err := a.Analysis.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("analysis shutdown: %w", err))
	}
	a.Hub.Stop()
	if err := a.Telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}

	a.Logger.InfoContext(ctx, "application shutdown complete", slog.Int("errors", len(errs)))
	if err := a.logCloser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close log file: %w", err))
	}
	return errors.Join(errs...)
}
