package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/scratchpad/internal/api/http"
	"github.com/GriffinCanCode/scratchpad/internal/api/middleware"
	"github.com/GriffinCanCode/scratchpad/internal/api/ws"
	"github.com/GriffinCanCode/scratchpad/internal/host"
	"github.com/GriffinCanCode/scratchpad/internal/infrastructure/config"
	"github.com/GriffinCanCode/scratchpad/internal/infrastructure/logging"
	"github.com/GriffinCanCode/scratchpad/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scratchpad/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/scratchpad/internal/sandbox"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	http    *http.Server
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Initializing scratchpad server",
		zap.String("addr", cfg.Server.Addr()),
		zap.Duration("default_timeout", cfg.Sandbox.DefaultTimeout()),
		zap.Duration("max_timeout", cfg.Sandbox.MaxTimeout()),
		zap.Bool("fetch_enabled", cfg.Sandbox.FetchEnabled),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("scratchpad", logger.Logger)

	opts := HostOptions(cfg.Sandbox)
	opts.Logger = logger.Logger
	opts.Metrics = metrics
	opts.Tracer = tracer

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.CORSForOrigins(cfg.CORS.Origins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(opts)
	wsHandler := ws.NewHandler(opts, cfg.CORS.Origins)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.POST("/run", handlers.Run)
	router.GET("/metrics", handlers.Metrics())
	router.GET("/stream", wsHandler.HandleConnection)

	logger.Info("Server initialized successfully")

	return &Server{
		router: router,
		http: &http.Server{
			Addr:    cfg.Server.Addr(),
			Handler: router,
		},
		logger:  logger,
		config:  cfg,
		metrics: metrics,
		tracer:  tracer,
	}, nil
}

// HostOptions maps sandbox configuration onto host channel options
func HostOptions(cfg config.SandboxConfig) host.Options {
	opts := host.Options{
		Config: sandbox.Config{
			LogCapacity:      cfg.LogCapacity,
			GracePeriod:      cfg.GracePeriod(),
			PollInterval:     cfg.PollInterval(),
			MaxCallStackSize: cfg.MaxCallStack,
			EnableFetch:      cfg.FetchEnabled,
			FetchTimeout:     cfg.FetchTimeout(),
			MaxFetches:       cfg.MaxFetches,
			MaxResponseBytes: cfg.MaxResponseBytes(),
		},
		Limits: host.Limits{
			DefaultTimeout: cfg.DefaultTimeout(),
			MaxTimeout:     cfg.MaxTimeout(),
			MaxSourceBytes: cfg.MaxSourceBytes(),
		},
	}
	if cfg.FetchEnabled {
		opts.HTTPClient = resty.New().SetHeader("User-Agent", "scratchpad-fetch")
	}
	return opts
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the server's collector
func (s *Server) Metrics() *monitoring.Metrics {
	return s.metrics
}

// Run serves until Shutdown is called
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("Graceful shutdown failed", zap.Error(err))
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

// Close releases the tracer and flushes logs
func (s *Server) Close() error {
	s.tracer.Close()
	_ = s.logger.Sync()
	return nil
}
