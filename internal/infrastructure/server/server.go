package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/dappbridge/internal/api/middleware"
	"github.com/GriffinCanCode/dappbridge/internal/domain/origin"
	"github.com/GriffinCanCode/dappbridge/internal/domain/wallet"
	resthttp "github.com/GriffinCanCode/dappbridge/internal/http"
	"github.com/GriffinCanCode/dappbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/dappbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/dappbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/dappbridge/internal/shared/httpclient"
	"github.com/GriffinCanCode/dappbridge/internal/surface/remote"
	"github.com/GriffinCanCode/dappbridge/internal/upstream"
	"github.com/GriffinCanCode/dappbridge/internal/web3/bridge"
	"github.com/GriffinCanCode/dappbridge/internal/web3/methods"
	"github.com/GriffinCanCode/dappbridge/internal/web3/navigation"
	"github.com/GriffinCanCode/dappbridge/internal/web3/phishing"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	http     *http.Server
	store    *origin.Store
	wallet   *wallet.Wallet
	tabs     *bridge.Manager
	guard    *navigation.Guard
	phishing *phishing.Detector
	upstream *upstream.Client
	registry *prometheus.Registry
	metrics  *monitoring.Metrics
	logger   *logging.Logger
	config   *config.Config

	unwatch func()
	cancel  context.CancelFunc
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	// Initialize logger
	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return NewServerWithLogger(cfg, logger)
}

// NewServerWithLogger creates a server that logs to logger.
func NewServerWithLogger(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	logger.Info("Initializing dApp bridge server",
		zap.String("port", cfg.Server.Port),
		zap.String("session_backend", cfg.Sessions.Backend),
		zap.Bool("phishing", cfg.Phishing.Enabled),
	)

	// Initialize metrics first (needed by other components)
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		registry: registry,
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
		cancel:   cancel,
	}

	if err := s.initDomain(ctx); err != nil {
		cancel()
		return nil, err
	}
	s.initRouter()

	logger.Info("Server initialized successfully")
	return s, nil
}

func (s *Server) initDomain(ctx context.Context) error {
	cfg := s.config
	logger := s.logger

	backend, err := newBackend(ctx, cfg.Sessions, logger.Component("sessions"))
	if err != nil {
		return err
	}
	store, err := origin.NewStore(ctx, backend, logger.Logger)
	if err != nil {
		_ = backend.Close()
		return fmt.Errorf("failed to load origin sessions: %w", err)
	}
	s.store = store
	s.metrics.SetOriginSessions(store.Len())
	s.unwatch = store.Watch(func(origin.Change) {
		s.metrics.SetOriginSessions(store.Len())
	})
	logger.Info("Origin sessions loaded", zap.Int("count", store.Len()))

	registry := wallet.DefaultRegistry()
	if cfg.Wallet.ChainsFile != "" {
		if registry, err = wallet.LoadRegistry(cfg.Wallet.ChainsFile); err != nil {
			return err
		}
	}
	w, err := wallet.New(registry, cfg.Wallet.DefaultChainID, cfg.Wallet.Accounts)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	s.wallet = w

	var guardOpts []navigation.GuardOption
	if cfg.Phishing.Enabled {
		opts := httpclient.DefaultOptions("phishing")
		opts.Timeout = cfg.Phishing.Timeout
		opts.Logger = logger.Logger
		s.phishing = phishing.NewDetector(phishing.Options{
			ListURL:         cfg.Phishing.ListURL,
			RefreshInterval: cfg.Phishing.RefreshInterval,
			Timeout:         cfg.Phishing.Timeout,
			CachePath:       cfg.Phishing.CachePath,
		}, httpclient.New(opts), s.metrics, logger.Logger)
		guardOpts = append(guardOpts, navigation.WithPhishing(s.phishing))

		// Warm the list so the first navigation does not wait on it.
		go func() {
			if err := s.phishing.MaybeUpdateState(ctx); err != nil {
				logger.Warn("Initial phishing list refresh failed", zap.Error(err))
			}
		}()
	}

	s.upstream = upstream.NewClient(httpclient.DefaultOptions("upstream"), logger.Logger)

	s.tabs = bridge.NewManager(bridge.ManagerOptions{
		Methods: methods.Deps{
			Wallet:        w,
			Upstream:      s.upstream,
			WalletName:    cfg.Wallet.Name,
			WalletVersion: cfg.Wallet.Version,
		},
		Navigation: navigation.Options{
			WalletScheme:     cfg.Bridge.WalletScheme,
			DynamicLinkHosts: cfg.Bridge.DynamicLinkHosts,
		},
		GuardOptions: guardOpts,
		Sessions:     store,
		Tab: bridge.Config{
			ProviderName:        cfg.Bridge.ProviderName,
			ReloadOnChainChange: cfg.Bridge.ReloadOnChainChange,
			InboxSize:           cfg.Bridge.InboxSize,
			Debug:               cfg.Logging.Development,
		},
	}, s.metrics, logger.Logger)

	return nil
}

func (s *Server) initRouter() {
	cfg := s.config
	logger := s.logger

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.UseRawPath = true

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(s.metrics))
	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.Server.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.Server.AllowedOrigins
	}
	router.Use(middleware.CORS(corsCfg))
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
	router.Use(middleware.RequestLogger(logger.Logger))

	// A guard without an opener or confirmer, for dry-run decisions.
	var guardOpts []navigation.GuardOption
	if s.phishing != nil {
		guardOpts = append(guardOpts, navigation.WithPhishing(s.phishing))
	}
	s.guard = navigation.NewGuard(navigation.Options{
		WalletScheme:     cfg.Bridge.WalletScheme,
		DynamicLinkHosts: cfg.Bridge.DynamicLinkHosts,
	}, logger.Logger, guardOpts...)

	handlers := resthttp.NewHandlers(s.store, s.tabs, s.guard, s.wallet, s.phishing, logger.Logger)
	handlers.Register(router)

	remoteCfg := remote.DefaultConfig()
	remoteCfg.PromptTimeout = cfg.Bridge.PromptTimeout
	wsHandler := remote.NewHandler(s.tabs, remoteCfg, cfg.Server.AllowedOrigins, s.metrics, logger.Logger)
	router.GET("/tabs/connect", wsHandler.HandleConnection)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	s.router = router
	s.http = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func newBackend(ctx context.Context, cfg config.SessionConfig, logger *zap.Logger) (origin.Backend, error) {
	switch cfg.Backend {
	case "file":
		return origin.NewFileBackend(cfg.Dir, logger)
	case "redis":
		return origin.NewRedisBackend(ctx, cfg.RedisURL, cfg.RedisKey, logger)
	default:
		return origin.NewMemoryBackend(), nil
	}
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Tabs returns the tab manager.
func (s *Server) Tabs() *bridge.Manager {
	return s.tabs
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections, closes every tab and releases the
// session backend.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	s.cancel()

	var errs []error
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down http server: %w", err))
		}
	}
	if s.tabs != nil {
		s.tabs.CloseAll()
	}
	if s.unwatch != nil {
		s.unwatch()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close session store: %w", err))
		}
	}

	// Sync logger before exit
	_ = s.logger.Sync()
	return errors.Join(errs...)
}
