// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tuitionchat/tuition-chat-go/internal/api"
	"github.com/tuitionchat/tuition-chat-go/internal/buildinfo"
	"github.com/tuitionchat/tuition-chat-go/internal/chat"
	"github.com/tuitionchat/tuition-chat-go/internal/config"
	"github.com/tuitionchat/tuition-chat-go/internal/dialogue"
	"github.com/tuitionchat/tuition-chat-go/internal/genai"
	"github.com/tuitionchat/tuition-chat-go/internal/intent"
	"github.com/tuitionchat/tuition-chat-go/internal/logger"
	"github.com/tuitionchat/tuition-chat-go/internal/metrics"
	"github.com/tuitionchat/tuition-chat-go/internal/ratelimit"
	"github.com/tuitionchat/tuition-chat-go/internal/router"
	"github.com/tuitionchat/tuition-chat-go/internal/sentry"
	"github.com/tuitionchat/tuition-chat-go/internal/storage"
	"github.com/tuitionchat/tuition-chat-go/internal/tuition"
)

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg         *config.Config
	logger      *logger.Logger
	metrics     *metrics.Metrics
	registry    *prometheus.Registry
	messages    storage.MessageStore
	states      dialogue.Store
	redis       *redis.Client // nil unless SESSION_STORE=redis
	tuition     *tuition.Client
	classifier  genai.Classifier // nil when no LLM provider is configured
	llmLimiter  *ratelimit.KeyedLimiter
	chatLimiter *ratelimit.KeyedLimiter
	server      *http.Server
}

// Initialize creates and initializes a new application with all dependencies.
func Initialize(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logger.NewWithOptions(cfg.LogLevel, os.Stdout, logger.Options{
		BetterStackToken:    cfg.BetterStackToken,
		BetterStackEndpoint: cfg.BetterStackEndpoint,
	})

	log = log.WithField("service", "tuition-chat-go")
	if host, err := os.Hostname(); err == nil && host != "" {
		log = log.WithField("instance_id", host)
	}

	// Package-level slog calls pick up session and request IDs through ContextHandler.
	slog.SetDefault(log.Logger)

	log.Info("Initializing application...")
	if cfg.BetterStackToken != "" {
		log.WithField("endpoint", cfg.BetterStackEndpoint).Info("Better Stack logging enabled")
	}

	if err := sentry.Initialize(sentry.Config{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     buildinfo.Release(),
		SampleRate:  cfg.SentrySampleRate,
	}); err != nil {
		log.WithError(err).Warn("Sentry initialization failed")
	} else if sentry.IsEnabled() {
		log.WithField("environment", cfg.SentryEnvironment).Info("Sentry error tracking enabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	m := metrics.New(registry)

	app := &Application{
		cfg:      cfg,
		logger:   log,
		metrics:  m,
		registry: registry,
	}

	messages, err := storage.Open(ctx, cfg, storage.Options{Logger: log, Metrics: m})
	if err != nil {
		return nil, fmt.Errorf("message store: %w", err)
	}
	app.messages = messages
	log.WithField("backend", cfg.StorageBackend).Info("Message store connected")

	if err := app.openStates(ctx); err != nil {
		_ = messages.Close()
		return nil, err
	}

	app.tuition = tuition.NewClient(cfg.Tuition.BaseURL, tuition.Options{
		Timeout:            cfg.Tuition.Timeout,
		InsecureSkipVerify: cfg.Tuition.InsecureSkipVerify,
		Logger:             log,
		Metrics:            m,
	})
	tokens := tuition.NewTokenCache(app.tuition, tuition.Credentials{
		Username: cfg.Tuition.AdminUsername,
		Password: cfg.Tuition.AdminPassword,
	}, tuition.WithTokenLogger(log), tuition.WithTokenMetrics(m))
	if cfg.Tuition.InsecureSkipVerify {
		log.Warn("TLS verification disabled for the Tuition API")
	}

	app.llmLimiter = ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "llm",
		Burst:         cfg.LLM.RateBurst,
		RefillRate:    cfg.LLM.RateRefill / 3600.0, // hourly to per-second
		DailyLimit:    cfg.LLM.RateDaily,
		CleanupPeriod: config.RateLimiterCleanupInterval,
		Metrics:       m,
	})
	app.chatLimiter = ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "chat",
		Burst:         cfg.ChatRateBurst,
		RefillRate:    cfg.ChatRateRefill,
		CleanupPeriod: config.RateLimiterCleanupInterval,
		Metrics:       m,
	})

	app.classifier = genai.NewClassifier(ctx, cfg.LLM, log, m)
	parser := intent.NewParser(
		intent.WithClassifier(app.classifier),
		intent.WithLimiter(app.llmLimiter),
		intent.WithLogger(log),
		intent.WithMetrics(m),
	)

	rt := router.New(app.tuition, tokens, log)
	chatSvc := chat.NewService(parser, rt, app.states, log, m)

	handler := api.NewHandler(api.HandlerConfig{
		Chat:     chatSvc,
		Messages: messages,
		Tuition:  app.tuition,
		Payer:    rt,
		Limiter:  app.chatLimiter,
		Logger:   log,
		Metrics:  m,
	})

	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.httpHandler(handler),
		ReadHeaderTimeout: config.HTTPRead,
		ReadTimeout:       config.HTTPRead,
		// Websocket streams manage their own write deadlines after hijack.
		WriteTimeout: config.HTTPWrite,
		IdleTimeout:  config.HTTPIdle,
	}

	log.Info("Initialization complete")
	return app, nil
}

// openStates selects the dialogue state store.
func (a *Application) openStates(ctx context.Context) error {
	switch a.cfg.SessionStore {
	case config.SessionStoreRedis:
		client, err := a.cfg.Redis.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("dialogue state: %w", err)
		}
		a.redis = client
		a.states = dialogue.NewRedisStore(client, dialogue.RedisOptions{
			TTL:    a.cfg.SessionStateTTL,
			Logger: a.logger,
		})
	default:
		a.states = dialogue.NewMemoryStore(a.cfg.SessionStateTTL)
	}
	a.logger.WithField("store", a.cfg.SessionStore).
		WithField("ttl", a.cfg.SessionStateTTL).
		Info("Dialogue state store ready")
	return nil
}

// httpHandler builds the gin engine and wraps it with CORS and compression.
func (a *Application) httpHandler(h *api.Handler) http.Handler {
	if a.cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	if sentry.IsEnabled() {
		engine.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	engine.Use(securityHeadersMiddleware())
	engine.Use(loggingMiddleware(a.logger))

	engine.GET("/livez", a.livenessCheck)
	engine.HEAD("/livez", a.livenessCheck)
	engine.GET("/readyz", a.readinessCheck)
	engine.HEAD("/readyz", a.readinessCheck)
	engine.GET("/metrics",
		basicAuthMiddleware("metrics", a.cfg.MetricsUsername, a.cfg.MetricsPassword),
		gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	h.Register(engine)

	return corsHandler(compressHandler(engine))
}

// Run starts the HTTP server and blocks until SIGINT or SIGTERM.
func (a *Application) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		a.logger.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-errCh:
		a.logger.WithError(err).Error("HTTP server error")
		_ = a.shutdown()
		return fmt.Errorf("http server: %w", err)
	}
	return a.shutdown()
}

// shutdown stops accepting requests, drains in-flight ones, then closes
// resources in dependency order.
func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
	}

	a.logger.Info("Closing resources...")
	a.closeResources()

	if sentry.IsEnabled() {
		sentry.Flush(config.SentryFlush)
	}
	a.logger.Info("Shutdown complete")
	if err := a.logger.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Logger shutdown timed out")
	}
	return nil
}

func (a *Application) closeResources() {
	closeLogged := func(component string, fn func() error) {
		if err := fn(); err != nil {
			a.logger.WithError(err).WithField("component", component).Error("Component close error")
		}
	}

	if a.messages != nil {
		closeLogged("message_store", a.messages.Close)
	}
	if a.states != nil {
		closeLogged("dialogue_state", a.states.Close)
	}
	if a.redis != nil {
		closeLogged("redis", a.redis.Close)
	}
	if a.classifier != nil {
		closeLogged("classifier", a.classifier.Close)
	}
	if a.chatLimiter != nil {
		a.chatLimiter.Stop()
	}
	if a.llmLimiter != nil {
		a.llmLimiter.Stop()
	}
}
