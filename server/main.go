package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/alert"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/cache"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/classifier"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/config"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/fusion"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/handlers"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/location"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/middleware"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/ml"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/motion"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/processor"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/stats"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	logger      *zap.Logger
	pipeline    *processor.Pipeline
	dispatcher  *alert.Dispatcher
	archiver    *alert.Archiver
	mlClient    *ml.Client
	store       storage.Store
	caches      []cache.Cache
	rateLimiter *middleware.RateLimiter
	stopKafka   context.CancelFunc
	config      *config.Config
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatal("Failed to initialize logger: ", err)
	}
	defer logger.Sync()

	if err := cfg.ValidateConfig(logger); err != nil {
		logger.Fatal("Configuration validation failed", zap.Error(err))
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	server, err := NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("addr", addr),
			zap.String("environment", cfg.Server.Environment),
			zap.Strings("alert_channels", server.dispatcher.Channels()),
			zap.String("storage", cfg.Storage.Driver))

		var err error
		if cfg.Security.EnableHTTPS {
			err = srv.ListenAndServeTLS(cfg.Security.CertFile, cfg.Security.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	server.Shutdown(ctx)

	logger.Info("Server exited")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.Format == "json" {
		zcfg = zap.NewProductionConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	ctx := context.Background()

	locationCache := cache.NewMemoryCache(10000, 0, logger)
	ledgerCache := cache.NewMemoryCache(100000, 0, logger)
	geocodeCache := cache.NewMemoryCache(5000, 24*time.Hour, logger)
	caches := []cache.Cache{locationCache, ledgerCache, geocodeCache}

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize %s store: %w", cfg.Storage.Driver, err)
	}

	enricher := location.NewEnricher(locationCache, cfg.Location, logger)
	kafkaCtx, stopKafka := context.WithCancel(context.Background())
	location.StartKafka(kafkaCtx, cfg.Kafka, enricher, logger)

	var geocoder location.Geocoder
	if cfg.Location.GeocoderURL != "" {
		geocoder = location.NewNominatimGeocoder(cfg.Location.GeocoderURL, cfg.Location.GeocodeTimeout, geocodeCache, logger)
	}

	mlClient := ml.NewClient(cfg.ML, logger)
	adapter := classifier.NewAdapter(mlClient, cfg.ML.MinConfidence, cfg.ML.Timeout, logger)

	aggregator := stats.NewAggregator(cfg.Stats.RecentEvents).WithCameraLimit(cfg.Pipeline.MaxCameras)
	archiver := alert.NewArchiver(store, logger)

	routes, err := alert.BuildRoutes(cfg.Alerts, logger)
	if err != nil {
		stopKafka()
		return nil, fmt.Errorf("failed to configure alert channels: %w", err)
	}
	dispatcher := alert.NewDispatcher(cfg.Alerts, routes, ledgerCache, geocoder, logger,
		aggregator,
		archiver,
	)

	pipeline := processor.NewPipeline(cfg.Pipeline, cfg.Events, processor.Deps{
		Analyzer:   motion.NewAnalyzer(cfg.Motion, logger),
		Fuser:      fusion.NewFuser(cfg.Fusion, cfg.Events.CandidateThreshold),
		Classifier: adapter,
		Locator:    enricher,
		Dispatcher: dispatcher,
		Recorder:   aggregator,
		Archive:    archiver,
	}, logger)

	rateLimiter := middleware.NewRateLimiter(
		cfg.Security.RateLimitRPS,
		cfg.Security.RateLimitBurst,
		logger,
	)
	auth := middleware.NewAuthMiddleware(cfg.Security.JWTSecretKey, logger)

	router := gin.New()
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Security.AllowedOrigins))
	router.Use(middleware.RequestSizeLimit(cfg.Security.MaxRequestSize))
	router.Use(middleware.InputValidation())
	router.Use(middleware.TimeoutHandler(cfg.Security.RequestTimeout))

	streamHandler := handlers.NewStreamHandler(pipeline, cfg.Pipeline.DetectTimeout, logger)
	wsHandler := handlers.NewWebSocketHandler(pipeline, cfg.Security.AllowedOrigins, cfg.Pipeline.DetectTimeout, logger)
	locationHandler := handlers.NewLocationHandler(enricher, logger)
	dashboardHandler := handlers.NewDashboardHandler(store, aggregator, dispatcher, pipeline, mlClient, logger).
		WithRateLimiter(rateLimiter)

	setupRoutes(router, streamHandler, wsHandler, locationHandler, dashboardHandler, auth, rateLimiter)

	return &Server{
		router:      router,
		logger:      logger,
		pipeline:    pipeline,
		dispatcher:  dispatcher,
		archiver:    archiver,
		mlClient:    mlClient,
		store:       store,
		caches:      caches,
		rateLimiter: rateLimiter,
		stopKafka:   stopKafka,
		config:      cfg,
	}, nil
}

func setupRoutes(router *gin.Engine, stream *handlers.StreamHandler, ws *handlers.WebSocketHandler, loc *handlers.LocationHandler, dashboard *handlers.DashboardHandler, auth *middleware.AuthMiddleware, rateLimiter *middleware.RateLimiter) {
	router.GET("/health", dashboard.Health)
	router.GET("/ws", rateLimiter.RateLimit(), auth.RequireAuth(), ws.HandleWebSocket)

	register := func(api *gin.RouterGroup) {
		api.Use(auth.RequireAuth())
		api.POST("/detect", rateLimiter.RateLimit(), stream.Detect)
		api.POST("/update_location", loc.UpdateLocation)
		api.GET("/accidents", dashboard.Accidents)
		api.GET("/stats", dashboard.Stats)
		api.GET("/cameras", stream.Cameras)
		api.DELETE("/cameras/:id", auth.RequireRole("admin"), stream.StopCamera)
	}
	register(router.Group("/"))
	register(router.Group("/api/v1"))
}

// Shutdown stops intake first, then drains alerts so confirmed events are
// still delivered, saves records still waiting on a resolution, then
// releases storage.
func (s *Server) Shutdown(ctx context.Context) {
	timeout := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	if err := s.pipeline.Shutdown(timeout / 3); err != nil {
		s.logger.Error("Failed to shutdown pipeline", zap.Error(err))
	}
	if err := s.dispatcher.Shutdown(timeout / 2); err != nil {
		s.logger.Error("Failed to drain alert queue", zap.Error(err))
	}
	s.archiver.Flush(ctx)

	s.stopKafka()
	s.mlClient.Close()
	s.rateLimiter.Shutdown()

	if err := s.store.Close(); err != nil {
		s.logger.Error("Failed to close store", zap.Error(err))
	}
	for _, c := range s.caches {
		if err := c.Close(); err != nil {
			s.logger.Error("Failed to close cache", zap.Error(err))
		}
	}
}
