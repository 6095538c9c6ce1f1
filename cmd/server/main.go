package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kilat-Pet-Delivery/service-routemap/internal/application"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/config"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/routemap"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/engine"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/engine/google"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/engine/graph"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/engine/osrm"
	routemapEvents "github.com/Kilat-Pet-Delivery/service-routemap/internal/events"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/handler"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/platform/auth"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/platform/health"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/platform/kafka"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/platform/logger"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/platform/middleware"
	"github.com/gin-gonic/gin"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const serviceName = "service-routemap"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting "+serviceName,
		zap.String("port", cfg.Port),
		zap.String("routing_engine", cfg.Routing.Engine),
	)

	// Initialize routing engines
	engines, err := buildEngines(cfg.Routing, log)
	if err != nil {
		log.Fatal("failed to initialize routing engines", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Kafka producer and session event publisher
	var sink application.EventSink = application.NopSink{}
	var publisher *routemapEvents.SessionPublisher
	if cfg.KafkaEnabled() {
		kafkaProducer := kafka.NewProducer(cfg.KafkaConfig.Brokers, log)
		defer func() { _ = kafkaProducer.Close() }()

		publisher = routemapEvents.NewSessionPublisher(kafkaProducer, cfg.KafkaConfig.EventsTopic, 1024, log)
		publisher.Start()
		sink = publisher
	} else {
		log.Info("kafka brokers not configured, session events are not published")
	}

	// Initialize application service
	locale, err := routemap.ParseLocale(cfg.DefaultLocale)
	if err != nil {
		log.Fatal("invalid default locale", zap.Error(err))
	}
	sessionService := application.NewSessionService(
		engines,
		cfg.Routing.Engine,
		sink,
		application.Options{
			DefaultLocale: locale,
			DefaultZoom:   cfg.DefaultZoom,
			IdleTimeout:   cfg.SessionIdleTimeout,
		},
		log,
	)
	go sessionService.RunJanitor(ctx, time.Minute)

	// Initialize and start destination command consumer in a goroutine
	if cfg.KafkaEnabled() {
		groupID := cfg.KafkaConfig.GroupPrefix + "routemap-service"
		commandConsumer := routemapEvents.NewDestinationCommandConsumer(
			cfg.KafkaConfig.Brokers,
			groupID,
			cfg.KafkaConfig.CommandsTopic,
			sessionService,
			log,
		)
		defer func() { _ = commandConsumer.Close() }()

		go func() {
			log.Info("starting destination command consumer")
			if err := commandConsumer.Start(ctx); err != nil && err != context.Canceled {
				log.Error("destination command consumer error", zap.Error(err))
			}
		}()
	}

	// Initialize JWT manager
	var jwtManager *auth.JWTManager
	if cfg.JWTConfig.Secret != "" {
		jwtManager = auth.NewJWTManager(cfg.JWTConfig.Secret, 15*time.Minute)
	} else {
		log.Warn("JWT secret not configured, sessions are anonymous")
	}

	// Initialize HTTP handlers
	sessionHandler := handler.NewSessionHandler(sessionService, cfg.CORSAllowedOrigins, log)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORSAllowedOrigins))
	router.Use(middleware.SecurityHeadersMiddleware())

	// Register health check routes
	healthHandler := health.NewHandler(serviceName, healthChecks(cfg))
	healthHandler.RegisterRoutes(router)

	// Register routes
	sessionHandler.RegisterRoutes(&router.RouterGroup, jwtManager)

	// Create HTTP server. Websocket connections are long-lived, so no
	// read or write timeout is set on the server itself.
	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down " + serviceName + "...")

	// Cancel the consumer and janitor context
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Hijacked websocket connections are not tracked by the server; tear the
	// sessions down first so their clients close.
	sessionService.Shutdown(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced shutdown", zap.Error(err))
	}

	if publisher != nil {
		publisher.Close(shutdownCtx)
	}

	log.Info(serviceName + " stopped")
}

// buildEngines registers every configured engine. Google falls back to OSRM
// when its API is unreachable; a "no route" answer is final for every engine.
func buildEngines(cfg config.RoutingConfig, log *zap.Logger) (map[string]routemap.RoutingEngine, error) {
	engines := map[string]routemap.RoutingEngine{
		"estimate": engine.New("estimate", engine.NewEstimate(cfg.EstimateSpeedMS), cfg.Timeout, log),
	}

	osrmClient := osrm.NewClient(cfg.OSRM.URL, cfg.OSRM.Profile, cfg.OSRM.RatePerSec, log)
	engines["osrm"] = engine.New("osrm", osrmClient, cfg.Timeout, log)

	if cfg.GoogleMapsKey != "" {
		googleRouter, err := google.NewRouter(cfg.GoogleMapsKey)
		if err != nil {
			return nil, fmt.Errorf("google maps client: %w", err)
		}
		engines["google"] = engine.New("google", engine.NewFallback(log, googleRouter, osrmClient), cfg.Timeout, log)
	}

	if cfg.Graph.File != "" {
		g, err := graph.Load(cfg.Graph.File)
		if err != nil {
			return nil, err
		}
		log.Info("routing graph loaded",
			zap.String("file", cfg.Graph.File),
			zap.Int("nodes", len(g.Nodes)),
		)
		engines["graph"] = engine.New("graph", graph.NewRouter(g, cfg.Graph.SpeedMPS, 0), cfg.Timeout, log)
	}

	return engines, nil
}

func healthChecks(cfg *config.ServiceConfig) map[string]health.Check {
	checks := map[string]health.Check{}
	if cfg.KafkaEnabled() {
		broker := cfg.KafkaConfig.Brokers[0]
		checks["kafka"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			conn, err := kafkago.DialContext(ctx, "tcp", broker)
			if err != nil {
				return err
			}
			return conn.Close()
		}
	}
	return checks
}
