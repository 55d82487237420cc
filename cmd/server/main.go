package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/pos/internal/application/scanning"
	"github.com/erp/pos/internal/infrastructure/config"
	"github.com/erp/pos/internal/infrastructure/event"
	"github.com/erp/pos/internal/infrastructure/logger"
	"github.com/erp/pos/internal/infrastructure/persistence"
	"github.com/erp/pos/internal/interfaces/http/handler"
	"github.com/erp/pos/internal/interfaces/http/middleware"
	"github.com/erp/pos/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: logger.DefaultTimeFormat,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting POS scanner service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.Duration("fast_typing_threshold", cfg.Scanner.FastTypingThreshold),
		zap.Int("min_length", cfg.Scanner.MinLength),
	)

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := db.AutoMigrate(); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))

	// Event bus
	eventBus := event.NewInMemoryEventBus(logger.Named(log, "eventbus"))
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	streamHandler := handler.NewScanStreamHandler(
		handler.WithSSELogger(logger.Named(log, "scan-stream")),
		handler.WithSSEHeartbeat(cfg.Scanner.SSEHeartbeat),
		handler.WithSSEMaxClients(cfg.Scanner.SSEMaxClients),
	)
	if err := streamHandler.Start(); err != nil {
		log.Fatal("Failed to start scan stream", zap.Error(err))
	}
	eventBus.Subscribe(streamHandler)

	if cfg.Redis.Enabled {
		redisClient, err := event.NewRedisClient(context.Background(), cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			_ = redisClient.Close()
		}()
		eventBus.Subscribe(event.NewRedisScanForwarder(redisClient, cfg.Redis.Channel,
			event.WithForwarderLogger(logger.Named(log, "redis-forwarder"))))
		log.Info("Forwarding scans to Redis", zap.String("channel", cfg.Redis.Channel))
	}

	productRepo := persistence.NewGormProductRepository(db.DB)
	terminalService := scanning.NewTerminalService(
		cfg.Scanner.Classifier(),
		productRepo,
		eventBus,
		scanning.WithLogger(logger.Named(log, "scanner")),
		scanning.WithEnabledByDefault(cfg.Scanner.Enabled),
		scanning.WithMaxSessions(cfg.Scanner.MaxSessions),
		scanning.WithSessionTTL(cfg.Scanner.SessionTTL),
	)
	pruneCtx, stopPruning := context.WithCancel(context.Background())
	defer stopPruning()
	go pruneIdleSessions(pruneCtx, terminalService, cfg.Scanner.SessionTTL)
	scannerHandler := handler.NewScannerHandler(terminalService)

	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	engine.Use(middleware.CORSWithConfig(corsConfig))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	engine.GET("/health", handler.Health(db))

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	scannerRoutes := router.NewDomainGroup("scanner", "/scanner")
	scannerRoutes.POST("/terminals/:id/keys", scannerHandler.FeedKeys)
	scannerRoutes.PUT("/terminals/:id/enabled", scannerHandler.SetEnabled)
	scannerRoutes.GET("/terminals/:id", scannerHandler.Status)
	scannerRoutes.DELETE("/terminals/:id", scannerHandler.Close)
	scannerRoutes.GET("/terminals/:id/stream", streamHandler.Stream)
	r.Register(scannerRoutes)
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Streams block Shutdown until their clients leave; end them first
	streamHandler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := eventBus.Stop(ctx); err != nil {
		log.Error("Failed to stop event bus", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// pruneIdleSessions drops expired terminal sessions until ctx is cancelled
func pruneIdleSessions(ctx context.Context, svc *scanning.TerminalService, ttl time.Duration) {
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.PruneIdle()
		}
	}
}
