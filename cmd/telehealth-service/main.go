package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/slganesh1/lume-telehealth/internal/config"
	"github.com/slganesh1/lume-telehealth/internal/database"
	callhandler "github.com/slganesh1/lume-telehealth/internal/handler/http/call"
	"github.com/slganesh1/lume-telehealth/internal/handler/ws"
	"github.com/slganesh1/lume-telehealth/internal/middleware"
	"github.com/slganesh1/lume-telehealth/internal/repository/postgres"
	redisrepo "github.com/slganesh1/lume-telehealth/internal/repository/redis"
	"github.com/slganesh1/lume-telehealth/internal/service/call"
	"github.com/slganesh1/lume-telehealth/internal/service/session"
	"github.com/slganesh1/lume-telehealth/pkg/constants"
	"github.com/slganesh1/lume-telehealth/pkg/jwt"
	"github.com/slganesh1/lume-telehealth/pkg/logger"
	"github.com/slganesh1/lume-telehealth/pkg/metrics"
)

func main() {
	cfg := config.Load()

	if err := logger.Init(&logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Postgres is required; fail fast if it is unreachable.
	db, err := database.NewDB(ctx, cfg.DatabaseURL, database.DefaultDBConfig())
	if err != nil {
		logger.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.InitSchema(ctx, db.GetPool()); err != nil {
		logger.Fatal("Failed to initialize database schema", zap.Error(err))
	}
	logger.Info("Connected to Postgres")

	// Redis degrades gracefully: presence and token revocation checks are
	// skipped while it is down, calls keep working.
	redisClient, err := database.NewRedisDB(&database.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()
	redisClient.StartHealthCheck(ctx, constants.HealthCheckPeriod)

	if err := redisClient.HealthCheck(ctx); err != nil {
		logger.Warn("Redis unreachable at startup, running degraded", zap.Error(err))
	} else {
		logger.Info("Connected to Redis")
	}

	appMetrics := metrics.NewMetrics("telehealth-service")

	callRepo := postgres.NewCallRepository(db.GetPool())
	presenceRepo := redisrepo.NewPresenceRepository(redisClient)

	sessionManager := session.NewManager(callRepo, session.RecordDirectory{}, appMetrics)
	callService := call.NewService(callRepo, sessionManager)

	jwtManager := jwt.NewJWTManager(cfg.JWTSecret, cfg.AccessTokenExpiry)
	revocationChecker := middleware.NewRedisRevocationChecker(redisClient)

	allowedOrigins := strings.Split(cfg.AllowedOrigins, ",")

	callHandler := callhandler.NewHandler(callService, presenceRepo)
	sessionHandler := ws.NewSessionHandler(sessionManager, presenceRepo, appMetrics, allowedOrigins)

	router := gin.New()
	if err := router.SetTrustedProxies(nil); err != nil {
		logger.Fatal("Failed to configure trusted proxies", zap.Error(err))
	}

	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORSMiddleware(allowedOrigins))
	router.Use(prometheusMiddleware.Handler())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "telehealth-service",
			"time":    time.Now().UTC(),
		})
	})
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	rateLimiter := middleware.NewRateLimiter(redisClient, 120, time.Minute)

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager, revocationChecker))
	v1.Use(rateLimiter.Middleware())
	{
		v1.POST("/calls", callHandler.ScheduleCall)
		v1.GET("/calls", callHandler.GetHistory)
		v1.GET("/calls/ws", sessionHandler.ServeWS)
		v1.GET("/calls/:roomID", callHandler.GetCall)
		v1.GET("/calls/:roomID/session", callHandler.GetSession)
		v1.GET("/calls/:roomID/messages", callHandler.GetTranscript)
		v1.GET("/users/:id/presence", callHandler.GetPresence)
	}

	// No write timeout here: the signaling websocket is a long-lived
	// request on the same server.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Telehealth service listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}

	logger.Info("Telehealth service stopped")
}
