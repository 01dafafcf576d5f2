package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	intDatabase "voicelink-backend/internal/database"
	authHandler "voicelink-backend/internal/handler/http/auth"
	callHandler "voicelink-backend/internal/handler/http/call"
	userHandler "voicelink-backend/internal/handler/http/user"
	wsHandler "voicelink-backend/internal/handler/ws"
	"voicelink-backend/internal/middleware"
	"voicelink-backend/internal/repository/postgres"
	redisRepo "voicelink-backend/internal/repository/redis"
	authService "voicelink-backend/internal/service/auth"
	callService "voicelink-backend/internal/service/call"
	userService "voicelink-backend/internal/service/user"
	"voicelink-backend/internal/signaling"
	"voicelink-backend/pkg/constants"
	pkgDatabase "voicelink-backend/pkg/database"
	"voicelink-backend/pkg/env"
	"voicelink-backend/pkg/jwt"
	"voicelink-backend/pkg/logger"
	"voicelink-backend/pkg/metrics"
)

func main() {
	ctx := context.Background()

	// 1. Logging
	logger.InitDefault()
	defer logger.Sync()

	// 2. JWT Manager
	jwtSecret := env.GetStringFromFile("JWT_SECRET", "")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET environment variable is required")
	}
	if len(jwtSecret) < 32 {
		logger.Fatal("JWT_SECRET must be at least 32 characters")
	}

	jwtManager := jwt.NewJWTManager(jwtSecret, constants.AccessTokenExpiry, constants.RefreshTokenExpiry)

	// 3. Postgres with exponential backoff retry
	dbConfig := &pkgDatabase.PostgresConfig{
		Host:     env.GetString("DB_HOST", "localhost"),
		Port:     env.GetInt("DB_PORT", 5432),
		User:     env.GetString("DB_USER", "postgres"),
		Password: env.GetStringFromFile("DB_PASSWORD", ""),
		Database: env.GetString("DB_NAME", "voicelink"),
		SSLMode:  env.GetString("DB_SSLMODE", "disable"),
	}

	db, err := connectWithRetry(ctx, dbConfig)
	if err != nil {
		logger.Fatal("failed to connect to Postgres", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to Postgres")

	// 4. Redis with degraded mode support
	redisConfig := &intDatabase.RedisConfig{
		Host:     env.GetString("REDIS_HOST", "localhost"),
		Port:     env.GetInt("REDIS_PORT", 6379),
		Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
		DB:       0,
		PoolSize: 10,
		Timeout:  5 * time.Second,
	}

	redisDB, err := intDatabase.NewRedisDB(redisConfig)
	if err != nil {
		logger.Fatal("failed to create Redis client", zap.Error(err))
	}
	defer redisDB.Close()

	if err := redisDB.HealthCheck(ctx); err != nil {
		logger.Warn("Redis unreachable, starting in degraded mode", zap.Error(err))
	} else {
		logger.Info("connected to Redis")
	}
	redisDB.StartHealthCheck(ctx, 10*time.Second)

	// 5. Repositories
	callRepo := postgres.NewCallRepository(db.Pool)
	userRepo := postgres.NewUserRepository(db.Pool)
	presenceRepo := redisRepo.NewPresenceRepository(redisDB)
	sessionRepo := redisRepo.NewSessionRepository(redisDB)

	// 6. Metrics
	appMetrics := metrics.NewMetrics("voice-service")
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)

	// 7. Signaling core
	registry := signaling.NewRegistry()
	coordinator := signaling.NewCoordinator(registry, callRepo, presenceRepo, appMetrics, logger.Log)

	// 8. Services
	authSvc := authService.NewService(userRepo, sessionRepo, jwtManager, appMetrics)
	userSvc := userService.NewService(userRepo, presenceRepo)
	callSvc := callService.NewService(callRepo, userRepo, coordinator)

	// 9. Handlers
	authHdlr := authHandler.NewHandler(authSvc)
	userHdlr := userHandler.NewHandler(userSvc)
	callHdlr := callHandler.NewHandler(callSvc)
	signalingHdlr := wsHandler.NewSignalingHandler(coordinator, presenceRepo, appMetrics)

	// 10. Router
	if os.Getenv("ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.SetTrustedProxies(nil)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(prometheusMiddleware.Handler())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":         "healthy",
			"service":        "voice-service",
			"redis_degraded": redisDB.IsDegraded(),
			"time":           time.Now().UTC(),
		})
	})
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	revocationChecker := middleware.NewRedisRevocationChecker(sessionRepo)
	requireAuth := middleware.AuthMiddleware(jwtManager, revocationChecker)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHdlr.Register)
			auth.POST("/login", authHdlr.Login)
			auth.GET("/me", requireAuth, authHdlr.Me)
			auth.POST("/logout", requireAuth, authHdlr.Logout)
		}

		users := v1.Group("/users", requireAuth)
		{
			users.GET("", userHdlr.List)
			users.GET("/me", userHdlr.Me)
		}

		calls := v1.Group("/calls", requireAuth)
		{
			calls.POST("", callHdlr.Create)
			calls.GET("", callHdlr.History)
			calls.GET("/ws", signalingHdlr.ServeWS)
			calls.GET("/:id", callHdlr.Get)
			calls.POST("/:id/end", callHdlr.End)
		}
	}

	// 11. Start server with graceful shutdown
	port := env.GetString("PORT", "8080")
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: router,
	}

	go func() {
		logger.Info("voice service starting", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
}

// connectWithRetry dials Postgres with exponential backoff. Fresh deployments
// often race the database container.
func connectWithRetry(ctx context.Context, cfg *pkgDatabase.PostgresConfig) (*pkgDatabase.PostgresDB, error) {
	const maxRetries = 5
	baseDelay := 1 * time.Second
	maxDelay := 30 * time.Second

	db, err := pkgDatabase.NewPostgresDB(ctx, cfg)
	if err == nil {
		return db, nil
	}

	for attempt := 2; attempt <= maxRetries; attempt++ {
		delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt-1)))
		if delay > maxDelay {
			delay = maxDelay
		}
		logger.Warn("Postgres connection failed, retrying",
			zap.Int("attempt", attempt-1),
			zap.Duration("retry_in", delay),
			zap.Error(err))
		time.Sleep(delay)

		db, err = pkgDatabase.NewPostgresDB(ctx, cfg)
		if err == nil {
			return db, nil
		}
	}

	return nil, err
}
