package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // Import pprof for profiling
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/turf-booking/internal/di"
	"github.com/prohmpiriya/turf-booking/internal/metrics"
	"github.com/prohmpiriya/turf-booking/pkg/config"
	"github.com/prohmpiriya/turf-booking/pkg/logger"
	"github.com/prohmpiriya/turf-booking/pkg/middleware"
	"github.com/prohmpiriya/turf-booking/pkg/telemetry"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logger.Init(&logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: cfg.App.Name,
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting turf booking service...",
		zap.String("version", cfg.App.Version),
		zap.String("storage", cfg.Storage.Driver),
	)

	ctx := context.Background()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn("Telemetry disabled", zap.Error(err))
	}
	if err := metrics.Init(); err != nil {
		appLog.Warn("Failed to register metrics", zap.Error(err))
	}

	// Build dependency injection container
	container, err := di.NewContainer(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal("Failed to build container", zap.Error(err))
	}

	sweeperCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	if cfg.Sweeper.Embedded {
		if err := container.Sweeper.Start(sweeperCtx); err != nil {
			appLog.Fatal("Failed to start expiry sweeper", zap.Error(err))
		}
	}

	gin.SetMode(gin.ReleaseMode)
	gin.DisableConsoleColor()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(telemetry.TracingMiddleware(cfg.OTel.ServiceName))
	router.Use(middleware.Logger(appLog))
	router.Use(requestMetrics())

	var rateLimiter *middleware.LocalRateLimiter
	if cfg.RateLimit.Enabled {
		rlCfg := middleware.DefaultRateLimitConfig()
		rlCfg.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rlCfg.BurstSize = cfg.RateLimit.Burst
		rateLimiter = middleware.NewLocalRateLimiter(rlCfg)
		defer rateLimiter.Stop()
	}

	// Health check endpoints
	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

	// Metrics endpoint for monitoring
	router.GET("/metrics", func(c *gin.Context) {
		body := gin.H{"sweeper": container.Sweeper.GetStats()}
		if container.DB != nil {
			stats := container.DB.Stats()
			body["db_pool"] = gin.H{
				"total_conns":        stats.TotalConns(),
				"acquired_conns":     stats.AcquiredConns(),
				"idle_conns":         stats.IdleConns(),
				"max_conns":          stats.MaxConns(),
				"constructing_conns": stats.ConstructingConns(),
			}
		}
		if rateLimiter != nil {
			allowed, rejected := rateLimiter.GetStats()
			body["rate_limit"] = gin.H{"allowed": allowed, "rejected": rejected}
		}
		c.JSON(http.StatusOK, body)
	})

	// Idempotency replays need Redis; without it writes pass straight through
	var idemRedis middleware.RedisClient
	if container.Redis != nil {
		idemRedis = container.Redis.Client()
	}
	idempotent := middleware.IdempotencyMiddleware(middleware.DefaultIdempotencyConfig(idemRedis))

	auth := middleware.JWTAuth(middleware.AuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	ownerOnly := middleware.RequireRole(middleware.RoleOwner)
	gateStaff := middleware.RequireRole(middleware.RoleOwner, middleware.RoleStaff)

	// API routes
	v1 := router.Group("/api/v1")
	if rateLimiter != nil {
		v1.Use(rateLimiter.Middleware())
	}
	{
		v1.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"version": cfg.App.Version,
				"service": cfg.App.Name,
			})
		})

		// Public availability
		v1.GET("/venues/:venueId", container.SlotHandler.GetVenue)
		v1.GET("/venues/:venueId/slots", container.SlotHandler.ListSlots)
		v1.POST("/venues/:venueId/slots/generate", auth, ownerOnly, idempotent, container.SlotHandler.GenerateSlots)

		bookings := v1.Group("/bookings", auth)
		{
			bookings.POST("", idempotent, container.BookingHandler.InitiateBooking)
			bookings.GET("/me", container.BookingHandler.ListMyBookings)
			bookings.GET("/:id", container.BookingHandler.GetBooking)
			bookings.POST("/:id/cancel", idempotent, container.BookingHandler.CancelBooking)
			bookings.POST("/:id/participants", idempotent, container.BookingHandler.AddParticipant)
			bookings.POST("/:id/participants/:participantId/pay", idempotent, container.BookingHandler.RecordPayment)
			bookings.POST("/:id/participants/:participantId/decline", idempotent, container.BookingHandler.DeclineParticipant)
			bookings.GET("/:id/qr", container.BookingHandler.QRCode)
			bookings.GET("/:id/ticket", container.BookingHandler.Ticket)
		}

		owner := v1.Group("/owner", auth)
		{
			owner.POST("/venues", ownerOnly, idempotent, container.SlotHandler.CreateVenue)
			owner.POST("/bookings", ownerOnly, idempotent, container.OwnerHandler.CreateWalkIn)
			owner.POST("/scan", gateStaff, container.OwnerHandler.Scan)
		}
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.IdempotencyKeyHeader, "X-Request-ID"},
		AllowCredentials: false,
	}).Handler(router)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           corsHandler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	// Start pprof server on separate port for profiling
	go func() {
		pprofAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port+1000)
		appLog.Info("pprof server listening", zap.String("addr", pprofAddr))
		if err := http.ListenAndServe(pprofAddr, nil); err != nil {
			appLog.Error("pprof server error", zap.Error(err))
		}
	}()

	go func() {
		appLog.Info("Turf booking service listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Server forced to shutdown", zap.Error(err))
	}

	stopSweeper()
	container.Close()
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("Failed to flush traces", zap.Error(err))
	}

	appLog.Info("Server exited gracefully")
}

// requestMetrics records request latency per route template
func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordRequestDuration(c.Request.Context(), route, c.Writer.Status(), time.Since(start).Seconds())
	}
}
