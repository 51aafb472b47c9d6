package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/finai-nexus/execution-core/internal/audit"
	"github.com/finai-nexus/execution-core/internal/config"
	"github.com/finai-nexus/execution-core/internal/database"
	"github.com/finai-nexus/execution-core/internal/exposure"
	"github.com/finai-nexus/execution-core/internal/health"
	"github.com/finai-nexus/execution-core/internal/orderbook"
	"github.com/finai-nexus/execution-core/internal/risk"
	"github.com/finai-nexus/execution-core/internal/router"
	"github.com/finai-nexus/execution-core/internal/transport"
	"github.com/finai-nexus/execution-core/internal/venue"
	"github.com/finai-nexus/execution-core/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main wires the execution core and runs the HTTP server with graceful
// shutdown: ledger, venue registry, risk engine, execution router, health
// monitor, order status monitor and audit recorder.
func main() {
	cfg, err := config.Load(os.Getenv("EXEC_CONFIG_FILE"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Ledger with write-through persistence, rehydrated from the store.
	book := orderbook.NewBook(orderbook.NewGormStore(db))
	restored, err := book.LoadActive()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to rehydrate active orders")
	}
	if restored > 0 {
		zlog.Info().Int("orders", restored).Msg("rehydrated in-flight orders")
	}

	registry := venue.NewRegistry(cfg.Venue.FailoverThreshold, cfg.Venue.FeeWeightFactor)
	profiles := make(map[string]transport.VenueProfile, len(cfg.Venues))
	marks := map[string]decimal.Decimal{}
	for _, vc := range cfg.Venues {
		pairs := make(map[string]bool, len(vc.Pairs))
		for _, p := range vc.Pairs {
			pairs[p] = true
			if _, ok := marks[p]; !ok {
				marks[p] = decimal.NewFromInt(100)
			}
		}
		registry.Register(venue.Account{
			VenueID:        vc.VenueID,
			DisplayName:    vc.DisplayName,
			SupportedPairs: pairs,
			Fees: venue.FeeSchedule{
				Maker: decimal.NewFromFloat(vc.MakerFee),
				Taker: decimal.NewFromFloat(vc.TakerFee),
			},
			Limits: venue.OrderLimits{
				MinQuantity: decimal.NewFromFloat(vc.MinQuantity),
				MaxQuantity: decimal.NewFromFloat(vc.MaxQuantity),
			},
		})
		profiles[vc.VenueID] = transport.VenueProfile{
			MinLatency: 5 * time.Millisecond,
			MaxLatency: 50 * time.Millisecond,
			FillSteps:  3,
		}
	}

	// The simulated transport stands in for real venue connectivity; swap in
	// a production transport here without touching the core.
	venueTransport := transport.NewSimulated(profiles, time.Now().UnixNano())
	exposureSource := exposure.NewUnleveragedSource(decimal.NewFromInt(1_000_000), marks)

	recorder := audit.NewRecorder(db, cfg.Audit.Buffer)

	execRouter := router.NewRouter(router.Params{
		Book:          book,
		Registry:      registry,
		Engine:        risk.NewEngine(),
		Exposure:      exposureSource,
		Transport:     venueTransport,
		Audit:         recorder,
		Limits:        config.NewStaticLimitSource(cfg.Risk.Limits()),
		Idempotency:   router.NewIdempotencyStore(db),
		SubmitTimeout: cfg.Router.SubmitTimeout,
		RetryAttempts: cfg.Router.RetryAttempts,
		RetryBackoff:  cfg.Router.RetryBackoff,
	})

	healthMonitor := health.NewMonitor(registry, venueTransport, cfg.Health.ProbeInterval, cfg.Health.ProbeTimeout)
	statusMonitor := router.NewMonitor(book, venueTransport, recorder, cfg.Router.PollInterval, cfg.Router.PollTimeout, cfg.Router.PollWorkers)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go recorder.Start(workerCtx)
	go healthMonitor.Start(workerCtx)
	go statusMonitor.Start(workerCtx)

	// Initialize router
	ginRouter := gin.Default()
	ginRouter.Use(middleware.RateLimit())

	handlers := router.NewGinHandlers(execRouter, registry)
	setupRoutes(ginRouter, handlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: ginRouter,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers:
// - Order routes: placement, status and cancellation
// - Venue routes: registry state for operators
// - Observability: Prometheus metrics and liveness
func setupRoutes(r *gin.Engine, handlers *router.GinHandlers) {
	v1 := r.Group("/api/v1")
	{
		orders := v1.Group("/orders")
		{
			orders.POST("", handlers.PlaceOrderHandler())
			orders.GET("/:order_id", handlers.GetOrderHandler())
			orders.DELETE("/:order_id", handlers.CancelOrderHandler())
		}

		venues := v1.Group("/venues")
		{
			venues.GET("", handlers.ListVenuesHandler())
		}
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
