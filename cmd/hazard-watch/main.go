package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-hazard-watch/internal/ai"
	"github.com/mr1hm/go-hazard-watch/internal/alerts"
	"github.com/mr1hm/go-hazard-watch/internal/analysis"
	"github.com/mr1hm/go-hazard-watch/internal/api"
	"github.com/mr1hm/go-hazard-watch/internal/broadcast"
	"github.com/mr1hm/go-hazard-watch/internal/cache"
	"github.com/mr1hm/go-hazard-watch/internal/config"
	"github.com/mr1hm/go-hazard-watch/internal/incidents"
	"github.com/mr1hm/go-hazard-watch/internal/ingestion"
	"github.com/mr1hm/go-hazard-watch/internal/logging"
	"github.com/mr1hm/go-hazard-watch/internal/observability"
	"github.com/mr1hm/go-hazard-watch/internal/repository"
	"github.com/mr1hm/go-hazard-watch/internal/risk"
	"github.com/mr1hm/go-hazard-watch/internal/sms"
	"github.com/mr1hm/go-hazard-watch/internal/sources"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()
	metrics := observability.NewMetrics()

	// Pools outlive ctx; Stop drains them after the server has shut down.
	poolCtx := context.WithoutCancel(ctx)

	aiCache, closeCache, err := cache.New(ctx, cfg.Cache, db)
	if err != nil {
		logging.Fatalf("Failed to initialize %s cache: %v", cfg.Cache.Backend, err)
	}
	defer closeCache()

	if cfg.AI.GeminiKey == "" {
		slog.Warn("GEMINI_API_KEY not set, AI jobs will use deterministic fallbacks")
	}
	model := ai.NewGeminiClient(cfg.AI.BaseURL, cfg.AI.Model, cfg.AI.GeminiKey, cfg.AI.Timeout)
	aiSvc := ai.NewService(model, ai.Options{
		Concurrency: cfg.Worker.AIConcurrency,
		BufferSize:  cfg.Worker.AIBufferSize,
		Backoffs:    cfg.AI.RetryBackoffs,
		Clock:       clock,
		Metrics:     metrics,
		Logger:      logging.Component("ai"),
	})
	aiSvc.Start(poolCtx)

	// Incident and alert events for SSE subscribers
	broadcaster := broadcast.NewBroadcaster(64)

	registrar := incidents.NewRegistrar(db, broadcaster, incidents.RulesFromConfig(cfg.Cycle),
		clock, metrics, logging.Component("incidents"))

	dispatcher := alerts.NewDispatcher(db, aiSvc, sms.New(cfg.SMS, logging.Component("sms")), broadcaster, alerts.Options{
		Workers:     cfg.Worker.AlertWorkers,
		BufferSize:  cfg.Worker.AlertBufferSize,
		CountryCode: cfg.SMS.CountryCode,
		Clock:       clock,
		Metrics:     metrics,
	})
	dispatcher.Start(poolCtx)

	analyst := analysis.NewService(db,
		sources.NewForecastClient(cfg.Sources, logging.Component("forecast"), metrics),
		aiSvc, aiCache,
		analysis.Options{
			RegionLimit: cfg.Cycle.PredictionRegions,
			CacheTTL:    cfg.Cache.TTL,
			Clock:       clock,
			Metrics:     metrics,
		})

	// Start ingestion manager
	srcLogger := logging.Component("sources")
	mgrOpts := ingestion.OptionsFromConfig(cfg.Cycle)
	mgrOpts.Clock = clock
	mgrOpts.Metrics = metrics
	mgr := ingestion.NewManager(db,
		ingestion.Sources{
			Weather:  sources.NewWeatherClient(cfg.Sources, srcLogger, metrics),
			Seismic:  sources.NewSeismicClient(cfg.Sources, srcLogger, metrics),
			Hotspots: sources.NewHotspotClient(cfg.Sources, srcLogger, metrics),
		},
		risk.NewScorer(aiSvc, db, clock, metrics, logging.Component("risk")),
		registrar,
		mgrOpts,
	)
	mgr.Start(ctx)

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimit))

	handler := api.NewHandler(api.Deps{
		Store:       db,
		Submitter:   registrar,
		Dispatcher:  dispatcher,
		Analyst:     analyst,
		Broadcaster: broadcaster,
		Cycle:       mgr,
		Clock:       clock,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	mgr.Stop()
	broadcaster.Close() // ends open event streams so Shutdown can finish

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	dispatcher.Stop()
	aiSvc.Stop()

	slog.Info("shutdown complete")
}
