package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smartedu/dashboard/internal/application/archive"
	"github.com/smartedu/dashboard/internal/application/dashboard"
	"github.com/smartedu/dashboard/internal/application/savedview"
	"github.com/smartedu/dashboard/internal/application/session"
	"github.com/smartedu/dashboard/internal/domain/export"
	"github.com/smartedu/dashboard/internal/infrastructure/apiclient"
	"github.com/smartedu/dashboard/internal/infrastructure/cache"
	"github.com/smartedu/dashboard/internal/infrastructure/config"
	"github.com/smartedu/dashboard/internal/infrastructure/logger"
	"github.com/smartedu/dashboard/internal/infrastructure/migration"
	"github.com/smartedu/dashboard/internal/infrastructure/persistence"
	"github.com/smartedu/dashboard/internal/infrastructure/storage"
	"github.com/smartedu/dashboard/internal/infrastructure/telemetry"
	"github.com/smartedu/dashboard/internal/interfaces/http/handler"
	"github.com/smartedu/dashboard/internal/interfaces/http/middleware"
	"github.com/smartedu/dashboard/internal/interfaces/http/router"
	"github.com/smartedu/dashboard/internal/interfaces/http/views"
	"go.uber.org/zap"
)

// set by -ldflags at build time
var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to a config file (default: search ./config.toml)")
	flag.Parse()

	// Load configuration
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting admissions dashboard",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("backend", cfg.API.BaseURL),
		zap.String("version", version),
	)

	ctx := context.Background()

	// Tracing is a no-op provider when disabled
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	if tp.IsEnabled() {
		log.Info("Tracing store actions and backend calls",
			zap.String("collector", cfg.Telemetry.CollectorEndpoint))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Saved views and the export archive index live in the local database
	db, err := persistence.NewDatabase(&cfg.Database, logger.NewGormLogger(log, cfg.Log.Level))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := migrate(db, log); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:    cfg.Telemetry.Enabled,
		DBSystem:   dbSystem(db.Driver),
		LogFullSQL: !cfg.IsProduction(),
	}, log); err != nil {
		log.Warn("Database tracing disabled", zap.Error(err))
	}
	log.Info("Database connected", zap.String("driver", db.Driver))

	// Session state: memory, redis, or both
	stateStore, err := cache.NewStateStoreFactory(cfg.Redis, cfg.Session.Store, cache.WithLogger(log)).CreateStore(ctx)
	if err != nil {
		log.Fatal("Failed to create session store", zap.Error(err))
	}
	defer func() {
		if err := stateStore.Close(); err != nil {
			log.Error("Error closing session store", zap.Error(err))
		}
	}()
	sessions := session.NewManager(stateStore, cfg.Session.TTL,
		session.WithDefaults(cfg.API.CustomerID, cfg.API.UserID),
		session.WithLogger(log),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client, err := apiclient.New(cfg.API,
		apiclient.WithLogger(log),
		apiclient.WithMetrics(apiclient.NewMetrics(registry)),
		// the handlers end the session; this only records it
		apiclient.WithOnUnauthorized(func(ctx context.Context) {
			logger.L(ctx).Info("Backend rejected session token")
		}),
	)
	if err != nil {
		log.Fatal("Failed to create API client", zap.Error(err))
	}
	parents := client.Parents()

	exportRecords := persistence.NewGormExportRecordRepository(db.DB)
	archiveStore, archiveFiles, err := newArchiveStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize export archive", zap.Error(err))
	}
	archives := archive.NewService(archiveStore, exportRecords, cfg.Export.Prefix,
		archive.WithLogger(log),
		archive.WithLinkTTL(cfg.Export.LinkTTL),
	)
	savedViews := savedview.NewService(persistence.NewGormSavedViewRepository(db.DB))

	renderer, err := views.New(nil)
	if err != nil {
		log.Fatal("Failed to parse templates", zap.Error(err))
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := middleware.SetupValidator(); err != nil {
		log.Fatal("Failed to set up validation", zap.Error(err))
	}

	sessionCfg := middleware.SessionConfig{
		Manager:    sessions,
		CookieName: cfg.Session.CookieName,
		Secure:     cfg.Session.Secure,
		SameSite:   parseSameSite(cfg.Session.SameSite),
	}

	routerCfg := router.Config{
		Logger:   log,
		Renderer: renderer,
		Sessions: sessionCfg,
		NewStore: func() *dashboard.Store {
			return dashboard.NewStore(parents,
				dashboard.WithLogger(log),
				dashboard.WithExportPageSize(cfg.Export.PageSize),
				dashboard.WithScanLimit(cfg.Export.ScanLimit),
			)
		},
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		},
		MaxBodyBytes:   cfg.HTTP.MaxUploadSize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	}
	security := middleware.DefaultSecurityConfig()
	security.HSTSEnabled = cfg.Session.Secure
	routerCfg.Security = &security
	if cfg.Telemetry.MetricsEnabled {
		routerCfg.Metrics = middleware.NewHTTPMetrics(registry)
		routerCfg.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	}
	if cfg.HTTP.RateLimitEnabled {
		routerCfg.Limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		defer routerCfg.Limiter.Stop()
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	deps := handler.ParentsDeps{
		Views:         savedViews,
		Archive:       archives,
		ArchiveFiles:  archiveFiles,
		ArchivePrefix: cfg.Export.Prefix,
		Reports:       parents,
	}

	engine, err := router.New(routerCfg, router.Handlers{
		Auth:       handler.NewAuthHandler(sessionCfg),
		Parents:    handler.NewParentsHandler(sessionCfg, deps),
		SavedViews: handler.NewSavedViewsHandler(sessionCfg, savedViews),
		API:        handler.NewDashboardAPIHandler(sessionCfg, 0),
		System:     handler.NewSystemHandler(cfg.App.Name, version, client),
	})
	if err != nil {
		log.Fatal("Failed to build router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

func migrate(db *persistence.Database, log *zap.Logger) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	m, err := migration.New(sqlDB, db.Driver, log)
	if err != nil {
		return err
	}
	// closing the migrator would close the shared connection
	return m.Up()
}

// newArchiveStore picks where exports are archived: S3 when enabled, an
// in-process store outside production, nothing otherwise. The second
// return value is set only for the in-process store, which the dashboard
// serves itself.
func newArchiveStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (export.ObjectStore, handler.ArchiveFiles, error) {
	if cfg.Export.ArchiveEnabled {
		s3, err := storage.NewS3ArchiveStore(ctx, cfg.Export,
			storage.WithLogger(log),
			storage.WithPresignExpiration(cfg.Export.LinkTTL),
		)
		if err != nil {
			return nil, nil, err
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			return nil, nil, err
		}
		log.Info("Export archive enabled", zap.String("bucket", s3.Bucket()))
		return s3, nil, nil
	}
	if cfg.IsProduction() {
		return nil, nil, nil
	}
	mem := storage.NewMemoryArchiveStore("/archive")
	log.Info("Export archive kept in memory")
	return mem, mem, nil
}

func parseSameSite(s string) http.SameSite {
	switch strings.ToLower(s) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func dbSystem(driver string) string {
	if driver == "postgres" {
		return "postgresql"
	}
	return driver
}
