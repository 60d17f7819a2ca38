package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fms-backend/config"
	"fms-backend/internal/api"
	"fms-backend/internal/availability"
	"fms-backend/internal/catalog"
	"fms-backend/internal/dashboard"
	"fms-backend/internal/db"
	"fms-backend/internal/metrics"
	"fms-backend/internal/notification"
	"fms-backend/internal/reactive"
	"fms-backend/internal/scheduler"
	"fms-backend/internal/store"
	"fms-backend/internal/validation"
	"fms-backend/pkg/logger"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	log := logger.Must(logger.New(cfg.Log.Level))
	defer log.Sync()
	log.Info("configuration loaded", zap.String("path", configPath))

	gormDB, err := db.Init(&cfg.Database, logger.Named(log, "db"))
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB, logger.Named(log, "store"))

	validator := validation.NewValidator(appStore, validation.Options{
		DuplicateShiftPolicy:    validation.Policy(cfg.Validation.DuplicateShiftPolicy),
		AllowDuplicateUnitCodes: cfg.Validation.AllowDuplicateUnitCodes,
	})
	writer := validation.NewWriter(appStore, validator, logger.Named(log, "writer"),
		validation.WithLocation(cfg.Availability.Location()))

	if cfg.Catalog.Path != "" {
		res, err := catalog.NewImporter(appStore, writer, logger.Named(log, "catalog")).ImportFile(ctx, cfg.Catalog.Path)
		if err != nil {
			log.Fatal("failed to import catalog", zap.String("path", cfg.Catalog.Path), zap.Error(err))
		}
		log.Info("catalog imported", zap.Int("units", res.Units), zap.Int("components", res.Components))
	}

	hub := reactive.NewHub(appStore, cfg.Reactive.Workers, logger.Named(log, "reactive"))
	hub.Start(ctx)

	calc := availability.New(availability.Options{
		Scope:        availability.Scope(cfg.Availability.Scope),
		TargetMA:     cfg.Availability.TargetMA,
		ExcludeSpare: cfg.Availability.ExcludeSpare,
		ClipDowntime: cfg.Availability.ClipDowntime,
		Location:     cfg.Availability.Location(),
	})
	dash := dashboard.New(hub, calc, dashboard.Options{
		AllowedDays: cfg.Availability.AllowedWindowDays,
		DefaultDays: cfg.Availability.DefaultWindowDays,
	}, logger.Named(log, "dashboard"))
	if err := dash.Start(ctx); err != nil {
		log.Fatal("failed to start dashboard", zap.Error(err))
	}

	sched := scheduler.NewScheduler(scheduler.Schedules{
		Refresh: cfg.Dashboard.RefreshSchedule,
		Backlog: cfg.Dashboard.BacklogSchedule,
	}, dash, appStore, logger.Named(log, "scheduler"))
	if err := sched.Start(); err != nil {
		log.Fatal("failed to start scheduler", zap.Error(err))
	}

	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		wp := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions, logger.Named(log, "notification"))
		wp.Start(ctx)
		appStore.Subscribe(wp.Listen)
	} else {
		log.Warn("VAPID keys not configured, breakdown alerts are disabled")
	}

	handler := api.NewHandler(appStore, writer, dash, webpushOptions, logger.Named(log, "api"))
	router := api.NewRouter(handler, metrics.New(dash, appStore), api.RouterConfig{
		RateLimit: rate.Limit(cfg.Server.RateLimitPerSec),
		Burst:     cfg.Server.RateLimitBurst,
		CacheTTL:  cfg.CacheTTL(),
	}, logger.Named(log, "http"))
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server ListenAndServe", zap.Error(err))
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	log.Info("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// Streams end with the dashboard, so cancel before draining the server.
	cancel()
	sched.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server Shutdown", zap.Error(err))
	}

	log.Info("server gracefully stopped")
}
