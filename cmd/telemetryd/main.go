package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/BarkinBalci/behavior-telemetry/internal/config"
	"github.com/BarkinBalci/behavior-telemetry/internal/device"
	"github.com/BarkinBalci/behavior-telemetry/internal/handler"
	"github.com/BarkinBalci/behavior-telemetry/internal/logger"
	"github.com/BarkinBalci/behavior-telemetry/internal/metrics"
	"github.com/BarkinBalci/behavior-telemetry/internal/service"
	"github.com/BarkinBalci/behavior-telemetry/internal/store"
	"github.com/BarkinBalci/behavior-telemetry/internal/tracker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log, err := logger.New(cfg.Service.Environment, cfg.Service.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		err := log.Sync()
		if err != nil {
			log.Error("Failed to sync logger", zap.Error(err))
		}
	}(log)

	log.Info("Starting telemetry service",
		zap.String("environment", cfg.Service.Environment),
		zap.String("port", cfg.Service.APIPort),
		zap.String("store", cfg.Store.Backend))

	ctx := context.Background()

	// Open persistent store
	kv, err := openKV(ctx, cfg.Store, log)
	if err != nil {
		log.Fatal("Failed to open store", zap.Error(err))
	}
	defer func() {
		if err := kv.Close(); err != nil {
			log.Error("Failed to close store", zap.Error(err))
		}
	}()
	eventStore := store.NewEventStore(kv, cfg.Engine.RetentionWindow(), log)

	// Connect ingestion sinks
	ingestion, err := buildSink(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to configure ingestion", zap.Error(err))
	}
	if ingestion == nil {
		log.Info("No ingestion sink configured, events stay local")
	} else {
		defer func() {
			if err := ingestion.Close(); err != nil {
				log.Error("Failed to close ingestion sink", zap.Error(err))
			}
		}()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Initialize tracker
	t := tracker.New(eventStore, ingestion,
		device.NewRuntimePlatform(cfg.Device),
		device.NewStaticApp(cfg.App),
		cfg.Engine, log, m)
	if err := t.Initialize(ctx, ""); err != nil {
		if !errors.Is(err, tracker.ErrInitialization) {
			log.Fatal("Failed to initialize tracker", zap.Error(err))
		}
		log.Warn("Tracker running without device context", zap.Error(err))
	}

	// Schedule retention cleanup
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Engine.CleanupSchedule, func() {
		removed, err := t.CleanupOldEvents(context.Background())
		if err != nil {
			log.Error("Scheduled cleanup failed", zap.Error(err))
			return
		}
		log.Info("Scheduled cleanup completed", zap.Int("removed", removed))
	}); err != nil {
		log.Fatal("Invalid cleanup schedule",
			zap.String("schedule", cfg.Engine.CleanupSchedule),
			zap.Error(err))
	}
	scheduler.Start()

	// Initialize service and handler
	telemetryService := service.NewTelemetryService(t, eventStore, log)
	h := handler.NewHandler(telemetryService, registry, log)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Service.APIPort),
		Handler: h,
	}

	go func() {
		log.Info("API server starting", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down telemetry service gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Engine.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down API server", zap.Error(err))
	}
	<-scheduler.Stop().Done()

	if err := t.Dispose(shutdownCtx); err != nil {
		log.Error("Final flush failed", zap.Error(err))
	}
}
