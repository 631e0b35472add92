package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/adapters/gateway"
	"github.com/DanielPopoola/payment-orchestrator/internal/adapters/handler"
	"github.com/DanielPopoola/payment-orchestrator/internal/api"
	"github.com/DanielPopoola/payment-orchestrator/internal/config"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/service"
	"github.com/DanielPopoola/payment-orchestrator/internal/telemetry"
	"github.com/DanielPopoola/payment-orchestrator/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const version = "1.0.0"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting payment orchestrator",
		"port", cfg.Server.Port,
		"env", cfg.Primary.Env,
		"store", cfg.Store.Driver,
		"log_level", cfg.Logger.Level,
	)

	ctx := context.Background()

	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracer(ctx, cfg.Tracing.ServiceName, version, cfg.Tracing.Endpoint)
		if err != nil {
			logger.Error("failed to initialize tracer", "error", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					logger.Error("failed to shutdown tracer", "error", err)
				}
			}()
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(registry)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	locker, closeLocker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to set up payment locks", "error", err)
		os.Exit(1)
	}
	defer closeLocker()

	publisher, closePublisher, err := newPublisher(cfg, logger)
	if err != nil {
		logger.Error("failed to set up event publisher", "error", err)
		os.Exit(1)
	}
	defer closePublisher()

	gateways, _, err := gateway.NewRegistryFromConfig(cfg.Gateway, cfg.Retry, metrics, logger)
	if err != nil {
		logger.Error("failed to configure gateways", "error", err)
		os.Exit(1)
	}

	lifecycle := service.NewLifecycle(store, gateways, locker, publisher, metrics, logger, service.Options{
		GatewayTimeout:  cfg.Gateway.Timeout,
		LockTimeout:     cfg.Lock.TTL,
		DefaultCurrency: cfg.Payments.DefaultCurrency,
		PaymentURLBase:  cfg.Payments.PaymentURLBase,
	})
	webhooks := service.NewWebhookReconciler(store, gateways, lifecycle, metrics, logger)
	customers := service.NewCustomerService(store, logger)

	doc, err := api.Load(ctx)
	if err != nil {
		logger.Error("failed to load openapi document", "error", err)
		os.Exit(1)
	}
	if err := api.RegisterDocs(doc); err != nil {
		logger.Error("failed to register swagger docs", "error", err)
		os.Exit(1)
	}
	validator, err := api.RequestValidator(doc, handler.ValidationErrorWriter)
	if err != nil {
		logger.Error("failed to build request validator", "error", err)
		os.Exit(1)
	}

	h := handler.NewPaymentHandler(lifecycle, customers, webhooks, gateways, store)
	router := handler.NewRouter(h, handler.RouterConfig{
		Logger:         logger,
		RequestTimeout: cfg.Server.RequestTimeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Gatherer:       registry,
		Validator:      validator,
	})

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	reconciler := worker.NewReconciler(store, lifecycle, metrics, worker.Config{
		Interval:    cfg.Worker.Interval,
		BatchSize:   cfg.Worker.BatchSize,
		StaleAfter:  cfg.Worker.StaleAfter,
		Concurrency: cfg.Worker.Concurrency,
	}, logger)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	go reconciler.Start(workerCtx)

	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
