package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"milkbook/internal/adapters"
	"milkbook/internal/amqp"
	"milkbook/internal/cache"
	"milkbook/internal/cli"
	"milkbook/internal/core"
	apphttp "milkbook/internal/http"
	applog "milkbook/internal/log"
	"milkbook/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	res, err := cli.OpenStore(context.Background(), logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, applog.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}

	store := res.Store
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			_ = res.Close()
			os.Exit(1)
		}
		store = adapters.NewPublishingStore(store, amqpClient, logger.Logger)
		logger.Info("Publishing saved months", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}

	ledger := services.NewMonthlyLedger(store, logger.Logger)

	caches := cache.NewManager(logger.Logger)
	if res.Cache != nil {
		caches.Register(res.Cache)
	}
	caches.StartCleanup(time.Minute)

	price := core.UnitPrice(cfg.UnitPrice)
	srv := apphttp.NewServer(":"+cfg.Port, ledger, apphttp.Options{
		Logger:       logger,
		Cache:        caches,
		DefaultPrice: &price,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 15 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		caches.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", applog.FieldError, err)
			}
		}
		if err := res.Close(); err != nil {
			logger.Warn("Backend close error", applog.FieldError, err)
		}
	})

	logger.Info("Starting milkbook server",
		"port", cfg.Port,
		applog.FieldBackend, cfg.DataBackend,
		applog.FieldUnitPrice, cfg.UnitPrice)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
