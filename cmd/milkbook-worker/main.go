package main

import (
	"context"
	"errors"
	"os"
	"time"

	"milkbook/internal/amqp"
	"milkbook/internal/backend"
	"milkbook/internal/cli"
	"milkbook/internal/core"
	applog "milkbook/internal/log"
	"milkbook/internal/publisher"
	"milkbook/internal/records"
	"milkbook/internal/records/google"
	"milkbook/internal/services"
	"milkbook/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	logger.Info("Starting milkbook-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("Configuration validation failed", applog.FieldError, "AMQP_URL is required by the worker")
		os.Exit(1)
	}

	ctx := context.Background()

	res, err := cli.OpenStore(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, applog.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}

	// Writes from the server never reach this process's month cache, so
	// the worker always reads the backend directly.
	primary := res.Store
	if u, ok := primary.(interface{ Unwrap() records.Store }); ok {
		primary = u.Unwrap()
	}
	ledger := services.NewMonthlyLedger(primary, logger.Logger)

	var mirror records.Upserter
	if cfg.SheetsConfigured() && backend.BackendType(cfg.DataBackend) != backend.SheetsBackend {
		sheets, err := google.New(ctx, backend.SheetsFromAppConfig(cfg), logger.Logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
			os.Exit(1)
		}
		mirror = sheets
		logger.Info("Google Sheets mirror enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	} else {
		logger.Info("Google Sheets mirror disabled")
	}

	var totals worker.TotalsPublisher
	var mqttPublisher *publisher.Publisher
	if cfg.MQTTBroker != "" {
		mqttPublisher, err = publisher.New(publisher.Config{
			Broker:      cfg.MQTTBroker,
			TopicPrefix: cfg.MQTTTopicPrefix,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
		})
		if err != nil {
			logger.Error("Failed to connect to MQTT broker", applog.FieldError, err, "broker", cfg.MQTTBroker)
			os.Exit(1)
		}
		totals = mqttPublisher
		logger.Info("MQTT totals publishing enabled", "broker", cfg.MQTTBroker, "topic_prefix", cfg.MQTTTopicPrefix)
	} else {
		logger.Info("MQTT totals publishing disabled")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}

	mirrorWorker := worker.NewMirrorWorker(ledger, mirror, totals, core.UnitPrice(cfg.UnitPrice))

	runCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := amqpClient.Close(); err != nil {
			logger.Warn("AMQP close error", applog.FieldError, err)
		}
		if mqttPublisher != nil {
			mqttPublisher.Close()
		}
		if err := res.Close(); err != nil {
			logger.Warn("Backend close error", applog.FieldError, err)
		}
	})

	logger.Info("Performing startup sync of the current month")
	if err := mirrorWorker.ResyncCurrent(runCtx); err != nil {
		logger.Error("Startup sync failed", applog.FieldError, err)
	}

	go func() {
		if err := amqpClient.ConsumeMonthSaved(runCtx, mirrorWorker.HandleMonthSaved); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", applog.FieldError, err)
		}
	}()

	go mirrorWorker.RunPeriodic(runCtx, cfg.SyncInterval)

	cli.WaitForShutdown(runCtx, done)
	logger.Info("Worker stopped")
}
