package main

import (
	"context"
	"errors"
	"os"
	"time"

	"kakei/internal/amqp"
	"kakei/internal/cache"
	"kakei/internal/cli"
	"kakei/internal/config"
	applog "kakei/internal/log"
	"kakei/internal/sheets"
	gsheet "kakei/internal/sheets/google"
	"kakei/internal/sheets/memory"
	"kakei/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg).WithComponent(applog.ComponentWorker)
	cli.MustValidate(logger, cfg.ValidateWorker)

	logger.Info("Starting kakei-worker", "backend", cfg.ExportBackend)

	rows, err := exportSink(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize export sink", applog.FieldError, err, "backend", cfg.ExportBackend)
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	exporter := worker.NewExportWorker(rows)

	caches := cache.NewManager()
	caches.Register(exporter.Seen())
	caches.StartCleanup(10 * time.Minute)
	defer caches.Stop()

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	if err := client.ConsumePaymentEvents(ctx, exporter.HandlePaymentEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", applog.FieldError, err)
		os.Exit(1)
	}

	<-done
	logger.Info("Worker stopped", applog.FieldOperation, applog.OpShutdown)
}

func exportSink(ctx context.Context, cfg *config.Config, logger *applog.Logger) (sheets.RowAppender, error) {
	if cfg.ExportBackend != "sheets" {
		logger.Info("Exporting to in-memory sink")
		return memory.New(), nil
	}

	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, err
	}

	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := client.EnsureHeader(initCtx); err != nil {
		return nil, err
	}
	return client, nil
}
