package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"kakei/internal/amqp"
	"kakei/internal/cache"
	"kakei/internal/cli"
	"kakei/internal/config"
	"kakei/internal/flow"
	"kakei/internal/line"
	applog "kakei/internal/log"
	"kakei/internal/services"
	"kakei/internal/webhook"
)

func main() {
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg)
	cli.MustValidate(logger, cfg.ValidateBot)

	logger.Info("Starting kakei", applog.FieldOperation, applog.OpStartup)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	// Export events are optional; the ledger works without a broker.
	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, payment events disabled", applog.FieldError, err)
		} else {
			publisher = client
			logger.Info("AMQP publisher connected", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP_URL not set, payment events disabled")
	}

	payments := services.NewPaymentService(repo, publisher)
	machine := flow.NewMachine(payments, nil)

	lineClient, err := line.NewClient(cfg.LineChannelAccessToken)
	if err != nil {
		logger.Error("Failed to initialize LINE client", applog.FieldError, err)
		os.Exit(1)
	}

	srv := webhook.NewServer(":"+cfg.Port, webhook.Config{
		ChannelSecret:  cfg.LineChannelSecret,
		AllowedUserIDs: cfg.AllowedUserIDs,
		Concurrency:    cfg.EventConcurrency,
		DedupeTTL:      cfg.DedupeTTL,
	}, machine, lineClient, payments, logger)

	caches := cache.NewManager()
	caches.Register(srv.SeenEvents())
	caches.StartCleanup(time.Minute)

	_, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
	})

	logger.Info("Listening", "port", cfg.Port, "allowed_users", len(cfg.AllowedUserIDs))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	caches.Stop()
	if err := payments.Close(); err != nil {
		logger.Error("Close failed", applog.FieldError, err)
	}
	logger.Info("Server stopped gracefully", applog.FieldOperation, applog.OpShutdown)
}
