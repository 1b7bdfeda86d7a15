package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"payments/internal/amqp"
	"payments/internal/backend"
	"payments/internal/cli"
	apphttp "payments/internal/http"
	"payments/internal/ledger"
	"payments/internal/log"
	"payments/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	tables, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer tables.Close()

	opts := cli.LedgerOptions(cfg)
	l := ledger.New(tables.Primary, tables.BadDebt, opts)
	if err := l.Load(context.Background()); err != nil {
		logger.Error("Failed to load ledger", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	// Change notifications are optional; without a broker the mirror
	// worker falls back to its periodic sweep.
	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		publisher = client
		logger.Info("Publishing ledger changes", "exchange", cfg.AMQPExchange)
	}
	service := services.NewPaymentService(l, publisher)
	defer service.Close()

	flusher := services.NewFlushProcessor(service, services.DefaultFlushProcessorConfig())

	srv := apphttp.NewServer(apphttp.Config{
		Addr:     ":" + cfg.Port,
		PageSize: cfg.PageSize,
		Identity: opts.Identity,
		Logger:   logger,
	}, service)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := flusher.Stop(ctx); err != nil {
			logger.Error("Flush processor shutdown error", "error", err)
		}
		if err := service.Flush(ctx); err != nil {
			logger.Error("Unsaved changes at shutdown", "error", err)
		}
	})

	if err := flusher.Start(ctx); err != nil {
		logger.Error("Failed to start flush processor", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting payments server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"payments", len(l.Records(ledger.Payments)),
		"bad_debts", len(l.Records(ledger.BadDebts)))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
