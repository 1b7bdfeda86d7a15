package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"payments/internal/amqp"
	"payments/internal/backend"
	"payments/internal/cli"
	"payments/internal/log"
	"payments/internal/sheets"
	gsheet "payments/internal/sheets/google"
	"payments/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting payments-worker")

	if cfg.GoogleSpreadsheetID == "" {
		logger.Error("GOOGLE_SPREADSHEET_ID is required to mirror the ledger")
		os.Exit(1)
	}
	bt := backend.BackendType(cfg.DataBackend)
	if bt == backend.SheetsBackend || bt == backend.MemoryBackend {
		logger.Error("Cannot mirror from this backend", "backend", cfg.DataBackend)
		os.Exit(1)
	}

	// The sync_state table lives in the SQLite database even when the
	// ledger itself is kept in CSV files.
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()
	for _, table := range []string{sheets.PaymentsTable, sheets.BadDebtsTable} {
		if rev, err := repo.LastSynced(context.Background(), table); err == nil {
			logger.Info("Previous mirror state", "store", table, "revision", rev)
		}
	}

	var source struct{ payments, badDebts sheets.SnapshotReader }
	if bt == backend.SQLiteBackend {
		source.payments = repo.Table(sheets.PaymentsTable)
		source.badDebts = repo.Table(sheets.BadDebtsTable)
	} else {
		backendCfg, err := backend.FromAppConfig(cfg)
		if err != nil {
			logger.Error("Invalid backend configuration", "error", err)
			os.Exit(1)
		}
		tables, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
		if err != nil {
			logger.Error("Failed to initialize backend", "error", err)
			os.Exit(1)
		}
		defer tables.Close()
		source.payments, source.badDebts = tables.Primary, tables.BadDebt
	}

	sheetsClient, err := gsheet.New(context.Background(), gsheet.Config{
		SpreadsheetID: cfg.GoogleSpreadsheetID,
		PaymentsSheet: cfg.GooglePaymentsSheet,
		BadDebtsSheet: cfg.GoogleBadDebtSheet,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	mirror := worker.NewMirrorWorker(
		worker.Pair{Source: source.payments, Target: sheetsClient.Payments()},
		worker.Pair{Source: source.badDebts, Target: sheetsClient.BadDebts()},
		repo,
	)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Performing startup mirror")
	if err := mirror.MirrorAll(ctx); err != nil {
		logger.Error("Startup mirror failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		g.Go(func() error { return client.ConsumeChanges(gctx, mirror.HandleChange) })
	} else {
		logger.Info("AMQP disabled, relying on periodic mirror", "interval", cfg.MirrorInterval)
	}
	g.Go(func() error { return mirror.Run(gctx, cfg.MirrorInterval) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
