package backend

import (
	"context"
	"fmt"
	"log/slog"

	"payments/internal/sheets"
	"payments/internal/sheets/csvfile"
	gsheet "payments/internal/sheets/google"
	"payments/internal/sheets/memory"
	"payments/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case CSVBackend:
		return f.createCSVBackend(config), nil
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createCSVBackend(config Config) *Result {
	f.logger.Info("Initialized CSV backend", "data_directory", config.DataDirectory)
	return &Result{
		Primary: csvfile.NewInDir(config.DataDirectory, sheets.PaymentsTable),
		BadDebt: csvfile.NewInDir(config.DataDirectory, sheets.BadDebtsTable),
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return &Result{
		Primary: repo.Table(sheets.PaymentsTable),
		BadDebt: repo.Table(sheets.BadDebtsTable),
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*Result, error) {
	cli, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID: config.GoogleSpreadsheetID,
		PaymentsSheet: config.GooglePaymentsSheet,
		BadDebtsSheet: config.GoogleBadDebtSheet,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend", "spreadsheet_id", config.GoogleSpreadsheetID)
	return &Result{Primary: cli.Payments(), BadDebt: cli.BadDebts()}, nil
}

func (f *DefaultFactory) createMemoryBackend() *Result {
	f.logger.Warn("Initialized memory backend, data will not survive a restart")
	return &Result{
		Primary: memory.New(sheets.PaymentsTable),
		BadDebt: memory.New(sheets.BadDebtsTable),
	}
}
