// Package csvfile persists a payments table as a flat CSV file with a
// header row. Every save rewrites the whole file.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"payments/internal/core"
	ports "payments/internal/sheets"
)

var _ ports.SnapshotStore = (*Store)(nil)

type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

// NewInDir returns the store for table inside dir, e.g. dir/payments.csv.
func NewInDir(dir, table string) *Store {
	return New(filepath.Join(dir, table+".csv"))
}

func (s *Store) Name() string { return "csv:" + s.path }

func (s *Store) Path() string { return s.path }

// Load reads the file. A missing file is an empty table.
func (s *Store) Load(ctx context.Context) ([]core.PaymentRecord, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		slog.InfoContext(ctx, "CSV file not found, starting empty", "path", s.path)
		return []core.PaymentRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	records, err := ports.DecodeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return records, nil
}

// Save writes the snapshot to a temporary file in the same directory and
// renames it over the target, so readers never observe a half-written file.
func (s *Store) Save(ctx context.Context, records []core.PaymentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(ports.Header()); err != nil {
		tmp.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		if err := w.Write(ports.EncodeRow(r)); err != nil {
			tmp.Close()
			return fmt.Errorf("write row %d: %w", r.SerialNumber, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}

	slog.DebugContext(ctx, "CSV snapshot written", "path", s.path, "records", len(records))
	return nil
}
