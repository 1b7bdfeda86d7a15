// Package storage keeps payment tables in a local SQLite database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"payments/internal/core"
	ports "payments/internal/sheets"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between concurrent table saves
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Table returns a snapshot store for one named table in the database.
func (r *SQLiteRepository) Table(name string) *Table {
	return &Table{repo: r, name: name}
}

// MarkSynced records that revision of store has been mirrored elsewhere.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, store string, revision uint64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_state (store, revision, synced_at) VALUES (?, ?, ?)
		ON CONFLICT(store) DO UPDATE SET revision = excluded.revision, synced_at = excluded.synced_at`,
		store, int64(revision), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark %s synced: %w", store, err)
	}
	return nil
}

// LastSynced returns the last mirrored revision of store, or 0.
func (r *SQLiteRepository) LastSynced(ctx context.Context, store string) (uint64, error) {
	var rev int64
	err := r.db.QueryRowContext(ctx, `SELECT revision FROM sync_state WHERE store = ?`, store).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read sync state of %s: %w", store, err)
	}
	return uint64(rev), nil
}

var _ ports.SnapshotStore = (*Table)(nil)

// Table is one payments table inside a SQLiteRepository.
type Table struct {
	repo *SQLiteRepository
	name string
}

func (t *Table) Name() string { return "sqlite:" + t.name }

const selectRecords = `
	SELECT serial_number, date, customer_name, invoice_number, amount_cents, payment_method,
	       received_by, transferred, status, days, total_cents, admin_notes, comments
	FROM payment_records
	WHERE store = ?
	ORDER BY serial_number`

func (t *Table) Load(ctx context.Context) ([]core.PaymentRecord, error) {
	rows, err := t.repo.db.QueryContext(ctx, selectRecords, t.name)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}
	defer rows.Close()

	out := []core.PaymentRecord{}
	for rows.Next() {
		var (
			r                 core.PaymentRecord
			date, method      string
			amount, total     int64
			transferred, days int64
		)
		if err := rows.Scan(&r.SerialNumber, &date, &r.CustomerName, &r.InvoiceNumber, &amount, &method,
			&r.ReceivedBy, &transferred, &r.Status, &days, &total, &r.AdminNotes, &r.Comments); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.name, err)
		}
		if r.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("%s serial %d: %w", t.name, r.SerialNumber, err)
		}
		if r.PaymentMethod, err = core.ParsePaymentMethod(method); err != nil {
			return nil, fmt.Errorf("%s serial %d: %w", t.name, r.SerialNumber, err)
		}
		r.Amount = core.Money{Cents: amount}
		r.TotalAmount = core.Money{Cents: total}
		r.TransferredToBank = transferred != 0
		r.Days = int(days)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t.name, err)
	}
	return out, nil
}

const insertRecord = `
	INSERT INTO payment_records (store, serial_number, date, customer_name, invoice_number, amount_cents,
		payment_method, received_by, transferred, status, days, total_cents, admin_notes, comments)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Save replaces the table's rows inside one transaction.
func (t *Table) Save(ctx context.Context, records []core.PaymentRecord) error {
	tx, err := t.repo.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM payment_records WHERE store = ?`, t.name); err != nil {
		return fmt.Errorf("clear %s: %w", t.name, err)
	}
	stmt, err := tx.PrepareContext(ctx, insertRecord)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		transferred := 0
		if r.TransferredToBank {
			transferred = 1
		}
		if _, err := stmt.ExecContext(ctx, t.name, r.SerialNumber, r.Date.String(), r.CustomerName, r.InvoiceNumber,
			r.Amount.Cents, string(r.PaymentMethod), r.ReceivedBy, transferred, r.Status, r.Days,
			r.TotalAmount.Cents, r.AdminNotes, r.Comments); err != nil {
			return fmt.Errorf("insert %s serial %d: %w", t.name, r.SerialNumber, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", t.name, err)
	}

	slog.DebugContext(ctx, "Table saved to SQLite", "store", t.name, "records", len(records))
	return nil
}
