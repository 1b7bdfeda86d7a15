package sheets

import (
	"context"

	"payments/internal/core"
)

// Ports for outbound adapters. Every backend persists a whole table at a
// time: Save fully overwrites what was stored before.
type (
	SnapshotReader interface {
		// Load returns the stored rows in order. A store that was never
		// written returns an empty slice and no error.
		Load(ctx context.Context) ([]core.PaymentRecord, error)
	}

	SnapshotWriter interface {
		Save(ctx context.Context, records []core.PaymentRecord) error
	}

	SnapshotStore interface {
		SnapshotReader
		SnapshotWriter
		// Name identifies the table for logs and errors.
		Name() string
	}
)

// Table names shared by every backend.
const (
	PaymentsTable = "payments"
	BadDebtsTable = "bad_debts"
)
