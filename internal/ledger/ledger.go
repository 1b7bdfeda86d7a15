package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"payments/internal/core"
	"payments/internal/sheets"
)

// Kind selects one of the two tables held by a Ledger.
type Kind string

const (
	Payments Kind = sheets.PaymentsTable
	BadDebts Kind = sheets.BadDebtsTable
)

// ParseKind maps user input to a Kind, defaulting to Payments.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", string(Payments):
		return Payments, nil
	case string(BadDebts), "bad-debts", "baddebts":
		return BadDebts, nil
	}
	return "", fmt.Errorf("%w: unknown store %q", core.ErrValidationFailed, s)
}

// PersistenceError reports that a mutation was applied in memory but could
// not be written to its backend. The store stays dirty until Flush succeeds.
type PersistenceError struct {
	Store string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("save %s: %v", e.Store, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{core.ErrPersistenceFailed, e.Err}
}

// Ledger owns the active payments table and the bad-debt table together
// with their backends. Every mutation recomputes derived fields and writes
// the affected tables back in full. Methods are safe for concurrent use;
// mutations are serialised.
type Ledger struct {
	mu       sync.Mutex
	tables   map[Kind]*table
	revision uint64
}

type table struct {
	store   *Store
	backend sheets.SnapshotStore
	dirty   bool
}

// New creates a Ledger over the two backends. Call Load before use to pick
// up previously saved rows.
func New(payments, badDebts sheets.SnapshotStore, opts Options) *Ledger {
	return &Ledger{
		tables: map[Kind]*table{
			Payments: {store: NewStore(string(Payments), opts), backend: payments},
			BadDebts: {store: NewStore(string(BadDebts), opts), backend: badDebts},
		},
	}
}

// Load replaces both tables with the backends' contents. Serial numbers
// and derived fields are regenerated.
func (l *Ledger) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	kinds := []Kind{Payments, BadDebts}
	loaded := make(map[Kind][]core.PaymentRecord, len(kinds))
	for _, kind := range kinds {
		t := l.tables[kind]
		rows, err := t.backend.Load(ctx)
		if err != nil {
			return fmt.Errorf("load %s: %w", t.backend.Name(), errors.Join(core.ErrPersistenceFailed, err))
		}
		loaded[kind] = rows
	}
	for _, kind := range kinds {
		t := l.tables[kind]
		t.store.Replace(loaded[kind])
		t.dirty = false
		slog.InfoContext(ctx, "Store loaded", "store", kind, "backend", t.backend.Name(), "records", t.store.Len())
	}
	l.revision++
	return nil
}

// Create appends a new payment to the active table.
func (l *Ledger) Create(ctx context.Context, in core.PaymentInput) (core.PaymentRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, err := l.tables[Payments].store.Create(in)
	if err != nil {
		return core.PaymentRecord{}, err
	}
	return r, l.commit(ctx, Payments)
}

// Update replaces the editable fields of an active payment.
func (l *Ledger) Update(ctx context.Context, key Key, in core.PaymentInput) (core.PaymentRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, err := l.tables[Payments].store.Update(key, in)
	if err != nil {
		return core.PaymentRecord{}, err
	}
	return r, l.commit(ctx, Payments)
}

// SetTransferStatus marks an active payment as transferred to the bank or not.
func (l *Ledger) SetTransferStatus(ctx context.Context, key Key, transferred bool) (core.PaymentRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, err := l.tables[Payments].store.SetTransferStatus(key, transferred)
	if err != nil {
		return core.PaymentRecord{}, err
	}
	return r, l.commit(ctx, Payments)
}

// Delete removes an active payment.
func (l *Ledger) Delete(ctx context.Context, key Key) (core.PaymentRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, err := l.tables[Payments].store.Delete(key)
	if err != nil {
		return core.PaymentRecord{}, err
	}
	return r, l.commit(ctx, Payments)
}

// TransferToBadDebt moves an active payment to the bad-debt table and
// returns it as stored there.
func (l *Ledger) TransferToBadDebt(ctx context.Context, key Key) (core.PaymentRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, err := l.tables[Payments].store.Take(key)
	if err != nil {
		return core.PaymentRecord{}, err
	}
	moved := l.tables[BadDebts].store.Put(r)
	return moved, l.commit(ctx, Payments, BadDebts)
}

// Flush retries writing every dirty table.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var kinds []Kind
	for _, kind := range []Kind{Payments, BadDebts} {
		if l.tables[kind].dirty {
			kinds = append(kinds, kind)
		}
	}
	if len(kinds) == 0 {
		return nil
	}
	return l.persist(ctx, kinds...)
}

// Dirty reports whether any table has in-memory changes not yet saved.
func (l *Ledger) Dirty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.tables {
		if t.dirty {
			return true
		}
	}
	return false
}

// Revision increases with every applied mutation or load. Read views taken
// at the same revision are identical apart from the current date.
func (l *Ledger) Revision() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.revision
}

// Records returns a snapshot of a table with derived fields for today.
func (l *Ledger) Records(kind Kind) []core.PaymentRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tables[kind]
	if !ok {
		return nil
	}
	return t.store.Records()
}

// Query runs q against a snapshot of the table.
func (l *Ledger) Query(kind Kind, q Query) Page {
	return Run(l.Records(kind), q)
}

// Payments queries the active table.
func (l *Ledger) Payments(q Query) Page { return l.Query(Payments, q) }

// BadDebts queries the bad-debt table.
func (l *Ledger) BadDebts(q Query) Page { return l.Query(BadDebts, q) }

// CustomerReport groups a table by customer.
func (l *Ledger) CustomerReport(kind Kind) []core.CustomerTotal {
	return GroupByCustomer(l.Records(kind))
}

// MethodReport groups a table by payment method.
func (l *Ledger) MethodReport(kind Kind) []core.MethodTotal {
	return GroupByPaymentMethod(l.Records(kind))
}

// Summary returns the headline figures of a table.
func (l *Ledger) Summary(kind Kind) core.Summary {
	return Summarize(l.Records(kind))
}

// Get returns one record of a table.
func (l *Ledger) Get(kind Kind, key Key) (core.PaymentRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tables[kind]
	if !ok {
		return core.PaymentRecord{}, fmt.Errorf("%s: %w", kind, core.ErrNotFound)
	}
	return t.store.Get(key)
}

func (l *Ledger) commit(ctx context.Context, kinds ...Kind) error {
	l.revision++
	for _, kind := range kinds {
		l.tables[kind].dirty = true
	}
	return l.persist(ctx, kinds...)
}

// persist writes the given tables concurrently. Tables that save cleanly
// are marked clean even if another one fails.
func (l *Ledger) persist(ctx context.Context, kinds ...Kind) error {
	errs := make([]error, len(kinds))
	var g errgroup.Group
	for i, kind := range kinds {
		t := l.tables[kind]
		rows := t.store.Records()
		g.Go(func() error {
			if err := t.backend.Save(ctx, rows); err != nil {
				errs[i] = &PersistenceError{Store: t.backend.Name(), Err: err}
				return errs[i]
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, kind := range kinds {
		if errs[i] == nil {
			l.tables[kind].dirty = false
			continue
		}
		slog.ErrorContext(ctx, "Failed to persist store", "store", kind, "error", errs[i])
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
