// Package worker copies ledger tables from the primary backend to a
// secondary one, driven by change messages and a periodic sweep.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"payments/internal/amqp"
	"payments/internal/core"
	"payments/internal/ledger"
	"payments/internal/sheets"
)

// SyncTracker records the last ledger revision mirrored per table.
// Revisions restart with the server process, so they are reported, not
// compared.
type SyncTracker interface {
	MarkSynced(ctx context.Context, store string, revision uint64) error
}

// Pair is a source and target for one table.
type Pair struct {
	Source sheets.SnapshotReader
	Target sheets.SnapshotWriter
}

type MirrorWorker struct {
	tables  map[string]Pair
	tracker SyncTracker
	clock   func() time.Time

	mu sync.Mutex
	// loadedAt is when the source of each table was last read for a
	// successful mirror. Changes announced before it are already copied.
	loadedAt map[string]time.Time
}

// NewMirrorWorker mirrors the payments and bad-debt tables. tracker may be nil.
func NewMirrorWorker(payments, badDebts Pair, tracker SyncTracker) *MirrorWorker {
	return &MirrorWorker{
		tables: map[string]Pair{
			sheets.PaymentsTable: payments,
			sheets.BadDebtsTable: badDebts,
		},
		tracker:  tracker,
		clock:    time.Now,
		loadedAt: make(map[string]time.Time),
	}
}

// HandleChange mirrors the table named in msg. Changes announced before
// the source was last read are acknowledged without work, which collapses
// a backlog of messages into one copy.
func (w *MirrorWorker) HandleChange(ctx context.Context, msg *amqp.LedgerChangeMessage) error {
	if _, ok := w.tables[msg.Store]; !ok {
		slog.WarnContext(ctx, "Ignoring change for unknown store", "store", msg.Store)
		return nil
	}
	if last := w.lastLoaded(msg.Store); !msg.Timestamp.IsZero() && msg.Timestamp.Before(last) {
		slog.DebugContext(ctx, "Change already mirrored", "store", msg.Store, "revision", msg.Revision, "loaded_at", last)
		return nil
	}

	slog.InfoContext(ctx, "Processing ledger change",
		"operation", msg.Operation,
		"store", msg.Store,
		"revision", msg.Revision)
	if err := w.mirror(ctx, msg.Store); err != nil {
		return err
	}
	if w.tracker != nil && msg.Revision != 0 {
		if err := w.tracker.MarkSynced(ctx, msg.Store, msg.Revision); err != nil {
			slog.WarnContext(ctx, "Failed to record mirrored revision", "store", msg.Store, "error", err)
		}
	}
	return nil
}

// MirrorAll copies every table concurrently.
func (w *MirrorWorker) MirrorAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for name := range w.tables {
		g.Go(func() error { return w.mirror(ctx, name) })
	}
	return g.Wait()
}

// Run mirrors every table now and then on each tick until ctx is done.
// It catches up with messages that were lost while the worker was down.
func (w *MirrorWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := w.MirrorAll(ctx); err != nil && ctx.Err() == nil {
			slog.ErrorContext(ctx, "Periodic mirror failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *MirrorWorker) mirror(ctx context.Context, name string) error {
	p := w.tables[name]
	started := w.clock()
	rows, err := p.Source.Load(ctx)
	if err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	rows = ledger.Recompute(rows, core.DateOf(started))
	if err := p.Target.Save(ctx, rows); err != nil {
		return fmt.Errorf("mirror %s: %w", name, err)
	}

	w.mu.Lock()
	if started.After(w.loadedAt[name]) {
		w.loadedAt[name] = started
	}
	w.mu.Unlock()

	slog.InfoContext(ctx, "Table mirrored", "store", name, "records", len(rows))
	return nil
}

func (w *MirrorWorker) lastLoaded(name string) time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loadedAt[name]
}
