package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"payments/internal/amqp"
	"payments/internal/core"
	"payments/internal/sheets/memory"
)

type fakeTracker struct {
	last map[string]uint64
}

func (f *fakeTracker) MarkSynced(_ context.Context, store string, revision uint64) error {
	f.last[store] = revision
	return nil
}

func seeded(customer string) core.PaymentRecord {
	return core.PaymentRecord{PaymentInput: core.PaymentInput{
		Date:         core.NewDate(2024, 1, 1),
		CustomerName: customer,
		Amount:       core.Money{Cents: 1000},
		ReceivedBy:   "Sara",
	}}
}

func setup(t *testing.T) (*MirrorWorker, *memory.Store, *memory.Store, *fakeTracker) {
	t.Helper()
	srcP := memory.New("payments", seeded("Acme"), seeded("Acme"))
	srcB := memory.New("bad_debts", seeded("Beta"))
	dstP, dstB := memory.New("mirror_payments"), memory.New("mirror_bad_debts")
	tracker := &fakeTracker{last: map[string]uint64{}}
	w := NewMirrorWorker(Pair{Source: srcP, Target: dstP}, Pair{Source: srcB, Target: dstB}, tracker)
	w.clock = func() time.Time { return time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC) }
	return w, dstP, dstB, tracker
}

func TestHandleChangeMirrorsNamedStore(t *testing.T) {
	ctx := context.Background()
	w, dstP, dstB, tracker := setup(t)

	msg := amqp.NewLedgerChangeMessage(amqp.OpCreate, "payments", 2, "Acme", 5)
	if err := w.HandleChange(ctx, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	rows, _ := dstP.Load(ctx)
	if len(rows) != 2 {
		t.Fatalf("expected 2 mirrored rows, got %d", len(rows))
	}
	if rows[1].SerialNumber != 2 || rows[1].Days != 7 || rows[1].TotalAmount.Cents != 2000 {
		t.Fatalf("derived fields not refreshed: %+v", rows[1])
	}
	if dstB.Saves() != 0 {
		t.Fatalf("other table should not be touched")
	}
	if tracker.last["payments"] != 5 {
		t.Fatalf("revision not recorded: %v", tracker.last)
	}

	// changes announced before the last read are already in the mirror
	stale := amqp.NewLedgerChangeMessage(amqp.OpUpdate, "payments", 1, "Acme", 4)
	stale.Timestamp = time.Date(2024, 1, 7, 23, 0, 0, 0, time.UTC)
	if err := w.HandleChange(ctx, stale); err != nil {
		t.Fatalf("handle stale: %v", err)
	}
	if dstP.Saves() != 1 {
		t.Fatalf("stale message triggered a save")
	}

	fresh := amqp.NewLedgerChangeMessage(amqp.OpUpdate, "payments", 1, "Acme", 1)
	fresh.Timestamp = time.Date(2024, 1, 8, 0, 0, 1, 0, time.UTC)
	if err := w.HandleChange(ctx, fresh); err != nil {
		t.Fatalf("handle fresh: %v", err)
	}
	if dstP.Saves() != 2 || tracker.last["payments"] != 1 {
		t.Fatalf("revision restarts must still be mirrored: saves=%d last=%v", dstP.Saves(), tracker.last)
	}
}

func TestHandleChangeUnknownStore(t *testing.T) {
	w, dstP, dstB, _ := setup(t)
	if err := w.HandleChange(context.Background(), &amqp.LedgerChangeMessage{Store: "archive"}); err != nil {
		t.Fatalf("unknown stores are acknowledged, got %v", err)
	}
	if dstP.Saves()+dstB.Saves() != 0 {
		t.Fatalf("nothing should be written")
	}
}

func TestHandleChangeTargetFailureIsReturned(t *testing.T) {
	w, dstP, _, tracker := setup(t)
	dstP.FailSaves(errors.New("quota exceeded"))
	err := w.HandleChange(context.Background(), amqp.NewLedgerChangeMessage(amqp.OpCreate, "payments", 1, "Acme", 3))
	if err == nil {
		t.Fatalf("expected error so the message is requeued")
	}
	if tracker.last["payments"] != 0 {
		t.Fatalf("failed mirror must not be recorded")
	}
}

func TestMirrorAll(t *testing.T) {
	ctx := context.Background()
	w, dstP, dstB, _ := setup(t)
	if err := w.MirrorAll(ctx); err != nil {
		t.Fatalf("mirror all: %v", err)
	}
	p, _ := dstP.Load(ctx)
	b, _ := dstB.Load(ctx)
	if len(p) != 2 || len(b) != 1 || b[0].CustomerName != "Beta" {
		t.Fatalf("unexpected mirrors: %d payments, %+v", len(p), b)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	w, dstP, _, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 10*time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for dstP.Saves() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if dstP.Saves() < 2 {
		t.Fatalf("expected an initial and a periodic mirror, got %d", dstP.Saves())
	}
}
