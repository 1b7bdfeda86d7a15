package memory

import (
	"context"
	"sync"

	"payments/internal/core"
	ports "payments/internal/sheets"
)

var _ ports.SnapshotStore = (*Store)(nil)

// Store keeps the last saved snapshot in memory. Useful for development
// and as a test double; nothing survives a restart.
type Store struct {
	mu      sync.Mutex
	name    string
	items   []core.PaymentRecord
	saves   int
	saveErr error
}

func New(name string, seed ...core.PaymentRecord) *Store {
	return &Store{name: name, items: append([]core.PaymentRecord(nil), seed...)}
}

func (s *Store) Name() string { return "memory:" + s.name }

// Load returns a copy of the last saved rows.
func (s *Store) Load(_ context.Context) ([]core.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.PaymentRecord(nil), s.items...), nil
}

// Save replaces the stored rows, or fails with the injected error.
func (s *Store) Save(_ context.Context, records []core.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.items = append(s.items[:0:0], records...)
	s.saves++
	return nil
}

// FailSaves makes subsequent saves return err; nil restores normal behaviour.
func (s *Store) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// Saves returns how many snapshots were written successfully.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
