package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"payments/internal/amqp"
	"payments/internal/core"
	"payments/internal/ledger"
)

// Publisher announces ledger changes to other processes.
type Publisher interface {
	PublishChange(ctx context.Context, msg *amqp.LedgerChangeMessage) error
}

// PaymentService runs ledger operations and publishes a change message
// after each one that reached durable storage.
type PaymentService struct {
	ledger    *ledger.Ledger
	publisher Publisher
}

// NewPaymentService wraps l. publisher may be nil.
func NewPaymentService(l *ledger.Ledger, publisher Publisher) *PaymentService {
	return &PaymentService{ledger: l, publisher: publisher}
}

func (s *PaymentService) Ledger() *ledger.Ledger { return s.ledger }

func (s *PaymentService) Create(ctx context.Context, in core.PaymentInput) (core.PaymentRecord, error) {
	r, err := s.ledger.Create(ctx, in)
	s.announce(ctx, err, amqp.OpCreate, ledger.Payments, r)
	return r, err
}

func (s *PaymentService) Update(ctx context.Context, key ledger.Key, in core.PaymentInput) (core.PaymentRecord, error) {
	r, err := s.ledger.Update(ctx, key, in)
	s.announce(ctx, err, amqp.OpUpdate, ledger.Payments, r)
	return r, err
}

func (s *PaymentService) SetTransferStatus(ctx context.Context, key ledger.Key, transferred bool) (core.PaymentRecord, error) {
	r, err := s.ledger.SetTransferStatus(ctx, key, transferred)
	s.announce(ctx, err, amqp.OpTransferStatus, ledger.Payments, r)
	return r, err
}

func (s *PaymentService) Delete(ctx context.Context, key ledger.Key) (core.PaymentRecord, error) {
	r, err := s.ledger.Delete(ctx, key)
	s.announce(ctx, err, amqp.OpDelete, ledger.Payments, r)
	return r, err
}

// TransferToBadDebt moves a payment and announces both affected tables.
func (s *PaymentService) TransferToBadDebt(ctx context.Context, key ledger.Key) (core.PaymentRecord, error) {
	r, err := s.ledger.TransferToBadDebt(ctx, key)
	s.announce(ctx, err, amqp.OpBadDebt, ledger.Payments, r)
	s.announce(ctx, err, amqp.OpBadDebt, ledger.BadDebts, r)
	return r, err
}

// Flush retries pending writes and, once they succeed, announces both
// tables so mirrors catch up with what was held back.
func (s *PaymentService) Flush(ctx context.Context) error {
	wasDirty := s.ledger.Dirty()
	err := s.ledger.Flush(ctx)
	if wasDirty {
		s.announce(ctx, err, amqp.OpFlush, ledger.Payments, core.PaymentRecord{})
		s.announce(ctx, err, amqp.OpFlush, ledger.BadDebts, core.PaymentRecord{})
	}
	return err
}

// announce publishes a change when the operation succeeded. Publication
// failures are logged only; the ledger is already saved.
func (s *PaymentService) announce(ctx context.Context, opErr error, op amqp.Operation, kind ledger.Kind, r core.PaymentRecord) {
	if opErr != nil || s.publisher == nil {
		return
	}
	msg := amqp.NewLedgerChangeMessage(op, string(kind), r.SerialNumber, r.CustomerName, s.ledger.Revision())
	if err := s.publisher.PublishChange(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger change",
			"operation", op,
			"store", kind,
			"error", err)
	}
}

// Close closes the publisher when it holds a connection.
func (s *PaymentService) Close() error {
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close publisher: %w", err)
		}
	}
	return nil
}
