// Package ledger holds the in-memory payment tables and keeps their derived
// fields consistent after every insert, edit, delete and transfer.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"payments/internal/core"
)

// Identity selects how callers address a record.
type Identity int

const (
	// IdentifyBySerial addresses records by their 1-based position.
	IdentifyBySerial Identity = iota
	// IdentifyByInvoice addresses records by invoice number.
	IdentifyByInvoice
)

// ErrDuplicateRecord is returned by Create when duplicates are rejected and
// an identical payment exists.
var ErrDuplicateRecord = fmt.Errorf("%w: payment already exists", core.ErrValidationFailed)

// Key identifies a record either by serial number or by invoice number.
type Key struct {
	Serial  int
	Invoice string
}

func BySerial(n int) Key { return Key{Serial: n} }

func ByInvoice(invoice string) Key { return Key{Invoice: strings.TrimSpace(invoice)} }

func (k Key) String() string {
	if k.Invoice != "" {
		return "invoice " + k.Invoice
	}
	return fmt.Sprintf("serial %d", k.Serial)
}

// Options configures a Store. The zero value addresses records by serial,
// requires ReceivedBy on create and allows duplicates.
type Options struct {
	Clock            func() time.Time
	Requirements     core.Requirements
	Identity         Identity
	RejectDuplicates bool
}

func (o Options) today() core.Date {
	if o.Clock == nil {
		return core.DateOf(time.Now())
	}
	return core.DateOf(o.Clock())
}

// Store is an ordered table of payment records. It is not safe for
// concurrent use; Ledger serialises access.
type Store struct {
	name    string
	opts    Options
	records []core.PaymentRecord
}

func NewStore(name string, opts Options) *Store {
	return &Store{name: name, opts: opts}
}

func (s *Store) Name() string { return s.name }

func (s *Store) Len() int { return len(s.records) }

// Recompute refreshes every derived field in place.
func (s *Store) Recompute() {
	s.records = Recompute(s.records, s.opts.today())
}

// Records returns a copy of the table with derived fields computed for today.
func (s *Store) Records() []core.PaymentRecord {
	return Recompute(s.records, s.opts.today())
}

// Replace swaps the table contents, typically after loading a snapshot.
// Serial numbers and derived fields are regenerated.
func (s *Store) Replace(records []core.PaymentRecord) {
	rows := make([]core.PaymentRecord, len(records))
	for i, r := range records {
		rows[i] = core.PaymentRecord{PaymentInput: r.PaymentInput.Normalize()}
	}
	s.records = Recompute(rows, s.opts.today())
}

// Create validates and appends a new record.
func (s *Store) Create(in core.PaymentInput) (core.PaymentRecord, error) {
	if err := in.Validate(s.opts.Requirements); err != nil {
		return core.PaymentRecord{}, err
	}
	in = in.Normalize()
	if s.opts.RejectDuplicates && s.contains(in) {
		return core.PaymentRecord{}, ErrDuplicateRecord
	}
	if s.opts.Identity == IdentifyByInvoice {
		if _, ok := s.indexOf(ByInvoice(in.InvoiceNumber)); ok {
			return core.PaymentRecord{}, fmt.Errorf("%w: invoice %s already recorded", core.ErrValidationFailed, in.InvoiceNumber)
		}
	}
	s.records = append(s.records, core.PaymentRecord{PaymentInput: in})
	s.Recompute()
	return s.records[len(s.records)-1], nil
}

// Update replaces every editable field of the record identified by key.
func (s *Store) Update(key Key, in core.PaymentInput) (core.PaymentRecord, error) {
	i, ok := s.indexOf(key)
	if !ok {
		return core.PaymentRecord{}, s.notFound(key)
	}
	if err := in.Validate(s.opts.Requirements); err != nil {
		return core.PaymentRecord{}, err
	}
	in = in.Normalize()
	if s.opts.Identity == IdentifyByInvoice {
		if j, ok := s.indexOf(ByInvoice(in.InvoiceNumber)); ok && j != i {
			return core.PaymentRecord{}, fmt.Errorf("%w: invoice %s already recorded", core.ErrValidationFailed, in.InvoiceNumber)
		}
	}
	s.records[i].PaymentInput = in
	s.Recompute()
	return s.records[i], nil
}

// SetTransferStatus flips only the transferred flag and regenerates the status.
func (s *Store) SetTransferStatus(key Key, transferred bool) (core.PaymentRecord, error) {
	i, ok := s.indexOf(key)
	if !ok {
		return core.PaymentRecord{}, s.notFound(key)
	}
	s.records[i].TransferredToBank = transferred
	s.Recompute()
	return s.records[i], nil
}

// Delete removes the record and renumbers the remaining ones.
func (s *Store) Delete(key Key) (core.PaymentRecord, error) {
	return s.Take(key)
}

// Take removes and returns the record identified by key.
func (s *Store) Take(key Key) (core.PaymentRecord, error) {
	i, ok := s.indexOf(key)
	if !ok {
		return core.PaymentRecord{}, s.notFound(key)
	}
	r := s.records[i]
	s.records = append(s.records[:i:i], s.records[i+1:]...)
	s.Recompute()
	return r, nil
}

// Put appends an existing record, keeping its caller-set fields.
func (s *Store) Put(r core.PaymentRecord) core.PaymentRecord {
	s.records = append(s.records, core.PaymentRecord{PaymentInput: r.PaymentInput})
	s.Recompute()
	return s.records[len(s.records)-1]
}

// Get returns the record identified by key.
func (s *Store) Get(key Key) (core.PaymentRecord, error) {
	i, ok := s.indexOf(key)
	if !ok {
		return core.PaymentRecord{}, s.notFound(key)
	}
	return Recompute(s.records, s.opts.today())[i], nil
}

func (s *Store) indexOf(key Key) (int, bool) {
	if key.Invoice != "" {
		for i, r := range s.records {
			if r.InvoiceNumber == key.Invoice {
				return i, true
			}
		}
		return 0, false
	}
	if key.Serial < 1 || key.Serial > len(s.records) {
		return 0, false
	}
	return key.Serial - 1, true
}

func (s *Store) contains(in core.PaymentInput) bool {
	for _, r := range s.records {
		if r.PaymentInput == in {
			return true
		}
	}
	return false
}

func (s *Store) notFound(key Key) error {
	return fmt.Errorf("%s: %s: %w", s.name, key, core.ErrNotFound)
}
