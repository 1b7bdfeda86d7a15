package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Check        PaymentMethod = "Check"
	CreditCard   PaymentMethod = "Credit Card"
	Cash         PaymentMethod = "Cash"
	BankTransfer PaymentMethod = "Bank Transfer"
)

// MaxAmountCents bounds a single amount so that per-customer totals over
// any realistic table cannot overflow int64.
const MaxAmountCents = 10_000_000_000_000

// OverdueAfterDays is the age after which an untransferred payment is flagged.
const OverdueAfterDays = 7

const (
	StatusTransferred    = "Transferred to Bank"
	statusWaitingPrefix  = "Waiting Payment from "
	maxFreeTextLength    = 200
	maxAnnotationsLength = 2000
)

type (
	PaymentMethod string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// PaymentInput holds the fields a caller may set on a payment record.
	PaymentInput struct {
		Date              Date
		CustomerName      string
		InvoiceNumber     string
		Amount            Money
		PaymentMethod     PaymentMethod
		ReceivedBy        string
		TransferredToBank bool
		AdminNotes        string
		Comments          string
	}

	// PaymentRecord is a stored payment. SerialNumber, Status, Days and
	// TotalAmount are derived and overwritten on every recomputation.
	PaymentRecord struct {
		PaymentInput

		SerialNumber int
		Status       string
		Days         int
		TotalAmount  Money
	}

	// Requirements selects which identifying field, besides the customer
	// name, must be present on create.
	Requirements int
)

const (
	RequireReceivedBy Requirements = iota
	RequireInvoice
)

var (
	ErrValidationFailed  = errors.New("validation failed")
	ErrNotFound          = errors.New("record not found")
	ErrPersistenceFailed = errors.New("persistence failed")

	ErrInvalidDate     = fmt.Errorf("%w: invalid date", ErrValidationFailed)
	ErrInvalidAmount   = fmt.Errorf("%w: invalid amount", ErrValidationFailed)
	ErrInvalidMethod   = fmt.Errorf("%w: invalid payment method", ErrValidationFailed)
	ErrEmptyCustomer   = fmt.Errorf("%w: empty customer name", ErrValidationFailed)
	ErrEmptyInvoice    = fmt.Errorf("%w: empty invoice number", ErrValidationFailed)
	ErrEmptyReceivedBy = fmt.Errorf("%w: empty received by", ErrValidationFailed)
)

// PaymentMethods lists the accepted methods in display order.
func PaymentMethods() []PaymentMethod {
	return []PaymentMethod{Check, CreditCard, Cash, BankTransfer}
}

// ParsePaymentMethod matches s case-insensitively against the known methods.
// An empty string yields the empty method, used by variants without one.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	for _, m := range PaymentMethods() {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMethod, s)
}

func (m PaymentMethod) Validate() error {
	if m == "" {
		return nil
	}
	if _, err := ParsePaymentMethod(string(m)); err != nil {
		return err
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// DaysUntil returns the number of whole calendar days from d to other.
// The result is negative when other is before d.
func (d Date) DaysUntil(other Date) int {
	a := DateOf(d.Time)
	b := DateOf(other.Time)
	return int((b.Unix() - a.Unix()) / 86400)
}

func (m Money) Validate() error {
	if m.Cents < 0 || m.Cents > MaxAmountCents {
		return ErrInvalidAmount
	}
	return nil
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// StatusFor builds the status message shown for a payment.
func StatusFor(transferred bool, receivedBy string) string {
	if transferred {
		return StatusTransferred
	}
	return statusWaitingPrefix + strings.TrimSpace(receivedBy)
}

func (in PaymentInput) Validate(req Requirements) error {
	if err := in.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(in.CustomerName) == "" {
		return ErrEmptyCustomer
	}
	switch req {
	case RequireInvoice:
		if strings.TrimSpace(in.InvoiceNumber) == "" {
			return ErrEmptyInvoice
		}
	default:
		if strings.TrimSpace(in.ReceivedBy) == "" {
			return ErrEmptyReceivedBy
		}
	}
	for _, f := range []string{in.CustomerName, in.InvoiceNumber, in.ReceivedBy} {
		if len(f) > maxFreeTextLength {
			return fmt.Errorf("%w: field too long (max %d characters)", ErrValidationFailed, maxFreeTextLength)
		}
	}
	if len(in.AdminNotes) > maxAnnotationsLength || len(in.Comments) > maxAnnotationsLength {
		return fmt.Errorf("%w: notes too long (max %d characters)", ErrValidationFailed, maxAnnotationsLength)
	}
	if err := in.Amount.Validate(); err != nil {
		return err
	}
	return in.PaymentMethod.Validate()
}

// Normalize trims identifying fields so equality checks and grouping are
// not affected by stray whitespace from form input.
func (in PaymentInput) Normalize() PaymentInput {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.InvoiceNumber = strings.TrimSpace(in.InvoiceNumber)
	in.ReceivedBy = strings.TrimSpace(in.ReceivedBy)
	in.Date = DateOf(in.Date.Time)
	return in
}

// Overdue reports whether the payment is still waiting after OverdueAfterDays.
func (r PaymentRecord) Overdue() bool {
	return !r.TransferredToBank && r.Days > OverdueAfterDays
}
