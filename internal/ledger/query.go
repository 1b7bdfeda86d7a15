package ledger

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"payments/internal/core"
)

// DefaultPageSize is used when a query does not set one.
const DefaultPageSize = 20

// SortField names a sortable record column.
type SortField string

const (
	SortSerial      SortField = "serial"
	SortDate        SortField = "date"
	SortCustomer    SortField = "customer"
	SortInvoice     SortField = "invoice"
	SortAmount      SortField = "amount"
	SortMethod      SortField = "method"
	SortReceivedBy  SortField = "received_by"
	SortTransferred SortField = "transferred"
	SortStatus      SortField = "status"
	SortDays        SortField = "days"
	SortTotal       SortField = "total"
)

var comparators = map[SortField]func(a, b core.PaymentRecord) int{
	SortSerial:     func(a, b core.PaymentRecord) int { return cmp.Compare(a.SerialNumber, b.SerialNumber) },
	SortDate:       func(a, b core.PaymentRecord) int { return a.Date.Compare(b.Date.Time) },
	SortCustomer:   func(a, b core.PaymentRecord) int { return compareFold(a.CustomerName, b.CustomerName) },
	SortInvoice:    func(a, b core.PaymentRecord) int { return compareFold(a.InvoiceNumber, b.InvoiceNumber) },
	SortAmount:     func(a, b core.PaymentRecord) int { return cmp.Compare(a.Amount.Cents, b.Amount.Cents) },
	SortMethod:     func(a, b core.PaymentRecord) int { return cmp.Compare(a.PaymentMethod, b.PaymentMethod) },
	SortReceivedBy: func(a, b core.PaymentRecord) int { return compareFold(a.ReceivedBy, b.ReceivedBy) },
	SortTransferred: func(a, b core.PaymentRecord) int {
		return cmp.Compare(boolRank(a.TransferredToBank), boolRank(b.TransferredToBank))
	},
	SortStatus: func(a, b core.PaymentRecord) int { return cmp.Compare(a.Status, b.Status) },
	SortDays:   func(a, b core.PaymentRecord) int { return cmp.Compare(a.Days, b.Days) },
	SortTotal:  func(a, b core.PaymentRecord) int { return cmp.Compare(a.TotalAmount.Cents, b.TotalAmount.Cents) },
}

// ParseSortField validates a sort key coming from user input.
func ParseSortField(s string) (SortField, error) {
	f := SortField(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return SortSerial, nil
	}
	if _, ok := comparators[f]; !ok {
		return "", fmt.Errorf("%w: unknown sort field %q", core.ErrValidationFailed, s)
	}
	return f, nil
}

// Query describes a read-only view over a store.
type Query struct {
	Filter     func(core.PaymentRecord) bool
	SortBy     SortField
	Descending bool
	Page       int // 1-based; values below 1 mean the first page
	PageSize   int // values below 1 mean DefaultPageSize
}

// Page is one page of query results.
type Page struct {
	Items    []core.PaymentRecord
	Page     int
	PageSize int
	Total    int // matching records across all pages
	Pages    int
}

// CustomerContains matches customer names containing s, ignoring case.
func CustomerContains(s string) func(core.PaymentRecord) bool {
	needle := strings.ToLower(strings.TrimSpace(s))
	return func(r core.PaymentRecord) bool {
		return strings.Contains(strings.ToLower(r.CustomerName), needle)
	}
}

// Run filters, sorts and paginates records. The input is left untouched.
func Run(records []core.PaymentRecord, q Query) Page {
	matched := make([]core.PaymentRecord, 0, len(records))
	for _, r := range records {
		if q.Filter == nil || q.Filter(r) {
			matched = append(matched, r)
		}
	}

	by, ok := comparators[q.SortBy]
	if !ok {
		by = comparators[SortSerial]
	}
	slices.SortStableFunc(matched, func(a, b core.PaymentRecord) int {
		c := by(a, b)
		if q.Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
		// serial numbers are unique, so ties resolve to a total order
		return cmp.Compare(a.SerialNumber, b.SerialNumber)
	})

	size := q.PageSize
	if size < 1 {
		size = DefaultPageSize
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	p := Page{
		Page:     page,
		PageSize: size,
		Total:    len(matched),
		Items:    []core.PaymentRecord{},
	}
	if len(matched) == 0 {
		return p
	}
	p.Pages = (len(matched)-1)/size + 1
	if page > p.Pages {
		return p
	}
	start := (page - 1) * size
	end := start + min(size, len(matched)-start)
	p.Items = matched[start:end]
	return p
}

func compareFold(a, b string) int {
	if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}
