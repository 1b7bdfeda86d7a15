package sheets

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"payments/internal/core"
)

// Column names of the tabular layout shared by the CSV and spreadsheet
// backends. The header row carries these names; readers locate columns by
// name so files written by older layouts still load.
const (
	ColSerial      = "Serial Number"
	ColDate        = "Date"
	ColCustomer    = "Customer Name"
	ColInvoice     = "Invoice Number"
	ColAmount      = "Amount"
	ColMethod      = "Payment Method"
	ColReceivedBy  = "Received By"
	ColTransferred = "Transferred to Bank"
	ColStatus      = "Status"
	ColDays        = "Days"
	ColTotal       = "Total Amount"
	ColAdminNotes  = "Admin Notes"
	ColComments    = "Comments"
)

// Header returns the column names in write order.
func Header() []string {
	return []string{
		ColSerial, ColDate, ColCustomer, ColInvoice, ColAmount, ColMethod, ColReceivedBy,
		ColTransferred, ColStatus, ColDays, ColTotal, ColAdminNotes, ColComments,
	}
}

// EncodeRow renders a record as text cells in Header order.
func EncodeRow(r core.PaymentRecord) []string {
	return []string{
		strconv.Itoa(r.SerialNumber),
		r.Date.String(),
		r.CustomerName,
		r.InvoiceNumber,
		r.Amount.String(),
		string(r.PaymentMethod),
		r.ReceivedBy,
		yesNo(r.TransferredToBank),
		r.Status,
		strconv.Itoa(r.Days),
		r.TotalAmount.String(),
		r.AdminNotes,
		r.Comments,
	}
}

// DecodeRows parses a header row followed by data rows. Derived columns are
// read when present but callers are expected to recompute them. Rows
// without a serial number keep their file order.
func DecodeRows(rows [][]string) ([]core.PaymentRecord, error) {
	if len(rows) == 0 {
		return []core.PaymentRecord{}, nil
	}
	cols := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, required := range []string{ColDate, ColCustomer, ColAmount} {
		if _, ok := cols[strings.ToLower(required)]; !ok {
			return nil, fmt.Errorf("unexpected header: missing %q; got %v", required, rows[0])
		}
	}
	get := func(row []string, name string) string {
		i, ok := cols[strings.ToLower(name)]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	// free text keeps its whitespace
	raw := func(row []string, name string) string {
		i, ok := cols[strings.ToLower(name)]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	out := make([]core.PaymentRecord, 0, len(rows)-1)
	for n, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		line := n + 2
		date, err := core.ParseDate(get(row, ColDate))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		cents, err := core.ParseDecimalToCents(get(row, ColAmount))
		if err != nil {
			return nil, fmt.Errorf("row %d: amount %q: %w", line, get(row, ColAmount), err)
		}
		method, err := core.ParsePaymentMethod(get(row, ColMethod))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		r := core.PaymentRecord{
			PaymentInput: core.PaymentInput{
				Date:              date,
				CustomerName:      get(row, ColCustomer),
				InvoiceNumber:     get(row, ColInvoice),
				Amount:            core.Money{Cents: cents},
				PaymentMethod:     method,
				ReceivedBy:        get(row, ColReceivedBy),
				TransferredToBank: parseYesNo(get(row, ColTransferred)),
				AdminNotes:        raw(row, ColAdminNotes),
				Comments:          raw(row, ColComments),
			},
			Status: get(row, ColStatus),
		}
		r.SerialNumber, _ = strconv.Atoi(get(row, ColSerial))
		r.Days, _ = strconv.Atoi(get(row, ColDays))
		if total, err := core.ParseDecimalToCents(get(row, ColTotal)); err == nil {
			r.TotalAmount = core.Money{Cents: total}
		}
		out = append(out, r)
	}
	orderBySerial(out)
	return out, nil
}

// orderBySerial sorts rows by serial number when every row carries a
// distinct positive one; otherwise file order is kept.
func orderBySerial(rows []core.PaymentRecord) {
	seen := make(map[int]bool, len(rows))
	for _, r := range rows {
		if r.SerialNumber < 1 || seen[r.SerialNumber] {
			return
		}
		seen[r.SerialNumber] = true
	}
	slices.SortFunc(rows, func(a, b core.PaymentRecord) int {
		return cmp.Compare(a.SerialNumber, b.SerialNumber)
	})
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func parseYesNo(s string) bool {
	switch strings.ToLower(s) {
	case "yes", "y", "true", "1":
		return true
	}
	return false
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
