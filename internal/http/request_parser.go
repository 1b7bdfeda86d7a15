package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"payments/internal/core"
	"payments/internal/ledger"
)

const maxBodyBytes = 64 << 10

// RequestBodyParser reads a request body once and exposes its fields,
// whether it was sent as JSON or as a form.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = fmt.Errorf("request body larger than %d bytes", maxBodyBytes)
	}
	return p
}

// Parse decodes the body. A body starting with '{' is JSON, anything
// else is form-encoded.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true
	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}
	if trimmed[0] == '{' {
		p.jsonData = make(map[string]any)
		p.err = json.Unmarshal([]byte(trimmed), &p.jsonData)
		return p.err
	}
	p.formData, p.err = url.ParseQuery(trimmed)
	return p.err
}

// Has reports whether key was present in the body.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	_, ok := p.formData[key]
	return ok
}

// Get returns a sanitized string value for key.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		return sanitizeInput(stringValue(p.jsonData[key]))
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

func (p *RequestBodyParser) IsJSON() bool { return p.jsonData != nil }

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrValidationFailed, fmt.Sprintf(format, args...))
}

// parseBool accepts the spellings used by forms, JSON and the CSV layout.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "no", "n", "false", "0", "off":
		return false, nil
	case "yes", "y", "true", "1", "on":
		return true, nil
	}
	return false, invalid("not a yes/no value: %q", s)
}

// parsePaymentInput builds the editable fields of a payment from the body.
// A missing date means today.
func parsePaymentInput(p *RequestBodyParser, now time.Time) (core.PaymentInput, error) {
	var in core.PaymentInput

	if raw := p.Get("date"); raw == "" {
		in.Date = core.DateOf(now)
	} else {
		d, err := core.ParseDate(raw)
		if err != nil {
			return in, err
		}
		in.Date = d
	}

	cents, err := core.ParseDecimalToCents(p.Get("amount"))
	if err != nil {
		return in, err
	}
	in.Amount = core.Money{Cents: cents}

	in.PaymentMethod, err = core.ParsePaymentMethod(p.Get("payment_method"))
	if err != nil {
		return in, err
	}
	in.TransferredToBank, err = parseBool(p.Get("transferred_to_bank"))
	if err != nil {
		return in, err
	}

	in.CustomerName = p.Get("customer_name")
	in.InvoiceNumber = p.Get("invoice_number")
	in.ReceivedBy = p.Get("received_by")
	in.AdminNotes = p.Get("admin_notes")
	in.Comments = p.Get("comments")
	return in, nil
}

// parseKey reads the {key} path value as a serial number or an invoice
// number depending on how records are addressed.
func parseKey(r *http.Request, identity ledger.Identity) (ledger.Key, error) {
	raw := strings.TrimSpace(r.PathValue("key"))
	if raw == "" {
		return ledger.Key{}, invalid("missing record key")
	}
	if identity == ledger.IdentifyByInvoice {
		return ledger.ByInvoice(raw), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return ledger.Key{}, invalid("serial number must be a positive integer, got %q", raw)
	}
	return ledger.BySerial(n), nil
}

// parseQuery reads listing parameters: q, sort, desc, page and size.
func parseQuery(values url.Values, defaultSize int) (ledger.Query, error) {
	q := ledger.Query{PageSize: defaultSize}

	sortBy, err := ledger.ParseSortField(values.Get("sort"))
	if err != nil {
		return q, err
	}
	q.SortBy = sortBy

	if q.Descending, err = parseBool(values.Get("desc")); err != nil {
		return q, err
	}
	if v := strings.TrimSpace(values.Get("page")); v != "" {
		if q.Page, err = strconv.Atoi(v); err != nil || q.Page < 1 {
			return q, invalid("page must be a positive integer, got %q", v)
		}
	}
	if v := strings.TrimSpace(values.Get("size")); v != "" {
		if q.PageSize, err = strconv.Atoi(v); err != nil || q.PageSize < 1 || q.PageSize > 500 {
			return q, invalid("size must be between 1 and 500, got %q", v)
		}
	}
	if search := sanitizeInput(values.Get("q")); search != "" {
		q.Filter = ledger.CustomerContains(search)
	}
	return q, nil
}
