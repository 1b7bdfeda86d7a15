package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"payments/internal/core"
	"payments/internal/ledger"
	"payments/internal/log"
)

// ResponseBuilder assembles a JSON response.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{statusCode: http.StatusOK, headers: make(map[string]string)}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(key, value string) *ResponseBuilder {
	b.headers[key] = value
	return b
}

func (b *ResponseBuilder) Body(v any) *ResponseBuilder {
	b.body = v
	return b
}

// Send writes headers, status and the JSON-encoded body.
func (b *ResponseBuilder) Send(w http.ResponseWriter) {
	for k, v := range b.headers {
		w.Header().Set(k, v)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if err := json.NewEncoder(w).Encode(b.body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

type errorJSON struct {
	Error     string       `json:"error"`
	Kind      string       `json:"kind"`
	RequestID string       `json:"request_id,omitempty"`
	Record    *paymentJSON `json:"record,omitempty"`
}

// classify maps an operation error to its HTTP status and log category.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrValidationFailed):
		return http.StatusUnprocessableEntity, log.ErrorTypeValidation
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, log.ErrorTypeNotFound
	case errors.Is(err, core.ErrPersistenceFailed):
		return http.StatusServiceUnavailable, log.ErrorTypePersistence
	}
	return http.StatusInternalServerError, log.ErrorTypeInternal
}

// ErrorResponse builds the JSON error body for err. A persistence failure
// still carries the record, since the change was applied in memory.
func ErrorResponse(r *http.Request, op string, err error, rec *core.PaymentRecord) *ResponseBuilder {
	status, kind := classify(err)
	log.LogOperationError(r.Context(), op, kind, err)

	body := errorJSON{Error: err.Error(), Kind: kind, RequestID: RequestID(r.Context())}
	if status == http.StatusInternalServerError {
		body.Error = "internal error"
	}
	if status == http.StatusServiceUnavailable {
		body.Error = "change applied but not saved; it will be retried"
		if rec != nil && rec.SerialNumber > 0 {
			p := toPaymentJSON(*rec)
			body.Record = &p
		}
	}
	return NewResponse().Status(status).Body(body)
}

type paymentJSON struct {
	SerialNumber      int    `json:"serial_number"`
	Date              string `json:"date"`
	CustomerName      string `json:"customer_name"`
	InvoiceNumber     string `json:"invoice_number,omitempty"`
	Amount            string `json:"amount"`
	PaymentMethod     string `json:"payment_method,omitempty"`
	ReceivedBy        string `json:"received_by,omitempty"`
	TransferredToBank bool   `json:"transferred_to_bank"`
	Status            string `json:"status"`
	Days              int    `json:"days"`
	TotalAmount       string `json:"total_amount"`
	Overdue           bool   `json:"overdue"`
	AdminNotes        string `json:"admin_notes,omitempty"`
	Comments          string `json:"comments,omitempty"`
}

func toPaymentJSON(r core.PaymentRecord) paymentJSON {
	return paymentJSON{
		SerialNumber:      r.SerialNumber,
		Date:              r.Date.String(),
		CustomerName:      r.CustomerName,
		InvoiceNumber:     r.InvoiceNumber,
		Amount:            r.Amount.String(),
		PaymentMethod:     string(r.PaymentMethod),
		ReceivedBy:        r.ReceivedBy,
		TransferredToBank: r.TransferredToBank,
		Status:            r.Status,
		Days:              r.Days,
		TotalAmount:       r.TotalAmount.String(),
		Overdue:           r.Overdue(),
		AdminNotes:        r.AdminNotes,
		Comments:          r.Comments,
	}
}

type pageJSON struct {
	Store    string        `json:"store"`
	Items    []paymentJSON `json:"items"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Total    int           `json:"total"`
	Pages    int           `json:"pages"`
}

func toPageJSON(kind ledger.Kind, p ledger.Page) pageJSON {
	items := make([]paymentJSON, len(p.Items))
	for i, r := range p.Items {
		items[i] = toPaymentJSON(r)
	}
	return pageJSON{Store: string(kind), Items: items, Page: p.Page, PageSize: p.PageSize, Total: p.Total, Pages: p.Pages}
}

type customerTotalJSON struct {
	Customer string `json:"customer"`
	Count    int    `json:"count"`
	Total    string `json:"total"`
}

type methodTotalJSON struct {
	Method string `json:"payment_method"`
	Count  int    `json:"count"`
	Sum    string `json:"sum"`
	Mean   string `json:"mean"`
}

type summaryJSON struct {
	Store    string            `json:"store"`
	Count    int               `json:"count"`
	Total    string            `json:"total"`
	Overdue  int               `json:"overdue"`
	ByMethod []methodTotalJSON `json:"by_method"`
}

func toCustomerTotalsJSON(in []core.CustomerTotal) []customerTotalJSON {
	out := make([]customerTotalJSON, len(in))
	for i, c := range in {
		out[i] = customerTotalJSON{Customer: c.Customer, Count: c.Count, Total: c.Total.String()}
	}
	return out
}

func toMethodTotalsJSON(in []core.MethodTotal) []methodTotalJSON {
	out := make([]methodTotalJSON, len(in))
	for i, m := range in {
		out[i] = methodTotalJSON{Method: string(m.Method), Count: m.Count, Sum: m.Sum.String(), Mean: m.Mean.String()}
	}
	return out
}

func toSummaryJSON(kind ledger.Kind, s core.Summary) summaryJSON {
	return summaryJSON{
		Store:    string(kind),
		Count:    s.Count,
		Total:    s.Total.String(),
		Overdue:  s.Overdue,
		ByMethod: toMethodTotalsJSON(s.ByMethod),
	}
}
