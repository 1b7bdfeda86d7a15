package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"payments/internal/core"
	"payments/internal/ledger"
	"payments/internal/services"
	"payments/internal/sheets/memory"
)

var testNow = time.Date(2024, 1, 8, 9, 30, 0, 0, time.UTC)

type fixture struct {
	srv      *Server
	payments *memory.Store
	badDebts *memory.Store
}

func newFixture(t *testing.T, cfg Config, opts ledger.Options) *fixture {
	t.Helper()
	clock := func() time.Time { return testNow }
	opts.Clock = clock
	cfg.Clock = clock

	p := memory.New("payments")
	b := memory.New("bad_debts")
	l := ledger.New(p, b, opts)
	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	srv := NewServer(cfg, services.NewPaymentService(l, nil))
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &fixture{srv: srv, payments: p, badDebts: b}
}

func (f *fixture) do(t *testing.T, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) create(t *testing.T, customer, amount, date string) paymentJSON {
	t.Helper()
	body := `{"customer_name":"` + customer + `","amount":"` + amount + `","date":"` + date + `","received_by":"Rami","payment_method":"cash"}`
	rec := f.do(t, http.MethodPost, "/payments", "application/json", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create %s: status %d body %s", customer, rec.Code, rec.Body.String())
	}
	return decode[paymentJSON](t, rec)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestCreatePayment(t *testing.T) {
	f := newFixture(t, Config{}, ledger.Options{})

	got := f.create(t, "Acme", "100.50", "2024-01-01")
	if got.SerialNumber != 1 || got.Days != 7 || got.TotalAmount != "100.50" {
		t.Fatalf("unexpected derived fields: %+v", got)
	}
	if got.Status != "Waiting Payment from Rami" || got.PaymentMethod != "Cash" || got.Overdue {
		t.Fatalf("unexpected record: %+v", got)
	}

	rec := f.do(t, http.MethodPost, "/payments", "application/x-www-form-urlencoded",
		"customer_name=Acme&amount=20%2C25&received_by=Sara&transferred_to_bank=yes")
	if rec.Code != http.StatusCreated {
		t.Fatalf("form create: status %d body %s", rec.Code, rec.Body.String())
	}
	second := decode[paymentJSON](t, rec)
	if second.Date != "2024-01-08" || second.Amount != "20.25" || second.TotalAmount != "120.75" {
		t.Fatalf("unexpected form record: %+v", second)
	}
	if second.Status != "Transferred to Bank" {
		t.Fatalf("unexpected status %q", second.Status)
	}
	if rec.Header().Get("X-Request-ID") == "" || rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing standard headers: %v", rec.Header())
	}
	if f.payments.Saves() != 2 {
		t.Fatalf("expected 2 saves, got %d", f.payments.Saves())
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(t, Config{}, ledger.Options{})
	cases := map[string]string{
		"no customer": `{"amount":"1","received_by":"Rami"}`,
		"no receiver": `{"customer_name":"Acme","amount":"1"}`,
		"bad amount":  `{"customer_name":"Acme","amount":"-3","received_by":"Rami"}`,
		"bad date":    `{"customer_name":"Acme","amount":"1","received_by":"Rami","date":"08/01/2024"}`,
		"bad method":  `{"customer_name":"Acme","amount":"1","received_by":"Rami","payment_method":"Barter"}`,
		"bad json":    `{"customer_name":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/payments", "application/json", body)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
			}
			if e := decode[errorJSON](t, rec); e.Kind != "validation_error" || e.RequestID == "" {
				t.Fatalf("unexpected error body %+v", e)
			}
		})
	}
	if f.payments.Saves() != 0 {
		t.Fatalf("rejected input must not be saved")
	}
}

func TestUpdateTransferAndDelete(t *testing.T) {
	f := newFixture(t, Config{}, ledger.Options{})
	f.create(t, "Acme", "10", "2024-01-01")
	f.create(t, "Beta", "20", "2024-01-02")

	rec := f.do(t, http.MethodPut, "/payments/2", "application/json",
		`{"customer_name":"Acme","amount":"5","date":"2024-01-02","received_by":"Sara"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d body %s", rec.Code, rec.Body.String())
	}
	if got := decode[paymentJSON](t, rec); got.TotalAmount != "15.00" || got.ReceivedBy != "Sara" {
		t.Fatalf("unexpected update result %+v", got)
	}

	rec = f.do(t, http.MethodPatch, "/payments/1/transfer", "application/json", `{"transferred_to_bank":true}`)
	if got := decode[paymentJSON](t, rec); rec.Code != http.StatusOK || got.Status != "Transferred to Bank" {
		t.Fatalf("transfer: status %d record %+v", rec.Code, got)
	}
	if rec := f.do(t, http.MethodPatch, "/payments/1/transfer", "application/json", `{}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing flag: status %d", rec.Code)
	}

	rec = f.do(t, http.MethodDelete, "/payments/1", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/payments/1", "", "")
	if got := decode[paymentJSON](t, rec); got.CustomerName != "Acme" || got.Amount != "5.00" {
		t.Fatalf("serials should be renumbered after delete: %+v", got)
	}

	if rec := f.do(t, http.MethodDelete, "/payments/9", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing record: status %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, "/payments/abc", "", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad key: status %d", rec.Code)
	}
}

func TestInvoiceIdentity(t *testing.T) {
	f := newFixture(t, Config{Identity: ledger.IdentifyByInvoice}, ledger.Options{
		Identity:     ledger.IdentifyByInvoice,
		Requirements: core.RequireInvoice,
	})
	rec := f.do(t, http.MethodPost, "/payments", "application/json",
		`{"customer_name":"Acme","invoice_number":"INV-7","amount":12.5}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodPatch, "/payments/INV-7/transfer", "application/x-www-form-urlencoded", "transferred_to_bank=on")
	if got := decode[paymentJSON](t, rec); rec.Code != http.StatusOK || !got.TransferredToBank || got.Amount != "12.50" {
		t.Fatalf("transfer by invoice: status %d record %+v", rec.Code, got)
	}
}

func TestTransferToBadDebt(t *testing.T) {
	f := newFixture(t, Config{}, ledger.Options{})
	f.create(t, "Acme", "10", "2024-01-01")
	f.create(t, "Beta", "20", "2024-01-02")

	rec := f.do(t, http.MethodPost, "/payments/2/bad-debt", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("bad debt: status %d body %s", rec.Code, rec.Body.String())
	}

	payments := decode[pageJSON](t, f.do(t, http.MethodGet, "/payments", "", ""))
	bad := decode[pageJSON](t, f.do(t, http.MethodGet, "/bad-debts", "", ""))
	if payments.Total != 1 || payments.Items[0].CustomerName != "Acme" {
		t.Fatalf("unexpected payments %+v", payments)
	}
	if bad.Total != 1 || bad.Items[0].CustomerName != "Beta" || bad.Items[0].SerialNumber != 1 {
		t.Fatalf("unexpected bad debts %+v", bad)
	}
	if f.badDebts.Saves() != 1 {
		t.Fatalf("bad debt table not saved")
	}
}

func TestListQuery(t *testing.T) {
	f := newFixture(t, Config{PageSize: 2}, ledger.Options{})
	f.create(t, "Acme", "30", "2024-01-01")
	f.create(t, "Beta", "10", "2024-01-02")
	f.create(t, "acme east", "20", "2024-01-03")

	page := decode[pageJSON](t, f.do(t, http.MethodGet, "/payments?sort=amount&desc=true", "", ""))
	if page.Total != 3 || page.Pages != 2 || len(page.Items) != 2 || page.Items[0].Amount != "30.00" {
		t.Fatalf("unexpected first page %+v", page)
	}
	page = decode[pageJSON](t, f.do(t, http.MethodGet, "/payments?q=ACME&size=10", "", ""))
	if page.Total != 2 {
		t.Fatalf("search should match case-insensitively: %+v", page)
	}
	page = decode[pageJSON](t, f.do(t, http.MethodGet, "/payments?page=9223372036854775807&size=2", "", ""))
	if len(page.Items) != 0 || page.Pages != 2 {
		t.Fatalf("page past the end should be empty: %+v", page)
	}
	for _, target := range []string{"/payments?sort=colour", "/payments?page=0", "/payments?size=x"} {
		if rec := f.do(t, http.MethodGet, target, "", ""); rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: status %d", target, rec.Code)
		}
	}
}

func TestReportsFollowMutations(t *testing.T) {
	f := newFixture(t, Config{}, ledger.Options{})
	f.create(t, "Acme", "10", "2023-12-01")

	sum := decode[summaryJSON](t, f.do(t, http.MethodGet, "/reports/summary", "", ""))
	if sum.Count != 1 || sum.Total != "10.00" || sum.Overdue != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}

	f.create(t, "Beta", "5", "2024-01-07")
	sum = decode[summaryJSON](t, f.do(t, http.MethodGet, "/reports/summary?store=payments", "", ""))
	if sum.Count != 2 || sum.Total != "15.00" || len(sum.ByMethod) != 1 || sum.ByMethod[0].Mean != "7.50" {
		t.Fatalf("cached summary not invalidated: %+v", sum)
	}

	var customers struct {
		Customers []customerTotalJSON `json:"customers"`
	}
	rec := f.do(t, http.MethodGet, "/reports/customers", "", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &customers); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(customers.Customers) != 2 || customers.Customers[0].Customer != "Acme" {
		t.Fatalf("unexpected customer report %+v", customers)
	}

	if rec := f.do(t, http.MethodGet, "/reports/methods?store=archive", "", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown store: status %d", rec.Code)
	}
}

func TestPersistenceFailureAndFlush(t *testing.T) {
	f := newFixture(t, Config{}, ledger.Options{})
	f.payments.FailSaves(errors.New("disk full"))

	rec := f.do(t, http.MethodPost, "/payments", "application/json",
		`{"customer_name":"Acme","amount":"1","received_by":"Rami"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	e := decode[errorJSON](t, rec)
	if e.Kind != "persistence_error" || e.Record == nil || e.Record.SerialNumber != 1 {
		t.Fatalf("unexpected error body %+v", e)
	}

	var ready map[string]any
	_ = json.Unmarshal(f.do(t, http.MethodGet, "/readyz", "", "").Body.Bytes(), &ready)
	if ready["dirty"] != true {
		t.Fatalf("ledger should report pending writes: %v", ready)
	}

	if rec := f.do(t, http.MethodPost, "/admin/flush", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("flush while failing: status %d", rec.Code)
	}
	f.payments.FailSaves(nil)
	if rec := f.do(t, http.MethodPost, "/admin/flush", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("flush: status %d", rec.Code)
	}
	rows, _ := f.payments.Load(context.Background())
	if len(rows) != 1 {
		t.Fatalf("pending record not written by flush")
	}
}

func TestRateLimitOnlyMutations(t *testing.T) {
	f := newFixture(t, Config{RateLimit: 2}, ledger.Options{})
	f.create(t, "Acme", "1", "2024-01-01")
	f.create(t, "Acme", "1", "2024-01-01")

	rec := f.do(t, http.MethodPost, "/payments", "application/json",
		`{"customer_name":"Acme","amount":"1","received_by":"Rami"}`)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/payments", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("reads should not be limited, got %d", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t, Config{}, ledger.Options{})
	if rec := f.do(t, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, http.MethodGet, "/readyz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("readyz: %d", rec.Code)
	}
}
