package core

import (
	"errors"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2024-02-29 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != "2024-02-29" {
		t.Fatalf("got %s", d)
	}
	if _, err := ParseDate("29/02/2024"); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDaysUntil(t *testing.T) {
	base := NewDate(2024, 1, 1)
	cases := []struct {
		to   Date
		want int
	}{
		{NewDate(2024, 1, 1), 0},
		{NewDate(2024, 1, 8), 7},
		{NewDate(2024, 3, 1), 60}, // leap year
		{NewDate(2023, 12, 22), -10},
		{NewDate(1700, 1, 1), -118338},
		{NewDate(2400, 1, 1), 137331},
	}
	for _, tc := range cases {
		if got := base.DaysUntil(tc.to); got != tc.want {
			t.Errorf("DaysUntil(%s) = %d, want %d", tc.to, got, tc.want)
		}
	}
}

func TestParsePaymentMethod(t *testing.T) {
	m, err := ParsePaymentMethod("credit card")
	if err != nil || m != CreditCard {
		t.Fatalf("got %q err=%v", m, err)
	}
	m, err = ParsePaymentMethod("")
	if err != nil || m != "" {
		t.Fatalf("empty method should be allowed, got %q err=%v", m, err)
	}
	if _, err := ParsePaymentMethod("Bitcoin"); !errors.Is(err, ErrInvalidMethod) {
		t.Fatalf("expected ErrInvalidMethod, got %v", err)
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 0}).Validate(); err != nil {
		t.Fatalf("zero should be allowed, got %v", err)
	}
	if err := (Money{Cents: -1}).Validate(); err == nil {
		t.Fatalf("expected error for negative")
	}
	if err := (Money{Cents: MaxAmountCents}).Validate(); err != nil {
		t.Fatalf("largest amount should be allowed, got %v", err)
	}
	if err := (Money{Cents: 1 << 62}).Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount above the cap, got %v", err)
	}
}

func TestPaymentInputValidate(t *testing.T) {
	good := PaymentInput{
		Date:          NewDate(2025, 1, 1),
		CustomerName:  "Acme",
		InvoiceNumber: "INV-1",
		Amount:        Money{Cents: 100},
		PaymentMethod: Cash,
		ReceivedBy:    "Rami",
	}
	if err := good.Validate(RequireReceivedBy); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := good.Validate(RequireInvoice); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	mutate := func(f func(*PaymentInput)) PaymentInput {
		in := good
		f(&in)
		return in
	}
	bads := []struct {
		in   PaymentInput
		req  Requirements
		want error
	}{
		{mutate(func(in *PaymentInput) { in.Date = Date{} }), RequireReceivedBy, ErrInvalidDate},
		{mutate(func(in *PaymentInput) { in.CustomerName = "  " }), RequireReceivedBy, ErrEmptyCustomer},
		{mutate(func(in *PaymentInput) { in.ReceivedBy = "" }), RequireReceivedBy, ErrEmptyReceivedBy},
		{mutate(func(in *PaymentInput) { in.InvoiceNumber = "" }), RequireInvoice, ErrEmptyInvoice},
		{mutate(func(in *PaymentInput) { in.Amount = Money{Cents: -5} }), RequireReceivedBy, ErrInvalidAmount},
		{mutate(func(in *PaymentInput) { in.PaymentMethod = "Barter" }), RequireReceivedBy, ErrInvalidMethod},
	}
	for i, tc := range bads {
		err := tc.in.Validate(tc.req)
		if !errors.Is(err, tc.want) {
			t.Fatalf("case %d expected %v, got %v", i, tc.want, err)
		}
		if !errors.Is(err, ErrValidationFailed) {
			t.Fatalf("case %d should be a validation failure: %v", i, err)
		}
	}
}

func TestStatusFor(t *testing.T) {
	if got := StatusFor(true, "Rami"); got != "Transferred to Bank" {
		t.Fatalf("got %q", got)
	}
	if got := StatusFor(false, " Rami "); got != "Waiting Payment from Rami" {
		t.Fatalf("got %q", got)
	}
}

func TestOverdue(t *testing.T) {
	r := PaymentRecord{Days: 8}
	if !r.Overdue() {
		t.Fatalf("8 days untransferred should be overdue")
	}
	r.Days = 7
	if r.Overdue() {
		t.Fatalf("7 days is not overdue yet")
	}
	r.Days = 30
	r.TransferredToBank = true
	if r.Overdue() {
		t.Fatalf("transferred payments are never overdue")
	}
}
