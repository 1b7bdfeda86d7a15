package core

import "testing"

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{"1.004", 100, true},
		{" 2.50 ", 250, true},
		{"0", 0, true},
		{"-1", 0, false},
		{"abc", 0, false},
		{"1e3", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"100000000000", 10_000_000_000_000, true},
		{"100000000000.01", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{
		0:      "0.00",
		5:      "0.05",
		10000:  "100.00",
		123456: "1234.56",
	}
	for cents, want := range cases {
		if got := (Money{Cents: cents}).String(); got != want {
			t.Errorf("Money{%d}.String() = %q, want %q", cents, got, want)
		}
	}
}

func TestMeanCents(t *testing.T) {
	if got := MeanCents(Money{Cents: 1000}, 3); got.Cents != 333 {
		t.Fatalf("got %d", got.Cents)
	}
	if got := MeanCents(Money{Cents: 1001}, 2); got.Cents != 501 {
		t.Fatalf("half-up expected 501, got %d", got.Cents)
	}
	if got := MeanCents(Money{Cents: 1000}, 0); got.Cents != 0 {
		t.Fatalf("zero count should give zero, got %d", got.Cents)
	}
}
