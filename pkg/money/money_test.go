package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "100", want: "100.00"},
		{in: " 60.5 ", want: "60.50"},
		{in: "-25.75", want: "-25.75"},
		{in: "0.10", want: "0.10"},
		{in: "12.300", want: "12.30"},
		{in: "12.345", wantErr: true},
		{in: "1e3", wantErr: true},
		{in: "9999999999.99", want: "9999999999.99"},
		{in: "-9999999999.99", want: "-9999999999.99"},
		{in: "99999999999", wantErr: true},
		{in: "10000000000.00", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("Parse(%q) expected error, got %s", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Parse(%q) unexpected error: %v", tc.in, err)
		}
		if String(got) != tc.want {
			t.Fatalf("Parse(%q) = %s, want %s", tc.in, String(got), tc.want)
		}
	}
}

func TestParsePositiveRejectsZeroAndNegative(t *testing.T) {
	for _, in := range []string{"0", "0.00", "-1"} {
		if _, err := ParsePositive(in); err == nil {
			t.Fatalf("ParsePositive(%q) expected error", in)
		}
	}
	if got, err := ParsePositive("0.01"); err != nil || String(got) != "0.01" {
		t.Fatalf("ParsePositive(0.01) = %s, %v", got, err)
	}
}

func TestDecimalArithmeticHasNoFloatDrift(t *testing.T) {
	sum := decimal.RequireFromString("0.1").Add(decimal.RequireFromString("0.2"))
	if !sum.Equal(decimal.RequireFromString("0.3")) {
		t.Fatalf("expected exact 0.3, got %s", sum)
	}
	if String(Max(decimal.NewFromInt(-5), Zero)) != "0.00" {
		t.Fatalf("expected max to clamp at zero")
	}
}
