package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		ok      bool
		wantErr bool
	}{
		{in: "1,250.50", want: "1250.5", ok: true},
		{in: " $200 ", want: "200", ok: true},
		{in: "฿ 3,000", want: "3000", ok: true},
		{in: "(12.50)", want: "-12.5", ok: true},
		{in: "NULL", ok: false},
		{in: "", ok: false},
		{in: "12a", wantErr: true},
	}
	for _, tc := range cases {
		got, ok, err := ParseMoney(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseMoney(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseMoney(%q): unexpected error %v", tc.in, err)
		}
		if ok != tc.ok {
			t.Fatalf("ParseMoney(%q): ok=%v want %v", tc.in, ok, tc.ok)
		}
		if ok && !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("ParseMoney(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestClampAndRound(t *testing.T) {
	if !ClampZero(decimal.NewFromInt(-5)).IsZero() {
		t.Fatalf("negative should clamp to zero")
	}
	if got := RoundMoney(decimal.RequireFromString("10.005")); !got.Equal(decimal.RequireFromString("10.01")) {
		t.Fatalf("expected 10.01, got %s", got)
	}
}

func TestValidateStruct(t *testing.T) {
	type rec struct {
		IPK    string `validate:"required"`
		Amount string `validate:"required"`
		Notes  string
	}
	fields, err := ValidateStruct(rec{Notes: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := FormatFieldErrors(fields); got != "Amount=required, IPK=required" {
		t.Fatalf("unexpected field errors %q", got)
	}
	fields, err = ValidateStruct(rec{IPK: "1", Amount: "2"})
	if err != nil || fields != nil {
		t.Fatalf("expected valid struct, got %v %v", fields, err)
	}
}
