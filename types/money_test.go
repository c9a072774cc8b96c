package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMoneyDisplay(t *testing.T) {
	tests := []struct {
		name    string
		money   Money
		display string
	}{
		{"paise", INR(4900), "₹49.00"},
		{"thousand", Rupees(1000), "₹1,000.00"},
		{"lakh", Rupees(100000), "₹1,00,000.00"},
		{"grouped", INR(12345678), "₹1,23,456.78"},
		{"crore", Rupees(10000000), "₹1,00,00,000.00"},
		{"negative", INR(-250), "-₹2.50"},
		{"zero", Zero("INR"), "₹0.00"},
		{"usd", Money{Amount: 123456789, Currency: "usd"}, "$1,234,567.89"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.money.String(); got != tt.display {
				t.Errorf("Display: got %s, want %s", got, tt.display)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return INR(100).Add(INR(200)) }, INR(300)},
		{"Subtract", func() Money { return INR(500).Subtract(INR(200)) }, INR(300)},
		{"Negate", func() Money { return INR(100).Negate() }, INR(-100)},
		{"Abs positive", func() Money { return INR(100).Abs() }, INR(100)},
		{"Abs negative", func() Money { return INR(-100).Abs() }, INR(100)},
		{"Sum", func() Money { return Sum(INR(1), INR(2), INR(3)) }, INR(6)},
		{"Sum empty", func() Money { return Sum() }, INR(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.op()
			if !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for currency mismatch")
		}
	}()

	_ = INR(100).Add(Money{Amount: 100, Currency: "usd"})
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(Rupees(1500))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal map: %v", err)
	}
	if decoded["display"] != "₹1,500.00" {
		t.Errorf("display: got %v", decoded["display"])
	}

	var m Money
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal money: %v", err)
	}
	if !m.Equal(Rupees(1500)) {
		t.Errorf("got %v, want %v", m, Rupees(1500))
	}
}

func TestDate(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	instant := time.Date(2026, 3, 31, 23, 30, 0, 0, loc)

	d := DateOf(instant)
	if got := FormatDate(d); got != "2026-03-31" {
		t.Errorf("DateOf kept the wall date wrong: %s", got)
	}
	if d.Location() != time.UTC {
		t.Errorf("expected UTC location, got %s", d.Location())
	}

	parsed, err := ParseDate("2026-03-31")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if !parsed.Equal(d) {
		t.Errorf("ParseDate mismatch: %v != %v", parsed, d)
	}

	if _, err := ParseDate("31/03/2026"); err == nil {
		t.Error("expected error for malformed date")
	}

	if got := FormatDate(AddDays(d, 1)); got != "2026-04-01" {
		t.Errorf("AddDays: got %s", got)
	}
}
