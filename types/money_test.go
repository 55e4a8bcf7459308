package types

import (
	"encoding/json"
	"testing"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		amount   int64
		currency string
		display  string
	}{
		{"INR", INR(500000), 500000, "inr", "₹5000.00"},
		{"USD", USD(4900), 4900, "usd", "$49.00"},
		{"Zero INR", Zero("INR"), 0, "inr", "₹0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.money.Amount, tt.amount)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, tt.currency)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		input    string
		currency string
		want     Money
		wantErr  bool
	}{
		{"5000", "inr", INR(500000), false},
		{"5000.50", "inr", INR(500050), false},
		{"₹5,000", "inr", INR(500000), false},
		{" 49.9 ", "USD", USD(4990), false},
		{"100", "jpy", Money{Amount: 100, Currency: "jpy"}, false},
		{"5000.505", "inr", Money{}, true},
		{"", "inr", Money{}, true},
		{"five", "inr", Money{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMoney(tt.input, tt.currency)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	if got := INR(100).Add(INR(250)); !got.Equal(INR(350)) {
		t.Errorf("Add: got %v", got)
	}
	if got := INR(500).Subtract(INR(200)); !got.Equal(INR(300)) {
		t.Errorf("Subtract: got %v", got)
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for currency mismatch")
		}
	}()

	_ = INR(100).Add(USD(100))
}

func TestMoneyPredicates(t *testing.T) {
	tests := []struct {
		name       string
		money      Money
		isZero     bool
		isPositive bool
		isNegative bool
	}{
		{"Zero", INR(0), true, false, false},
		{"Positive", INR(100), false, true, false},
		{"Negative", INR(-100), false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.money.IsZero(); got != tt.isZero {
				t.Errorf("IsZero: got %v, want %v", got, tt.isZero)
			}
			if got := tt.money.IsPositive(); got != tt.isPositive {
				t.Errorf("IsPositive: got %v, want %v", got, tt.isPositive)
			}
			if got := tt.money.IsNegative(); got != tt.isNegative {
				t.Errorf("IsNegative: got %v, want %v", got, tt.isNegative)
			}
		})
	}
}

func TestMoneyFormatMajor(t *testing.T) {
	tests := []struct {
		money    Money
		expected string
	}{
		{INR(500000), "5000.00"},
		{INR(1), "0.01"},
		{INR(0), "0.00"},
		{INR(-4900), "-49.00"},
		{INR(-1), "-0.01"},
		{Money{Amount: 12345, Currency: "jpy"}, "12345"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.money.FormatMajor(); got != tt.expected {
				t.Errorf("FormatMajor: got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(INR(500000))
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	expected := `{"amount":500000,"currency":"inr","display":"₹5000.00"}`
	if string(data) != expected {
		t.Errorf("JSON: got %s, want %s", string(data), expected)
	}
}

func TestSum(t *testing.T) {
	tests := []struct {
		name     string
		values   []Money
		expected Money
	}{
		{"Empty", nil, Zero("inr")},
		{"Single", []Money{INR(100)}, INR(100)},
		{"Multiple", []Money{INR(100), INR(200), INR(300)}, INR(600)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := Sum("inr", tt.values...); !result.Equal(tt.expected) {
				t.Errorf("Sum: got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestCurrencySymbols(t *testing.T) {
	tests := []struct {
		currency string
		symbol   string
	}{
		{"inr", "₹"},
		{"usd", "$"},
		{"eur", "€"},
		{"unknown", "UNKNOWN "},
	}

	for _, tt := range tests {
		t.Run(tt.currency, func(t *testing.T) {
			if got := currencySymbol(tt.currency); got != tt.symbol {
				t.Errorf("Symbol for %s: got %s, want %s", tt.currency, got, tt.symbol)
			}
		})
	}
}

func BenchmarkMoneyString(b *testing.B) {
	m := INR(500000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.String()
	}
}
