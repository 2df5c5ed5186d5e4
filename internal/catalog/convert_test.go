package catalog

import (
	"testing"
	"time"
)

// ----------------------------------------------------------------------------
// ParseNumeric Tests
// ----------------------------------------------------------------------------

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantValid bool
		wantValue string
	}{
		// Valid: Basic numbers
		{name: "positive integer", input: "123", wantValid: true, wantValue: "123"},
		{name: "zero", input: "0", wantValid: true, wantValue: "0"},
		{name: "negative integer", input: "-456", wantValid: true, wantValue: "-456"},
		{name: "decimal number", input: "123.45", wantValid: true, wantValue: "123.45"},
		{name: "leading decimal point", input: ".99", wantValid: true, wantValue: ".99"},
		{name: "explicit plus sign", input: "+123", wantValid: true, wantValue: "123"},

		// Valid: Currency and separators
		{name: "dollar with thousands", input: "$1,234.56", wantValid: true, wantValue: "1234.56"},
		{name: "euro symbol", input: "€1234.56", wantValid: true, wantValue: "1234.56"},
		{name: "pound symbol", input: "£1234.56", wantValid: true, wantValue: "1234.56"},
		{name: "multiple thousands separators", input: "1,234,567.89", wantValid: true, wantValue: "1234567.89"},
		{name: "percent suffix", input: "7.25%", wantValid: true, wantValue: "7.25"},

		// Valid: Accounting negatives
		{name: "parentheses negative", input: "(123.45)", wantValid: true, wantValue: "-123.45"},
		{name: "parentheses with currency", input: "($1,234.56)", wantValid: true, wantValue: "-1234.56"},
		{name: "parentheses with spaces", input: "( 999.99 )", wantValid: true, wantValue: "-999.99"},

		// Valid: Scientific notation
		{name: "scientific notation", input: "1.5e10", wantValid: true, wantValue: "1.5e10"},
		{name: "negative exponent", input: "1.5e-3", wantValid: true, wantValue: "1.5e-3"},

		// Valid: Whitespace
		{name: "surrounding whitespace", input: "  123.45  ", wantValid: true, wantValue: "123.45"},

		// Invalid
		{name: "empty string", input: "", wantValid: false},
		{name: "whitespace only", input: "   ", wantValid: false},
		{name: "letters", input: "abc", wantValid: false},
		{name: "mixed letters and digits", input: "12abc34", wantValid: false},
		{name: "currency symbol only", input: "$", wantValid: false},
		{name: "multiple decimal points", input: "12.34.56", wantValid: false},
		{name: "double negative", input: "--123", wantValid: false},
		{name: "trailing minus", input: "123-", wantValid: false},
		{name: "NaN", input: "NaN", wantValid: false},
		{name: "Infinity", input: "Infinity", wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseNumeric(tt.input)
			if ok != tt.wantValid {
				t.Fatalf("ParseNumeric(%q) ok = %v, want %v", tt.input, ok, tt.wantValid)
			}
			if ok && got != tt.wantValue {
				t.Errorf("ParseNumeric(%q) = %q, want %q", tt.input, got, tt.wantValue)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseDate Tests
// ----------------------------------------------------------------------------

func TestParseDate(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		input     string
		wantValid bool
		wantDate  string
	}{
		// ISO and year-first
		{name: "ISO format", input: "2024-01-15", wantValid: true, wantDate: "2024-01-15"},
		{name: "leap day", input: "2024-02-29", wantValid: true, wantDate: "2024-02-29"},
		{name: "slash year first", input: "2024/01/15", wantValid: true, wantDate: "2024-01-15"},
		{name: "dot year first", input: "2024.01.15", wantValid: true, wantDate: "2024-01-15"},

		// US month-first
		{name: "US slash", input: "01/15/2024", wantValid: true, wantDate: "2024-01-15"},
		{name: "US slash no padding", input: "1/5/2024", wantValid: true, wantDate: "2024-01-05"},
		{name: "US dash", input: "01-15-2024", wantValid: true, wantDate: "2024-01-15"},
		{name: "US dot", input: "01.15.2024", wantValid: true, wantDate: "2024-01-15"},

		// Named months and compact
		{name: "month name", input: "Jan 15, 2024", wantValid: true, wantDate: "2024-01-15"},
		{name: "day month year", input: "15 Jan 2024", wantValid: true, wantDate: "2024-01-15"},
		{name: "long month name", input: "January 15, 2024", wantValid: true, wantDate: "2024-01-15"},
		{name: "compact", input: "20240115", wantValid: true, wantDate: "2024-01-15"},

		// Whitespace
		{name: "leading whitespace", input: "  2024-01-15", wantValid: true, wantDate: "2024-01-15"},

		// Invalid
		{name: "empty", input: "", wantValid: false},
		{name: "not a date", input: "not-a-date", wantValid: false},
		{name: "month 13", input: "2024-13-01", wantValid: false},
		{name: "day 32", input: "2024-01-32", wantValid: false},
		{name: "non-leap Feb 29", input: "2023-02-29", wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input, now)
			if ok != tt.wantValid {
				t.Fatalf("ParseDate(%q) ok = %v, want %v", tt.input, ok, tt.wantValid)
			}
			if ok && got != tt.wantDate {
				t.Errorf("ParseDate(%q) = %q, want %q", tt.input, got, tt.wantDate)
			}
		})
	}
}

func TestParseDate_TwoDigitYear(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		input    string
		wantDate string
	}{
		{"01/15/25", "2025-01-15"},
		{"01/15/30", "2030-01-15"},
		{"01/15/46", "2046-01-15"},
		{"01/15/50", "1950-01-15"},
		{"01/15/99", "1999-01-15"},
		{"1-15-85", "1985-01-15"},
		{"01.15.99", "1999-01-15"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseDate(tt.input, now)
			if !ok {
				t.Fatalf("ParseDate(%q) not ok", tt.input)
			}
			if got != tt.wantDate {
				t.Errorf("ParseDate(%q) = %q, want %q", tt.input, got, tt.wantDate)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseBool Tests
// ----------------------------------------------------------------------------

func TestParseBool(t *testing.T) {
	tests := []struct {
		input     string
		wantValid bool
		wantValue bool
	}{
		{"true", true, true},
		{"TRUE", true, true},
		{"yes", true, true},
		{"Y", true, true},
		{"1", true, true},
		{"t", true, true},
		{"false", true, false},
		{"No", true, false},
		{"n", true, false},
		{"0", true, false},
		{"  yes  ", true, true},
		{"", false, false},
		{"maybe", false, false},
		{"on", false, false},
		{"2", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseBool(tt.input)
			if ok != tt.wantValid {
				t.Fatalf("ParseBool(%q) ok = %v, want %v", tt.input, ok, tt.wantValid)
			}
			if got != tt.wantValue {
				t.Errorf("ParseBool(%q) = %v, want %v", tt.input, got, tt.wantValue)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// CleanCell Tests
// ----------------------------------------------------------------------------

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "hello", want: "hello"},
		{name: "empty", input: "", want: ""},
		{name: "surrounding whitespace", input: "  hello  ", want: "hello"},
		{name: "excel formula string", input: `="hello"`, want: "hello"},
		{name: "excel formula number", input: `="12345"`, want: "12345"},
		{name: "bare equals", input: "=hello", want: "hello"},
		{name: "double quotes", input: `"hello"`, want: "hello"},
		{name: "single quotes", input: "'hello'", want: "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanCell(tt.input); got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeRegion(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"California", "CA"},
		{"new york", "NY"},
		{"tx", "TX"},
		{"WA", "WA"},
		{"Quebec", "QC"},
		{"british columbia", "BC"},
		{"District of Columbia", "DC"},
		{"Bavaria", "Bavaria"},
		{"  Ohio ", "OH"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeRegion(tt.input); got != tt.want {
			t.Errorf("NormalizeRegion(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestJurisdiction(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"ca", "CA"},
		{"Texas", "TX"},
		{"Ontario", "ON"},
		{"de-by", "DE-BY"},
		{"eu", "EU"},
	}
	for _, tt := range tests {
		if got := jurisdiction(tt.input); got != tt.want {
			t.Errorf("jurisdiction(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
