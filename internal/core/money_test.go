package core

import "testing"

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "0"},
		{"   ", "0"},
		{"12", "12"},
		{"12.34", "12.34"},
		{"12,34", "12.34"},
		{"1,234.50", "1234.50"},
		{"1 234,5", "1234.5"},
		{"-7.5", "-7.5"},
		{"abc", "0"},
		{"1.2.3", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assertDec(t, "ParseAmount("+tt.in+")", ParseAmount(tt.in), tt.want)
		})
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(dec("1234.5")); got != "1234.50" {
		t.Fatalf("FormatAmount = %q", got)
	}
	if got := FormatAmount(dec("-0.125")); got != "-0.13" {
		t.Fatalf("FormatAmount = %q", got)
	}
}
