package pipeline

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"us format", "03/07/2026", "2026-03-07"},
		{"us format without padding", "3/7/2026", "2026-03-07"},
		{"quoted us format", `"12/31/2025"`, "2025-12-31"},
		{"iso passthrough", "2026-03-07", "2026-03-07"},
		{"iso with spaces", "  2026-03-07 ", "2026-03-07"},
		{"long month name", "March 7, 2026", "2026-03-07"},
		{"timestamp with offset uses UTC date", "2026-03-07T23:30:00-05:00", "2026-03-08"},
		{"unparseable returned trimmed", "  pending ", "pending"},
		{"month and day without year", " 1/1 ", "1/1"},
		{"bare time fragment", "9:", "9:"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeDate(tt.raw); got != tt.want {
				t.Errorf("NormalizeDate(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "$1,234.56", want: "1234.56"},
		{raw: "-4.50", want: "-4.5"},
		{raw: "  25 ", want: "25"},
		{raw: `"$-1,000.00"`, want: "-1000"},
		{raw: "(12.50)", want: "-12.5"},
		{raw: "abc", wantErr: true},
		{raw: "$", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "12.3.4", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseAmount(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAmount(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}
