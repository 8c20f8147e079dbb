package api

import (
	"testing"

	"github.com/havona/darkbook/pkg/book"
)

func TestParseFixed(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"85.00", 85_000000, false},
		{"85.5", 85_500000, false},
		{"0.000001", 1, false},
		{"50000", 50_000_000000, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"85.0000001", 0, true}, // sub-micro precision
		{"abc", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := parseFixed(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseFixed(%q) accepted, got %d", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseFixed(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseFixed(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFormatFixedRoundTrips(t *testing.T) {
	for _, s := range []string{"85.5", "0.000001", "50000"} {
		v, err := parseFixed(s)
		if err != nil {
			t.Fatalf("parseFixed(%q): %v", s, err)
		}
		if got := formatFixed(v); got != s {
			t.Errorf("formatFixed(parseFixed(%q)) = %q", s, got)
		}
	}
}

func TestParseCommodity(t *testing.T) {
	tag := book.CommodityTag("CRUDE_OIL_WTI")

	byName, err := parseCommodity("CRUDE_OIL_WTI")
	if err != nil {
		t.Fatalf("by name: %v", err)
	}
	if byName != tag {
		t.Fatal("name did not derive the keccak tag")
	}

	byTag, err := parseCommodity(tag.Hex())
	if err != nil {
		t.Fatalf("by tag: %v", err)
	}
	if byTag != tag {
		t.Fatal("hex tag did not parse to itself")
	}

	if _, err := parseCommodity(""); err == nil {
		t.Fatal("empty commodity accepted")
	}
}

func TestParseSide(t *testing.T) {
	if s, err := parseSide("buy"); err != nil || s != book.SideBuy {
		t.Fatalf("buy: %v, %v", s, err)
	}
	if s, err := parseSide("sell"); err != nil || s != book.SideSell {
		t.Fatalf("sell: %v, %v", s, err)
	}
	if _, err := parseSide("hold"); err == nil {
		t.Fatal("bad side accepted")
	}
}
