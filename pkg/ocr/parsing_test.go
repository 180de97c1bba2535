package ocr

import (
	"testing"
	"unicode/utf8"
)

func TestParseNominalStripDecimals(t *testing.T) {
	amt, err := ParseNominal("300.000,00")
	if err != nil || amt != 300000 {
		t.Fatalf("expected 300000 got %d err=%v", amt, err)
	}
	amt2, err2 := ParseNominal("7,500.00")
	if err2 != nil || amt2 != 7500 {
		t.Fatalf("expected 7500 got %d err=%v", amt2, err2)
	}
	amt3, err3 := ParseNominal("Rp600.000")
	if err3 != nil || amt3 != 600000 {
		t.Fatalf("expected 600000 got %d err=%v", amt3, err3)
	}
}

func TestParseNominalRejectsEmpty(t *testing.T) {
	if _, err := ParseNominal("   "); err == nil {
		t.Fatal("expected error for blank input")
	}
	if _, err := ParseNominal("Rp"); err == nil {
		t.Fatal("expected error for digitless input")
	}
}

func TestPlausibleNominal(t *testing.T) {
	cases := map[string]bool{
		"Rp300.000":        true,
		"300.000":          true,
		"3000":             true,
		"081234567890":     false, // phone number, leading zero
		"3201011709990001": false, // NIK-length digit run
		"250903":           false, // irregular mid-size id
	}
	for in, want := range cases {
		if got := isPlausibleNominal(in); got != want {
			t.Errorf("isPlausibleNominal(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSnippetPotongPadaBatasRune(t *testing.T) {
	if got := snippet("Rp300.000", 20); got != "Rp300.000" {
		t.Fatalf("short input must pass through, got %q", got)
	}
	got := snippet("Rp300·000 diterima", 8)
	if !utf8.ValidString(got) {
		t.Fatalf("snippet produced invalid UTF-8: %q", got)
	}
	if got != "Rp300·00…" {
		t.Fatalf("unexpected snippet %q", got)
	}
}

func TestParseRibu(t *testing.T) {
	amt, raw := parseRibu("bantuan tunai 400 ribu rupiah")
	if amt != 400000 || raw == "" {
		t.Fatalf("expected 400000 got %d raw=%q", amt, raw)
	}
	if amt, _ := parseRibu("tanpa nominal"); amt != 0 {
		t.Fatalf("expected 0 got %d", amt)
	}
}
