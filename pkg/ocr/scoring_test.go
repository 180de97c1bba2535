package ocr

import "testing"

func TestPilihNominalTotalPriority(t *testing.T) {
	// Rp500.000 is larger, but the JUMLAH-context match should win.
	matches := []string{"Rp500.000", "JUMLAH Rp300.000"}
	amt, raw, ok := PilihNominal(matches)
	if !ok {
		t.Fatal("no amount chosen")
	}
	if amt != 300000 {
		t.Fatalf("expected 300000 (JUMLAH) got %d raw=%s", amt, raw)
	}
}

func TestPilihNominalCurrencyBeatsBareDigits(t *testing.T) {
	matches := []string{"1234500", "Rp300.000"}
	amt, _, ok := PilihNominal(matches)
	if !ok || amt != 300000 {
		t.Fatalf("expected 300000 got %d ok=%v", amt, ok)
	}
}

func TestPilihNominalEmpty(t *testing.T) {
	if _, _, ok := PilihNominal(nil); ok {
		t.Fatal("expected no candidate")
	}
}
