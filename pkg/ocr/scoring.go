package ocr

import "strings"

// PilihNominal selects the best candidate amount from raw matches. Currency
// markers and total/context keywords outrank bigger bare numbers so that a
// transaction id never beats "Jumlah Rp300.000".
func PilihNominal(matches []string) (int64, string, bool) {
	type cand struct {
		amt   int64
		raw   string
		score int
	}
	scoreFor := func(raw string) int {
		s := 0
		low := strings.ToLower(raw)
		if strings.Contains(low, "rp") || strings.Contains(low, "idr") {
			s += 10
		}
		if strings.Contains(low, "total") || strings.Contains(low, "jumlah") {
			s += 8
		}
		if strings.Contains(low, "pkh") || strings.Contains(low, "bantuan") {
			s += 6
		}
		if strings.Contains(raw, ".") || strings.Contains(raw, ",") {
			s += 5
		}
		if strings.HasSuffix(raw, ",00") || strings.HasSuffix(raw, ".00") {
			s += 3
		}
		if len(onlyDigits(raw)) >= 4 {
			s++
		}
		return s
	}
	var cands []cand
	for _, m := range matches {
		amt, err := ParseNominal(m)
		if err != nil || amt <= 0 {
			continue
		}
		cands = append(cands, cand{amt: amt, raw: m, score: scoreFor(m)})
	}
	if len(cands) == 0 {
		return 0, "", false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		switch {
		case c.score > best.score:
			best = c
		case c.score == best.score && c.amt > best.amt:
			best = c
		case c.score == best.score && c.amt == best.amt && len(c.raw) > len(best.raw):
			best = c
		}
	}
	return best.amt, best.raw, true
}
