package ocr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var centsRE = regexp.MustCompile(`[.,]\d{2}$`)

// ParseNominal normalizes a matched substring into whole rupiah. A trailing
// two-digit decimal part is dropped (300.000,00 -> 300000); grouping dots and
// commas are ignored.
func ParseNominal(found string) (int64, error) {
	s := strings.TrimSpace(found)
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	if centsRE.MatchString(s) {
		lastDot := strings.LastIndex(s, ".")
		lastComma := strings.LastIndex(s, ",")
		if lastComma > lastDot {
			s = s[:lastComma]
		} else if lastDot > lastComma {
			s = s[:lastDot]
		}
	}
	digits := onlyDigits(s)
	if digits == "" {
		return 0, fmt.Errorf("no digits extracted from %q", found)
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse nominal %q: %w", digits, err)
	}
	if n < 0 {
		n = -n
	}
	return n, nil
}

// isPlausibleNominal filters out numeric substrings that are more likely NIK
// fragments, phone numbers or transaction ids than rupiah amounts: currency
// hints or grouping separators pass, long plain digit runs and leading zeros
// do not.
func isPlausibleNominal(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	low := strings.ToLower(s)
	if strings.Contains(low, "rp") || strings.Contains(low, "idr") {
		return true
	}
	d := onlyDigits(s)
	if d == "" || d[0] == '0' {
		return false
	}
	if strings.Contains(s, ".") || strings.Contains(s, ",") {
		return len(d) >= 3
	}
	if len(d) > 7 || len(d) < 2 {
		return false
	}
	if len(d) >= 5 && !(strings.HasSuffix(d, "000") || strings.HasSuffix(d, "500")) {
		// reject irregular mid-size ids like 250903
		return false
	}
	return true
}

// onlyDigits extracts decimal digits from a string.
func onlyDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
