package ocr

import (
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

var matchPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:jumlah(?:\s+(?:transfer|bantuan))?|total(?:\s+bayar)?|penyaluran|transfer)[:\s]*(?:Rp|IDR)?[\s]*([0-9\.,]+)`),
	regexp.MustCompile(`(?i)Rp[\s]*([0-9\.,]+)`),
	regexp.MustCompile(`(?i)IDR[\s]*([0-9\.,]+)`),
	regexp.MustCompile(`([0-9]{1,3}(?:[.,][0-9]{3})+)`),
	regexp.MustCompile(`([0-9]{5,})`),
}

// BacaNominalBukti runs preprocessing + Tesseract over a disbursement proof
// photo and tries to extract the paid amount in whole rupiah. Returns the
// amount, a rough confidence in [0,1] and the raw matched substring.
// ErrNoAmount is returned when nothing plausible is found.
func BacaNominalBukti(path string) (int64, float64, string, error) {
	tmp, cleanup := prepareImage(path)
	defer cleanup()

	client := gosseract.NewClient()
	defer client.Close()
	_ = client.SetLanguage("eng")
	_ = client.SetWhitelist("0123456789RpIDRidri.,:()/- JUMLAHTOTALjumlahtotal")
	if err := client.SetImage(tmp); err != nil {
		return 0, 0, "", fmt.Errorf("set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return 0, 0, "", fmt.Errorf("ocr error: %w", err)
	}
	text = normalizeText(text)
	log.Printf("OCR %s snippet=%q", path, snippet(text, 160))

	matches := collectMatches(text)
	if len(matches) == 0 {
		// "300 ribu" style wording on handwritten receipts.
		if amt, raw := parseRibu(text); amt > 0 {
			return amt, 0.5, raw, nil
		}
		return 0, 0, "", ErrNoAmount
	}
	amt, raw, ok := PilihNominal(matches)
	if !ok {
		return 0, 0, "", ErrNoAmount
	}
	conf := float64(len(raw)) / float64(len(text)+1)
	if conf > 1 {
		conf = 1
	}
	low := strings.ToLower(raw)
	if strings.Contains(low, "rp") || strings.Contains(low, "idr") || strings.HasSuffix(low, ",00") || strings.HasSuffix(low, ".00") {
		if conf < 0.85 {
			conf = 0.85
		}
	}
	return amt, conf, raw, nil
}

// collectMatches gathers candidate amount substrings, re-attaching a currency
// marker when the capture group stripped it, and dropping implausible ones.
func collectMatches(text string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, re := range matchPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(m) < 2 {
				continue
			}
			s := strings.TrimSpace(m[1])
			if s == "" {
				continue
			}
			full := strings.ToLower(m[0])
			lowS := strings.ToLower(s)
			if (strings.Contains(full, "rp") || strings.Contains(full, "idr")) &&
				!strings.Contains(lowS, "rp") && !strings.Contains(lowS, "idr") {
				s = "Rp" + s
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			if !isPlausibleNominal(s) {
				continue
			}
			out = append(out, s)
		}
	}
	return out
}

var ribuRE = regexp.MustCompile(`(?i)\b([1-9][0-9]{0,3})\s*[,.:;-]?\s*ribu\b`)

// parseRibu reads "400 ribu" / "400ribu" as 400000. Capped at 9999 ribu to
// avoid scaling ids.
func parseRibu(text string) (int64, string) {
	m := ribuRE.FindStringSubmatch(strings.ToLower(text))
	if len(m) < 2 {
		return 0, ""
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 || n > 9999 {
		return 0, ""
	}
	return n * 1000, m[0]
}

// snippet returns a shortened version of text for logging, cutting on a rune
// boundary so raw Tesseract output never yields broken UTF-8.
func snippet(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}

// normalizeText collapses whitespace and replaces newlines/tabs.
func normalizeText(t string) string {
	t = strings.ReplaceAll(t, "\n", " ")
	t = strings.ReplaceAll(t, "\t", " ")
	return strings.Join(strings.Fields(t), " ")
}
