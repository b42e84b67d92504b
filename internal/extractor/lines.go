package extractor

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"reclaim/internal/facts"
)

// Shared line-scanning helpers. Strategies work line by line and skip
// anything they cannot parse; a skipped line is tolerance, not an error.

var (
	amountRe  = regexp.MustCompile(`\(?\$?\d{1,3}(?:,\d{3})*\.\d{2}\)?`)
	dateRe    = regexp.MustCompile(`\b(?:\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4}|\d{2}-\d{2}-\d{4})\b`)
	cptRe     = regexp.MustCompile(`\b\d{5}\b`)
	cdtRe     = regexp.MustCompile(`\bD\d{4}\b`)
	ndcRe     = regexp.MustCompile(`\b\d{5}-\d{4}-\d{2}\b`)
	rxRe      = regexp.MustCompile(`(?i)\bRx\s*#?\s*(\d{5,})`)
	claimRe   = regexp.MustCompile(`(?i)claim\s*(?:number|no\.?|#)?\s*[:#]?\s*([A-Z0-9-]{5,})`)
	accountRe = regexp.MustCompile(`(?i)account\s*(?:number|no\.?|#)?\s*[:#]?\s*([A-Z0-9-]{4,})`)
)

// splitLines splits text into trimmed, non-empty lines.
func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// validText reports whether the input is decodable text worth scanning.
func validText(text string) bool {
	return utf8.ValidString(text)
}

// findAmounts returns all non-negative amounts on a line, in order.
func findAmounts(line string) []float64 {
	var out []float64
	for _, m := range amountRe.FindAllString(line, -1) {
		v, ok := facts.ParseAmount(m)
		if !ok || v < 0 {
			continue
		}
		out = append(out, v)
	}
	return out
}

// findDate returns the first normalized date on a line, or "".
func findDate(line string) string {
	m := dateRe.FindString(line)
	if m == "" {
		return ""
	}
	return facts.NormalizeDate(m)
}

// stripMatches removes code, date, and amount tokens from a line, leaving
// the description text.
func stripMatches(line string, res ...*regexp.Regexp) string {
	for _, re := range res {
		line = re.ReplaceAllString(line, " ")
	}
	line = strings.Join(strings.Fields(line), " ")
	return strings.Trim(line, " -:|")
}

// firstSubmatch returns the first capture group of re in text, or "".
func firstSubmatch(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// labeledAmount scans for a label phrase and returns the first amount on the
// same line, e.g. labeledAmount(text, "total due") for "Total Due: $45.00".
func labeledAmount(text string, labels ...string) (float64, bool) {
	lower := strings.ToLower(text)
	for _, line := range splitLines(lower) {
		for _, label := range labels {
			if !strings.Contains(line, label) {
				continue
			}
			if amounts := findAmounts(line); len(amounts) > 0 {
				return amounts[len(amounts)-1], true
			}
		}
	}
	return 0, false
}

// providerName guesses the billing provider from the first line that is not
// itself a parseable charge or label row.
func providerName(lines []string) string {
	for _, l := range lines {
		if len(findAmounts(l)) > 0 {
			continue
		}
		lower := strings.ToLower(l)
		if strings.Contains(lower, "statement") || strings.Contains(lower, "page ") {
			continue
		}
		if len(l) >= 3 {
			return l
		}
	}
	return ""
}
