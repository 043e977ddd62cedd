package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var nullTokens = map[string]bool{
	"":     true,
	"null": true,
	"nan":  true,
	"n/a":  true,
	"none": true,
}

// IsNull reports whether a cell counts as missing
func IsNull(cell string) bool {
	return nullTokens[strings.ToLower(strings.TrimSpace(cell))]
}

// ParseAmount parses a signed monetary value. Thousands separators, currency symbols,
// accounting parentheses and trailing minus signs are accepted.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if IsNull(s) {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasSuffix(s, "-") {
		negative = !negative
		s = strings.TrimSpace(strings.TrimSuffix(s, "-"))
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ',', ' ', '\u00a0', '$', '€', '£', '¥':
			return -1
		}
		return r
	}, s)
	if s == "-" || s == "" {
		return decimal.Zero, nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseFlag interprets yes/no style cells; anything naming a reconciliation counts as true
func ParseFlag(raw string) bool {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "true", "yes", "y", "1", "x":
		return true
	case "", "false", "no", "n", "0":
		return false
	}
	return strings.Contains(v, "recon")
}

// ParsePercent parses "12.5", "12.5%" or "(12.5)"; empty means zero
func ParsePercent(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if IsNull(s) {
		return 0, nil
	}
	s = strings.TrimSuffix(s, "%")
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid percentage %q", raw)
	}
	if negative {
		v = -v
	}
	return v, nil
}

var (
	periodISO     = regexp.MustCompile(`^(\d{4})[-/.](\d{1,2})$`)
	periodCompact = regexp.MustCompile(`^(\d{4})(\d{2})$`)
	periodUS      = regexp.MustCompile(`^(\d{1,2})[-/.](\d{4})$`)
)

// NormalizePeriod rewrites common period spellings to YYYY-MM.
// Unrecognized input is returned trimmed so format checks can flag it later.
func NormalizePeriod(raw string) string {
	s := strings.TrimSpace(raw)
	var year, month string
	switch {
	case periodISO.MatchString(s):
		m := periodISO.FindStringSubmatch(s)
		year, month = m[1], m[2]
	case periodCompact.MatchString(s):
		m := periodCompact.FindStringSubmatch(s)
		year, month = m[1], m[2]
	case periodUS.MatchString(s):
		m := periodUS.FindStringSubmatch(s)
		year, month = m[2], m[1]
	default:
		return s
	}
	if len(month) == 1 {
		month = "0" + month
	}
	return year + "-" + month
}

var dateLayouts = []string{"2006-01-02", "01/02/2006", "02.01.2006", "2006/01/02", time.RFC3339}

func inferType(value string) string {
	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		return "integer"
	}
	if _, err := ParseAmount(value); err == nil {
		return "decimal"
	}
	switch strings.ToLower(value) {
	case "true", "false", "yes", "no":
		return "boolean"
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return "date"
		}
	}
	return "string"
}
