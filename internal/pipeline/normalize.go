package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/shopspring/decimal"
)

var (
	usDatePattern  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// NormalizeDate converts a bank date string into YYYY-MM-DD.
//
// Order of attempts: MM/DD/YYYY (zero-padded), ISO passthrough, then a
// generic parse taking the UTC calendar date. When nothing matches, or the
// generic parse finds no year, the trimmed input is returned unchanged.
func NormalizeDate(raw string) string {
	s := strings.TrimSpace(strings.ReplaceAll(raw, `"`, ""))

	if m := usDatePattern.FindStringSubmatch(s); m != nil {
		return fmt.Sprintf("%s-%s-%s", m[3], padTwo(m[1]), padTwo(m[2]))
	}
	if isoDatePattern.MatchString(s) {
		return s
	}
	if s == "" {
		return s
	}

	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil || t.Year() == 0 {
		return s
	}
	return t.UTC().Format("2006-01-02")
}

func padTwo(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// ParseAmount parses a signed amount after removing "$" and "," characters.
// Surrounding quotes and whitespace are ignored. "(12.50)" is read as -12.50.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, `"`, ""))
	s = strings.NewReplacer("$", "", ",", "").Replace(s)
	s = strings.TrimSpace(s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if s == "" {
		return decimal.Zero, fmt.Errorf("ParseAmount: empty amount")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ParseAmount: %q: %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}
