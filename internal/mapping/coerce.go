package mapping

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

var errEmpty = errors.New("empty value")

// isoLayouts are always accepted, even when a rule names its own format.
var isoLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// fallbackLayouts are tried when a rule has no format.
var fallbackLayouts = append(append([]string{}, isoLayouts...),
	"2006/01/02",
	"02/01/2006",
	"2/1/2006",
	"01/02/2006",
	"02-01-2006",
	"02.01.2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"02-Jan-2006",
	"02-Jan-06",
	"20060102",
)

// ISO currency codes written next to the number, as in "THB 12.50" or "12.50USD".
var (
	leadingCurrencyCode  = regexp.MustCompile(`^[A-Z]{3}(?:\s+|(\d))`)
	trailingCurrencyCode = regexp.MustCompile(`(?:\s+|(\d))[A-Z]{3}$`)
)

// buddhistEraOffset converts Thai Buddhist-era years to the Gregorian calendar.
const buddhistEraOffset = 543

// Layout converts a user-facing date format such as "dd/mm/yyyy" or "yyyy-MM-dd" to a Go
// layout. Formats that already contain the Go reference year are returned unchanged.
func Layout(format string) string {
	format = strings.TrimSpace(format)
	if format == "" || strings.Contains(format, "2006") {
		return format
	}

	var b strings.Builder
	runes := []rune(format)
	for i := 0; i < len(runes); {
		c := unicode.ToLower(runes[i])
		j := i
		for j < len(runes) && unicode.ToLower(runes[j]) == c {
			j++
		}
		n := j - i
		switch c {
		case 'y':
			if n >= 4 {
				b.WriteString("2006")
			} else {
				b.WriteString("06")
			}
		case 'm':
			switch {
			case n >= 4:
				b.WriteString("January")
			case n == 3:
				b.WriteString("Jan")
			case n == 2:
				b.WriteString("01")
			default:
				b.WriteString("1")
			}
		case 'd':
			if n >= 2 {
				b.WriteString("02")
			} else {
				b.WriteString("2")
			}
		default:
			b.WriteString(string(runes[i:j]))
		}
		i = j
	}
	return b.String()
}

// ParseDate coerces raw into a calendar date. A rule's format is tried first and then only
// the ISO layouts; without a format every fallback layout is tried. An Excel serial day
// number is accepted either way.
func ParseDate(raw, format string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, errEmpty
	}

	layouts := fallbackLayouts
	if layout := Layout(format); layout != "" {
		layouts = append([]string{layout}, isoLayouts...)
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return normalizeDate(ts), nil
		}
	}

	if serial, err := strconv.ParseFloat(value, 64); err == nil && serial >= 1 && serial < 200000 {
		excelEpoch := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
		return excelEpoch.AddDate(0, 0, int(serial)), nil
	}
	if format != "" {
		return time.Time{}, fmt.Errorf("date %q does not match format %q", value, format)
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

func normalizeDate(ts time.Time) time.Time {
	y, m, d := ts.Date()
	if y > 2400 {
		y -= buddhistEraOffset
	}
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseAmount coerces raw into a signed decimal. Thousands separators, currency symbols, a
// leading or trailing ISO currency code, and whitespace are ignored; "(12.50)" and "12.50-"
// are negative. Any other letter makes the value unrecognized.
func ParseAmount(raw string) (decimal.Decimal, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return decimal.Zero, errEmpty
	}

	value = stripCurrencyCode(value)
	negative := false
	if strings.HasPrefix(value, "(") && strings.HasSuffix(value, ")") {
		negative = true
		value = stripCurrencyCode(strings.TrimSpace(value[1 : len(value)-1]))
	}
	if strings.HasSuffix(value, "-") {
		negative = !negative
		value = strings.TrimSuffix(value, "-")
	}

	var b strings.Builder
	for _, r := range value {
		switch {
		case unicode.IsDigit(r), r == '.', r == '-':
			b.WriteRune(r)
		case r == '+', r == ',', unicode.IsSpace(r), unicode.Is(unicode.Sc, r):
			// separators and currency symbols
		default:
			return decimal.Zero, fmt.Errorf("unrecognized number %q", raw)
		}
	}

	cleaned := b.String()
	if cleaned == "" || cleaned == "-" {
		return decimal.Zero, fmt.Errorf("unrecognized number %q", raw)
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unrecognized number %q", raw)
	}
	if negative {
		amount = amount.Neg()
	}
	return amount, nil
}

func stripCurrencyCode(value string) string {
	value = leadingCurrencyCode.ReplaceAllString(value, "${1}")
	return trailingCurrencyCode.ReplaceAllString(value, "${1}")
}
