package extractor

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNoAmount is returned when a string holds no digits.
var ErrNoAmount = errors.New("no numeric amount")

var (
	nonNumericRe   = regexp.MustCompile(`[^\d.,\-]`)
	commaGroupedRe = regexp.MustCompile(`^-?[1-9]\d{0,2}(?:,\d{3})+$`)
	dotGroupedRe   = regexp.MustCompile(`^-?[1-9]\d{0,2}(?:\.\d{3}){2,}$`)
)

// ParseAmount converts an amount as written in an email into an exact
// decimal. Currency symbols, codes and grouping separators are dropped.
// When both "." and "," appear the later one is the decimal point; a lone
// "," is a thousands separator only if it groups digits in threes behind
// a non-zero leading group, so "0,500" reads as one half.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := nonNumericRe.ReplaceAllString(raw, "")
	s = strings.TrimRight(s, ".,")
	if strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' }) < 0 {
		return decimal.Zero, fmt.Errorf("%w in %q", ErrNoAmount, raw)
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		switch {
		case commaGroupedRe.MatchString(s):
			s = strings.ReplaceAll(s, ",", "")
		case strings.Count(s, ",") == 1:
			s = strings.Replace(s, ",", ".", 1)
		default:
			return decimal.Zero, fmt.Errorf("ambiguous amount %q", raw)
		}
	case lastDot >= 0 && strings.Count(s, ".") > 1:
		if !dotGroupedRe.MatchString(s) {
			return decimal.Zero, fmt.Errorf("ambiguous amount %q", raw)
		}
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return d, nil
}
