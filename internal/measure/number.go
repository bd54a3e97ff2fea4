// Package measure parses the numbers, ranges, and units found in laboratory
// reports.
package measure

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Decimal separators accepted by ParseDecimal. SeparatorAuto guesses.
const (
	SeparatorComma = ","
	SeparatorDot   = "."
	SeparatorAuto  = ""
)

// ParseDecimal parses a report number such as "1.234,5" (comma separator)
// or "< 0,5". Comparison prefixes are dropped; callers that care about them
// should check IsCensored first.
func ParseDecimal(s, sep string) (float64, error) {
	raw := s
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "<>=≤≥ ")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, eris.Errorf("measure: empty number %q", raw)
	}

	switch sep {
	case SeparatorComma:
		if strings.Count(s, ",") > 1 {
			return 0, eris.Errorf("measure: invalid number %q", raw)
		}
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case SeparatorDot:
		if strings.Count(s, ".") > 1 {
			return 0, eris.Errorf("measure: invalid number %q", raw)
		}
		s = strings.ReplaceAll(s, ",", "")
	default:
		s = guessSeparators(s)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "measure: invalid number %q", raw)
	}
	return v, nil
}

// guessSeparators rewrites s into Go float syntax. With both separators the
// last one is the decimal mark. A repeated separator, or a single one
// followed by exactly three digits after a non-zero integer part, is a
// thousands mark. Any other single separator is the decimal mark. Repeated
// separators with malformed groups are left for ParseFloat to reject.
func guessSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			return strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma < 0 && lastDot < 0:
		return s
	}

	mark, at := ".", lastDot
	if lastComma >= 0 {
		mark, at = ",", lastComma
	}
	if strings.Count(s, mark) > 1 {
		groups := strings.Split(s, mark)
		for _, g := range groups[1:] {
			if len(g) != 3 || !allDigits(g) {
				return s
			}
		}
		return strings.Join(groups, "")
	}
	if isThousandsGroup(s[:at], s[at+1:]) {
		return strings.ReplaceAll(s, mark, "")
	}
	return strings.Replace(s, mark, ".", 1)
}

func isThousandsGroup(intPart, frac string) bool {
	if len(frac) != 3 || !allDigits(frac) || !allDigits(intPart) {
		return false
	}
	return strings.TrimLeft(intPart, "0") != ""
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsCensored reports whether a result is a bound ("< 0,5", "> 90") rather
// than a measured value.
func IsCensored(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "<") || strings.HasPrefix(s, ">") ||
		strings.HasPrefix(s, "≤") || strings.HasPrefix(s, "≥")
}
