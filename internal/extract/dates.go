package extract

import (
	"regexp"
	"strings"
	"time"
)

// Date formats a laboratory template may declare.
const (
	DateFormatDMY      = "DD/MM/YYYY"
	DateFormatDMYShort = "DD/MM/YY"
	DateFormatISO      = "YYYY-MM-DD"
	DateFormatDMYDash  = "DD-MM-YYYY"
	DateFormatDMYDot   = "DD.MM.YYYY"
)

var dateLayouts = map[string]string{
	DateFormatDMY:      "2/1/2006",
	DateFormatDMYShort: "2/1/06",
	DateFormatISO:      "2006-01-02",
	DateFormatDMYDash:  "2-1-2006",
	DateFormatDMYDot:   "2.1.2006",
}

// fallbackOrder is tried after the declared format fails.
var fallbackOrder = []string{DateFormatDMY, DateFormatISO, DateFormatDMYDash, DateFormatDMYDot, DateFormatDMYShort}

var dateRe = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}[/.-]\d{1,2}[/.-](?:\d{4}|\d{2}))\b`)

// NormalizeDate converts raw into YYYY-MM-DD. The declared format is tried
// first, then the other known formats. ok is false when nothing parses.
func NormalizeDate(raw, format string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if t, ok := parseDate(raw, format); ok {
		return t.Format("2006-01-02"), true
	}
	return raw, false
}

func parseDate(raw, format string) (time.Time, bool) {
	tried := ""
	if layout, ok := dateLayouts[strings.ToUpper(strings.TrimSpace(format))]; ok {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
		tried = layout
	}
	for _, f := range fallbackOrder {
		layout := dateLayouts[f]
		if layout == tried {
			continue
		}
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// findDates returns every date-shaped token in s, in order.
func findDates(s string) []string {
	return dateRe.FindAllString(s, -1)
}
