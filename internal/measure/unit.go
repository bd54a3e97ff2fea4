package measure

import "strings"

var unitReplacer = strings.NewReplacer(
	"µ", "u",
	"μ", "u",
	"mcg", "ug",
	"³", "3",
	"²", "2",
	" ", "",
)

// NormalizeUnit reduces a unit to a comparison key: "µg/dL" -> "ug/dl".
func NormalizeUnit(u string) string {
	return unitReplacer.Replace(strings.ToLower(strings.TrimSpace(u)))
}

// SameUnit reports whether two units are compatible. An empty unit is
// compatible with anything.
func SameUnit(a, b string) bool {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return true
	}
	return NormalizeUnit(a) == NormalizeUnit(b)
}
