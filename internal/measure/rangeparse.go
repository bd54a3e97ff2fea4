package measure

import (
	"regexp"
	"strings"

	"github.com/sells-group/labexam-cli/internal/model"
	"github.com/sells-group/labexam-cli/internal/synonym"
)

// Range is a reference interval. Either bound may be open.
type Range struct {
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Unit string   `json:"unit,omitempty"`
}

// Bounded reports whether at least one bound is set.
func (r Range) Bounded() bool {
	return r.Min != nil || r.Max != nil
}

// Classify returns whether v is outside the range and in which direction.
func (r Range) Classify(v float64) (bool, model.AlertType) {
	if r.Min != nil && v < *r.Min {
		return true, model.AlertLow
	}
	if r.Max != nil && v > *r.Max {
		return true, model.AlertHigh
	}
	return false, ""
}

const num = `(\d+(?:[.,]\d+)*)`

var (
	betweenRe = regexp.MustCompile(`(?i)` + num + `\s*(?:-|–|\ba\b|\bate\b)\s*` + num)
	upperRe   = regexp.MustCompile(`(?i)(?:<=|≤|<|\bate\b|\binferior\s+a\b|\bmenor\s+(?:que|do\s+que)\b|\babaixo\s+de\b)\s*` + num)
	lowerRe   = regexp.MustCompile(`(?i)(?:>=|≥|>|\bsuperior\s+a\b|\bmaior\s+(?:que|do\s+que)\b|\bacima\s+de\b)\s*` + num)
)

// ParseRange extracts a numeric interval from free reference text such as
// "70 a 99 mg/dL", "VR: 3,5-5,1", "Inferior a 40" or "Até 5,7%".
func ParseRange(text, sep string) (Range, bool) {
	folded := strings.ToLower(synonym.Fold(text))

	if m := betweenRe.FindStringSubmatch(folded); m != nil {
		lo, errLo := ParseDecimal(m[1], sep)
		hi, errHi := ParseDecimal(m[2], sep)
		if errLo == nil && errHi == nil && lo <= hi {
			return Range{Min: &lo, Max: &hi}, true
		}
	}
	if m := upperRe.FindStringSubmatch(folded); m != nil {
		if hi, err := ParseDecimal(m[1], sep); err == nil {
			return Range{Max: &hi}, true
		}
	}
	if m := lowerRe.FindStringSubmatch(folded); m != nil {
		if lo, err := ParseDecimal(m[1], sep); err == nil {
			return Range{Min: &lo}, true
		}
	}
	return Range{}, false
}
