package extract

import (
	"regexp"
	"strings"

	"github.com/sells-group/labexam-cli/internal/measure"
	"github.com/sells-group/labexam-cli/internal/model"
)

// Candidate is one located measurement before reference evaluation.
type Candidate struct {
	RawName       string
	StandardName  string
	Standardized  bool
	ResultRaw     string
	ResultNumeric *float64
	Unit          string
	ReferenceText string
	Date          string
	Method        model.ExtractionMethod
	Notes         []string
	Line          string
	LineNo        int // 1-based; 0 when not tied to a line
}

// Review notes attached to candidates.
const (
	noteUnparsedNumber = "valor numérico não interpretado"
	noteUnparsedDate   = "data não interpretada"
	noteCensored       = "resultado no limite do método"
)

var numericResultRe = regexp.MustCompile(`^(?:[<>≤≥]=?\s*)?\d`)

func newCandidate(doc *Document, seg Segment, lineNo int, name, value, unit, ref string, method model.ExtractionMethod) Candidate {
	c := Candidate{
		RawName:       strings.TrimSpace(name),
		ResultRaw:     strings.TrimSpace(value),
		Unit:          strings.TrimSpace(unit),
		ReferenceText: strings.TrimSpace(ref),
		Date:          seg.Date,
		Method:        method,
	}
	if lineNo >= 0 && lineNo < len(doc.Lines) {
		c.Line = strings.TrimSpace(doc.Lines[lineNo])
		c.LineNo = lineNo + 1
	}
	if seg.Date != "" && !seg.Parsed {
		c.Notes = append(c.Notes, noteUnparsedDate+": "+seg.Date)
	}
	c.parseResult(doc.Layout.DecimalSeparator)
	return c
}

// parseResult fills ResultNumeric from ResultRaw. Qualitative results stay
// nil; malformed numbers stay nil with a note.
func (c *Candidate) parseResult(sep string) {
	c.ResultNumeric = nil
	if !numericResultRe.MatchString(c.ResultRaw) {
		return
	}
	v, err := measure.ParseDecimal(c.ResultRaw, sep)
	if err != nil {
		c.Notes = append(c.Notes, noteUnparsedNumber+": "+c.ResultRaw)
		return
	}
	c.ResultNumeric = &v
	if measure.IsCensored(c.ResultRaw) {
		c.Notes = append(c.Notes, noteCensored)
	}
}
