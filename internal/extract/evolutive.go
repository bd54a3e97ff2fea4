package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/sells-group/labexam-cli/internal/model"
)

// Table is an evolutive block: a header row of collection dates followed by
// rows carrying one value per date column.
type Table struct {
	Header int
	Dates  []TableDate
	Rows   []int
}

// TableDate is one date column.
type TableDate struct {
	Date   string
	Parsed bool
}

var (
	valueTokenRe = regexp.MustCompile(`^(?:[<>≤≥]=?)?\d+(?:[.,]\d+)*$`)
	unitishRe    = regexp.MustCompile(`(?i)^(?:%|\S*[/%³²µμ]\S*|fl|pg|ui|u|ng|mg|g|ml|dl|mm|seg|segundos|mmhg|meq|mmol|x10\S*|mil|milh[õo]es|c[ée]ls?)$`)
)

// emptyCell reports the placeholders used for dates without a result.
func emptyCell(tok string) bool {
	switch tok {
	case "-", "--", "---", "—":
		return true
	}
	return false
}

func isValueToken(tok string) bool {
	return valueTokenRe.MatchString(tok) || emptyCell(tok)
}

func isUnitToken(tok string) bool {
	return !valueTokenRe.MatchString(tok) && unitishRe.MatchString(tok)
}

// tableHeader returns the distinct column dates when line looks like an
// evolutive header. Labelled dates ("Coletado em: ...") and birth-date lines
// do not count.
func tableHeader(line string) []string {
	if birthLineRe.MatchString(line) {
		return nil
	}
	locs := dateRe.FindAllStringIndex(line, -1)
	if len(locs) < 2 {
		return nil
	}
	seen := make(map[string]bool)
	var dates []string
	for _, loc := range locs {
		if strings.HasSuffix(strings.TrimSpace(line[:loc[0]]), ":") {
			return nil
		}
		d := line[loc[0]:loc[1]]
		if !seen[d] {
			seen[d] = true
			dates = append(dates, d)
		}
	}
	if len(dates) < 2 {
		return nil
	}
	return dates
}

type tableRow struct {
	name   string
	values []string
	unit   string
	ref    string
}

// parseTableRow splits "GLICOSE  95  --  102  70 a 99 mg/dL" into name,
// up to n values, unit and reference.
func parseTableRow(line string, n int) (tableRow, bool) {
	fields := strings.Fields(line)
	k := -1
	for i, f := range fields {
		if isValueToken(f) {
			k = i
			break
		}
	}
	if k < 1 {
		return tableRow{}, false
	}

	nameFields := fields[:k]
	var unit string
	if last := nameFields[len(nameFields)-1]; len(nameFields) > 1 && isUnitToken(last) {
		unit = last
		nameFields = nameFields[:len(nameFields)-1]
	}
	name := strings.TrimRight(strings.Join(nameFields, " "), ":.")
	if !strings.ContainsFunc(name, unicode.IsLetter) {
		return tableRow{}, false
	}

	count := 0
	for k+count < len(fields) && isValueToken(fields[k+count]) {
		count++
	}
	take := min(count, n)
	row := tableRow{name: name, values: fields[k : k+take], unit: unit}

	rest := fields[k+take:]
	if row.unit == "" && len(rest) > 0 && isUnitToken(rest[0]) {
		row.unit = rest[0]
		rest = rest[1:]
	}
	row.ref = strings.Join(rest, " ")
	if row.unit == "" && len(rest) > 1 && isUnitToken(rest[len(rest)-1]) {
		row.unit = rest[len(rest)-1]
	}
	return row, true
}

// findTables locates evolutive tables and marks their lines in inTable.
func findTables(lines []string, format string, inTable []bool) []Table {
	var tables []Table
	for i := 0; i < len(lines); i++ {
		rawDates := tableHeader(lines[i])
		if rawDates == nil {
			continue
		}

		t := Table{Header: i}
		for _, d := range rawDates {
			iso, ok := NormalizeDate(d, format)
			t.Dates = append(t.Dates, TableDate{Date: iso, Parsed: ok})
		}

		j := i + 1
		for ; j < len(lines); j++ {
			line := lines[j]
			if strings.TrimSpace(line) == "" {
				continue
			}
			if tableHeader(line) != nil {
				break
			}
			if _, ok := parseTableRow(line, len(t.Dates)); !ok {
				break
			}
			t.Rows = append(t.Rows, j)
		}

		if len(t.Rows) > 0 {
			inTable[t.Header] = true
			for _, r := range t.Rows {
				inTable[r] = true
			}
			tables = append(tables, t)
		}
		i = j - 1
	}
	return tables
}

// tableCandidates yields one candidate per non-empty cell.
func tableCandidates(doc *Document) []Candidate {
	var out []Candidate
	for _, t := range doc.Tables {
		for _, lineNo := range t.Rows {
			row, ok := parseTableRow(doc.Lines[lineNo], len(t.Dates))
			if !ok {
				continue
			}
			for col, v := range row.values {
				if emptyCell(v) {
					continue
				}
				seg := Segment{Date: t.Dates[col].Date, Parsed: t.Dates[col].Parsed}
				out = append(out, newCandidate(doc, seg, lineNo, row.name, v, row.unit, row.ref, model.MethodRegex))
			}
		}
	}
	return out
}
