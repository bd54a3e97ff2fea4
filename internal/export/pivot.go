// Package export renders batch results as pivot tables, workbooks and
// plain-text reports.
package export

import (
	"sort"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/sells-group/labexam-cli/internal/model"
)

// AlteredMark is appended to out-of-range values.
const AlteredMark = "*"

// Missing fills pivot cells with no measurement.
const Missing = "-"

const noDate = "sem data"

// Cell is one exam value on one date.
type Cell struct {
	Value   string
	Unit    string
	Altered bool
	Present bool
}

// Text renders the cell for tables.
func (c Cell) Text() string {
	switch {
	case !c.Present:
		return Missing
	case c.Altered:
		return c.Value + AlteredMark
	}
	return c.Value
}

// PivotRow holds one exam across every date of a patient.
type PivotRow struct {
	Exam  string
	Cells []Cell
}

// Pivot is the exams-by-dates table of one patient.
type Pivot struct {
	Patient string
	Dates   []string // ISO when parsed, as printed otherwise
	Rows    []PivotRow
}

// BuildPivots groups exams by patient. Patients and exam names are sorted
// with Portuguese collation, dates chronologically. When a patient has two
// values for the same exam and date the first one is kept.
func BuildPivots(exams []model.ExtractedExam) []Pivot {
	byPatient := make(map[string][]model.ExtractedExam)
	var patients []string
	for _, e := range exams {
		if _, ok := byPatient[e.PatientNameRaw]; !ok {
			patients = append(patients, e.PatientNameRaw)
		}
		byPatient[e.PatientNameRaw] = append(byPatient[e.PatientNameRaw], e)
	}
	col := collate.New(language.BrazilianPortuguese, collate.IgnoreCase)
	col.SortStrings(patients)

	out := make([]Pivot, 0, len(patients))
	for _, p := range patients {
		out = append(out, buildPivot(col, p, byPatient[p]))
	}
	return out
}

func buildPivot(col *collate.Collator, patient string, exams []model.ExtractedExam) Pivot {
	dateSet := make(map[string]bool)
	cells := make(map[string]map[string]Cell)
	var names []string
	for _, e := range exams {
		date := e.CollectionDate
		dateSet[date] = true
		if cells[e.StandardExamName] == nil {
			cells[e.StandardExamName] = make(map[string]Cell)
			names = append(names, e.StandardExamName)
		}
		if _, dup := cells[e.StandardExamName][date]; dup {
			continue
		}
		cells[e.StandardExamName][date] = Cell{Value: e.ResultRaw, Unit: e.Unit, Altered: e.IsAltered, Present: true}
	}

	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sortDates(dates)
	col.SortStrings(names)

	pv := Pivot{Patient: patient, Dates: dates, Rows: make([]PivotRow, 0, len(names))}
	for _, n := range names {
		row := PivotRow{Exam: n, Cells: make([]Cell, len(dates))}
		for i, d := range dates {
			row.Cells[i] = cells[n][d]
		}
		pv.Rows = append(pv.Rows, row)
	}
	return pv
}

// sortDates orders ISO dates chronologically, then unparsed dates, then
// the empty date.
func sortDates(dates []string) {
	rank := func(d string) int {
		if d == "" {
			return 2
		}
		if _, err := time.Parse(time.DateOnly, d); err == nil {
			return 0
		}
		return 1
	}
	sort.Slice(dates, func(i, j int) bool {
		ri, rj := rank(dates[i]), rank(dates[j])
		if ri != rj {
			return ri < rj
		}
		return dates[i] < dates[j]
	})
}

// DisplayDate renders an ISO date as DD/MM/YYYY.
func DisplayDate(d string) string {
	if d == "" {
		return noDate
	}
	t, err := time.Parse(time.DateOnly, d)
	if err != nil {
		return d
	}
	return t.Format("02/01/2006")
}
