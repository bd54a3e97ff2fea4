// Package reference decides whether a numeric exam result falls outside its
// applicable reference range.
package reference

import (
	"sort"
	"strings"

	"github.com/sells-group/labexam-cli/internal/measure"
	"github.com/sells-group/labexam-cli/internal/model"
	"github.com/sells-group/labexam-cli/internal/synonym"
)

// RangeSource names where a resolved range came from.
type RangeSource string

const (
	SourceCustomLab     RangeSource = "custom_laboratory"
	SourceCustomGeneric RangeSource = "custom_generic"
	SourceStandard      RangeSource = "standard_table"
	SourceDocument      RangeSource = "document"
	SourceNone          RangeSource = ""
)

// Demographics are the patient hints available for range selection.
type Demographics struct {
	Gender model.Gender
	Age    *int
}

// Input is the subset of an extracted exam the evaluator looks at.
type Input struct {
	ExamName           string
	Laboratory         string
	ResultNumeric      *float64
	Unit               string
	ReferenceRangeText string
	DecimalSeparator   string
}

// Evaluation is the outcome for one exam.
type Evaluation struct {
	Range       measure.Range
	Source      RangeSource
	IsAltered   bool
	AlertType   model.AlertType
	NeedsReview bool
}

// Evaluator holds the reference catalogs for one batch. Safe for concurrent use.
type Evaluator struct {
	custom   map[string][]model.CustomReferenceValue
	standard map[string]model.StandardExam
}

// NewEvaluator indexes active custom rows and the standard table by
// normalized exam name.
func NewEvaluator(custom []model.CustomReferenceValue, standard []model.StandardExam) *Evaluator {
	e := &Evaluator{
		custom:   make(map[string][]model.CustomReferenceValue),
		standard: make(map[string]model.StandardExam, len(standard)),
	}
	for _, c := range custom {
		if !c.IsActive || (c.MinValue == nil && c.MaxValue == nil) {
			continue
		}
		key := synonym.Normalize(c.ExamName)
		e.custom[key] = append(e.custom[key], c)
	}
	for key, rows := range e.custom {
		sort.SliceStable(rows, func(i, j int) bool { return outranks(rows[i], rows[j]) })
		e.custom[key] = rows
	}
	for _, s := range standard {
		e.standard[synonym.Normalize(s.Name)] = s
	}
	return e
}

// outranks orders custom rows: priority, then gender-specific, then
// age-banded, then ID for a stable result.
func outranks(a, b model.CustomReferenceValue) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	aGender, bGender := a.Gender != model.GenderBoth && a.Gender != "", b.Gender != model.GenderBoth && b.Gender != ""
	if aGender != bGender {
		return aGender
	}
	aAge, bAge := a.AgeMin != nil || a.AgeMax != nil, b.AgeMin != nil || b.AgeMax != nil
	if aAge != bAge {
		return aAge
	}
	return a.ID < b.ID
}

// Evaluate resolves the applicable range and flags the result. Non-numeric
// results are never altered. With no resolvable range the result is left
// unaltered and marked for review.
func (e *Evaluator) Evaluate(in Input, demo Demographics) Evaluation {
	rng, src := e.Resolve(in, demo)
	ev := Evaluation{Range: rng, Source: src}
	if src == SourceNone {
		ev.NeedsReview = true
		return ev
	}
	if in.ResultNumeric == nil {
		return ev
	}
	ev.IsAltered, ev.AlertType = rng.Classify(*in.ResultNumeric)
	return ev
}

// Resolve walks the resolution order: lab-specific custom rows, generic
// custom rows, the standard table, then the document's own reference text.
func (e *Evaluator) Resolve(in Input, demo Demographics) (measure.Range, RangeSource) {
	key := synonym.Normalize(in.ExamName)

	if in.Laboratory != "" {
		if r, ok := e.customRange(key, in, demo, true); ok {
			return r, SourceCustomLab
		}
	}
	if r, ok := e.customRange(key, in, demo, false); ok {
		return r, SourceCustomGeneric
	}
	if r, ok := e.standardRange(key, in.Unit, demo); ok {
		return r, SourceStandard
	}
	if strings.TrimSpace(in.ReferenceRangeText) != "" {
		if r, ok := measure.ParseRange(in.ReferenceRangeText, in.DecimalSeparator); ok {
			r.Unit = in.Unit
			return r, SourceDocument
		}
	}
	return measure.Range{}, SourceNone
}

func (e *Evaluator) customRange(key string, in Input, demo Demographics, labScoped bool) (measure.Range, bool) {
	for _, c := range e.custom[key] {
		if labScoped {
			if !strings.EqualFold(strings.TrimSpace(c.Laboratory), in.Laboratory) {
				continue
			}
		} else if strings.TrimSpace(c.Laboratory) != "" {
			continue
		}
		if !genderApplies(c.Gender, demo.Gender) || !ageApplies(c.AgeMin, c.AgeMax, demo.Age) {
			continue
		}
		if !measure.SameUnit(c.Unit, in.Unit) {
			continue
		}
		return measure.Range{Min: c.MinValue, Max: c.MaxValue, Unit: c.Unit}, true
	}
	return measure.Range{}, false
}

func (e *Evaluator) standardRange(key, unit string, demo Demographics) (measure.Range, bool) {
	std, ok := e.standard[key]
	if !ok || !measure.SameUnit(std.Unit, unit) {
		return measure.Range{}, false
	}

	var both, male, female *model.SexRange
	for i := range std.Ranges {
		r := &std.Ranges[i]
		switch r.Gender {
		case model.GenderMale:
			male = r
		case model.GenderFemale:
			female = r
		default:
			both = r
		}
	}

	pickRange := func(r *model.SexRange) (measure.Range, bool) {
		if r == nil || (r.Min == nil && r.Max == nil) {
			return measure.Range{}, false
		}
		return measure.Range{Min: r.Min, Max: r.Max, Unit: std.Unit}, true
	}

	switch demo.Gender {
	case model.GenderMale:
		if r, ok := pickRange(male); ok {
			return r, true
		}
	case model.GenderFemale:
		if r, ok := pickRange(female); ok {
			return r, true
		}
	}
	if r, ok := pickRange(both); ok {
		return r, true
	}
	if demo.Gender == model.GenderUnknown {
		switch {
		case male != nil && female != nil:
			return union(*male, *female, std.Unit), true
		case male != nil:
			return pickRange(male)
		case female != nil:
			return pickRange(female)
		}
	}
	return measure.Range{}, false
}

// union widens to the loosest bounds of both sexes so an unknown-sex patient
// is flagged only when outside both.
func union(a, b model.SexRange, unit string) measure.Range {
	r := measure.Range{Unit: unit}
	if a.Min != nil && b.Min != nil {
		lo := min(*a.Min, *b.Min)
		r.Min = &lo
	}
	if a.Max != nil && b.Max != nil {
		hi := max(*a.Max, *b.Max)
		r.Max = &hi
	}
	return r
}

func genderApplies(row, patient model.Gender) bool {
	if row == "" || row == model.GenderBoth {
		return true
	}
	return patient != model.GenderUnknown && row == patient
}

func ageApplies(lo, hi *int, age *int) bool {
	if lo == nil && hi == nil {
		return true
	}
	if age == nil {
		return false
	}
	if lo != nil && *age < *lo {
		return false
	}
	if hi != nil && *age > *hi {
		return false
	}
	return true
}
