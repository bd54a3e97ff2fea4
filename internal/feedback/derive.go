package feedback

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/labexam-cli/internal/model"
)

var numericValueRe = regexp.MustCompile(`^[<>]?\s*\d[\d.,]*$`)

// applyToTemplate folds a VALUE, MISSING, UNIT or REFERENCE correction into
// the mapping for the corrected exam, creating the mapping if needed.
func applyToTemplate(t *model.LaboratoryTemplate, c *model.ExamCorrection) error {
	m, _ := t.MappingFor(c.FieldName)
	if m == nil {
		t.FieldMappings = append(t.FieldMappings, model.FieldMapping{StandardName: c.FieldName})
		m = &t.FieldMappings[len(t.FieldMappings)-1]
	}

	value := strings.TrimSpace(c.CorrectedValue)
	switch c.CorrectionType {
	case model.CorrectionValue, model.CorrectionMissing:
		pattern, err := derivePattern(c.Context, value, strings.TrimSpace(c.OriginalValue))
		if err != nil {
			return err
		}
		for _, p := range m.Patterns {
			if p == pattern {
				return nil
			}
		}
		m.Patterns = append([]string{pattern}, m.Patterns...)
	case model.CorrectionUnit:
		m.ExpectedUnit = value
	case model.CorrectionReference:
		m.ReferenceText = value
	default:
		return eris.Wrapf(ErrNotPromotable, "%s correction to template", c.CorrectionType)
	}
	return nil
}

// derivePattern builds a line pattern from the literal text preceding the
// printed value in the source line, e.g. "GLICOSE JEJUM: 95" yields a
// pattern anchored on "GLICOSE JEJUM:" capturing the number that follows.
// The printed value is the original one when the line still carries it,
// otherwise the corrected one.
func derivePattern(line, corrected, original string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" || corrected == "" {
		return "", eris.Wrap(ErrNotPromotable, "correction has no source line")
	}
	idx := -1
	if original != "" {
		idx = strings.Index(line, original)
	}
	if idx < 0 {
		idx = strings.Index(line, corrected)
	}
	if idx < 0 {
		return "", eris.Wrap(ErrNotPromotable, "source line does not contain the value")
	}
	words := strings.Fields(line[:idx])
	if len(words) == 0 {
		return "", eris.Wrap(ErrNotPromotable, "no label before the corrected value")
	}
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}

	capture := `(?P<value>\S+)`
	if numericValueRe.MatchString(corrected) {
		capture = `(?P<value>[<>]?\s*\d[\d.,]*)`
	}
	return `^\s*` + strings.Join(words, `\s+`) + `\s*` + capture, nil
}

// exampleFromCorrection turns a correction into a CORRECTED few-shot
// example whose input is the source line.
func exampleFromCorrection(c *model.ExamCorrection) (*model.MLFewShotExample, error) {
	if strings.TrimSpace(c.Context) == "" {
		return nil, eris.Wrap(ErrNotPromotable, "correction has no source text")
	}

	value := strings.TrimSpace(c.CorrectedValue)
	var exams []model.ExampleExam
	switch c.CorrectionType {
	case model.CorrectionFalsePositive:
		exams = []model.ExampleExam{}
	case model.CorrectionName:
		exams = []model.ExampleExam{{Name: value}}
	case model.CorrectionValue, model.CorrectionMissing:
		exams = []model.ExampleExam{{Name: c.FieldName, Value: value}}
	case model.CorrectionUnit:
		exams = []model.ExampleExam{{Name: c.FieldName, Unit: value}}
	case model.CorrectionReference:
		exams = []model.ExampleExam{{Name: c.FieldName, Reference: value}}
	}

	out, err := json.Marshal(exams)
	if err != nil {
		return nil, eris.Wrap(err, "feedback: encode example output")
	}
	return &model.MLFewShotExample{
		InputText:      strings.TrimSpace(c.Context),
		ExpectedOutput: out,
		Laboratory:     c.Laboratory,
		ExamType:       c.FieldName,
		Quality:        model.QualityCorrected,
		CorrectionID:   c.ID,
	}, nil
}
