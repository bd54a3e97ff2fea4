package pipeline

import (
	"strings"

	"github.com/sells-group/labexam-cli/internal/model"
	"github.com/sells-group/labexam-cli/internal/synonym"
)

// Consolidate drops repeated measurements, keeping the first occurrence of
// each patient, exam, date and result. Order is preserved.
func Consolidate(exams []model.ExtractedExam) []model.ExtractedExam {
	seen := make(map[string]bool, len(exams))
	out := make([]model.ExtractedExam, 0, len(exams))
	for _, e := range exams {
		k := consolidationKey(e)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}

func consolidationKey(e model.ExtractedExam) string {
	return strings.Join([]string{
		synonym.Normalize(e.PatientNameRaw),
		synonym.Normalize(e.StandardExamName),
		e.CollectionDate,
		strings.TrimSpace(e.ResultRaw),
	}, "|")
}
