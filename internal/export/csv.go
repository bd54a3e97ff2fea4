package export

import (
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/labexam-cli/internal/model"
)

// Separator is the field separator of exported CSV files. Semicolons keep
// decimal commas intact for spreadsheet users.
const Separator = ';'

// WritePivotCSV writes one block per patient: a "# PACIENTE" marker, a
// header with the dates, one row per exam, and a blank line.
func WritePivotCSV(w io.Writer, pivots []Pivot) error {
	cw := csv.NewWriter(w)
	cw.Comma = Separator

	for _, pv := range pivots {
		if err := cw.Write([]string{"# PACIENTE: " + pv.Patient}); err != nil {
			return eris.Wrap(err, "export: write pivot csv")
		}
		header := make([]string, 0, len(pv.Dates)+1)
		header = append(header, "EXAME")
		for _, d := range pv.Dates {
			header = append(header, DisplayDate(d))
		}
		if err := cw.Write(header); err != nil {
			return eris.Wrap(err, "export: write pivot csv")
		}
		for _, row := range pv.Rows {
			rec := make([]string, 0, len(row.Cells)+1)
			rec = append(rec, row.Exam)
			for _, c := range row.Cells {
				rec = append(rec, c.Text())
			}
			if err := cw.Write(rec); err != nil {
				return eris.Wrap(err, "export: write pivot csv")
			}
		}
		if err := cw.Write([]string{""}); err != nil {
			return eris.Wrap(err, "export: write pivot csv")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "export: flush pivot csv")
	}
	return nil
}

var flatHeader = []string{
	"PACIENTE", "EXAME", "NOME_ORIGINAL", "RESULTADO", "UNIDADE", "REFERENCIA",
	"DATA", "LABORATORIO", "ALTERADO", "ALERTA", "REVISAR", "METODO", "ARQUIVO",
}

// WriteCSV writes one row per exam.
func WriteCSV(w io.Writer, exams []model.ExtractedExam) error {
	cw := csv.NewWriter(w)
	cw.Comma = Separator
	if err := cw.Write(flatHeader); err != nil {
		return eris.Wrap(err, "export: write csv")
	}
	for _, e := range exams {
		if err := cw.Write([]string{
			e.PatientNameRaw,
			e.StandardExamName,
			e.RawExamName,
			e.ResultRaw,
			e.Unit,
			e.ReferenceRangeText,
			DisplayDate(e.CollectionDate),
			e.Laboratory,
			yesNo(e.IsAltered),
			string(e.AlertType),
			yesNo(e.NeedsReview),
			string(e.Method),
			e.SourceFile,
		}); err != nil {
			return eris.Wrap(err, "export: write csv")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "SIM"
	}
	return "NÃO"
}
