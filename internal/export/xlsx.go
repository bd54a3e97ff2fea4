package export

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

const (
	maxSheetName = 31
	alteredColor = "FFFF0000"
)

// sheetNameReplacer strips characters Excel rejects in sheet names.
var sheetNameReplacer = strings.NewReplacer(
	":", " ", `\`, " ", "/", " ", "?", " ", "*", " ", "[", "(", "]", ")",
)

// BuildWorkbook lays out one sheet per patient: exams as rows, dates as
// columns, altered values in bold red.
func BuildWorkbook(pivots []Pivot) (*xlsx.File, error) {
	f := xlsx.NewFile()
	used := make(map[string]bool)

	header := xlsx.NewStyle()
	header.Font.Bold = true
	header.ApplyFont = true

	altered := xlsx.NewStyle()
	altered.Font.Bold = true
	altered.Font.Color = alteredColor
	altered.ApplyFont = true

	for _, pv := range pivots {
		sheet, err := f.AddSheet(uniqueSheetName(pv.Patient, used))
		if err != nil {
			return nil, eris.Wrapf(err, "export: add sheet for %s", pv.Patient)
		}

		row := sheet.AddRow()
		cell := row.AddCell()
		cell.SetString("EXAME")
		cell.SetStyle(header)
		for _, d := range pv.Dates {
			cell = row.AddCell()
			cell.SetString(DisplayDate(d))
			cell.SetStyle(header)
		}

		for _, pr := range pv.Rows {
			row = sheet.AddRow()
			row.AddCell().SetString(pr.Exam)
			for _, c := range pr.Cells {
				cell = row.AddCell()
				cell.SetString(c.Text())
				if c.Present && c.Altered {
					cell.SetStyle(altered)
				}
			}
		}
	}

	if len(f.Sheets) == 0 {
		if _, err := f.AddSheet("Exames"); err != nil {
			return nil, eris.Wrap(err, "export: add empty sheet")
		}
	}
	return f, nil
}

// WriteXLSX writes the workbook for pivots to w.
func WriteXLSX(w io.Writer, pivots []Pivot) error {
	f, err := BuildWorkbook(pivots)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}

// uniqueSheetName sanitises name, truncates it to Excel's limit and
// suffixes a counter on collision.
func uniqueSheetName(name string, used map[string]bool) string {
	base := strings.TrimSpace(sheetNameReplacer.Replace(name))
	if base == "" {
		base = "Paciente"
	}
	base = truncate(base, maxSheetName)

	candidate := base
	for i := 2; used[strings.ToUpper(candidate)]; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		candidate = truncate(base, maxSheetName-utf8.RuneCountInString(suffix)) + suffix
	}
	used[strings.ToUpper(candidate)] = true
	return candidate
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}
