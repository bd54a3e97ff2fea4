package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/labexam-cli/internal/model"
)

const rule = "=================================================="

// WriteReport writes a human-readable summary of a batch: totals, ignored
// files with their reasons, failures, and each patient's exams with the
// altered ones listed separately.
func WriteReport(w io.Writer, res *model.BatchResult) error {
	if res == nil {
		return eris.New("export: nil batch result")
	}
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, rule)
	fmt.Fprintln(bw, "RELATÓRIO DE EXTRAÇÃO DE EXAMES")
	fmt.Fprintln(bw, rule)
	fmt.Fprintf(bw, "Lote: %s\n", res.BatchID)
	fmt.Fprintf(bw, "Arquivos: %d | Processados: %d | Ignorados: %d | Erros: %d\n",
		res.TotalFiles, res.Processed, res.Ignored, len(res.Errors))
	fmt.Fprintf(bw, "Exames extraídos: %d\n", res.TotalExams)
	fmt.Fprintf(bw, "Tempo total: %d ms | Exames por minuto: %.1f\n", res.TotalTimeMs, res.ExamsPerMinute)

	if len(res.IgnoredFiles) > 0 {
		fmt.Fprintln(bw)
		fmt.Fprintln(bw, "ARQUIVOS IGNORADOS")
		for _, f := range res.IgnoredFiles {
			if f.Category != "" {
				fmt.Fprintf(bw, "  - %s: %s (%s)\n", f.File, f.Reason, f.Category)
				continue
			}
			fmt.Fprintf(bw, "  - %s: %s\n", f.File, f.Reason)
		}
	}

	if len(res.Errors) > 0 {
		fmt.Fprintln(bw)
		fmt.Fprintln(bw, "ERROS")
		for _, e := range res.Errors {
			fmt.Fprintf(bw, "  - %s: %s\n", e.File, e.Message)
		}
	}

	for _, pv := range BuildPivots(res.Exams) {
		fmt.Fprintln(bw)
		fmt.Fprintf(bw, "PACIENTE: %s\n", displayPatient(pv.Patient))
		fmt.Fprintln(bw, strings.Repeat("-", len(rule)))
		var altered []string
		for _, row := range pv.Rows {
			for i, c := range row.Cells {
				if !c.Present {
					continue
				}
				line := fmt.Sprintf("%s [%s]: %s", row.Exam, DisplayDate(pv.Dates[i]), valueWithUnit(c))
				fmt.Fprintf(bw, "  %s\n", line)
				if c.Altered {
					altered = append(altered, line)
				}
			}
		}
		if len(altered) > 0 {
			fmt.Fprintf(bw, "  Alterados (%d):\n", len(altered))
			for _, a := range altered {
				fmt.Fprintf(bw, "    ! %s\n", a)
			}
		}
	}

	if err := bw.Flush(); err != nil {
		return eris.Wrap(err, "export: write report")
	}
	return nil
}

func valueWithUnit(c Cell) string {
	s := c.Text()
	if c.Unit != "" {
		s += " " + c.Unit
	}
	return s
}

func displayPatient(name string) string {
	if strings.TrimSpace(name) == "" {
		return "(não identificado)"
	}
	return name
}
