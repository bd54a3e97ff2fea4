package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/labexam-cli/internal/model"
)

func exam(patient, name, date, value string, altered bool) model.ExtractedExam {
	return model.ExtractedExam{
		PatientNameRaw:   patient,
		StandardExamName: name,
		RawExamName:      strings.ToUpper(name),
		ResultRaw:        value,
		Unit:             "mg/dL",
		CollectionDate:   date,
		IsAltered:        altered,
		Method:           model.MethodRegex,
		SourceFile:       "laudo.pdf",
	}
}

func sampleExams() []model.ExtractedExam {
	return []model.ExtractedExam{
		exam("MARIA", "Glicose", "2024-02-10", "130", true),
		exam("MARIA", "Glicose", "2024-01-10", "95", false),
		exam("MARIA", "Hemoglobina", "2024-01-10", "13,5", false),
	}
}

func TestBuildPivots_CollationAndDates(t *testing.T) {
	exams := []model.ExtractedExam{
		exam("ÉRICA", "Zinco", "2024-02-10", "90", false),
		exam("ÉRICA", "Ácido Úrico", "", "5,1", false),
		exam("ÉRICA", "acetona", "jan/2024", "neg", false),
		exam("ÉRICA", "Zinco", "2024-01-10", "80", false),
		exam("BRUNO", "Glicose", "2024-01-10", "99", false),
		exam("ana", "Glicose", "2024-01-10", "100", true),
	}

	pivots := BuildPivots(exams)
	require.Len(t, pivots, 3)
	assert.Equal(t, "ana", pivots[0].Patient)
	assert.Equal(t, "BRUNO", pivots[1].Patient)
	assert.Equal(t, "ÉRICA", pivots[2].Patient)

	erica := pivots[2]
	assert.Equal(t, []string{"2024-01-10", "2024-02-10", "jan/2024", ""}, erica.Dates)
	require.Len(t, erica.Rows, 3)
	assert.Equal(t, "acetona", erica.Rows[0].Exam)
	assert.Equal(t, "Ácido Úrico", erica.Rows[1].Exam)
	assert.Equal(t, "Zinco", erica.Rows[2].Exam)

	zinc := erica.Rows[2].Cells
	assert.Equal(t, "80", zinc[0].Text())
	assert.Equal(t, "90", zinc[1].Text())
	assert.Equal(t, Missing, zinc[2].Text())
	assert.Equal(t, Missing, zinc[3].Text())
}

func TestBuildPivots_FirstValueWins(t *testing.T) {
	pivots := BuildPivots([]model.ExtractedExam{
		exam("MARIA", "Glicose", "2024-01-10", "95", false),
		exam("MARIA", "Glicose", "2024-01-10", "250", true),
	})
	require.Len(t, pivots, 1)
	require.Len(t, pivots[0].Rows, 1)
	assert.Equal(t, "95", pivots[0].Rows[0].Cells[0].Text())
}

func TestBuildPivots_Empty(t *testing.T) {
	assert.Empty(t, BuildPivots(nil))
}

func TestDisplayDate(t *testing.T) {
	assert.Equal(t, "10/01/2024", DisplayDate("2024-01-10"))
	assert.Equal(t, "sem data", DisplayDate(""))
	assert.Equal(t, "jan/2024", DisplayDate("jan/2024"))
}

func TestWritePivotCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePivotCSV(&buf, BuildPivots(sampleExams())))

	want := "# PACIENTE: MARIA\n" +
		"EXAME;10/01/2024;10/02/2024\n" +
		"Glicose;95;130*\n" +
		"Hemoglobina;13,5;-\n" +
		"\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleExams()[:1]))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(flatHeader, ";"), lines[0])
	assert.Equal(t, "MARIA;Glicose;GLICOSE;130;mg/dL;;10/02/2024;;SIM;;NÃO;REGEX;laudo.pdf", lines[1])
}

func TestBuildWorkbook_StylesAlteredCells(t *testing.T) {
	f, err := BuildWorkbook(BuildPivots(sampleExams()))
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	assert.Equal(t, "MARIA", sheet.Name)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "EXAME", sheet.Rows[0].Cells[0].Value)
	assert.Equal(t, "10/02/2024", sheet.Rows[0].Cells[2].Value)

	glucose := sheet.Rows[1].Cells
	assert.Equal(t, "Glicose", glucose[0].Value)
	assert.Equal(t, "95", glucose[1].Value)
	assert.Equal(t, "130*", glucose[2].Value)

	style := glucose[2].GetStyle()
	assert.True(t, style.Font.Bold)
	assert.Equal(t, alteredColor, style.Font.Color)
	assert.False(t, glucose[1].GetStyle().Font.Bold)
}

func TestWriteXLSX_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, BuildPivots(sampleExams())))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	rows := f.Sheets[0].Rows
	require.Len(t, rows, 3)
	assert.Equal(t, "Hemoglobina", rows[2].Cells[0].Value)
	assert.Equal(t, "13,5", rows[2].Cells[1].Value)
	assert.Equal(t, Missing, rows[2].Cells[2].Value)
}

func TestWriteXLSX_EmptyBatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, nil))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	assert.Equal(t, "Exames", f.Sheets[0].Name)
}

func TestUniqueSheetName(t *testing.T) {
	used := map[string]bool{}
	assert.Equal(t, "JOSE (SILVA)", uniqueSheetName("JOSE [SILVA]", used))
	assert.Equal(t, "A B", uniqueSheetName("A/B", used))
	assert.Equal(t, "a b (2)", uniqueSheetName("a b", used))
	assert.Equal(t, "Paciente", uniqueSheetName("  ", used))

	long := strings.Repeat("X", 40)
	first := uniqueSheetName(long, used)
	assert.Len(t, first, maxSheetName)
	second := uniqueSheetName(long, used)
	assert.Len(t, second, maxSheetName)
	assert.True(t, strings.HasSuffix(second, " (2)"))
}

func TestWriteReport(t *testing.T) {
	res := &model.BatchResult{
		BatchID:        "lote-1",
		TotalFiles:     3,
		Processed:      1,
		Ignored:        1,
		TotalExams:     3,
		Exams:          sampleExams(),
		IgnoredFiles:   []model.IgnoredFile{{File: "receita.pdf", Reason: "Receita médica", Category: "receita"}},
		Errors:         []model.FileError{{File: "ruim.pdf", Message: "texto ilegível"}},
		TotalTimeMs:    1200,
		ExamsPerMinute: 150,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, res))
	out := buf.String()

	assert.Contains(t, out, "Lote: lote-1")
	assert.Contains(t, out, "Arquivos: 3 | Processados: 1 | Ignorados: 1 | Erros: 1")
	assert.Contains(t, out, "receita.pdf: Receita médica (receita)")
	assert.Contains(t, out, "ruim.pdf: texto ilegível")
	assert.Contains(t, out, "PACIENTE: MARIA")
	assert.Contains(t, out, "Glicose [10/01/2024]: 95 mg/dL")
	assert.Contains(t, out, "Alterados (1):")
	assert.Contains(t, out, "! Glicose [10/02/2024]: 130* mg/dL")
}

func TestWriteReport_Nil(t *testing.T) {
	assert.Error(t, WriteReport(&bytes.Buffer{}, nil))
}
