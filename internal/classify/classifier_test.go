package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/labexam-cli/internal/extract"
	"github.com/sells-group/labexam-cli/internal/model"
)

func compile(t *testing.T, tmpls ...model.LaboratoryTemplate) []extract.LabStrategy {
	t.Helper()
	out := make([]extract.LabStrategy, 0, len(tmpls))
	for _, tmpl := range tmpls {
		s, err := extract.CompileTemplate(tmpl, 2)
		require.NoError(t, err)
		out = append(out, s)
	}
	return out
}

func TestClassify_Prescription(t *testing.T) {
	c := New(nil)
	text := "RECEITA MÉDICA\nLosartana 50mg\nUso Contínuo\nTomar 1 comprimido pela manhã\nAssinatura e CRM"

	got := c.Classify(text)

	assert.Equal(t, model.DocumentTypeIgnored, got.DocumentType)
	assert.False(t, got.IsLab())
	assert.Equal(t, "receita", got.Category)
	assert.Contains(t, got.Reason, "receita")
	assert.Empty(t, got.Laboratory)
}

func TestClassify_GenericLabReport(t *testing.T) {
	c := New(nil)
	text := `Paciente: MARIA DA SILVA
Material: Sangue
GLICOSE: 110 mg/dL
Valores de referência: 70 a 99 mg/dL
CREATININA: 0,9 mg/dL
HEMOGLOBINA: 13,1 g/dL`

	got := c.Classify(text)

	assert.Equal(t, model.DocumentTypeLaboratory, got.DocumentType)
	assert.True(t, got.IsLab())
	assert.Empty(t, got.Laboratory)
	assert.Nil(t, got.Strategy)
	// reference +2, units +2, keywords +3, material +1
	assert.Equal(t, 8, got.Score)
	assert.InDelta(t, 1.0, got.Confidence, 1e-9)
}

func TestClassify_LowScoreConfidence(t *testing.T) {
	got := New(nil).Classify("Glicose 95 mg/dL")

	require.True(t, got.IsLab())
	assert.Equal(t, 2, got.Score)
	assert.InDelta(t, 2.0/6.0, got.Confidence, 1e-9)
}

func TestClassify_ImagingReportIgnored(t *testing.T) {
	text := "ULTRASSONOGRAFIA DE ABDOME TOTAL\nFígado com ecogenicidade normal.\nParênquima homogêneo.\nImpressão diagnóstica: exame normal."

	got := New(nil).Classify(text)

	assert.Equal(t, model.DocumentTypeIgnored, got.DocumentType)
	assert.Equal(t, "imagem", got.Category)
	assert.Equal(t, "parece ser laudo de imagem", got.Reason)
}

func TestClassify_ExclusionMustBeOutscored(t *testing.T) {
	// lab score 2 against a single exclusion hit of 2
	text := "Solicitação de exames\nGlicose\nCreatinina"

	got := New(nil).Classify(text)

	assert.False(t, got.IsLab())
	assert.Equal(t, "solicitacao", got.Category)
}

func TestClassify_ExamRequestListingManyExamsIgnored(t *testing.T) {
	text := "Dr. Carlos Souza CRM 12345\nPaciente: Maria Silva\nSolicito exames:\n- Hemograma completo\n- Glicose\n- Creatinina\n- Colesterol total\n- TSH"

	got := New(nil).Classify(text)

	assert.Equal(t, model.DocumentTypeIgnored, got.DocumentType)
	assert.Equal(t, "solicitacao", got.Category)
	assert.Contains(t, got.Reason, "solicitação")
}

func TestClassify_ResultsOutscoreExclusion(t *testing.T) {
	text := "Exames solicitados pelo Dr. Souza\nGLICOSE: 110 mg/dL\nValores de referência: 70 a 99 mg/dL\nCREATININA: 0,9 mg/dL\nHEMOGLOBINA: 13,1 g/dL"

	got := New(nil).Classify(text)

	assert.True(t, got.IsLab())
}

func TestClassify_EmptyText(t *testing.T) {
	got := New(nil).Classify("  \n\t ")

	assert.Equal(t, model.DocumentTypeIgnored, got.DocumentType)
	assert.Equal(t, ReasonEmpty, got.Reason)
}

func TestClassify_NoSignal(t *testing.T) {
	got := New(nil).Classify("Lista de compras: pão, leite, café")

	assert.Equal(t, model.DocumentTypeIgnored, got.DocumentType)
	assert.Equal(t, ReasonNoSignal, got.Reason)
	assert.Empty(t, got.Category)
}

func TestClassify_TemplatePriorityOrder(t *testing.T) {
	strategies := compile(t,
		model.LaboratoryTemplate{Name: "UNIMED_POA", IdentificationPatterns: []string{`unimed`}, AnchorSufficient: true, Priority: 9},
		model.LaboratoryTemplate{Name: "WEINMANN", IdentificationPatterns: []string{`weinmann`}, AnchorSufficient: true, Priority: 5},
	)
	c := New(strategies)

	got := c.Classify("Laboratório Weinmann - convênio Unimed\nGlicose: 95 mg/dL")

	require.True(t, got.IsLab())
	assert.Equal(t, "UNIMED_POA", got.Laboratory)
	assert.InDelta(t, 0.95, got.Confidence, 1e-9)
	require.NotNil(t, got.Strategy)
	assert.Equal(t, "UNIMED_POA", got.Strategy.Laboratory())
}

func TestClassify_TemplateWinsOverExclusion(t *testing.T) {
	strategies := compile(t, model.LaboratoryTemplate{
		Name: "FLEURY", IdentificationPatterns: []string{`fleury`}, AnchorSufficient: true,
	})

	got := New(strategies).Classify("Grupo Fleury\nDeclaração de comparecimento")

	assert.True(t, got.IsLab())
	assert.Equal(t, "FLEURY", got.Laboratory)
}

func TestClassify_Deterministic(t *testing.T) {
	c := New(nil)
	text := "Atestado médico\nAtesto que o paciente necessita de afastamento de 3 dias"
	first := c.Classify(text)
	for range 10 {
		assert.Equal(t, first, c.Classify(text))
	}
	assert.Equal(t, "atestado", first.Category)
}
