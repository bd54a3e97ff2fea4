package fewshot

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/labexam-cli/internal/model"
)

const basePrompt = `Você é um especialista em extração de dados de exames laboratoriais.
Analise o texto do laudo e extraia TODOS os resultados de exames no formato JSON.

Para cada exame, extraia:
- name: nome padronizado do exame
- value: valor numérico ou qualitativo, exatamente como impresso
- unit: unidade de medida
- reference: valor de referência
- date: data da coleta, quando o laudo trouxer mais de uma

Não invente exames. Não calcule valores. Retorne somente um array JSON.`

// builtinExamples seed the prompt until reviewers validate real ones.
var builtinExamples = []model.MLFewShotExample{
	{
		ID: "builtin-hemograma",
		InputText: `HEMOGRAMA COMPLETO
Eritrócitos: 4,85 milhões/mm³ (4,32-5,67)
Hemoglobina: 14,8 g/dL (13,3-16,5)
Hematócrito: 44,2% (39,2-49,0)
Leucócitos: 6.540/mm³ (3.650-8.120)
Plaquetas: 245.000/mm³ (151.000-304.000)`,
		ExpectedOutput: json.RawMessage(`[
{"name":"Hemácias","value":"4,85","unit":"milhões/mm³","reference":"4,32-5,67"},
{"name":"Hemoglobina","value":"14,8","unit":"g/dL","reference":"13,3-16,5"},
{"name":"Hematócrito","value":"44,2","unit":"%","reference":"39,2-49,0"},
{"name":"Leucócitos","value":"6.540","unit":"/mm³","reference":"3.650-8.120"},
{"name":"Plaquetas","value":"245.000","unit":"/mm³","reference":"151.000-304.000"}]`),
		Quality: model.QualityGenerated,
	},
	{
		ID: "builtin-hepatico",
		InputText: `PERFIL HEPÁTICO
TGO (AST): 85 U/L (até 40)
TGP (ALT): 120 U/L (até 41)
Gama GT: 250 U/L (12-73)
Fosfatase Alcalina: 95 U/L (40-129)
Bilirrubina Total: 1,8 mg/dL (0,20-1,10)`,
		ExpectedOutput: json.RawMessage(`[
{"name":"TGO/AST","value":"85","unit":"U/L","reference":"até 40"},
{"name":"TGP/ALT","value":"120","unit":"U/L","reference":"até 41"},
{"name":"Gama GT","value":"250","unit":"U/L","reference":"12-73"},
{"name":"Fosfatase Alcalina","value":"95","unit":"U/L","reference":"40-129"},
{"name":"Bilirrubina Total","value":"1,8","unit":"mg/dL","reference":"0,20-1,10"}]`),
		Quality: model.QualityGenerated,
	},
}

// systemPrompt renders the base instructions followed by the examples.
func systemPrompt(examples []model.MLFewShotExample) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	if len(examples) == 0 {
		return b.String()
	}
	b.WriteString("\n\n## Exemplos:\n")
	for _, ex := range examples {
		fmt.Fprintf(&b, "\n### Entrada:\n%s\n\n### Saída:\n%s\n", strings.TrimSpace(ex.InputText), compactJSON(ex.ExpectedOutput))
	}
	return b.String()
}

func userPrompt(text string, maxRunes int) string {
	return "## Texto do laudo para análise:\n" + truncateRunes(text, maxRunes) +
		"\n\n## Extraia todos os exames no formato JSON:"
}

func compactJSON(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// cleanJSONArray strips markdown fences and anything around the outermost
// JSON array.
func cleanJSONArray(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type mlExam struct {
	Name      string     `json:"name"`
	Value     flexString `json:"value"`
	Unit      string     `json:"unit"`
	Reference flexString `json:"reference"`
	Date      string     `json:"date"`
}
