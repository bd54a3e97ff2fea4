package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sells-group/labexam-cli/internal/measure"
	"github.com/sells-group/labexam-cli/internal/model"
	"github.com/sells-group/labexam-cli/internal/synonym"
)

var (
	numTokenRe    = regexp.MustCompile(`(?:[<>≤≥]=?\s*)?\d+(?:[.,]\d+)*`)
	unitTokenRe   = regexp.MustCompile(`^\s*([%/\p{L}µμ][^\s()\[\];]*)`)
	qualitativeRe = regexp.MustCompile(`(?i)^\s*(\p{L}[^:]{1,60}?)\s*:\s*(n[ãa]o\s+reagente|reagente|negativo|positivo|n[ãa]o\s+detectad[oa]|detectad[oa]|ausente|presente|indetect[áa]vel)\b(.*)$`)
	refMarkerRe   = regexp.MustCompile(`(?i)^(?:vr|v\.r\.?|ref\.?|refer[êe]ncia|valor(?:es)?\s+de\s+refer[êe]ncia|intervalo\s+de\s+refer[êe]ncia)\s*[:.]?`)
	refAnywhereRe = regexp.MustCompile(`(?i)\b(?:vr|v\.r|ref|refer[êe]ncia)\b`)
	rangeShapeRe  = regexp.MustCompile(`(?i)\d\s*(?:-|–|\ba\b|\bat[ée]\b)\s*\d|(?:<=?|>=?|≤|≥)\s*\d|\b(?:inferior|superior|menor|maior|acima|abaixo|at[ée])\b\D{0,12}\d`)
	blockedTailRe = regexp.MustCompile(`^[/\-.:]\d`)
)

// headerWords start lines that carry document metadata rather than results.
var headerWords = map[string]bool{
	"paciente": true, "cliente": true, "nome": true, "data": true, "dn": true,
	"nascimento": true, "nasc": true, "idade": true, "sexo": true, "crm": true,
	"cpf": true, "rg": true, "telefone": true, "fone": true, "tel": true,
	"pagina": true, "pag": true, "medico": true, "dr": true, "dra": true,
	"solicitante": true, "convenio": true, "endereco": true, "rua": true, "av": true,
	"cep": true, "protocolo": true, "ficha": true, "atendimento": true, "coleta": true,
	"coletado": true, "liberado": true, "emissao": true, "emitido": true, "hora": true,
	"material": true, "metodo": true, "vr": true, "ref": true, "referencia": true,
	"valor": true, "valores": true, "intervalo": true, "assinatura": true,
	"responsavel": true, "cnes": true, "registro": true, "pedido": true,
	"requisicao": true, "unidade": true, "recebido": true, "impresso": true,
}

// Generic is the laboratory-agnostic strategy: line-oriented
// "<name> <value> <unit> <reference>" recognition plus evolutive tables.
type Generic struct {
	lookahead int
	layout    Layout
}

// NewGeneric builds the fallback strategy. Without a laboratory layout the
// decimal mark is guessed per value.
func NewGeneric(lookahead int) *Generic {
	return &Generic{lookahead: lookahead, layout: Layout{DecimalSeparator: measure.SeparatorAuto}}
}

func (g *Generic) Laboratory() string      { return "" }
func (g *Generic) Identify(text string) bool { return true }
func (g *Generic) Layout() Layout            { return g.layout }

// Extract scans every non-table line of every segment, then the tables.
func (g *Generic) Extract(doc *Document) Outcome {
	var out Outcome
	for _, seg := range doc.Segments {
		for i := seg.Start; i < seg.End; i++ {
			if doc.InTable(i) {
				continue
			}
			line := doc.Lines[i]
			if m, ok := parseLine(line); ok {
				c := newCandidate(doc, seg, i, m.name, m.value, m.unit, m.ref, model.MethodRegex)
				if c.ReferenceText == "" {
					c.ReferenceText = lookaheadReference(doc, seg, i, g.lookahead)
				}
				out.Candidates = append(out.Candidates, c)
				continue
			}
			if m := qualitativeRe.FindStringSubmatch(line); m != nil && validName(m[1]) {
				c := newCandidate(doc, seg, i, m[1], m[2], "", cleanReference(m[3]), model.MethodRegex)
				out.Candidates = append(out.Candidates, c)
			}
		}
	}
	out.Candidates = append(out.Candidates, tableCandidates(doc)...)
	sort.SliceStable(out.Candidates, func(i, j int) bool {
		return out.Candidates[i].LineNo < out.Candidates[j].LineNo
	})
	return out
}

type lineMatch struct {
	name  string
	value string
	unit  string
	ref   string
}

// parseLine recognises a single result line. The first number that stands
// alone after a plausible exam name is the value.
func parseLine(line string) (lineMatch, bool) {
	trimmed := strings.TrimSpace(line)
	if utf8.RuneCountInString(trimmed) < 4 {
		return lineMatch{}, false
	}

	for _, loc := range numTokenRe.FindAllStringIndex(trimmed, -1) {
		start, end := loc[0], loc[1]
		if start == 0 {
			return lineMatch{}, false
		}
		prev, _ := utf8.DecodeLastRuneInString(trimmed[:start])
		if !unicode.IsSpace(prev) && prev != ':' && prev != '=' {
			continue
		}
		after := trimmed[end:]
		if blockedTailRe.MatchString(after) {
			continue
		}

		name := cleanName(trimmed[:start])
		if !validName(name) {
			return lineMatch{}, false
		}
		unit, tail := splitUnit(after)
		return lineMatch{
			name:  name,
			value: trimmed[start:end],
			unit:  unit,
			ref:   cleanReference(tail),
		}, true
	}
	return lineMatch{}, false
}

func cleanName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, " \t:=.-…")
	return synonym.CleanSpaces(s)
}

// validName rejects header fields, dates and reference captions.
func validName(name string) bool {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < 2 || n > 60 || !strings.ContainsFunc(name, unicode.IsLetter) {
		return false
	}
	if dateRe.MatchString(name) || refMarkerRe.MatchString(name) {
		return false
	}
	folded := strings.ToLower(synonym.Fold(name))
	first := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return len(first) > 0 && !headerWords[first[0]]
}

// splitUnit takes the unit token off the front of s.
func splitUnit(s string) (unit, tail string) {
	m := unitTokenRe.FindStringSubmatchIndex(s)
	if m == nil {
		return "", s
	}
	tok := strings.TrimRight(s[m[2]:m[3]], ",;:")
	if refMarkerRe.MatchString(tok) || !isUnitToken(tok) {
		return "", s
	}
	return tok, s[m[1]:]
}

// cleanReference keeps s only when it looks like a reference interval.
func cleanReference(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "()[] \t")
	if s == "" || !rangeShapeRe.MatchString(s) {
		return ""
	}
	return synonym.CleanSpaces(s)
}

// lookaheadReference searches up to n following non-result lines of the same
// segment for reference text.
func lookaheadReference(doc *Document, seg Segment, from, n int) string {
	for i, seen := from+1, 0; i < seg.End && seen < n; i++ {
		if doc.InTable(i) {
			break
		}
		line := strings.TrimSpace(doc.Lines[i])
		if line == "" {
			continue
		}
		seen++
		if _, ok := parseLine(line); ok && !refAnywhereRe.MatchString(line) {
			break
		}
		if refAnywhereRe.MatchString(line) || rangeShapeRe.MatchString(line) {
			if ref := cleanReference(refMarkerRe.ReplaceAllString(line, "")); ref != "" {
				return ref
			}
		}
	}
	return ""
}
