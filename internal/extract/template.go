package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/labexam-cli/internal/model"
	"github.com/sells-group/labexam-cli/internal/synonym"
)

// LabStrategy recognises and parses reports from one laboratory. Generic is
// the fallback implementation.
type LabStrategy interface {
	Laboratory() string
	Identify(text string) bool
	Layout() Layout
	Extract(doc *Document) Outcome
}

// Outcome is what a strategy found. Missed lists field mappings that
// located nothing.
type Outcome struct {
	Candidates []Candidate
	Missed     []string
}

type compiledMapping struct {
	model.FieldMapping
	patterns []*regexp.Regexp
}

// TemplateStrategy is a LaboratoryTemplate compiled for matching.
type TemplateStrategy struct {
	tmpl      model.LaboratoryTemplate
	idents    []*regexp.Regexp
	folded    []*regexp.Regexp
	anchor    bool
	mappings  []compiledMapping
	lookahead int
}

// CompileTemplate compiles t's patterns. Invalid field patterns are skipped
// with a warning; a template with no usable identification pattern is an
// error.
func CompileTemplate(t model.LaboratoryTemplate, lookahead int) (*TemplateStrategy, error) {
	s := &TemplateStrategy{tmpl: t, lookahead: lookahead}

	for i, p := range t.IdentificationPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			zap.L().Warn("invalid identification pattern",
				zap.String("laboratory", t.Name), zap.String("pattern", p), zap.Error(err))
			continue
		}
		fre, err := regexp.Compile("(?i)" + synonym.Fold(p))
		if err != nil {
			fre = re
		}
		if i == 0 && t.AnchorSufficient {
			s.anchor = true
		}
		s.idents = append(s.idents, re)
		s.folded = append(s.folded, fre)
	}
	if len(s.idents) == 0 {
		return nil, eris.Errorf("extract: template %q has no valid identification pattern", t.Name)
	}

	for _, fm := range t.FieldMappings {
		cm := compiledMapping{FieldMapping: fm}
		for _, p := range fm.Patterns {
			re, err := regexp.Compile("(?im)" + p)
			if err != nil {
				zap.L().Warn("invalid field pattern",
					zap.String("laboratory", t.Name), zap.String("exam", fm.StandardName),
					zap.String("pattern", p), zap.Error(err))
				continue
			}
			cm.patterns = append(cm.patterns, re)
		}
		if len(cm.patterns) > 0 || fm.Position != nil {
			s.mappings = append(s.mappings, cm)
		}
	}
	return s, nil
}

func (s *TemplateStrategy) Laboratory() string { return s.tmpl.Name }

// Template returns the source template.
func (s *TemplateStrategy) Template() model.LaboratoryTemplate { return s.tmpl }

func (s *TemplateStrategy) Layout() Layout {
	return Layout{
		DateFormat:       s.tmpl.DateFormat,
		DecimalSeparator: s.tmpl.DecimalSeparator,
		Evolutive:        s.tmpl.HasEvolutiveReport,
	}
}

// Identify reports whether every pattern matches, or only the first when it
// is an anchor. Patterns are tried against the text as printed and with
// accents removed.
func (s *TemplateStrategy) Identify(text string) bool {
	folded := synonym.Fold(text)
	match := func(i int) bool {
		return s.idents[i].MatchString(text) || s.folded[i].MatchString(folded)
	}
	if s.anchor {
		return match(0)
	}
	for i := range s.idents {
		if !match(i) {
			return false
		}
	}
	return true
}

// Extract applies every field mapping to every dated segment, yielding at
// most one candidate per mapping and segment.
func (s *TemplateStrategy) Extract(doc *Document) Outcome {
	var out Outcome
	for _, m := range s.mappings {
		found := false
		for _, seg := range doc.Segments {
			if c, ok := s.matchSegment(doc, seg, m); ok {
				out.Candidates = append(out.Candidates, c)
				found = true
			}
		}
		if !found {
			if c, ok := s.matchPosition(doc, m); ok {
				out.Candidates = append(out.Candidates, c)
				found = true
			}
		}
		if !found {
			out.Missed = append(out.Missed, m.StandardName)
		}
	}
	sort.SliceStable(out.Candidates, func(i, j int) bool {
		return out.Candidates[i].LineNo < out.Candidates[j].LineNo
	})
	return out
}

func (s *TemplateStrategy) matchSegment(doc *Document, seg Segment, m compiledMapping) (Candidate, bool) {
	text, offsets := doc.segmentText(seg)
	for _, re := range m.patterns {
		loc := re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		vStart, vEnd := groupSpan(re, loc, "value", 1)
		if vStart < 0 {
			// No value group: take the first number inside the match.
			nl := numTokenRe.FindStringIndex(text[loc[0]:loc[1]])
			if nl == nil {
				continue
			}
			vStart, vEnd = loc[0]+nl[0], loc[0]+nl[1]
		}
		value := text[vStart:vEnd]
		if strings.TrimSpace(value) == "" {
			continue
		}
		lineNo := lineAt(seg, offsets, vStart)
		lineEnd := strings.IndexByte(text[vEnd:], '\n')
		if lineEnd < 0 {
			lineEnd = len(text) - vEnd
		}
		lineEnd += vEnd

		var unit, tail string
		if uStart, uEnd := groupSpan(re, loc, "unit", 0); uStart >= 0 {
			unit = strings.TrimSpace(text[uStart:uEnd])
			if uEnd < lineEnd {
				tail = text[uEnd:lineEnd]
			}
		} else {
			unit, tail = splitUnit(text[vEnd:lineEnd])
		}
		if unit == "" {
			unit = m.ExpectedUnit
		}

		ref := groupText(re, loc, text, "ref")
		if ref == "" {
			ref = cleanReference(tail)
		}
		if ref == "" {
			ref = lookaheadReference(doc, seg, lineNo, s.lookahead)
		}
		if ref == "" {
			ref = m.ReferenceText
		}
		return newCandidate(doc, seg, lineNo, m.StandardName, value, unit, ref, model.MethodTemplate), true
	}
	return Candidate{}, false
}

// matchPosition reads the first number at or after the hinted column of the
// hinted line. Both are 1-based.
func (s *TemplateStrategy) matchPosition(doc *Document, m compiledMapping) (Candidate, bool) {
	if m.Position == nil || m.Position.Line < 1 || m.Position.Line > len(doc.Lines) {
		return Candidate{}, false
	}
	idx := m.Position.Line - 1
	line := doc.Lines[idx]
	col := max(m.Position.Column-1, 0)
	if col > utf8.RuneCountInString(line) {
		return Candidate{}, false
	}
	rest := string([]rune(line)[col:])
	loc := numTokenRe.FindStringIndex(rest)
	if loc == nil {
		return Candidate{}, false
	}
	unit, tail := splitUnit(rest[loc[1]:])
	if unit == "" {
		unit = m.ExpectedUnit
	}
	ref := cleanReference(tail)
	if ref == "" {
		ref = m.ReferenceText
	}
	seg := Segment{Date: doc.Date, Parsed: doc.DateParsed}
	return newCandidate(doc, seg, idx, m.StandardName, rest[loc[0]:loc[1]], unit, ref, model.MethodTemplate), true
}

// groupSpan returns the span of the named group, or of group fallback when
// the pattern has no such name. -1 when absent.
func groupSpan(re *regexp.Regexp, loc []int, name string, fallback int) (int, int) {
	idx := re.SubexpIndex(name)
	if idx < 0 && fallback > 0 && re.NumSubexp() >= fallback {
		idx = fallback
	}
	if idx < 0 || 2*idx+1 >= len(loc) || loc[2*idx] < 0 {
		return -1, -1
	}
	return loc[2*idx], loc[2*idx+1]
}

func groupText(re *regexp.Regexp, loc []int, text, name string) string {
	start, end := groupSpan(re, loc, name, 0)
	if start < 0 {
		return ""
	}
	return strings.TrimSpace(text[start:end])
}
