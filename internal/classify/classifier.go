// Package classify decides whether a document is a laboratory report and,
// if so, which laboratory issued it.
package classify

import (
	"regexp"
	"strings"

	"github.com/sells-group/labexam-cli/internal/extract"
	"github.com/sells-group/labexam-cli/internal/model"
	"github.com/sells-group/labexam-cli/internal/synonym"
)

// Reasons reported for ignored documents.
const (
	ReasonEmpty    = "documento sem texto extraível"
	ReasonNoSignal = "nenhum marcador de laudo laboratorial encontrado"
)

const (
	templateConfidence = 0.95
	minLabScore        = 2
	exclusionWeight    = 2
	scoreForFullConf   = 6.0
)

// Classification is the classifier verdict for one document.
type Classification struct {
	DocumentType model.DocumentType
	Laboratory   string
	Strategy     extract.LabStrategy // nil unless a template matched
	Confidence   float64
	Reason       string
	Category     string
	Score        int
}

// IsLab reports whether the document should go on to extraction.
func (c Classification) IsLab() bool {
	return c.DocumentType == model.DocumentTypeLaboratory
}

// Classifier is immutable once built. Safe for concurrent use.
type Classifier struct {
	strategies []extract.LabStrategy
}

// New takes strategies already ordered by priority.
func New(strategies []extract.LabStrategy) *Classifier {
	return &Classifier{strategies: strategies}
}

// Classify runs the templates in order, then the generic detector.
func (c *Classifier) Classify(text string) Classification {
	if strings.TrimSpace(text) == "" {
		return Classification{DocumentType: model.DocumentTypeIgnored, Reason: ReasonEmpty, Category: "vazio"}
	}

	for _, s := range c.strategies {
		if s.Identify(text) {
			return Classification{
				DocumentType: model.DocumentTypeLaboratory,
				Laboratory:   s.Laboratory(),
				Strategy:     s,
				Confidence:   templateConfidence,
			}
		}
	}

	folded := strings.ToLower(synonym.Fold(text))
	score, results := labScore(folded)
	category, exclusion := strongestExclusion(folded)

	// Exam names alone never outweigh an exclusion signal: a request lists
	// exams too.
	if score >= minLabScore && score > exclusion && (results || exclusion == 0) {
		return Classification{
			DocumentType: model.DocumentTypeLaboratory,
			Confidence:   min(1, float64(score)/scoreForFullConf),
			Score:        score,
		}
	}

	out := Classification{DocumentType: model.DocumentTypeIgnored, Score: score, Reason: ReasonNoSignal}
	if exclusion > 0 {
		out.Category = category.name
		out.Reason = category.reason
		out.Confidence = min(1, float64(exclusion)/scoreForFullConf)
	}
	return out
}

// labScore weighs generic laboratory signals in folded lower-case text.
// results reports whether any reference marker or numeric result was seen.
func labScore(folded string) (score int, results bool) {
	for _, re := range referenceMarkers {
		if re.MatchString(folded) {
			score += 2
			results = true
			break
		}
	}

	switch pairs := len(numericUnitRe.FindAllStringIndex(folded, -1)); {
	case pairs >= 3:
		score += 2
		results = true
	case pairs > 0:
		score++
		results = true
	}

	keywords := 0
	for _, re := range labKeywords {
		if re.MatchString(folded) {
			keywords++
		}
	}
	score += min(keywords, 3)

	for _, re := range sectionMarkers {
		if re.MatchString(folded) {
			score++
		}
	}
	return score, results
}

func strongestExclusion(folded string) (exclusionCategory, int) {
	var best exclusionCategory
	bestScore := 0
	for _, cat := range exclusionCategories {
		s := 0
		for _, re := range cat.patterns {
			if re.MatchString(folded) {
				s += exclusionWeight
			}
		}
		if s > bestScore {
			best, bestScore = cat, s
		}
	}
	return best, bestScore
}

type exclusionCategory struct {
	name     string
	reason   string
	patterns []*regexp.Regexp
}

func res(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}
