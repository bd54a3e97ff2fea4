// Package extract turns the text of a classified laboratory report into exam
// candidates using laboratory templates, a generic line recognizer, and an
// optional ML fallback.
package extract

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/labexam-cli/internal/model"
	"github.com/sells-group/labexam-cli/internal/synonym"
)

// NameResolver maps raw exam names to canonical ones.
type NameResolver interface {
	Resolve(raw, laboratory string) synonym.Resolution
}

// MLExtractor is the optional few-shot fallback. It returns candidates with
// raw fields only; the extractor parses numbers and dates.
type MLExtractor interface {
	ExtractExams(ctx context.Context, text, laboratory string) ([]Candidate, error)
}

// Options tune extraction.
type Options struct {
	DefaultDecimalSeparator string
	ReferenceLookahead      int
	MLConfidenceThreshold   float64
}

// regexOnlyPenalty discounts confidence when no template was involved.
const regexOnlyPenalty = 0.8

// Result is the extraction outcome for one document.
type Result struct {
	Document   *Document
	Candidates []Candidate
	Method     model.ExtractionMethod
	Confidence float64
	Missed     []string
	MLUsed     bool
}

// Extractor runs strategies over documents. Safe for concurrent use.
type Extractor struct {
	opts    Options
	generic *Generic
	names   NameResolver
	ml      MLExtractor
}

// New builds an Extractor. ml may be nil.
func New(opts Options, names NameResolver, ml MLExtractor) *Extractor {
	return &Extractor{
		opts:    opts,
		generic: NewGeneric(opts.ReferenceLookahead),
		names:   names,
		ml:      ml,
	}
}

// Extract runs strategy (Generic when nil) over text. Without a template
// the generic recognizer runs alone. With one, the template runs first and
// the generic recognizer fills in when the template is evolutive or missed a
// mapping; the template result wins for the same exam and date.
func (e *Extractor) Extract(ctx context.Context, text string, strategy LabStrategy) (*Result, error) {
	if strategy == nil {
		strategy = e.generic
	}
	layout := strategy.Layout()
	if _, generic := strategy.(*Generic); !generic && layout.DecimalSeparator == "" {
		layout.DecimalSeparator = e.opts.DefaultDecimalSeparator
	}

	doc, err := Prepare(text, layout)
	if err != nil {
		return nil, err
	}

	lab := strategy.Laboratory()
	primary := strategy.Extract(doc)
	res := &Result{Document: doc, Missed: primary.Missed}

	cands := e.resolve(primary.Candidates, lab)
	attempted := model.MethodRegex
	if lab != "" {
		attempted = model.MethodTemplate
		if layout.Evolutive || len(primary.Missed) > 0 {
			attempted = model.MethodHybrid
			cands = mergeCandidates(cands, e.resolve(e.generic.Extract(doc).Candidates, lab))
		}
	}

	res.Confidence = confidence(cands)
	if lab == "" {
		res.Confidence *= regexOnlyPenalty
	}

	if e.ml != nil && res.Confidence < e.opts.MLConfidenceThreshold {
		ml, err := e.ml.ExtractExams(ctx, text, lab)
		if err != nil {
			zap.L().Warn("ml extraction failed", zap.String("laboratory", lab), zap.Error(err))
		} else {
			res.MLUsed = true
			for i := range ml {
				ml[i] = e.finishML(doc, ml[i])
			}
			cands = mergeCandidates(cands, e.resolve(ml, lab))
		}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		return lineOrder(cands[i]) < lineOrder(cands[j])
	})
	res.Candidates = cands
	res.Method = documentMethod(cands, attempted)
	return res, nil
}

func (e *Extractor) resolve(cands []Candidate, lab string) []Candidate {
	for i := range cands {
		if e.names == nil {
			cands[i].StandardName = synonym.CleanSpaces(cands[i].RawName)
			continue
		}
		r := e.names.Resolve(cands[i].RawName, lab)
		cands[i].StandardName = r.Name
		cands[i].Standardized = r.Standardized
	}
	return cands
}

func (e *Extractor) finishML(doc *Document, c Candidate) Candidate {
	c.Method = model.MethodML
	c.LineNo = 0
	if c.Date == "" {
		c.Date = doc.Date
		if doc.Date != "" && !doc.DateParsed {
			c.Notes = append(c.Notes, noteUnparsedDate+": "+doc.Date)
		}
	} else if iso, ok := NormalizeDate(c.Date, doc.Layout.DateFormat); ok {
		c.Date = iso
	} else {
		c.Notes = append(c.Notes, noteUnparsedDate+": "+c.Date)
	}
	c.parseResult(doc.Layout.DecimalSeparator)
	return c
}

// mergeCandidates appends extra candidates whose (exam, date) is not already
// covered by base.
func mergeCandidates(base, extra []Candidate) []Candidate {
	seen := make(map[string]bool, len(base))
	for _, c := range base {
		seen[mergeKey(c)] = true
	}
	for _, c := range extra {
		if seen[mergeKey(c)] {
			continue
		}
		base = append(base, c)
	}
	return base
}

func mergeKey(c Candidate) string {
	return synonym.Normalize(c.StandardName) + "|" + c.Date
}

// lineOrder sorts line-less (ML) candidates last.
func lineOrder(c Candidate) int {
	if c.LineNo == 0 {
		return int(^uint(0) >> 1)
	}
	return c.LineNo
}

// confidence is the share of candidates with a parsed numeric result.
func confidence(cands []Candidate) float64 {
	if len(cands) == 0 {
		return 0
	}
	n := 0
	for _, c := range cands {
		if c.ResultNumeric != nil {
			n++
		}
	}
	return float64(n) / float64(len(cands))
}

func documentMethod(cands []Candidate, attempted model.ExtractionMethod) model.ExtractionMethod {
	used := make(map[model.ExtractionMethod]bool)
	for _, c := range cands {
		used[c.Method] = true
	}
	switch len(used) {
	case 0:
		return attempted
	case 1:
		for m := range used {
			return m
		}
	}
	return model.MethodHybrid
}
