// Package pipeline runs the per-document classify/extract/evaluate chain and
// the batch orchestrator around it.
package pipeline

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/labexam-cli/internal/catalog"
	"github.com/sells-group/labexam-cli/internal/classify"
	"github.com/sells-group/labexam-cli/internal/extract"
	"github.com/sells-group/labexam-cli/internal/measure"
	"github.com/sells-group/labexam-cli/internal/model"
	"github.com/sells-group/labexam-cli/internal/reference"
)

// ProcessorOptions tune extraction. ML may be nil.
type ProcessorOptions struct {
	Extraction extract.Options
	ML         extract.MLExtractor
}

// Processor handles one document at a time against a fixed catalog. Safe
// for concurrent use.
type Processor struct {
	classifier *classify.Classifier
	extractor  *extract.Extractor
	evaluator  *reference.Evaluator
	// displaySep renders catalog ranges when the document's decimal mark
	// was guessed per value.
	displaySep string
}

// NewProcessor wires a processor to cat.
func NewProcessor(cat *catalog.Catalog, opts ProcessorOptions) *Processor {
	return &Processor{
		classifier: classify.New(cat.Strategies),
		extractor:  extract.New(opts.Extraction, cat.Resolver, opts.ML),
		evaluator:  cat.Evaluator,
		displaySep: opts.Extraction.DefaultDecimalSeparator,
	}
}

// Outcome is the processed form of one document.
type Outcome struct {
	Classification classify.Classification
	Exams          []model.ExtractedExam
	Method         model.ExtractionMethod
	Confidence     float64
	PatientName    string
	ExamDate       string
	MLUsed         bool
}

// Altered counts exams flagged out of range.
func (o *Outcome) Altered() int {
	n := 0
	for _, e := range o.Exams {
		if e.IsAltered {
			n++
		}
	}
	return n
}

// Process classifies doc and, for laboratory reports, extracts and
// evaluates every exam. Non-laboratory documents return an Outcome with no
// exams and a nil error.
func (p *Processor) Process(ctx context.Context, doc model.RawDocument) (*Outcome, error) {
	cls := p.classifier.Classify(doc.RawText)
	out := &Outcome{Classification: cls}
	if !cls.IsLab() {
		return out, nil
	}

	res, err := p.extractor.Extract(ctx, doc.RawText, cls.Strategy)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: extract %s", doc.Filename)
	}

	patient := res.Document.Patient
	demo := reference.Demographics{Gender: patient.Gender, Age: patient.Age}
	sep := res.Document.Layout.DecimalSeparator
	display := sep
	if display == measure.SeparatorAuto {
		display = p.displaySep
	}

	out.Method = res.Method
	out.Confidence = res.Confidence
	out.MLUsed = res.MLUsed
	out.PatientName = patient.Name
	out.ExamDate = res.Document.Date
	out.Exams = make([]model.ExtractedExam, 0, len(res.Candidates))

	for _, c := range res.Candidates {
		ev := p.evaluator.Evaluate(reference.Input{
			ExamName:           c.StandardName,
			Laboratory:         cls.Laboratory,
			ResultNumeric:      c.ResultNumeric,
			Unit:               c.Unit,
			ReferenceRangeText: c.ReferenceText,
			DecimalSeparator:   sep,
		}, demo)

		refText := c.ReferenceText
		if refText == "" && ev.Source != reference.SourceDocument {
			refText = formatRange(ev.Range, display)
		}

		out.Exams = append(out.Exams, model.ExtractedExam{
			PatientNameRaw:     patient.Name,
			StandardExamName:   c.StandardName,
			RawExamName:        c.RawName,
			Standardized:       c.Standardized,
			ResultRaw:          c.ResultRaw,
			ResultNumeric:      c.ResultNumeric,
			Unit:               c.Unit,
			ReferenceRangeText: refText,
			CollectionDate:     c.Date,
			Laboratory:         cls.Laboratory,
			IsAltered:          ev.IsAltered,
			AlertType:          ev.AlertType,
			NeedsReview:        ev.NeedsReview || !c.Standardized || len(c.Notes) > 0,
			Method:             c.Method,
			Notes:              c.Notes,
			SourceLine:         c.Line,
			SourceFile:         doc.Filename,
		})
	}
	return out, nil
}

// formatRange renders a resolved range for display, e.g. "70 - 99" or "até 200".
func formatRange(r measure.Range, sep string) string {
	num := func(v float64) string {
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if sep == measure.SeparatorComma {
			s = strings.Replace(s, ".", ",", 1)
		}
		return s
	}
	switch {
	case r.Min != nil && r.Max != nil:
		return num(*r.Min) + " - " + num(*r.Max)
	case r.Max != nil:
		return "até " + num(*r.Max)
	case r.Min != nil:
		return "acima de " + num(*r.Min)
	}
	return ""
}
