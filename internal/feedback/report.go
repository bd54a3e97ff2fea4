package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/labexam-cli/internal/catalog"
	"github.com/sells-group/labexam-cli/internal/model"
	"github.com/sells-group/labexam-cli/internal/store"
	"github.com/sells-group/labexam-cli/internal/synonym"
)

// reportScanLimit caps rows read for reports.
const reportScanLimit = 100000

const (
	topN               = 10
	suggestionMinCount = 3
)

// Count is a labelled tally.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// FieldErrorRate is the share of a laboratory's documents in which a field
// was corrected.
type FieldErrorRate struct {
	Laboratory string  `json:"laboratory"`
	Field      string  `json:"field"`
	Documents  int     `json:"documents"`
	Corrected  int     `json:"corrected"`
	RatePct    float64 `json:"rate_pct"`
}

// AccuracyReport summarises extraction quality since a point in time.
type AccuracyReport struct {
	Since              time.Time        `json:"since"`
	TotalExtractions   int              `json:"total_extractions"`
	FailedExtractions  int              `json:"failed_extractions"`
	TotalExams         int              `json:"total_exams"`
	TotalCorrections   int              `json:"total_corrections"`
	PendingCorrections int              `json:"pending_corrections"`
	AccuracyPct        float64          `json:"accuracy_pct"`
	CorrectionsByType  []Count          `json:"corrections_by_type"`
	TopErrorFields     []Count          `json:"top_error_fields"`
	TopErrorLabs       []Count          `json:"top_error_labs"`
	FieldErrorRates    []FieldErrorRate `json:"field_error_rates"`
}

// AccuracyReport compares corrections against extracted exams. Accuracy is
// the share of extracted exams that needed no correction.
func (s *Service) AccuracyReport(ctx context.Context, since time.Time) (*AccuracyReport, error) {
	logs, err := s.repo.ListExtractionLogs(ctx, store.LogFilter{Since: since, Limit: reportScanLimit})
	if err != nil {
		return nil, eris.Wrap(err, "feedback: list extraction logs")
	}
	corrections, err := s.corrections(ctx, since)
	if err != nil {
		return nil, err
	}
	return buildReport(since, logs, corrections), nil
}

func (s *Service) corrections(ctx context.Context, since time.Time) ([]model.ExamCorrection, error) {
	all, err := s.repo.ListCorrections(ctx, store.CorrectionFilter{Limit: reportScanLimit})
	if err != nil {
		return nil, eris.Wrap(err, "feedback: list corrections")
	}
	if since.IsZero() {
		return all, nil
	}
	out := all[:0]
	for _, c := range all {
		if !c.CreatedAt.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

func buildReport(since time.Time, logs []model.ExtractionLog, corrections []model.ExamCorrection) *AccuracyReport {
	r := &AccuracyReport{Since: since, TotalCorrections: len(corrections)}

	labDocs := make(map[string]map[string]bool)
	for _, l := range logs {
		if l.DocumentType != model.DocumentTypeLaboratory {
			continue
		}
		r.TotalExtractions++
		if !l.Success {
			r.FailedExtractions++
			continue
		}
		r.TotalExams += l.ExamsExtracted
		if labDocs[l.Laboratory] == nil {
			labDocs[l.Laboratory] = make(map[string]bool)
		}
		labDocs[l.Laboratory][l.PdfHash] = true
	}

	byType := make(map[string]int)
	byField := make(map[string]int)
	byLab := make(map[string]int)
	type labField struct{ lab, field string }
	fieldDocs := make(map[labField]map[string]bool)
	fieldLabel := make(map[labField]string)

	for _, c := range corrections {
		if !c.AppliedToCode {
			r.PendingCorrections++
		}
		byType[string(c.CorrectionType)]++
		byField[c.FieldName]++
		byLab[labelOrUnknown(c.Laboratory)]++

		k := labField{c.Laboratory, synonym.Normalize(c.FieldName)}
		if fieldDocs[k] == nil {
			fieldDocs[k] = make(map[string]bool)
			fieldLabel[k] = c.FieldName
		}
		fieldDocs[k][c.PdfHash] = true
	}

	r.AccuracyPct = 100
	if r.TotalExams > 0 {
		r.AccuracyPct = math.Max(0, float64(r.TotalExams-r.TotalCorrections)/float64(r.TotalExams)*100)
		r.AccuracyPct = math.Round(r.AccuracyPct*100) / 100
	}

	r.CorrectionsByType = sortedCounts(byType, 0)
	r.TopErrorFields = sortedCounts(byField, topN)
	r.TopErrorLabs = sortedCounts(byLab, topN)

	r.FieldErrorRates = []FieldErrorRate{}
	for k, docs := range fieldDocs {
		total := len(labDocs[k.lab])
		rate := FieldErrorRate{
			Laboratory: labelOrUnknown(k.lab),
			Field:      fieldLabel[k],
			Documents:  total,
			Corrected:  len(docs),
		}
		if total > 0 {
			rate.RatePct = math.Round(float64(len(docs))/float64(total)*10000) / 100
		}
		r.FieldErrorRates = append(r.FieldErrorRates, rate)
	}
	sort.Slice(r.FieldErrorRates, func(i, j int) bool {
		a, b := r.FieldErrorRates[i], r.FieldErrorRates[j]
		if a.RatePct != b.RatePct {
			return a.RatePct > b.RatePct
		}
		if a.Corrected != b.Corrected {
			return a.Corrected > b.Corrected
		}
		if a.Laboratory != b.Laboratory {
			return a.Laboratory < b.Laboratory
		}
		return a.Field < b.Field
	})
	return r
}

func labelOrUnknown(lab string) string {
	if lab == "" {
		return "DESCONHECIDO"
	}
	return lab
}

func sortedCounts(m map[string]int, limit int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SuggestionType classifies an improvement suggestion.
type SuggestionType string

const (
	SuggestNewSynonym      SuggestionType = "NEW_SYNONYM"
	SuggestNewPattern      SuggestionType = "NEW_PATTERN"
	SuggestReferenceUpdate SuggestionType = "REFERENCE_UPDATE"
	SuggestNewLaboratory   SuggestionType = "NEW_LABORATORY"
)

// Suggestion is a proposed catalog change derived from pending corrections.
type Suggestion struct {
	Type          SuggestionType    `json:"type"`
	Description   string            `json:"description"`
	Laboratory    string            `json:"laboratory,omitempty"`
	Field         string            `json:"field,omitempty"`
	Occurrences   int               `json:"occurrences"`
	CorrectionIDs []string          `json:"correction_ids"`
	Data          map[string]string `json:"data,omitempty"`
}

// Suggestions inspects pending corrections for recurring problems.
func (s *Service) Suggestions(ctx context.Context) ([]Suggestion, error) {
	pending, err := s.repo.ListCorrections(ctx, store.CorrectionFilter{Pending: true, Limit: reportScanLimit})
	if err != nil {
		return nil, eris.Wrap(err, "feedback: list pending corrections")
	}
	templates, err := s.repo.ListTemplates(ctx, false)
	if err != nil {
		return nil, eris.Wrap(err, "feedback: list templates")
	}
	known := make(map[string]bool, len(templates))
	for _, t := range templates {
		known[synonym.Normalize(t.Name)] = true
	}
	// An unseeded store runs on the embedded templates.
	if def, err := catalog.Builtin(); err == nil {
		for _, t := range def.Laboratories {
			known[synonym.Normalize(t.Name)] = true
		}
	}
	return buildSuggestions(pending, known), nil
}

type group struct {
	lab, field string
	ids        []string
	sample     model.ExamCorrection
}

func buildSuggestions(pending []model.ExamCorrection, knownLabs map[string]bool) []Suggestion {
	out := []Suggestion{}

	synonyms := make(map[string]*group)
	values := make(map[string]*group)
	refs := make(map[string]*group)
	labs := make(map[string]*group)
	var synOrder, valueOrder, refOrder, labOrder []string

	add := func(m map[string]*group, order *[]string, key string, c model.ExamCorrection) {
		g, ok := m[key]
		if !ok {
			g = &group{lab: c.Laboratory, field: c.FieldName, sample: c}
			m[key] = g
			*order = append(*order, key)
		}
		g.ids = append(g.ids, c.ID)
	}

	for _, c := range pending {
		labField := c.Laboratory + "|" + synonym.Normalize(c.FieldName)
		switch c.CorrectionType {
		case model.CorrectionName:
			key := synonym.Normalize(c.OriginalValue) + "|" + synonym.Normalize(c.CorrectedValue) + "|" + c.Laboratory
			add(synonyms, &synOrder, key, c)
		case model.CorrectionValue:
			add(values, &valueOrder, labField, c)
		case model.CorrectionReference:
			add(refs, &refOrder, labField, c)
		}
		if c.Laboratory != "" && !knownLabs[synonym.Normalize(c.Laboratory)] {
			add(labs, &labOrder, synonym.Normalize(c.Laboratory), c)
		}
	}

	for _, k := range synOrder {
		g := synonyms[k]
		out = append(out, Suggestion{
			Type: SuggestNewSynonym,
			Description: fmt.Sprintf("Adicionar %q como sinônimo de %q",
				g.sample.OriginalValue, g.sample.CorrectedValue),
			Laboratory:    g.lab,
			Occurrences:   len(g.ids),
			CorrectionIDs: g.ids,
			Data: map[string]string{
				"standard_name": g.sample.CorrectedValue,
				"synonym":       g.sample.OriginalValue,
			},
		})
	}
	for _, k := range valueOrder {
		g := values[k]
		if len(g.ids) < suggestionMinCount {
			continue
		}
		out = append(out, Suggestion{
			Type:          SuggestNewPattern,
			Description:   fmt.Sprintf("Revisar padrão de %s no laboratório %s (%d correções de valor)", g.field, labelOrUnknown(g.lab), len(g.ids)),
			Laboratory:    g.lab,
			Field:         g.field,
			Occurrences:   len(g.ids),
			CorrectionIDs: g.ids,
		})
	}
	for _, k := range refOrder {
		g := refs[k]
		if len(g.ids) < suggestionMinCount {
			continue
		}
		out = append(out, Suggestion{
			Type:          SuggestReferenceUpdate,
			Description:   fmt.Sprintf("Atualizar valor de referência de %s no laboratório %s", g.field, labelOrUnknown(g.lab)),
			Laboratory:    g.lab,
			Field:         g.field,
			Occurrences:   len(g.ids),
			CorrectionIDs: g.ids,
			Data:          map[string]string{"reference": g.sample.CorrectedValue},
		})
	}
	for _, k := range labOrder {
		g := labs[k]
		if len(g.ids) < suggestionMinCount {
			continue
		}
		out = append(out, Suggestion{
			Type:          SuggestNewLaboratory,
			Description:   fmt.Sprintf("Considerar adicionar template para o laboratório frequente %s", g.lab),
			Laboratory:    g.lab,
			Occurrences:   len(g.ids),
			CorrectionIDs: g.ids,
		})
	}
	return out
}

// ExportDocument is the JSON shape written by Export.
type ExportDocument struct {
	ExportDate  time.Time              `json:"exportDate"`
	Stats       *AccuracyReport        `json:"stats"`
	Corrections []model.ExamCorrection `json:"corrections"`
	Suggestions []Suggestion           `json:"suggestions"`
}

// Export writes every correction since the given time with the accuracy
// report and current suggestions as indented JSON.
func (s *Service) Export(ctx context.Context, w io.Writer, since time.Time) error {
	report, err := s.AccuracyReport(ctx, since)
	if err != nil {
		return err
	}
	corrections, err := s.corrections(ctx, since)
	if err != nil {
		return err
	}
	suggestions, err := s.Suggestions(ctx)
	if err != nil {
		return err
	}
	if corrections == nil {
		corrections = []model.ExamCorrection{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ExportDocument{
		ExportDate:  s.now(),
		Stats:       report,
		Corrections: corrections,
		Suggestions: suggestions,
	}); err != nil {
		return eris.Wrap(err, "feedback: encode export")
	}
	return nil
}
