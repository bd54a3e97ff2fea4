package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/labexam-cli/internal/model"
	"github.com/sells-group/labexam-cli/internal/synonym"
)

// Column lists shared by both drivers. Scan order matches these lists.
const (
	templateColumns   = `id, name, full_name, city, state, identification_patterns, anchor_sufficient, field_mappings, date_format, decimal_separator, has_evolutive_report, priority, is_active, created_at, updated_at`
	synonymColumns    = `id, standard_name, synonym, laboratory, source, is_active, created_at, updated_at`
	referenceColumns  = `id, exam_name, laboratory, min_value, max_value, unit, gender, age_min, age_max, priority, is_active, created_at`
	standardColumns   = `name, category, unit, ranges`
	logColumns        = `id, batch_id, pdf_hash, pdf_file_name, success, document_type, laboratory, exams_extracted, exams_altered, processing_time_ms, extraction_method, error_message, error_stack, patient_name, exam_date, created_at`
	correctionColumns = `id, pdf_hash, pdf_file_name, laboratory, field_name, original_value, corrected_value, correction_type, context, notes, applied_to_code, applied_at, applied_by, created_at`
	fewShotColumns    = `id, input_text, expected_output, laboratory, exam_type, quality, used_in_training, correction_id, created_at`
)

type scannable interface {
	Scan(dest ...any) error
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

// synonymKey is the uniqueness key of a synonym within a laboratory scope.
func synonymKey(s string) string {
	return synonym.Normalize(s)
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal json column")
	}
	return string(b), nil
}

func scanTemplate(row scannable) (*model.LaboratoryTemplate, error) {
	var t model.LaboratoryTemplate
	var patterns, mappings []byte
	err := row.Scan(&t.ID, &t.Name, &t.FullName, &t.City, &t.State, &patterns, &t.AnchorSufficient,
		&mappings, &t.DateFormat, &t.DecimalSeparator, &t.HasEvolutiveReport, &t.Priority, &t.IsActive,
		&t.CreatedAt, &t.UpdatedAt)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan template")
	}
	if err := json.Unmarshal(patterns, &t.IdentificationPatterns); err != nil {
		return nil, eris.Wrapf(err, "store: unmarshal patterns of %s", t.Name)
	}
	if len(mappings) > 0 {
		if err := json.Unmarshal(mappings, &t.FieldMappings); err != nil {
			return nil, eris.Wrapf(err, "store: unmarshal field mappings of %s", t.Name)
		}
	}
	return &t, nil
}

func scanSynonym(row scannable) (*model.ExamSynonym, error) {
	var s model.ExamSynonym
	var source string
	err := row.Scan(&s.ID, &s.StandardName, &s.Synonym, &s.Laboratory, &source, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: scan synonym")
	}
	s.Source = model.SynonymSource(source)
	return &s, nil
}

func scanReference(row scannable) (*model.CustomReferenceValue, error) {
	var v model.CustomReferenceValue
	var gender string
	err := row.Scan(&v.ID, &v.ExamName, &v.Laboratory, &v.MinValue, &v.MaxValue, &v.Unit, &gender,
		&v.AgeMin, &v.AgeMax, &v.Priority, &v.IsActive, &v.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: scan reference value")
	}
	v.Gender = model.Gender(gender)
	return &v, nil
}

func scanStandard(row scannable) (*model.StandardExam, error) {
	var e model.StandardExam
	var ranges []byte
	if err := row.Scan(&e.Name, &e.Category, &e.Unit, &ranges); err != nil {
		return nil, eris.Wrap(err, "store: scan standard exam")
	}
	if len(ranges) > 0 {
		if err := json.Unmarshal(ranges, &e.Ranges); err != nil {
			return nil, eris.Wrapf(err, "store: unmarshal ranges of %s", e.Name)
		}
	}
	return &e, nil
}

func scanLog(row scannable) (*model.ExtractionLog, error) {
	var l model.ExtractionLog
	var docType, method string
	err := row.Scan(&l.ID, &l.BatchID, &l.PdfHash, &l.PdfFileName, &l.Success, &docType, &l.Laboratory,
		&l.ExamsExtracted, &l.ExamsAltered, &l.ProcessingTimeMs, &method, &l.ErrorMessage, &l.ErrorStack,
		&l.PatientName, &l.ExamDate, &l.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: scan extraction log")
	}
	l.DocumentType = model.DocumentType(docType)
	l.ExtractionMethod = model.ExtractionMethod(method)
	return &l, nil
}

func scanCorrection(row scannable) (*model.ExamCorrection, error) {
	var c model.ExamCorrection
	var ctype string
	err := row.Scan(&c.ID, &c.PdfHash, &c.PdfFileName, &c.Laboratory, &c.FieldName, &c.OriginalValue,
		&c.CorrectedValue, &ctype, &c.Context, &c.Notes, &c.AppliedToCode, &c.AppliedAt, &c.AppliedBy, &c.CreatedAt)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan correction")
	}
	c.CorrectionType = model.CorrectionType(ctype)
	return &c, nil
}

func scanFewShot(row scannable) (*model.MLFewShotExample, error) {
	var e model.MLFewShotExample
	var quality string
	var output []byte
	err := row.Scan(&e.ID, &e.InputText, &output, &e.Laboratory, &e.ExamType, &quality, &e.UsedInTraining,
		&e.CorrectionID, &e.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: scan few-shot example")
	}
	e.Quality = model.ExampleQuality(quality)
	e.ExpectedOutput = json.RawMessage(output)
	return &e, nil
}

// synonymGuard keeps seed rows from replacing human-curated mappings.
const synonymGuard = `(excluded.source <> 'SYSTEM' OR exam_synonyms.source = 'SYSTEM')`

func prepareSynonym(s *model.ExamSynonym) error {
	if strings.TrimSpace(s.Synonym) == "" || strings.TrimSpace(s.StandardName) == "" {
		return eris.New("store: synonym and standard name are required")
	}
	if s.Source == "" {
		s.Source = model.SynonymSourceManual
	}
	if !s.Source.Valid() {
		return eris.Errorf("store: invalid synonym source %q", s.Source)
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

func prepareReference(v *model.CustomReferenceValue) error {
	if strings.TrimSpace(v.ExamName) == "" {
		return eris.New("store: reference value needs an exam name")
	}
	if v.MinValue == nil && v.MaxValue == nil {
		return eris.Errorf("store: reference value for %s has no bounds", v.ExamName)
	}
	if v.Gender == model.GenderUnknown {
		v.Gender = model.GenderBoth
	}
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	return nil
}

func prepareLog(l *model.ExtractionLog) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
}

func prepareCorrection(c *model.ExamCorrection) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
}

func prepareFewShot(e *model.MLFewShotExample) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if len(e.ExpectedOutput) == 0 {
		e.ExpectedOutput = json.RawMessage("[]")
	}
}

func nonNilMappings(m []model.FieldMapping) []model.FieldMapping {
	if m == nil {
		return []model.FieldMapping{}
	}
	return m
}

func nonNilRanges(r []model.SexRange) []model.SexRange {
	if r == nil {
		return []model.SexRange{}
	}
	return r
}

func validateTemplate(t *model.LaboratoryTemplate) error {
	if strings.TrimSpace(t.Name) == "" {
		return eris.New("store: template name is required")
	}
	if len(t.IdentificationPatterns) == 0 {
		return eris.Errorf("store: template %s has no identification patterns", t.Name)
	}
	return nil
}

func stamp(created, updated *time.Time, now time.Time) {
	if created.IsZero() {
		*created = now
	}
	*updated = now
}
