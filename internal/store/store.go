package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/labexam-cli/internal/model"
)

// ErrNotFound is returned when a single-row lookup matches nothing.
var ErrNotFound = eris.New("store: not found")

// LogFilter specifies criteria for listing extraction logs.
type LogFilter struct {
	Since      time.Time `json:"since,omitempty"`
	Laboratory string    `json:"laboratory,omitempty"`
	BatchID    string    `json:"batch_id,omitempty"`
	Limit      int       `json:"limit,omitempty"`
}

// CorrectionFilter specifies criteria for listing corrections.
type CorrectionFilter struct {
	Pending    bool                 `json:"pending,omitempty"` // only corrections not yet applied
	Laboratory string               `json:"laboratory,omitempty"`
	Type       model.CorrectionType `json:"type,omitempty"`
	Limit      int                  `json:"limit,omitempty"`
}

// FewShotFilter specifies criteria for listing few-shot examples.
type FewShotFilter struct {
	Laboratory string                 `json:"laboratory,omitempty"` // matches the lab or lab-less rows
	Qualities  []model.ExampleQuality `json:"qualities,omitempty"`
	Limit      int                    `json:"limit,omitempty"`
}

// Store defines the persistence interface for the catalog and audit tables.
type Store interface {
	// Laboratory templates
	ListTemplates(ctx context.Context, activeOnly bool) ([]model.LaboratoryTemplate, error)
	GetTemplate(ctx context.Context, name string) (*model.LaboratoryTemplate, error)
	UpsertTemplate(ctx context.Context, t *model.LaboratoryTemplate) error
	SetTemplateActive(ctx context.Context, name string, active bool) error

	// Synonyms
	ListSynonyms(ctx context.Context, activeOnly bool) ([]model.ExamSynonym, error)
	UpsertSynonym(ctx context.Context, s *model.ExamSynonym) error
	UpsertSynonyms(ctx context.Context, syns []model.ExamSynonym) (int64, error)

	// Reference values
	ListReferenceValues(ctx context.Context, activeOnly bool) ([]model.CustomReferenceValue, error)
	InsertReferenceValue(ctx context.Context, v *model.CustomReferenceValue) error
	ListStandardExams(ctx context.Context) ([]model.StandardExam, error)
	UpsertStandardExams(ctx context.Context, exams []model.StandardExam) (int64, error)

	// Audit
	InsertExtractionLog(ctx context.Context, l *model.ExtractionLog) error
	ListExtractionLogs(ctx context.Context, filter LogFilter) ([]model.ExtractionLog, error)
	InsertCorrection(ctx context.Context, c *model.ExamCorrection) error
	GetCorrection(ctx context.Context, id string) (*model.ExamCorrection, error)
	ListCorrections(ctx context.Context, filter CorrectionFilter) ([]model.ExamCorrection, error)
	MarkCorrectionApplied(ctx context.Context, id, appliedBy string, at time.Time) error
	ReleaseCorrection(ctx context.Context, id string) error
	InsertFewShotExample(ctx context.Context, e *model.MLFewShotExample) error
	ListFewShotExamples(ctx context.Context, filter FewShotFilter) ([]model.MLFewShotExample, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 500

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
