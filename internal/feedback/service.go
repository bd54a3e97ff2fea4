// Package feedback records reviewer corrections and promotes them into the
// catalog tables the extraction pipeline reads on its next batch.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/labexam-cli/internal/model"
	"github.com/sells-group/labexam-cli/internal/store"
)

var (
	// ErrAlreadyApplied is returned when promoting a correction twice.
	ErrAlreadyApplied = eris.New("feedback: correction already applied")
	// ErrNotPromotable is returned when a correction cannot feed the
	// requested target.
	ErrNotPromotable = eris.New("feedback: correction cannot be promoted to target")
	// ErrInvalid wraps validation failures on recorded input.
	ErrInvalid = eris.New("feedback: invalid input")
)

// Repository is the slice of the store the feedback loop needs.
type Repository interface {
	InsertCorrection(ctx context.Context, c *model.ExamCorrection) error
	GetCorrection(ctx context.Context, id string) (*model.ExamCorrection, error)
	ListCorrections(ctx context.Context, filter store.CorrectionFilter) ([]model.ExamCorrection, error)
	MarkCorrectionApplied(ctx context.Context, id, appliedBy string, at time.Time) error
	ReleaseCorrection(ctx context.Context, id string) error
	InsertFewShotExample(ctx context.Context, e *model.MLFewShotExample) error
	UpsertSynonym(ctx context.Context, s *model.ExamSynonym) error
	GetTemplate(ctx context.Context, name string) (*model.LaboratoryTemplate, error)
	UpsertTemplate(ctx context.Context, t *model.LaboratoryTemplate) error
	ListTemplates(ctx context.Context, activeOnly bool) ([]model.LaboratoryTemplate, error)
	ListExtractionLogs(ctx context.Context, filter store.LogFilter) ([]model.ExtractionLog, error)
}

// Service implements the correction and promotion workflow.
type Service struct {
	repo Repository
	now  func() time.Time
}

// New creates a Service backed by repo.
func New(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// RecordCorrection validates and stores a reviewer edit.
func (s *Service) RecordCorrection(ctx context.Context, c *model.ExamCorrection) error {
	if err := validateCorrection(c); err != nil {
		return err
	}
	c.AppliedToCode = false
	c.AppliedAt = nil
	c.AppliedBy = ""
	if err := s.repo.InsertCorrection(ctx, c); err != nil {
		return eris.Wrap(err, "feedback: record correction")
	}
	zap.L().Info("feedback: correction recorded",
		zap.String("id", c.ID),
		zap.String("field", c.FieldName),
		zap.String("type", string(c.CorrectionType)),
		zap.String("laboratory", c.Laboratory),
	)
	return nil
}

func validateCorrection(c *model.ExamCorrection) error {
	c.FieldName = strings.TrimSpace(c.FieldName)
	c.PdfHash = strings.TrimSpace(c.PdfHash)
	c.Laboratory = strings.TrimSpace(c.Laboratory)
	switch {
	case !c.CorrectionType.Valid():
		return eris.Wrapf(ErrInvalid, "unknown correction type %q", c.CorrectionType)
	case c.PdfHash == "":
		return eris.Wrap(ErrInvalid, "pdf hash is required")
	case c.FieldName == "":
		return eris.Wrap(ErrInvalid, "field name is required")
	case c.CorrectionType != model.CorrectionFalsePositive && strings.TrimSpace(c.CorrectedValue) == "":
		return eris.Wrap(ErrInvalid, "corrected value is required")
	case c.CorrectionType != model.CorrectionMissing && strings.TrimSpace(c.OriginalValue) == "":
		return eris.Wrap(ErrInvalid, "original value is required")
	}
	return nil
}

// RecordFewShotExample validates and stores a reviewer-supplied example.
// Quality defaults to VALIDATED.
func (s *Service) RecordFewShotExample(ctx context.Context, e *model.MLFewShotExample) error {
	if e.Quality == "" {
		e.Quality = model.QualityValidated
	}
	if !e.Quality.Valid() {
		return eris.Wrapf(ErrInvalid, "unknown quality %q", e.Quality)
	}
	if strings.TrimSpace(e.InputText) == "" {
		return eris.Wrap(ErrInvalid, "input text is required")
	}
	var exams []model.ExampleExam
	if err := json.Unmarshal(e.ExpectedOutput, &exams); err != nil {
		return eris.Wrap(ErrInvalid, "expected output must be a JSON array of exams")
	}
	if err := s.repo.InsertFewShotExample(ctx, e); err != nil {
		return eris.Wrap(err, "feedback: record few-shot example")
	}
	return nil
}

// Pending lists corrections not yet promoted.
func (s *Service) Pending(ctx context.Context, laboratory string, limit int) ([]model.ExamCorrection, error) {
	out, err := s.repo.ListCorrections(ctx, store.CorrectionFilter{Pending: true, Laboratory: laboratory, Limit: limit})
	if err != nil {
		return nil, eris.Wrap(err, "feedback: list pending corrections")
	}
	return out, nil
}

// Target names where a correction is promoted to.
type Target string

const (
	TargetAuto     Target = "auto"
	TargetSynonym  Target = "synonym"
	TargetTemplate Target = "template"
	TargetFewShot  Target = "fewshot"
)

// ParseTarget accepts the CLI and API spellings of a target.
func ParseTarget(s string) (Target, error) {
	switch t := Target(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TargetAuto, nil
	case TargetAuto, TargetSynonym, TargetTemplate, TargetFewShot:
		return t, nil
	case "few-shot":
		return TargetFewShot, nil
	}
	return "", eris.Errorf("feedback: unknown promotion target %q", s)
}

// Promotion describes the catalog row written for a correction.
type Promotion struct {
	CorrectionID string                    `json:"correction_id"`
	Target       Target                    `json:"target"`
	Synonym      *model.ExamSynonym        `json:"synonym,omitempty"`
	Template     *model.LaboratoryTemplate `json:"template,omitempty"`
	Example      *model.MLFewShotExample   `json:"example,omitempty"`
	AppliedBy    string                    `json:"applied_by"`
	AppliedAt    time.Time                 `json:"applied_at"`
}

// Promote writes the catalog row derived from correction id and marks the
// correction applied. Auto picks the target from the correction type.
//
// The row is built first, then the correction is claimed with a conditional
// update, and only the winner of the claim writes the row. A failed write
// returns the correction to pending.
func (s *Service) Promote(ctx context.Context, id string, target Target, appliedBy string) (*Promotion, error) {
	if strings.TrimSpace(appliedBy) == "" {
		return nil, eris.Wrap(ErrInvalid, "applied by is required")
	}
	c, err := s.repo.GetCorrection(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "feedback: get correction %s", id)
	}
	if c.AppliedToCode {
		return nil, eris.Wrapf(ErrAlreadyApplied, "correction %s", id)
	}

	if target == "" || target == TargetAuto {
		target = autoTarget(c)
	}

	p := &Promotion{CorrectionID: c.ID, Target: target, AppliedBy: appliedBy}
	switch target {
	case TargetSynonym:
		p.Synonym, err = synonymFromCorrection(c)
	case TargetTemplate:
		p.Template, err = s.templateWithCorrection(ctx, c)
	case TargetFewShot:
		p.Example, err = exampleFromCorrection(c)
	default:
		err = eris.Errorf("feedback: unknown promotion target %q", target)
	}
	if err != nil {
		return nil, err
	}

	p.AppliedAt = s.now()
	if err := s.repo.MarkCorrectionApplied(ctx, c.ID, appliedBy, p.AppliedAt); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, eris.Wrapf(ErrAlreadyApplied, "correction %s", id)
		}
		return nil, eris.Wrap(err, "feedback: mark correction applied")
	}

	if err := s.writePromotion(ctx, p); err != nil {
		if rerr := s.repo.ReleaseCorrection(ctx, c.ID); rerr != nil {
			zap.L().Error("feedback: release correction after failed promotion",
				zap.String("id", c.ID), zap.Error(rerr))
		}
		return nil, err
	}

	zap.L().Info("feedback: correction promoted",
		zap.String("id", c.ID),
		zap.String("target", string(target)),
		zap.String("applied_by", appliedBy),
	)
	return p, nil
}

// writePromotion stores the row Promote built.
func (s *Service) writePromotion(ctx context.Context, p *Promotion) error {
	switch {
	case p.Synonym != nil:
		return eris.Wrap(s.repo.UpsertSynonym(ctx, p.Synonym), "feedback: upsert synonym")
	case p.Template != nil:
		return eris.Wrap(s.repo.UpsertTemplate(ctx, p.Template), "feedback: upsert template")
	case p.Example != nil:
		return eris.Wrap(s.repo.InsertFewShotExample(ctx, p.Example), "feedback: insert few-shot example")
	}
	return eris.Errorf("feedback: empty promotion for %s", p.CorrectionID)
}

// autoTarget maps a correction type to its natural catalog table.
// Template-bound corrections without a laboratory become few-shot examples.
func autoTarget(c *model.ExamCorrection) Target {
	switch c.CorrectionType {
	case model.CorrectionName:
		return TargetSynonym
	case model.CorrectionValue, model.CorrectionUnit, model.CorrectionReference, model.CorrectionMissing:
		if c.Laboratory != "" {
			return TargetTemplate
		}
	}
	return TargetFewShot
}

func synonymFromCorrection(c *model.ExamCorrection) (*model.ExamSynonym, error) {
	if c.CorrectionType != model.CorrectionName {
		return nil, eris.Wrapf(ErrNotPromotable, "%s correction to synonym", c.CorrectionType)
	}
	return &model.ExamSynonym{
		StandardName: strings.TrimSpace(c.CorrectedValue),
		Synonym:      strings.TrimSpace(c.OriginalValue),
		Laboratory:   c.Laboratory,
		Source:       model.SynonymSourceCorrection,
		IsActive:     true,
	}, nil
}

// templateWithCorrection loads the laboratory's template and applies c to
// the copy. Nothing is written.
func (s *Service) templateWithCorrection(ctx context.Context, c *model.ExamCorrection) (*model.LaboratoryTemplate, error) {
	if c.Laboratory == "" {
		return nil, eris.Wrap(ErrNotPromotable, "correction has no laboratory")
	}
	t, err := s.repo.GetTemplate(ctx, c.Laboratory)
	if errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(ErrNotPromotable, "no template for laboratory %s", c.Laboratory)
	}
	if err != nil {
		return nil, eris.Wrap(err, "feedback: get template")
	}
	if err := applyToTemplate(t, c); err != nil {
		return nil, err
	}
	return t, nil
}
