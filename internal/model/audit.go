package model

import (
	"encoding/json"
	"time"
)

// ExtractionLog is the append-only audit row written once per processed file.
type ExtractionLog struct {
	ID               string           `json:"id"`
	BatchID          string           `json:"batch_id,omitempty"`
	PdfHash          string           `json:"pdf_hash"`
	PdfFileName      string           `json:"pdf_file_name"`
	Success          bool             `json:"success"`
	DocumentType     DocumentType     `json:"document_type"`
	Laboratory       string           `json:"laboratory,omitempty"`
	ExamsExtracted   int              `json:"exams_extracted"`
	ExamsAltered     int              `json:"exams_altered"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
	ExtractionMethod ExtractionMethod `json:"extraction_method,omitempty"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	ErrorStack       string           `json:"error_stack,omitempty"`
	PatientName      string           `json:"patient_name,omitempty"`
	ExamDate         string           `json:"exam_date,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// CorrectionType classifies a reviewer's edit.
type CorrectionType string

const (
	CorrectionValue         CorrectionType = "VALUE"
	CorrectionName          CorrectionType = "NAME"
	CorrectionUnit          CorrectionType = "UNIT"
	CorrectionReference     CorrectionType = "REFERENCE"
	CorrectionMissing       CorrectionType = "MISSING"
	CorrectionFalsePositive CorrectionType = "FALSE_POSITIVE"
)

// Valid reports whether t is a known correction type.
func (t CorrectionType) Valid() bool {
	switch t {
	case CorrectionValue, CorrectionName, CorrectionUnit, CorrectionReference, CorrectionMissing, CorrectionFalsePositive:
		return true
	}
	return false
}

// ExamCorrection records a human edit of an extracted exam. Only the
// applied fields change after insert.
type ExamCorrection struct {
	ID             string         `json:"id"`
	PdfHash        string         `json:"pdf_hash"`
	PdfFileName    string         `json:"pdf_file_name,omitempty"`
	Laboratory     string         `json:"laboratory,omitempty"`
	FieldName      string         `json:"field_name"`
	OriginalValue  string         `json:"original_value"`
	CorrectedValue string         `json:"corrected_value"`
	CorrectionType CorrectionType `json:"correction_type"`
	Context        string         `json:"context,omitempty"`
	Notes          string         `json:"notes,omitempty"`
	AppliedToCode  bool           `json:"applied_to_code"`
	AppliedAt      *time.Time     `json:"applied_at,omitempty"`
	AppliedBy      string         `json:"applied_by,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ExampleQuality grades a few-shot example.
type ExampleQuality string

const (
	QualityValidated ExampleQuality = "VALIDATED"
	QualityCorrected ExampleQuality = "CORRECTED"
	QualityGenerated ExampleQuality = "GENERATED"
)

// Valid reports whether q is a known quality grade.
func (q ExampleQuality) Valid() bool {
	return q == QualityValidated || q == QualityCorrected || q == QualityGenerated
}

// MLFewShotExample pairs a report excerpt with its expected structured output.
type MLFewShotExample struct {
	ID             string          `json:"id"`
	InputText      string          `json:"input_text"`
	ExpectedOutput json.RawMessage `json:"expected_output"`
	Laboratory     string          `json:"laboratory,omitempty"`
	ExamType       string          `json:"exam_type,omitempty"`
	Quality        ExampleQuality  `json:"quality"`
	UsedInTraining bool            `json:"used_in_training"`
	CorrectionID   string          `json:"correction_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ExampleExam is one element of MLFewShotExample.ExpectedOutput.
type ExampleExam struct {
	Name      string `json:"name"`
	Value     string `json:"value,omitempty"`
	Unit      string `json:"unit,omitempty"`
	Reference string `json:"reference,omitempty"`
	Date      string `json:"date,omitempty"`
}
