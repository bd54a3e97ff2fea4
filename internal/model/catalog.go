package model

import (
	"strings"
	"time"
)

// SynonymSource identifies where a synonym came from. Higher-ranked sources
// win when two synonyms map the same raw string to different names.
type SynonymSource string

const (
	SynonymSourceSystem     SynonymSource = "SYSTEM"
	SynonymSourceCorrection SynonymSource = "CORRECTION"
	SynonymSourceManual     SynonymSource = "MANUAL"
)

// Rank orders sources for conflict resolution (manual > correction > system).
func (s SynonymSource) Rank() int {
	switch s {
	case SynonymSourceManual:
		return 3
	case SynonymSourceCorrection:
		return 2
	case SynonymSourceSystem:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is a known source.
func (s SynonymSource) Valid() bool {
	return s.Rank() > 0
}

// Gender scopes a reference range.
type Gender string

const (
	GenderMale    Gender = "M"
	GenderFemale  Gender = "F"
	GenderBoth    Gender = "BOTH"
	GenderUnknown Gender = ""
)

// LaboratoryTemplate describes how to recognize and parse reports from one
// laboratory. Templates are deactivated rather than deleted.
type LaboratoryTemplate struct {
	ID                     string         `json:"id" yaml:"id"`
	Name                   string         `json:"name" yaml:"name"`
	FullName               string         `json:"full_name,omitempty" yaml:"full_name"`
	City                   string         `json:"city,omitempty" yaml:"city"`
	State                  string         `json:"state,omitempty" yaml:"state"`
	IdentificationPatterns []string       `json:"identification_patterns" yaml:"identification_patterns"`
	AnchorSufficient       bool           `json:"anchor_sufficient" yaml:"anchor_sufficient"` // first pattern alone identifies the lab
	FieldMappings          []FieldMapping `json:"field_mappings,omitempty" yaml:"field_mappings"`
	DateFormat             string         `json:"date_format" yaml:"date_format"`
	DecimalSeparator       string         `json:"decimal_separator" yaml:"decimal_separator"`
	HasEvolutiveReport     bool           `json:"has_evolutive_report" yaml:"has_evolutive_report"`
	Priority               int            `json:"priority" yaml:"priority"`
	IsActive               bool           `json:"is_active" yaml:"is_active"`
	CreatedAt              time.Time      `json:"created_at" yaml:"-"`
	UpdatedAt              time.Time      `json:"updated_at" yaml:"-"`
}

// FieldMapping locates one exam inside a laboratory's report.
type FieldMapping struct {
	StandardName  string         `json:"standard_name" yaml:"standard_name"`
	Patterns      []string       `json:"patterns" yaml:"patterns"`
	ExpectedUnit  string         `json:"expected_unit,omitempty" yaml:"expected_unit"`
	ReferenceText string         `json:"reference_text,omitempty" yaml:"reference_text"`
	Position      *FieldPosition `json:"position,omitempty" yaml:"position"`
}

// FieldPosition is a 1-based line/column hint within a date segment.
// Columns are whitespace-separated tokens.
type FieldPosition struct {
	Line   int `json:"line" yaml:"line"`
	Column int `json:"column" yaml:"column"`
}

// MappingFor returns the field mapping for name (case-insensitive) and its index.
func (t *LaboratoryTemplate) MappingFor(name string) (*FieldMapping, int) {
	for i := range t.FieldMappings {
		if strings.EqualFold(t.FieldMappings[i].StandardName, name) {
			return &t.FieldMappings[i], i
		}
	}
	return nil, -1
}

// ExamSynonym maps one raw spelling to a canonical exam name.
type ExamSynonym struct {
	ID           string        `json:"id"`
	StandardName string        `json:"standard_name"`
	Synonym      string        `json:"synonym"`
	Laboratory   string        `json:"laboratory,omitempty"` // empty = all laboratories
	Source       SynonymSource `json:"source"`
	IsActive     bool          `json:"is_active"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// CustomReferenceValue overrides the built-in reference table.
type CustomReferenceValue struct {
	ID         string    `json:"id"`
	ExamName   string    `json:"exam_name"`
	Laboratory string    `json:"laboratory,omitempty"` // empty = generic
	MinValue   *float64  `json:"min_value,omitempty"`
	MaxValue   *float64  `json:"max_value,omitempty"`
	Unit       string    `json:"unit,omitempty"`
	Gender     Gender    `json:"gender"`
	AgeMin     *int      `json:"age_min,omitempty"`
	AgeMax     *int      `json:"age_max,omitempty"`
	Priority   int       `json:"priority"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// StandardExam is one row of the built-in standardized reference table.
type StandardExam struct {
	Name     string     `json:"name" yaml:"name"`
	Category string     `json:"category,omitempty" yaml:"category"`
	Unit     string     `json:"unit,omitempty" yaml:"unit"`
	Ranges   []SexRange `json:"ranges,omitempty" yaml:"ranges"`
}

// SexRange is a reference interval for one sex (or BOTH).
type SexRange struct {
	Gender Gender   `json:"gender" yaml:"gender"`
	Min    *float64 `json:"min,omitempty" yaml:"min"`
	Max    *float64 `json:"max,omitempty" yaml:"max"`
}
