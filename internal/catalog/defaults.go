package catalog

import (
	_ "embed"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/labexam-cli/internal/model"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Defaults is the seed catalog: the built-in one is embedded, and admins can
// supply their own file with the same shape.
type Defaults struct {
	Laboratories  []model.LaboratoryTemplate `yaml:"laboratories"`
	LabSynonyms   []LabSynonyms              `yaml:"lab_synonyms"`
	StandardExams []StandardEntry            `yaml:"standard_exams"`
}

// LabSynonyms are raw spellings that only one laboratory prints.
type LabSynonyms struct {
	Laboratory string            `yaml:"laboratory"`
	Entries    map[string]string `yaml:"entries"`
}

// StandardEntry is a canonical exam with its reference ranges and the
// spellings that resolve to it everywhere.
type StandardEntry struct {
	model.StandardExam `yaml:",inline"`
	Synonyms           []string `yaml:"synonyms"`
}

// Builtin returns the embedded defaults.
func Builtin() (*Defaults, error) {
	return Parse(defaultsYAML)
}

// LoadFile reads a seed file from disk.
func LoadFile(path string) (*Defaults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates seed YAML.
func Parse(data []byte) (*Defaults, error) {
	var d Defaults
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, eris.Wrap(err, "catalog: parse defaults")
	}
	for i, lab := range d.Laboratories {
		if strings.TrimSpace(lab.Name) == "" {
			return nil, eris.Errorf("catalog: laboratory %d has no name", i)
		}
		if len(lab.IdentificationPatterns) == 0 {
			return nil, eris.Errorf("catalog: laboratory %s has no identification patterns", lab.Name)
		}
	}
	for i, ex := range d.StandardExams {
		if strings.TrimSpace(ex.Name) == "" {
			return nil, eris.Errorf("catalog: standard exam %d has no name", i)
		}
	}
	return &d, nil
}

// Templates returns the laboratory templates.
func (d *Defaults) Templates() []model.LaboratoryTemplate {
	out := make([]model.LaboratoryTemplate, len(d.Laboratories))
	copy(out, d.Laboratories)
	return out
}

// Standard returns the reference table rows.
func (d *Defaults) Standard() []model.StandardExam {
	out := make([]model.StandardExam, 0, len(d.StandardExams))
	for _, e := range d.StandardExams {
		out = append(out, e.StandardExam)
	}
	return out
}

// Synonyms flattens the global and lab-scoped spellings into system-sourced
// synonym rows. Spellings equal to their canonical name are skipped.
func (d *Defaults) Synonyms() []model.ExamSynonym {
	var out []model.ExamSynonym
	for _, e := range d.StandardExams {
		for _, s := range e.Synonyms {
			if strings.EqualFold(strings.TrimSpace(s), e.Name) {
				continue
			}
			out = append(out, model.ExamSynonym{
				StandardName: e.Name,
				Synonym:      s,
				Source:       model.SynonymSourceSystem,
				IsActive:     true,
			})
		}
	}
	for _, ls := range d.LabSynonyms {
		for _, raw := range slices.Sorted(maps.Keys(ls.Entries)) {
			out = append(out, model.ExamSynonym{
				StandardName: ls.Entries[raw],
				Synonym:      raw,
				Laboratory:   ls.Laboratory,
				Source:       model.SynonymSourceSystem,
				IsActive:     true,
			})
		}
	}
	return out
}
