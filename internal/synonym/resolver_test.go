package synonym

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/labexam-cli/internal/model"
)

func syn(std, raw string, src model.SynonymSource) model.ExamSynonym {
	return model.ExamSynonym{StandardName: std, Synonym: raw, Source: src, IsActive: true}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hemácias", "HEMACIAS"},
		{"  TGO/AST ", "TGO AST"},
		{"Ácido   Úrico", "ACIDO URICO"},
		{"Gama-GT", "GAMA GT"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestResolve_ExactCaseInsensitive(t *testing.T) {
	r := NewResolver([]string{"Glicose"}, []model.ExamSynonym{
		syn("Glicose", "Glicemia de jejum", model.SynonymSourceSystem),
	})

	res := r.Resolve("GLICEMIA DE JEJUM", "")
	assert.Equal(t, "Glicose", res.Name)
	assert.True(t, res.Standardized)
	assert.Equal(t, MatchExact, res.Kind)
	assert.Equal(t, model.SynonymSourceSystem, res.Source)
}

func TestResolve_ManualBeatsConflictingSystem(t *testing.T) {
	r := NewResolver(nil, []model.ExamSynonym{
		syn("Hemoglobina", "HB GLIC", model.SynonymSourceSystem),
		syn("Hemoglobina Glicada", "HB GLIC", model.SynonymSourceManual),
	})

	res := r.Resolve("HB GLIC", "")
	assert.Equal(t, "Hemoglobina Glicada", res.Name)
	assert.Equal(t, model.SynonymSourceManual, res.Source)
}

func TestResolve_CorrectionBeatsSystem(t *testing.T) {
	r := NewResolver(nil, []model.ExamSynonym{
		syn("Creatinina", "CR", model.SynonymSourceSystem),
		syn("Cromo", "CR", model.SynonymSourceCorrection),
	})
	assert.Equal(t, "Cromo", r.Resolve("cr", "").Name)
}

func TestResolve_SameSourceLastWriteWins(t *testing.T) {
	older := syn("Potássio", "K", model.SynonymSourceSystem)
	older.UpdatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := syn("Potássio Sérico", "K", model.SynonymSourceSystem)
	newer.UpdatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	r := NewResolver(nil, []model.ExamSynonym{older, newer})
	assert.Equal(t, "Potássio Sérico", r.Resolve("K", "").Name)
}

func TestResolve_NormalizedFallback(t *testing.T) {
	r := NewResolver(nil, []model.ExamSynonym{
		syn("Ácido Úrico", "ACIDO URICO", model.SynonymSourceSystem),
	})

	res := r.Resolve("Ácido-úrico.", "")
	assert.Equal(t, "Ácido Úrico", res.Name)
	assert.Equal(t, MatchNormalized, res.Kind)
}

func TestResolve_UnmatchedKeptRaw(t *testing.T) {
	r := NewResolver([]string{"Glicose"}, nil)

	res := r.Resolve("  Zinco   sérico ", "")
	assert.Equal(t, "Zinco sérico", res.Name)
	assert.False(t, res.Standardized)
	assert.Equal(t, MatchNone, res.Kind)
}

func TestResolve_Idempotent(t *testing.T) {
	r := NewResolver([]string{"Glicose", "Hemoglobina"}, []model.ExamSynonym{
		syn("Glicose", "GLICEMIA", model.SynonymSourceSystem),
		syn("Hemoglobina", "HB", model.SynonymSourceSystem),
		// A manual entry pointing a canonical name elsewhere must not
		// break idempotence.
		syn("Hemoglobina Glicada", "Glicose", model.SynonymSourceManual),
	})

	for _, raw := range []string{"glicemia", "HB", "Glicose", "Hemoglobina", "Desconhecido X"} {
		first := r.Resolve(raw, "")
		second := r.Resolve(first.Name, "")
		assert.Equal(t, first.Name, second.Name, raw)
	}
	assert.Equal(t, MatchCanonical, r.Resolve("GLICOSE", "").Kind)
}

func TestResolve_LabScoped(t *testing.T) {
	scoped := syn("Vitamina D", "25OH", model.SynonymSourceManual)
	scoped.Laboratory = "WEINMANN"
	r := NewResolver(nil, []model.ExamSynonym{scoped})

	assert.Equal(t, "Vitamina D", r.Resolve("25OH", "weinmann").Name)
	assert.False(t, r.Resolve("25OH", "FLEURY").Standardized)
}

func TestResolve_InactiveIgnored(t *testing.T) {
	s := syn("Glicose", "GLI", model.SynonymSourceManual)
	s.IsActive = false
	r := NewResolver(nil, []model.ExamSynonym{s})
	assert.False(t, r.Resolve("GLI", "").Standardized)
}

func TestIsCanonical(t *testing.T) {
	r := NewResolver([]string{"TSH"}, []model.ExamSynonym{syn("T4 Livre", "T4L", model.SynonymSourceSystem)})
	assert.True(t, r.IsCanonical("tsh"))
	assert.True(t, r.IsCanonical("T4 LIVRE"))
	assert.False(t, r.IsCanonical("T4L"))
}
