package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/labexam-cli/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func fp(v float64) *float64 { return &v }

func weinmannTemplate() *model.LaboratoryTemplate {
	return &model.LaboratoryTemplate{
		Name:                   "WEINMANN",
		FullName:               "Laboratório Weinmann",
		City:                   "Porto Alegre",
		State:                  "RS",
		IdentificationPatterns: []string{`weinmann`},
		AnchorSufficient:       true,
		FieldMappings: []model.FieldMapping{{
			StandardName: "Glicose",
			Patterns:     []string{`GLICOSE\s*:?\s*(?P<value>[\d,.]+)`},
			ExpectedUnit: "mg/dL",
			Position:     &model.FieldPosition{Line: 3, Column: 2},
		}},
		DateFormat:         "DD/MM/YYYY",
		DecimalSeparator:   ",",
		HasEvolutiveReport: true,
		Priority:           90,
		IsActive:           true,
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("UpsertAndGetTemplate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		tmpl := weinmannTemplate()
		require.NoError(t, s.UpsertTemplate(ctx, tmpl))
		assert.NotEmpty(t, tmpl.ID)

		got, err := s.GetTemplate(ctx, "WEINMANN")
		require.NoError(t, err)
		assert.Equal(t, tmpl.ID, got.ID)
		assert.Equal(t, []string{"weinmann"}, got.IdentificationPatterns)
		assert.True(t, got.AnchorSufficient)
		assert.True(t, got.HasEvolutiveReport)
		require.Len(t, got.FieldMappings, 1)
		assert.Equal(t, "mg/dL", got.FieldMappings[0].ExpectedUnit)
		require.NotNil(t, got.FieldMappings[0].Position)
		assert.Equal(t, 2, got.FieldMappings[0].Position.Column)
	})

	t.Run("UpsertTemplateKeepsID", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first := weinmannTemplate()
		require.NoError(t, s.UpsertTemplate(ctx, first))

		second := weinmannTemplate()
		second.Priority = 10
		second.FieldMappings = nil
		require.NoError(t, s.UpsertTemplate(ctx, second))
		assert.Equal(t, first.ID, second.ID)

		got, err := s.GetTemplate(ctx, "WEINMANN")
		require.NoError(t, err)
		assert.Equal(t, 10, got.Priority)
		assert.Empty(t, got.FieldMappings)
	})

	t.Run("UpsertTemplateValidates", func(t *testing.T) {
		s := newStore(t)
		err := s.UpsertTemplate(context.Background(), &model.LaboratoryTemplate{Name: "EMPTY"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no identification patterns")
	})

	t.Run("ListTemplatesOrderAndActive", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, tmpl := range []*model.LaboratoryTemplate{
			{Name: "B_LAB", IdentificationPatterns: []string{"b lab"}, Priority: 50, IsActive: true},
			{Name: "A_LAB", IdentificationPatterns: []string{"a lab"}, Priority: 50, IsActive: true},
			{Name: "TOP", IdentificationPatterns: []string{"top"}, Priority: 99, IsActive: true},
		} {
			require.NoError(t, s.UpsertTemplate(ctx, tmpl))
		}
		require.NoError(t, s.SetTemplateActive(ctx, "B_LAB", false))

		active, err := s.ListTemplates(ctx, true)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, "TOP", active[0].Name)
		assert.Equal(t, "A_LAB", active[1].Name)

		all, err := s.ListTemplates(ctx, false)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("TemplateNotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetTemplate(ctx, "NOPE")
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.True(t, errors.Is(s.SetTemplateActive(ctx, "NOPE", false), ErrNotFound))
	})

	t.Run("SynonymsSeedDoesNotOverrideManual", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		manual := &model.ExamSynonym{StandardName: "Glicose", Synonym: "Glic Jejum", Source: model.SynonymSourceManual, IsActive: true}
		require.NoError(t, s.UpsertSynonym(ctx, manual))
		assert.NotEmpty(t, manual.ID)

		n, err := s.UpsertSynonyms(ctx, []model.ExamSynonym{
			{StandardName: "Glicemia Capilar", Synonym: "GLIC. JEJUM", Source: model.SynonymSourceSystem, IsActive: true},
			{StandardName: "Hemoglobina", Synonym: "HB", Source: model.SynonymSourceSystem, IsActive: true},
			{StandardName: "TGO/AST", Synonym: "TGO", Laboratory: "WEINMANN", Source: model.SynonymSourceSystem, IsActive: true},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		syns, err := s.ListSynonyms(ctx, true)
		require.NoError(t, err)
		require.Len(t, syns, 3)

		byName := map[string]model.ExamSynonym{}
		for _, syn := range syns {
			byName[syn.StandardName] = syn
		}
		assert.Equal(t, model.SynonymSourceManual, byName["Glicose"].Source)
		assert.Equal(t, "Glic Jejum", byName["Glicose"].Synonym)
		assert.Equal(t, "WEINMANN", byName["TGO/AST"].Laboratory)
		assert.NotContains(t, byName, "Glicemia Capilar")
	})

	t.Run("CorrectionSynonymReplacesSystem", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.UpsertSynonyms(ctx, []model.ExamSynonym{
			{StandardName: "Ureia", Synonym: "URÉIA", Source: model.SynonymSourceSystem, IsActive: true},
		})
		require.NoError(t, err)
		require.NoError(t, s.UpsertSynonym(ctx, &model.ExamSynonym{
			StandardName: "Ureia Sérica", Synonym: "ureia", Source: model.SynonymSourceCorrection, IsActive: true,
		}))

		syns, err := s.ListSynonyms(ctx, false)
		require.NoError(t, err)
		require.Len(t, syns, 1)
		assert.Equal(t, "Ureia Sérica", syns[0].StandardName)
		assert.Equal(t, model.SynonymSourceCorrection, syns[0].Source)
	})

	t.Run("SynonymValidation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.Error(t, s.UpsertSynonym(ctx, &model.ExamSynonym{Synonym: "X"}))
		require.Error(t, s.UpsertSynonym(ctx, &model.ExamSynonym{StandardName: "X", Synonym: "Y", Source: "BOT"}))
	})

	t.Run("ReferenceValues", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ageMin := 18
		require.NoError(t, s.InsertReferenceValue(ctx, &model.CustomReferenceValue{
			ExamName: "Glicose", Laboratory: "WEINMANN", MinValue: fp(70), MaxValue: fp(110),
			Unit: "mg/dL", AgeMin: &ageMin, Priority: 5, IsActive: true,
		}))
		require.NoError(t, s.InsertReferenceValue(ctx, &model.CustomReferenceValue{
			ExamName: "PCR", MaxValue: fp(5), Unit: "mg/L", Gender: model.GenderMale, IsActive: false,
		}))

		active, err := s.ListReferenceValues(ctx, true)
		require.NoError(t, err)
		require.Len(t, active, 1)
		v := active[0]
		assert.Equal(t, model.GenderBoth, v.Gender)
		require.NotNil(t, v.MinValue)
		assert.InDelta(t, 70, *v.MinValue, 1e-9)
		require.NotNil(t, v.AgeMin)
		assert.Equal(t, 18, *v.AgeMin)
		assert.Nil(t, v.AgeMax)

		all, err := s.ListReferenceValues(ctx, false)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Nil(t, all[1].MinValue)

		err = s.InsertReferenceValue(ctx, &model.CustomReferenceValue{ExamName: "Ferro"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no bounds")
	})

	t.Run("StandardExams", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.UpsertStandardExams(ctx, []model.StandardExam{
			{Name: "Hemoglobina", Category: "Hemograma", Unit: "g/dL", Ranges: []model.SexRange{
				{Gender: model.GenderMale, Min: fp(13.5), Max: fp(17.5)},
				{Gender: model.GenderFemale, Min: fp(12), Max: fp(15.5)},
			}},
			{Name: "Glicose", Unit: "mg/dL"},
		})
		require.NoError(t, err)
		_, err = s.UpsertStandardExams(ctx, []model.StandardExam{
			{Name: "Glicose", Category: "Bioquímica", Unit: "mg/dL", Ranges: []model.SexRange{
				{Gender: model.GenderBoth, Min: fp(70), Max: fp(99)},
			}},
		})
		require.NoError(t, err)

		exams, err := s.ListStandardExams(ctx)
		require.NoError(t, err)
		require.Len(t, exams, 2)
		assert.Equal(t, "Glicose", exams[0].Name)
		assert.Equal(t, "Bioquímica", exams[0].Category)
		require.Len(t, exams[0].Ranges, 1)
		assert.InDelta(t, 99, *exams[0].Ranges[0].Max, 1e-9)
		assert.Len(t, exams[1].Ranges, 2)
	})

	t.Run("ExtractionLogsFilter", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC()

		logs := []*model.ExtractionLog{
			{PdfHash: "h1", PdfFileName: "old.pdf", Success: true, DocumentType: model.DocumentTypeLaboratory,
				Laboratory: "WEINMANN", CreatedAt: now.Add(-48 * time.Hour)},
			{PdfHash: "h2", PdfFileName: "a.pdf", Success: true, DocumentType: model.DocumentTypeLaboratory,
				Laboratory: "WEINMANN", ExamsExtracted: 12, ExamsAltered: 3, ExtractionMethod: model.MethodHybrid,
				ProcessingTimeMs: 420, PatientName: "MARIA", ExamDate: "2024-03-01", BatchID: "batch-1",
				CreatedAt: now.Add(-time.Hour)},
			{PdfHash: "h3", PdfFileName: "b.pdf", Success: false, DocumentType: model.DocumentTypeLaboratory,
				ErrorMessage: "boom", ErrorStack: "stack", BatchID: "batch-1", CreatedAt: now.Add(-30 * time.Minute)},
		}
		for _, l := range logs {
			require.NoError(t, s.InsertExtractionLog(ctx, l))
			assert.NotEmpty(t, l.ID)
		}

		recent, err := s.ListExtractionLogs(ctx, LogFilter{Since: now.Add(-24 * time.Hour)})
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "b.pdf", recent[0].PdfFileName)
		assert.False(t, recent[0].Success)
		assert.Equal(t, "stack", recent[0].ErrorStack)

		weinmann, err := s.ListExtractionLogs(ctx, LogFilter{Laboratory: "WEINMANN"})
		require.NoError(t, err)
		assert.Len(t, weinmann, 2)

		both, err := s.ListExtractionLogs(ctx, LogFilter{Since: now.Add(-24 * time.Hour), Laboratory: "WEINMANN"})
		require.NoError(t, err)
		require.Len(t, both, 1)
		assert.Equal(t, model.MethodHybrid, both[0].ExtractionMethod)
		assert.Equal(t, 12, both[0].ExamsExtracted)
		assert.Equal(t, int64(420), both[0].ProcessingTimeMs)

		batch, err := s.ListExtractionLogs(ctx, LogFilter{BatchID: "batch-1", Limit: 1})
		require.NoError(t, err)
		assert.Len(t, batch, 1)
	})

	t.Run("CorrectionsLifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC()

		first := &model.ExamCorrection{
			PdfHash: "abc", PdfFileName: "x.pdf", Laboratory: "WEINMANN", FieldName: "Glicose",
			OriginalValue: "9,5", CorrectedValue: "95", CorrectionType: model.CorrectionValue,
			Context: "GLICOSE: 95 mg/dL", CreatedAt: now.Add(-time.Minute),
		}
		second := &model.ExamCorrection{
			PdfHash: "abc", FieldName: "exam_name", OriginalValue: "GLIC J", CorrectedValue: "Glicose",
			CorrectionType: model.CorrectionName, CreatedAt: now,
		}
		require.NoError(t, s.InsertCorrection(ctx, first))
		require.NoError(t, s.InsertCorrection(ctx, second))

		got, err := s.GetCorrection(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "GLICOSE: 95 mg/dL", got.Context)
		assert.False(t, got.AppliedToCode)
		assert.Nil(t, got.AppliedAt)

		pending, err := s.ListCorrections(ctx, CorrectionFilter{Pending: true})
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, second.ID, pending[0].ID)

		require.NoError(t, s.MarkCorrectionApplied(ctx, first.ID, "revisor", now))
		err = s.MarkCorrectionApplied(ctx, first.ID, "revisor", now)
		assert.True(t, errors.Is(err, ErrNotFound))

		got, err = s.GetCorrection(ctx, first.ID)
		require.NoError(t, err)
		assert.True(t, got.AppliedToCode)
		assert.Equal(t, "revisor", got.AppliedBy)
		require.NotNil(t, got.AppliedAt)
		assert.WithinDuration(t, now, *got.AppliedAt, time.Second)

		require.NoError(t, s.ReleaseCorrection(ctx, first.ID))
		err = s.ReleaseCorrection(ctx, first.ID)
		assert.True(t, errors.Is(err, ErrNotFound))
		got, err = s.GetCorrection(ctx, first.ID)
		require.NoError(t, err)
		assert.False(t, got.AppliedToCode)
		assert.Nil(t, got.AppliedAt)
		assert.Empty(t, got.AppliedBy)
		require.NoError(t, s.MarkCorrectionApplied(ctx, first.ID, "revisor", now))

		pending, err = s.ListCorrections(ctx, CorrectionFilter{Pending: true})
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, second.ID, pending[0].ID)

		values, err := s.ListCorrections(ctx, CorrectionFilter{Type: model.CorrectionValue, Laboratory: "WEINMANN"})
		require.NoError(t, err)
		require.Len(t, values, 1)
		assert.Equal(t, first.ID, values[0].ID)

		_, err = s.GetCorrection(ctx, "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("FewShotExamples", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		output := json.RawMessage(`[{"name":"Glicose","value":"95","unit":"mg/dL"}]`)

		for _, e := range []*model.MLFewShotExample{
			{InputText: "GLICOSE 95", ExpectedOutput: output, Laboratory: "WEINMANN", Quality: model.QualityValidated},
			{InputText: "HB 14", ExpectedOutput: output, Quality: model.QualityGenerated},
			{InputText: "TGO 20", ExpectedOutput: output, Laboratory: "FLEURY", Quality: model.QualityCorrected},
		} {
			require.NoError(t, s.InsertFewShotExample(ctx, e))
		}

		forLab, err := s.ListFewShotExamples(ctx, FewShotFilter{Laboratory: "WEINMANN"})
		require.NoError(t, err)
		assert.Len(t, forLab, 2)

		good, err := s.ListFewShotExamples(ctx, FewShotFilter{
			Laboratory: "WEINMANN",
			Qualities:  []model.ExampleQuality{model.QualityValidated, model.QualityCorrected},
		})
		require.NoError(t, err)
		require.Len(t, good, 1)
		assert.Equal(t, "GLICOSE 95", good[0].InputText)
		assert.JSONEq(t, string(output), string(good[0].ExpectedOutput))

		all, err := s.ListFewShotExamples(ctx, FewShotFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}
