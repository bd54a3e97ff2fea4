package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/labexam-cli/internal/catalog"
	"github.com/sells-group/labexam-cli/internal/config"
	"github.com/sells-group/labexam-cli/internal/model"
	"github.com/sells-group/labexam-cli/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Store: config.StoreConfig{Driver: "sqlite"},
		Batch: config.BatchConfig{Workers: 2, DocumentTimeoutSecs: 30},
		Extraction: config.ExtractionConfig{
			MLConfidenceThreshold:   0.5,
			DefaultDecimalSeparator: ",",
			ReferenceLookaheadLines: 2,
		},
		Catalog:    config.CatalogConfig{LoadAttempts: 1},
		Monitoring: config.MonitoringConfig{LookbackWindowHours: 24},
	}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "labexam.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

const glucoseReport = `Paciente: MARIA DA SILVA
Data da coleta: 10/01/2024
Glicose: 180 mg/dL (VR: 70-99)`

func runTestBatch(t *testing.T) *model.BatchResult {
	t.Helper()
	res, err := newService(testConfig(), nil, nil).RunBatch(context.Background(), []model.RawDocument{
		{Filename: "laudo.txt", RawText: glucoseReport},
		{Filename: "receita.txt", RawText: "RECEITA MÉDICA\nLosartana 50mg\nUso Contínuo\nTomar 1 comprimido pela manhã\nAssinatura e CRM"},
	})
	require.NoError(t, err)
	return res
}

func TestWriteOutputs_AllFormats(t *testing.T) {
	res := runTestBatch(t)
	require.Equal(t, 1, res.TotalExams)

	dir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, writeOutputs(dir, []string{"json", "csv", "pivot", "xlsx", "report"}, res))

	for _, name := range outputFiles {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Positive(t, info.Size(), name)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "resultado.json"))
	require.NoError(t, err)
	var back model.BatchResult
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, res.BatchID, back.BatchID)
	assert.Equal(t, 1, back.Ignored)

	pivot, err := os.ReadFile(filepath.Join(dir, "tabela_pivot.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(pivot), "# PACIENTE: MARIA DA SILVA")
	assert.Contains(t, string(pivot), "Glicose;180*")
}

func TestWriteOutputs_Subset(t *testing.T) {
	res := runTestBatch(t)
	dir := t.TempDir()
	require.NoError(t, writeOutputs(dir, []string{"CSV"}, res))

	_, err := os.Stat(filepath.Join(dir, "exames.csv"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "resultado.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestWriteOutputs_UnknownFormat(t *testing.T) {
	err := writeOutputs(t.TempDir(), []string{"pdf"}, &model.BatchResult{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestMergeLoadErrors(t *testing.T) {
	res := &model.BatchResult{
		TotalFiles: 2,
		Errors:     []model.FileError{{File: "b.txt", Message: "timeout"}},
	}
	mergeLoadErrors(res, []model.FileError{{File: "a.pdf", Message: "pdftotext failed"}})

	assert.Equal(t, 3, res.TotalFiles)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "a.pdf", res.Errors[0].File)
	assert.Equal(t, "b.txt", res.Errors[1].File)

	mergeLoadErrors(res, nil)
	assert.Equal(t, 3, res.TotalFiles)
}

func TestSeedStore_KeepsExistingTemplates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	def, err := catalog.Builtin()
	require.NoError(t, err)
	require.NotEmpty(t, def.Templates())

	first, err := seedStore(ctx, st, def, false)
	require.NoError(t, err)
	assert.Equal(t, len(def.Templates()), first.Templates)
	assert.Zero(t, first.TemplatesKept)
	assert.Positive(t, first.Synonyms)
	assert.Positive(t, first.StandardExams)

	name := def.Templates()[0].Name
	tmpl, err := st.GetTemplate(ctx, name)
	require.NoError(t, err)
	tmpl.DecimalSeparator = "."
	require.NoError(t, st.UpsertTemplate(ctx, tmpl))

	second, err := seedStore(ctx, st, def, false)
	require.NoError(t, err)
	assert.Zero(t, second.Templates)
	assert.Equal(t, len(def.Templates()), second.TemplatesKept)
	got, err := st.GetTemplate(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, ".", got.DecimalSeparator)

	forced, err := seedStore(ctx, st, def, true)
	require.NoError(t, err)
	assert.Equal(t, len(def.Templates()), forced.Templates)
	got, err = st.GetTemplate(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, def.Templates()[0].DecimalSeparator, got.DecimalSeparator)
}

func TestLoadSeed_Builtin(t *testing.T) {
	def, err := loadSeed("")
	require.NoError(t, err)
	assert.NotEmpty(t, def.Standard())

	_, err = loadSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
