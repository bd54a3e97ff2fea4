package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/labexam-cli/internal/model"
	"github.com/sells-group/labexam-cli/internal/store"
)

// fakeSource serves canned logs and corrections, honouring the filters the
// collector sets.
type fakeSource struct {
	logs        []model.ExtractionLog
	corrections []model.ExamCorrection
	logErr      error
	corrErr     error

	gotLogFilter store.LogFilter
}

func (f *fakeSource) ListExtractionLogs(_ context.Context, filter store.LogFilter) ([]model.ExtractionLog, error) {
	f.gotLogFilter = filter
	if f.logErr != nil {
		return nil, f.logErr
	}
	var out []model.ExtractionLog
	for _, l := range f.logs {
		if !filter.Since.IsZero() && l.CreatedAt.Before(filter.Since) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeSource) ListCorrections(_ context.Context, filter store.CorrectionFilter) ([]model.ExamCorrection, error) {
	if f.corrErr != nil {
		return nil, f.corrErr
	}
	var out []model.ExamCorrection
	for _, c := range f.corrections {
		if filter.Pending && c.AppliedToCode {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func lab(batch, laboratory string, ok bool, method model.ExtractionMethod, exams, altered int, ms int64) model.ExtractionLog {
	return model.ExtractionLog{
		BatchID:          batch,
		Success:          ok,
		DocumentType:     model.DocumentTypeLaboratory,
		Laboratory:       laboratory,
		ExtractionMethod: method,
		ExamsExtracted:   exams,
		ExamsAltered:     altered,
		ProcessingTimeMs: ms,
		CreatedAt:        fixedNow.Add(-time.Hour),
	}
}

func sampleLogs() []model.ExtractionLog {
	ignored := model.ExtractionLog{
		BatchID:          "b2",
		Success:          true,
		DocumentType:     model.DocumentTypeIgnored,
		ProcessingTimeMs: 10,
		CreatedAt:        fixedNow.Add(-time.Hour),
	}
	old := lab("b0", "FLEURY", false, "", 0, 0, 1000)
	old.CreatedAt = fixedNow.Add(-48 * time.Hour)

	return []model.ExtractionLog{
		lab("b1", "FLEURY", true, model.MethodTemplate, 10, 2, 100),
		lab("b1", "FLEURY", true, model.MethodHybrid, 6, 1, 200),
		lab("b1", "", true, model.MethodRegex, 4, 1, 50),
		lab("b2", "DASA", false, "", 0, 0, 30),
		ignored,
		old,
	}
}

func newTestCollector(src Source) *Collector {
	c := NewCollector(src)
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestCollector_Collect(t *testing.T) {
	src := &fakeSource{
		logs: sampleLogs(),
		corrections: []model.ExamCorrection{
			{ID: "c1"}, {ID: "c2"}, {ID: "c3", AppliedToCode: true},
		},
	}

	snap, err := newTestCollector(src).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, fixedNow.Add(-24*time.Hour), src.gotLogFilter.Since)
	assert.Equal(t, 5, snap.DocumentsTotal)
	assert.Equal(t, 3, snap.DocumentsOK)
	assert.Equal(t, 1, snap.DocumentsFailed)
	assert.Equal(t, 1, snap.DocumentsIgnored)
	assert.InDelta(t, 0.25, snap.FailRate, 0.0001)
	assert.InDelta(t, 78.0, snap.AvgProcessingMs, 0.0001)

	assert.Equal(t, 20, snap.ExamsExtracted)
	assert.Equal(t, 4, snap.ExamsAltered)
	assert.InDelta(t, 0.2, snap.AlteredRate, 0.0001)
	assert.Equal(t, 2, snap.Batches)

	assert.Equal(t, map[string]int{"TEMPLATE": 1, "HYBRID": 1, "REGEX": 1, "NONE": 1}, snap.ByMethod)

	require.Len(t, snap.ByLaboratory, 3)
	assert.Equal(t, LabMetrics{Laboratory: "FLEURY", Documents: 2, Exams: 16, Altered: 3}, snap.ByLaboratory[0])
	assert.Equal(t, LabMetrics{Laboratory: "DASA", Documents: 1, Failed: 1}, snap.ByLaboratory[1])
	assert.Equal(t, "DESCONHECIDO", snap.ByLaboratory[2].Laboratory)

	assert.Equal(t, 2, snap.PendingCorrections)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, fixedNow, snap.CollectedAt)
}

func TestCollector_Empty(t *testing.T) {
	snap, err := newTestCollector(&fakeSource{}).Collect(context.Background(), 1)
	require.NoError(t, err)

	assert.Zero(t, snap.DocumentsTotal)
	assert.Zero(t, snap.FailRate)
	assert.Zero(t, snap.AvgProcessingMs)
	assert.NotNil(t, snap.ByLaboratory)
	assert.Empty(t, snap.ByMethod)
}

func TestCollector_LogError(t *testing.T) {
	_, err := newTestCollector(&fakeSource{logErr: errors.New("db down")}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list extraction logs")
}

func TestCollector_CorrectionError(t *testing.T) {
	_, err := newTestCollector(&fakeSource{corrErr: errors.New("db down")}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list pending corrections")
}

func TestCollector_SQLiteStore(t *testing.T) {
	st, err := store.NewSQLite(t.TempDir() + "/monitoring.db")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	l := lab("b1", "FLEURY", true, model.MethodTemplate, 3, 1, 120)
	l.CreatedAt = time.Time{}
	require.NoError(t, st.InsertExtractionLog(ctx, &l))

	snap, err := NewCollector(st).Collect(ctx, 24)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.DocumentsTotal)
	assert.Equal(t, 3, snap.ExamsExtracted)
}
