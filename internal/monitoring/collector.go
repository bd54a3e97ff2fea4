// Package monitoring summarises extraction health from the audit log and
// raises alerts when it degrades.
package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/labexam-cli/internal/model"
	"github.com/sells-group/labexam-cli/internal/store"
)

const (
	logScanLimit        = 100000
	pendingScanLimit    = 10000
	unknownLaboratory   = "DESCONHECIDO"
	unknownMethodBucket = "NONE"
)

// LabMetrics aggregates one laboratory's documents in the window.
type LabMetrics struct {
	Laboratory string `json:"laboratory"`
	Documents  int    `json:"documents"`
	Failed     int    `json:"failed"`
	Exams      int    `json:"exams"`
	Altered    int    `json:"altered"`
}

// MetricsSnapshot holds a point-in-time view of extraction health.
type MetricsSnapshot struct {
	// Documents within the lookback window.
	DocumentsTotal   int     `json:"documents_total"`
	DocumentsOK      int     `json:"documents_ok"`
	DocumentsFailed  int     `json:"documents_failed"`
	DocumentsIgnored int     `json:"documents_ignored"`
	FailRate         float64 `json:"fail_rate"`
	AvgProcessingMs  float64 `json:"avg_processing_ms"`

	// Exams within the lookback window.
	ExamsExtracted int     `json:"exams_extracted"`
	ExamsAltered   int     `json:"exams_altered"`
	AlteredRate    float64 `json:"altered_rate"`

	ByMethod     map[string]int `json:"by_method"`
	ByLaboratory []LabMetrics   `json:"by_laboratory"`
	Batches      int            `json:"batches"`

	// Review backlog, not windowed.
	PendingCorrections int `json:"pending_corrections"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Source abstracts the store methods the collector reads.
type Source interface {
	ListExtractionLogs(ctx context.Context, filter store.LogFilter) ([]model.ExtractionLog, error)
	ListCorrections(ctx context.Context, filter store.CorrectionFilter) ([]model.ExamCorrection, error)
}

// Collector gathers metrics from the extraction audit log.
type Collector struct {
	src Source
	now func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(src Source) *Collector {
	return &Collector{src: src, now: time.Now}
}

// Collect gathers a snapshot of extraction metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	logs, err := c.src.ListExtractionLogs(ctx, store.LogFilter{Since: cutoff, Limit: logScanLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list extraction logs")
	}

	snap := summarize(logs)
	snap.LookbackHours = lookbackHours
	snap.CollectedAt = now

	pending, err := c.src.ListCorrections(ctx, store.CorrectionFilter{Pending: true, Limit: pendingScanLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list pending corrections")
	}
	snap.PendingCorrections = len(pending)

	return snap, nil
}

func summarize(logs []model.ExtractionLog) *MetricsSnapshot {
	snap := &MetricsSnapshot{ByMethod: make(map[string]int)}
	labs := make(map[string]*LabMetrics)
	batches := make(map[string]bool)
	var totalMs int64

	for _, l := range logs {
		snap.DocumentsTotal++
		totalMs += l.ProcessingTimeMs
		if l.BatchID != "" {
			batches[l.BatchID] = true
		}

		switch {
		case !l.Success:
			snap.DocumentsFailed++
		case l.DocumentType == model.DocumentTypeIgnored:
			snap.DocumentsIgnored++
			continue
		default:
			snap.DocumentsOK++
		}

		method := string(l.ExtractionMethod)
		if method == "" {
			method = unknownMethodBucket
		}
		snap.ByMethod[method]++

		lab := l.Laboratory
		if lab == "" {
			lab = unknownLaboratory
		}
		lm := labs[lab]
		if lm == nil {
			lm = &LabMetrics{Laboratory: lab}
			labs[lab] = lm
		}
		lm.Documents++
		if !l.Success {
			lm.Failed++
		}
		lm.Exams += l.ExamsExtracted
		lm.Altered += l.ExamsAltered

		snap.ExamsExtracted += l.ExamsExtracted
		snap.ExamsAltered += l.ExamsAltered
	}

	if snap.DocumentsTotal > 0 {
		snap.AvgProcessingMs = float64(totalMs) / float64(snap.DocumentsTotal)
	}
	if finished := snap.DocumentsOK + snap.DocumentsFailed; finished > 0 {
		snap.FailRate = float64(snap.DocumentsFailed) / float64(finished)
	}
	if snap.ExamsExtracted > 0 {
		snap.AlteredRate = float64(snap.ExamsAltered) / float64(snap.ExamsExtracted)
	}
	snap.Batches = len(batches)

	snap.ByLaboratory = make([]LabMetrics, 0, len(labs))
	for _, lm := range labs {
		snap.ByLaboratory = append(snap.ByLaboratory, *lm)
	}
	sort.Slice(snap.ByLaboratory, func(i, j int) bool {
		a, b := snap.ByLaboratory[i], snap.ByLaboratory[j]
		if a.Documents != b.Documents {
			return a.Documents > b.Documents
		}
		return a.Laboratory < b.Laboratory
	})
	return snap
}
