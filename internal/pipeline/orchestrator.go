package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/labexam-cli/internal/model"
	"github.com/sells-group/labexam-cli/internal/pdftext"
)

// LogWriter receives one audit row per document.
type LogWriter interface {
	InsertExtractionLog(ctx context.Context, l *model.ExtractionLog) error
}

// Config tunes the batch runner.
type Config struct {
	Workers         int
	DocumentTimeout time.Duration
}

const (
	defaultWorkers         = 4
	defaultDocumentTimeout = 30 * time.Second
)

// Orchestrator runs a batch of documents through a Processor.
type Orchestrator struct {
	proc *Processor
	logs LogWriter
	cfg  Config
}

// NewOrchestrator builds an orchestrator. logs may be nil, in which case no
// audit rows are written.
func NewOrchestrator(proc *Processor, logs LogWriter, cfg Config) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.DocumentTimeout <= 0 {
		cfg.DocumentTimeout = defaultDocumentTimeout
	}
	return &Orchestrator{proc: proc, logs: logs, cfg: cfg}
}

// docResult is the per-slot outcome, kept in input order.
type docResult struct {
	outcome *Outcome
	err     error
	elapsed time.Duration
}

// Run processes docs concurrently. Per-document failures, timeouts and
// panics land in BatchResult.Errors; the batch always completes. The
// returned error is non-nil only when ctx was cancelled.
func (o *Orchestrator) Run(ctx context.Context, docs []model.RawDocument) (*model.BatchResult, error) {
	batchID := uuid.New().String()
	log := zap.L().With(zap.String("batch_id", batchID), zap.Int("files", len(docs)))
	log.Info("pipeline: starting batch", zap.Int("workers", o.cfg.Workers))

	start := time.Now()
	results := make([]docResult, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for i, doc := range docs {
		g.Go(func() error {
			if gctx.Err() != nil {
				results[i] = docResult{err: eris.Wrap(gctx.Err(), "pipeline: batch cancelled")}
				return nil
			}
			docStart := time.Now()
			out, err := o.processWithTimeout(gctx, doc)
			results[i] = docResult{outcome: out, err: err, elapsed: time.Since(docStart)}
			o.writeLog(gctx, batchID, doc, results[i])
			return nil
		})
	}
	_ = g.Wait()

	batch := assemble(batchID, docs, results)
	wall := time.Since(start)

	log.Info("pipeline: batch complete",
		zap.Int("processed", batch.Processed),
		zap.Int("ignored", batch.Ignored),
		zap.Int("errors", len(batch.Errors)),
		zap.Int("exams", batch.TotalExams),
		zap.Duration("wall", wall),
	)

	if err := ctx.Err(); err != nil {
		return batch, eris.Wrap(err, "pipeline: run batch")
	}
	return batch, nil
}

// processWithTimeout bounds one document. Extraction is CPU-bound and does
// not observe ctx, so a timed-out document keeps running in its goroutine
// and its late result is discarded.
func (o *Orchestrator) processWithTimeout(ctx context.Context, doc model.RawDocument) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.DocumentTimeout)
	defer cancel()

	type result struct {
		out *Outcome
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: eris.Errorf("pipeline: panic processing %s: %v", doc.Filename, r)}
			}
		}()
		out, err := o.proc.Process(ctx, doc)
		ch <- result{out: out, err: err}
	}()

	select {
	case r := <-ch:
		return r.out, r.err
	case <-ctx.Done():
		return nil, eris.Wrapf(ctx.Err(), "pipeline: %s timed out after %s", doc.Filename, o.cfg.DocumentTimeout)
	}
}

func (o *Orchestrator) writeLog(ctx context.Context, batchID string, doc model.RawDocument, r docResult) {
	if o.logs == nil {
		return
	}
	entry := buildLog(batchID, doc, r)
	// The audit row is written even when the batch context was cancelled.
	if err := o.logs.InsertExtractionLog(context.WithoutCancel(ctx), entry); err != nil {
		zap.L().Error("pipeline: write extraction log failed",
			zap.String("file", doc.Filename), zap.Error(err))
	}
}

func buildLog(batchID string, doc model.RawDocument, r docResult) *model.ExtractionLog {
	hash := doc.ContentHash
	if hash == "" {
		hash = pdftext.Hash([]byte(doc.RawText))
	}
	entry := &model.ExtractionLog{
		BatchID:          batchID,
		PdfHash:          hash,
		PdfFileName:      doc.Filename,
		ProcessingTimeMs: r.elapsed.Milliseconds(),
	}
	if r.err != nil {
		entry.Success = false
		entry.DocumentType = model.DocumentTypeLaboratory
		entry.ErrorMessage = r.err.Error()
		entry.ErrorStack = eris.ToString(r.err, true)
		return entry
	}

	out := r.outcome
	entry.Success = true
	entry.DocumentType = out.Classification.DocumentType
	entry.Laboratory = out.Classification.Laboratory
	if !out.Classification.IsLab() {
		entry.ErrorMessage = out.Classification.Reason
		return entry
	}
	entry.ExamsExtracted = len(out.Exams)
	entry.ExamsAltered = out.Altered()
	entry.ExtractionMethod = out.Method
	entry.PatientName = out.PatientName
	entry.ExamDate = out.ExamDate
	return entry
}

// assemble folds per-document results into the batch aggregate, in input
// order. Both timing fields come from the summed per-document times, not
// from wall time, so concurrency does not inflate the rate.
func assemble(batchID string, docs []model.RawDocument, results []docResult) *model.BatchResult {
	batch := &model.BatchResult{
		BatchID:      batchID,
		TotalFiles:   len(docs),
		Exams:        []model.ExtractedExam{},
		IgnoredFiles: []model.IgnoredFile{},
		Errors:       []model.FileError{},
	}
	var spent time.Duration
	for i, r := range results {
		spent += r.elapsed
		switch {
		case r.err != nil:
			batch.Errors = append(batch.Errors, model.FileError{File: docs[i].Filename, Message: r.err.Error()})
			zap.L().Error("pipeline: document failed", zap.String("file", docs[i].Filename), zap.Error(r.err))
		case r.outcome == nil:
			batch.Errors = append(batch.Errors, model.FileError{
				File:    docs[i].Filename,
				Message: fmt.Sprintf("pipeline: no result for %s", docs[i].Filename),
			})
		case !r.outcome.Classification.IsLab():
			batch.Ignored++
			batch.IgnoredFiles = append(batch.IgnoredFiles, model.IgnoredFile{
				File:     docs[i].Filename,
				Reason:   r.outcome.Classification.Reason,
				Category: r.outcome.Classification.Category,
			})
		default:
			batch.Processed++
			batch.Exams = append(batch.Exams, r.outcome.Exams...)
		}
	}
	batch.Exams = Consolidate(batch.Exams)
	batch.TotalExams = len(batch.Exams)
	batch.TotalTimeMs = spent.Milliseconds()
	if minutes := spent.Minutes(); minutes > 0 {
		batch.ExamsPerMinute = float64(batch.TotalExams) / minutes
	}
	return batch
}
