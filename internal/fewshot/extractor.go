// Package fewshot implements the optional ML extraction fallback: a Claude
// model prompted with validated few-shot examples drawn from reviewer
// corrections.
package fewshot

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/labexam-cli/internal/extract"
	"github.com/sells-group/labexam-cli/internal/model"
	"github.com/sells-group/labexam-cli/internal/resilience"
	"github.com/sells-group/labexam-cli/internal/store"
	"github.com/sells-group/labexam-cli/pkg/anthropic"
)

// ExampleSource lists stored few-shot examples.
type ExampleSource interface {
	ListFewShotExamples(ctx context.Context, filter store.FewShotFilter) ([]model.MLFewShotExample, error)
}

// Config tunes the ML extractor.
type Config struct {
	Model             string
	MaxTokens         int64
	Temperature       float64
	RequestsPerSecond float64
	MaxExamples       int
	MaxInputRunes     int
	ExampleTTL        time.Duration
	Retry             resilience.RetryConfig
}

// DefaultConfig mirrors the production settings.
func DefaultConfig() Config {
	return Config{
		Model:             "claude-haiku-4-5-20251001",
		MaxTokens:         4000,
		Temperature:       0.1,
		RequestsPerSecond: 2,
		MaxExamples:       3,
		MaxInputRunes:     8000,
		ExampleTTL:        10 * time.Minute,
		Retry:             resilience.DefaultRetryConfig(),
	}
}

// Stats summarises usage since construction.
type Stats struct {
	Calls         int                  `json:"calls"`
	Failures      int                  `json:"failures"`
	ExamsReturned int                  `json:"exams_returned"`
	AvgLatencyMs  float64              `json:"avg_latency_ms"`
	Usage         anthropic.TokenUsage `json:"usage"`
	EstimatedCost float64              `json:"estimated_cost_usd"`
}

type cachedExamples struct {
	examples []model.MLFewShotExample
	loadedAt time.Time
}

// Extractor implements extract.MLExtractor. Safe for concurrent use.
type Extractor struct {
	client   anthropic.Client
	examples ExampleSource
	cfg      Config
	limiter  *rate.Limiter

	mu           sync.Mutex
	cache        map[string]cachedExamples
	stats        Stats
	totalLatency time.Duration
}

var _ extract.MLExtractor = (*Extractor)(nil)

// New builds an Extractor. examples may be nil, in which case only the
// built-in examples are used.
func New(client anthropic.Client, examples ExampleSource, cfg Config) *Extractor {
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.MaxExamples <= 0 {
		cfg.MaxExamples = def.MaxExamples
	}
	if cfg.MaxInputRunes <= 0 {
		cfg.MaxInputRunes = def.MaxInputRunes
	}
	if cfg.ExampleTTL <= 0 {
		cfg.ExampleTTL = def.ExampleTTL
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Extractor{
		client:   client,
		examples: examples,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		cache:    make(map[string]cachedExamples),
	}
}

// ExtractExams asks the model for every exam in text. The returned
// candidates carry raw strings only.
func (e *Extractor) ExtractExams(ctx context.Context, text, laboratory string) ([]extract.Candidate, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fewshot: rate limit")
	}

	examples := e.examplesFor(ctx, laboratory)
	temp := e.cfg.Temperature
	req := anthropic.MessageRequest{
		Model:       e.cfg.Model,
		MaxTokens:   e.cfg.MaxTokens,
		System:      anthropic.BuildCachedSystemBlocks(systemPrompt(examples)),
		Messages:    []anthropic.Message{{Role: "user", Content: userPrompt(text, e.cfg.MaxInputRunes)}},
		Temperature: &temp,
	}

	retry := e.cfg.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("fewshot", "extract")
	}

	start := time.Now()
	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.client.CreateMessage(ctx, req)
	})
	if err != nil {
		e.record(time.Since(start), anthropic.TokenUsage{}, 0, false)
		return nil, eris.Wrap(err, "fewshot: extract")
	}

	cands, err := parseResponse(resp.Text())
	if err != nil {
		e.record(time.Since(start), resp.Usage, 0, false)
		return nil, err
	}
	e.record(time.Since(start), resp.Usage, len(cands), true)
	resp.Usage.LogCost(e.cfg.Model, "fewshot")
	return cands, nil
}

func parseResponse(text string) ([]extract.Candidate, error) {
	var exams []mlExam
	if err := json.Unmarshal([]byte(cleanJSONArray(text)), &exams); err != nil {
		return nil, eris.Wrap(err, "fewshot: parse response")
	}
	cands := make([]extract.Candidate, 0, len(exams))
	for _, ex := range exams {
		name := strings.TrimSpace(ex.Name)
		value := strings.TrimSpace(string(ex.Value))
		if name == "" || value == "" {
			continue
		}
		cands = append(cands, extract.Candidate{
			RawName:       name,
			ResultRaw:     value,
			Unit:          strings.TrimSpace(ex.Unit),
			ReferenceText: strings.TrimSpace(string(ex.Reference)),
			Date:          strings.TrimSpace(ex.Date),
		})
	}
	return cands, nil
}

// examplesFor returns up to MaxExamples examples for laboratory, cached per
// laboratory for ExampleTTL. Store failures fall back to the built-ins.
func (e *Extractor) examplesFor(ctx context.Context, laboratory string) []model.MLFewShotExample {
	e.mu.Lock()
	if c, ok := e.cache[laboratory]; ok && time.Since(c.loadedAt) < e.cfg.ExampleTTL {
		e.mu.Unlock()
		return c.examples
	}
	e.mu.Unlock()

	var stored []model.MLFewShotExample
	if e.examples != nil {
		var err error
		stored, err = e.examples.ListFewShotExamples(ctx, store.FewShotFilter{
			Laboratory: laboratory,
			Qualities:  []model.ExampleQuality{model.QualityValidated, model.QualityCorrected},
			Limit:      50,
		})
		if err != nil {
			zap.L().Warn("fewshot: loading examples failed, using built-ins",
				zap.String("laboratory", laboratory), zap.Error(err))
			stored = nil
		}
	}

	picked := Select(append(stored, builtinExamples...), laboratory, e.cfg.MaxExamples)

	e.mu.Lock()
	e.cache[laboratory] = cachedExamples{examples: picked, loadedAt: time.Now()}
	e.mu.Unlock()
	return picked
}

// Select ranks examples: same laboratory first, then quality, then newest.
func Select(examples []model.MLFewShotExample, laboratory string, n int) []model.MLFewShotExample {
	ranked := make([]model.MLFewShotExample, len(examples))
	copy(ranked, examples)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		am, bm := laboratory != "" && a.Laboratory == laboratory, laboratory != "" && b.Laboratory == laboratory
		if am != bm {
			return am
		}
		if qa, qb := qualityRank(a.Quality), qualityRank(b.Quality); qa != qb {
			return qa > qb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func qualityRank(q model.ExampleQuality) int {
	switch q {
	case model.QualityValidated:
		return 3
	case model.QualityCorrected:
		return 2
	case model.QualityGenerated:
		return 1
	}
	return 0
}

// Invalidate drops cached examples so the next call reloads them.
func (e *Extractor) Invalidate() {
	e.mu.Lock()
	e.cache = make(map[string]cachedExamples)
	e.mu.Unlock()
}

func (e *Extractor) record(latency time.Duration, usage anthropic.TokenUsage, exams int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.Calls++
	if !ok {
		e.stats.Failures++
	}
	e.stats.ExamsReturned += exams
	e.stats.Usage.Add(usage)
	e.totalLatency += latency
}

// Stats returns a snapshot of usage counters.
func (e *Extractor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	if s.Calls > 0 {
		s.AvgLatencyMs = float64(e.totalLatency.Milliseconds()) / float64(s.Calls)
	}
	s.EstimatedCost = s.Usage.EstimateCost(e.cfg.Model)
	return s
}
