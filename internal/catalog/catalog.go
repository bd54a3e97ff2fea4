// Package catalog assembles the read-only lookup tables a batch runs
// against: compiled laboratory strategies, the synonym resolver and the
// reference evaluator. A Catalog is built once per batch and never mutated.
package catalog

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/labexam-cli/internal/extract"
	"github.com/sells-group/labexam-cli/internal/model"
	"github.com/sells-group/labexam-cli/internal/reference"
	"github.com/sells-group/labexam-cli/internal/resilience"
	"github.com/sells-group/labexam-cli/internal/synonym"
)

// Source is the read side of the catalog tables.
type Source interface {
	ListTemplates(ctx context.Context, activeOnly bool) ([]model.LaboratoryTemplate, error)
	ListSynonyms(ctx context.Context, activeOnly bool) ([]model.ExamSynonym, error)
	ListReferenceValues(ctx context.Context, activeOnly bool) ([]model.CustomReferenceValue, error)
	ListStandardExams(ctx context.Context) ([]model.StandardExam, error)
}

// Options tune catalog assembly.
type Options struct {
	ReferenceLookahead int
	Retry              resilience.RetryConfig
}

// Catalog is an immutable snapshot. Safe for concurrent use.
type Catalog struct {
	Strategies []extract.LabStrategy
	Resolver   *synonym.Resolver
	Evaluator  *reference.Evaluator
	Standard   []model.StandardExam
	LoadedAt   time.Time

	templates []model.LaboratoryTemplate
}

// Templates returns the active templates in strategy order.
func (c *Catalog) Templates() []model.LaboratoryTemplate {
	return c.templates
}

// Build compiles the given rows. Inactive rows are dropped. Templates whose
// identification patterns are all invalid are skipped with a warning.
func Build(templates []model.LaboratoryTemplate, synonyms []model.ExamSynonym,
	custom []model.CustomReferenceValue, standard []model.StandardExam, lookahead int,
) *Catalog {
	active := make([]model.LaboratoryTemplate, 0, len(templates))
	for _, t := range templates {
		if t.IsActive {
			active = append(active, t)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority > active[j].Priority
		}
		return active[i].Name < active[j].Name
	})

	c := &Catalog{Standard: standard, LoadedAt: time.Now().UTC()}
	for _, t := range active {
		s, err := extract.CompileTemplate(t, lookahead)
		if err != nil {
			zap.L().Warn("catalog: skipping template", zap.String("laboratory", t.Name), zap.Error(err))
			continue
		}
		c.Strategies = append(c.Strategies, s)
		c.templates = append(c.templates, t)
	}

	canonical := make([]string, 0, len(standard))
	for _, s := range standard {
		canonical = append(canonical, s.Name)
	}
	c.Resolver = synonym.NewResolver(canonical, synonyms)
	c.Evaluator = reference.NewEvaluator(custom, standard)
	return c
}

// FromDefaults builds a catalog from seed data alone, without a store.
func FromDefaults(d *Defaults, lookahead int) *Catalog {
	return Build(d.Templates(), d.Synonyms(), nil, d.Standard(), lookahead)
}

// Load reads every table from src with retries. A table that is empty in
// src falls back to the embedded defaults so an unseeded store still works.
// Any read failure after retries is returned: without a catalog no document
// can be classified.
func Load(ctx context.Context, src Source, opts Options) (*Catalog, error) {
	def, err := Builtin()
	if err != nil {
		return nil, err
	}

	retry := opts.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("catalog", "load")
	}

	templates, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]model.LaboratoryTemplate, error) {
		return src.ListTemplates(ctx, true)
	})
	if err != nil {
		return nil, eris.Wrap(err, "catalog: list templates")
	}
	synonyms, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]model.ExamSynonym, error) {
		return src.ListSynonyms(ctx, true)
	})
	if err != nil {
		return nil, eris.Wrap(err, "catalog: list synonyms")
	}
	custom, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]model.CustomReferenceValue, error) {
		return src.ListReferenceValues(ctx, true)
	})
	if err != nil {
		return nil, eris.Wrap(err, "catalog: list reference values")
	}
	standard, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]model.StandardExam, error) {
		return src.ListStandardExams(ctx)
	})
	if err != nil {
		return nil, eris.Wrap(err, "catalog: list standard exams")
	}

	if len(templates) == 0 {
		templates = def.Templates()
	}
	if len(synonyms) == 0 {
		synonyms = def.Synonyms()
	}
	if len(standard) == 0 {
		standard = def.Standard()
	}

	c := Build(templates, synonyms, custom, standard, opts.ReferenceLookahead)
	zap.L().Info("catalog loaded",
		zap.Int("templates", len(c.Strategies)),
		zap.Int("synonyms", len(synonyms)),
		zap.Int("custom_references", len(custom)),
		zap.Int("standard_exams", len(standard)),
	)
	return c, nil
}
