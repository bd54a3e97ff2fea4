package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/labexam-cli/internal/catalog"
	"github.com/sells-group/labexam-cli/internal/model"
)

// Service loads a fresh catalog for every batch so promoted corrections are
// picked up on the next run.
type Service struct {
	// Source is read once per batch. Nil runs against the embedded defaults.
	Source    catalog.Source
	Catalog   catalog.Options
	Processor ProcessorOptions
	Logs      LogWriter
	Batch     Config
}

// LoadCatalog returns the catalog the next batch would use.
func (s *Service) LoadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	if s.Source == nil {
		def, err := catalog.Builtin()
		if err != nil {
			return nil, err
		}
		return catalog.FromDefaults(def, s.Catalog.ReferenceLookahead), nil
	}
	return catalog.Load(ctx, s.Source, s.Catalog)
}

// RunBatch loads the catalog and processes docs. A catalog failure fails
// the whole batch since nothing can be classified without it.
func (s *Service) RunBatch(ctx context.Context, docs []model.RawDocument) (*model.BatchResult, error) {
	cat, err := s.LoadCatalog(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load catalog")
	}
	orch := NewOrchestrator(NewProcessor(cat, s.Processor), s.Logs, s.Batch)
	return orch.Run(ctx, docs)
}
