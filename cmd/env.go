package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/labexam-cli/internal/catalog"
	"github.com/sells-group/labexam-cli/internal/config"
	"github.com/sells-group/labexam-cli/internal/extract"
	"github.com/sells-group/labexam-cli/internal/fewshot"
	"github.com/sells-group/labexam-cli/internal/pipeline"
	"github.com/sells-group/labexam-cli/internal/resilience"
	"github.com/sells-group/labexam-cli/internal/store"
	"github.com/sells-group/labexam-cli/pkg/anthropic"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "labexam.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore connects and applies the schema. Callers close the store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// newService wires the batch pipeline. A nil store runs against the
// embedded catalog without audit logging; a nil ml disables the fallback.
func newService(c *config.Config, st store.Store, ml *fewshot.Extractor) *pipeline.Service {
	svc := &pipeline.Service{
		Catalog: catalog.Options{
			ReferenceLookahead: c.Extraction.ReferenceLookaheadLines,
			Retry:              resilience.DefaultRetryConfig().WithAttempts(c.Catalog.LoadAttempts),
		},
		Processor: pipeline.ProcessorOptions{
			Extraction: extract.Options{
				DefaultDecimalSeparator: c.Extraction.DefaultDecimalSeparator,
				ReferenceLookahead:      c.Extraction.ReferenceLookaheadLines,
				MLConfidenceThreshold:   c.Extraction.MLConfidenceThreshold,
			},
		},
		Batch: pipeline.Config{
			Workers:         c.Batch.Workers,
			DocumentTimeout: c.Batch.DocumentTimeout(),
		},
	}
	if st != nil {
		svc.Source = st
		svc.Logs = st
	}
	if ml != nil {
		svc.Processor.ML = ml
	}
	return svc
}

// initML returns the few-shot extractor when enabled, nil otherwise.
func initML(c *config.Config, st store.Store) *fewshot.Extractor {
	if !c.Extraction.MLEnabled {
		return nil
	}
	mlCfg := fewshot.DefaultConfig()
	if c.Anthropic.Model != "" {
		mlCfg.Model = c.Anthropic.Model
	}
	if c.Anthropic.MaxTokens > 0 {
		mlCfg.MaxTokens = c.Anthropic.MaxTokens
	}
	mlCfg.RequestsPerSecond = c.Anthropic.RequestsPerSecond

	var examples fewshot.ExampleSource
	if st != nil {
		examples = st
	}
	zap.L().Info("ml extraction enabled",
		zap.String("model", mlCfg.Model),
		zap.Float64("requests_per_second", mlCfg.RequestsPerSecond),
	)
	return fewshot.New(anthropic.NewClient(c.Anthropic.Key), examples, mlCfg)
}
