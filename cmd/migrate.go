package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/labexam-cli/internal/catalog"
	"github.com/sells-group/labexam-cli/internal/config"
	"github.com/sells-group/labexam-cli/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate(config.ModeStore); err != nil {
			return err
		}
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		zap.L().Info("schema up to date", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

var (
	seedFile  string
	seedForce bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load laboratory templates, synonyms and reference tables into the store",
	Long:  "Upserts the built-in catalog, or the YAML file given with --file (or catalog.seed_file), into the store. Existing templates are kept unless --force is set, so promoted corrections survive a re-seed.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate(config.ModeStore); err != nil {
			return err
		}
		ctx := cmd.Context()

		path := seedFile
		if path == "" {
			path = cfg.Catalog.SeedFile
		}
		def, err := loadSeed(path)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := seedStore(ctx, st, def, seedForce)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "templates: %d (%d kept), synonyms: %d, standard exams: %d\n",
			res.Templates, res.TemplatesKept, res.Synonyms, res.StandardExams)
		return nil
	},
}

type seedResult struct {
	Templates     int
	TemplatesKept int
	Synonyms      int64
	StandardExams int64
}

func loadSeed(path string) (*catalog.Defaults, error) {
	if path == "" {
		return catalog.Builtin()
	}
	return catalog.LoadFile(path)
}

// seedStore upserts every table of def. Synonyms use system source so
// manual and correction rows keep precedence. Templates already in the
// store are left alone unless force is set.
func seedStore(ctx context.Context, st store.Store, def *catalog.Defaults, force bool) (*seedResult, error) {
	res := &seedResult{}
	for _, t := range def.Templates() {
		t := t
		if !force {
			_, err := st.GetTemplate(ctx, t.Name)
			if err == nil {
				res.TemplatesKept++
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return nil, eris.Wrapf(err, "seed template %s", t.Name)
			}
		}
		if err := st.UpsertTemplate(ctx, &t); err != nil {
			return nil, eris.Wrapf(err, "seed template %s", t.Name)
		}
		res.Templates++
	}

	n, err := st.UpsertSynonyms(ctx, def.Synonyms())
	if err != nil {
		return nil, eris.Wrap(err, "seed synonyms")
	}
	res.Synonyms = n

	n, err = st.UpsertStandardExams(ctx, def.Standard())
	if err != nil {
		return nil, eris.Wrap(err, "seed standard exams")
	}
	res.StandardExams = n

	zap.L().Info("catalog seeded",
		zap.Int("templates", res.Templates),
		zap.Int("templates_kept", res.TemplatesKept),
		zap.Int64("synonyms", res.Synonyms),
		zap.Int64("standard_exams", res.StandardExams),
	)
	return res, nil
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "seed YAML file (default: built-in catalog)")
	seedCmd.Flags().BoolVar(&seedForce, "force", false, "overwrite templates that already exist")
	rootCmd.AddCommand(migrateCmd, seedCmd)
}
