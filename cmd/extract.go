package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/labexam-cli/internal/config"
	"github.com/sells-group/labexam-cli/internal/export"
	"github.com/sells-group/labexam-cli/internal/fewshot"
	"github.com/sells-group/labexam-cli/internal/model"
	"github.com/sells-group/labexam-cli/internal/pdftext"
	"github.com/sells-group/labexam-cli/internal/store"
)

var (
	extractOut     string
	extractFormats []string
	extractNoStore bool
)

var outputFiles = map[string]string{
	"json":   "resultado.json",
	"csv":    "exames.csv",
	"pivot":  "tabela_pivot.csv",
	"xlsx":   "tabela_pivot.xlsx",
	"report": "relatorio.txt",
}

var extractCmd = &cobra.Command{
	Use:   "extract <file-or-dir>...",
	Short: "Extract exams from a batch of reports",
	Long:  "Reads .pdf and .txt reports, ignores non-laboratory documents, extracts and evaluates exam results, and writes the batch outputs.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.ModeExtract); err != nil {
			return err
		}
		for _, f := range extractFormats {
			if _, ok := outputFiles[f]; !ok {
				return eris.Errorf("unknown output format %q", f)
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		paths, err := pdftext.Collect(args)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return eris.New("no .pdf or .txt files found")
		}

		loader := pdftext.NewLoader(pdftext.NewPdfToText(cfg.PDF.PdfToTextPath))
		docs, loadErrs := loader.Load(ctx, paths)

		var st store.Store
		if !extractNoStore {
			st, err = openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
		}

		ml := initML(cfg, st)
		res, err := newService(cfg, st, ml).RunBatch(ctx, docs)
		if err != nil {
			return err
		}
		if ml != nil {
			logMLStats(ml.Stats())
		}
		mergeLoadErrors(res, loadErrs)

		if err := writeOutputs(extractOut, extractFormats, res); err != nil {
			return err
		}

		zap.L().Info("batch complete",
			zap.String("batch_id", res.BatchID),
			zap.Int("files", res.TotalFiles),
			zap.Int("processed", res.Processed),
			zap.Int("ignored", res.Ignored),
			zap.Int("errors", len(res.Errors)),
			zap.Int("exams", res.TotalExams),
			zap.String("out", extractOut),
		)
		fmt.Fprintf(os.Stdout, "%d exames de %d arquivos (%d ignorados, %d erros) em %s\n",
			res.TotalExams, res.TotalFiles, res.Ignored, len(res.Errors), extractOut)
		return nil
	},
}

func logMLStats(s fewshot.Stats) {
	zap.L().Info("ml usage",
		zap.Int("calls", s.Calls),
		zap.Int("failures", s.Failures),
		zap.Int("exams", s.ExamsReturned),
		zap.Float64("avg_latency_ms", s.AvgLatencyMs),
		zap.Int64("input_tokens", s.Usage.InputTokens),
		zap.Int64("output_tokens", s.Usage.OutputTokens),
		zap.Float64("estimated_cost_usd", s.EstimatedCost),
	)
}

// mergeLoadErrors counts files that never reached the pipeline.
func mergeLoadErrors(res *model.BatchResult, loadErrs []model.FileError) {
	if len(loadErrs) == 0 {
		return
	}
	res.TotalFiles += len(loadErrs)
	res.Errors = append(append([]model.FileError{}, loadErrs...), res.Errors...)
}

// writeOutputs writes each requested format into dir.
func writeOutputs(dir string, formats []string, res *model.BatchResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "create output dir %s", dir)
	}
	pivots := export.BuildPivots(res.Exams)

	for _, f := range formats {
		var write func(io.Writer) error
		switch strings.ToLower(f) {
		case "json":
			write = func(w io.Writer) error {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
		case "csv":
			write = func(w io.Writer) error { return export.WriteCSV(w, res.Exams) }
		case "pivot":
			write = func(w io.Writer) error { return export.WritePivotCSV(w, pivots) }
		case "xlsx":
			write = func(w io.Writer) error { return export.WriteXLSX(w, pivots) }
		case "report":
			write = func(w io.Writer) error { return export.WriteReport(w, res) }
		default:
			return eris.Errorf("unknown output format %q", f)
		}
		if err := writeFile(filepath.Join(dir, outputFiles[strings.ToLower(f)]), write); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := write(f); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrapf(err, "write %s", path)
	}
	return eris.Wrapf(f.Close(), "close %s", path)
}

func init() {
	extractCmd.Flags().StringVarP(&extractOut, "out", "o", "resultados", "output directory")
	extractCmd.Flags().StringSliceVar(&extractFormats, "format", []string{"json", "csv", "pivot", "xlsx", "report"}, "outputs to write: json, csv, pivot, xlsx, report")
	extractCmd.Flags().BoolVar(&extractNoStore, "no-store", false, "use the built-in catalog and skip audit logging")
	rootCmd.AddCommand(extractCmd)
}
