package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/labexam-cli/internal/config"
	"github.com/sells-group/labexam-cli/internal/feedback"
	"github.com/sells-group/labexam-cli/internal/monitoring"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show extraction accuracy and health",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate(config.ModeStore); err != nil {
			return err
		}
		ctx := cmd.Context()
		days, _ := cmd.Flags().GetInt("days")
		asJSON, _ := cmd.Flags().GetBool("json")
		since, err := parseSince("", fmt.Sprint(days))
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rep, err := feedback.New(st).AccuracyReport(ctx, since)
		if err != nil {
			return err
		}
		snap, err := monitoring.NewCollector(st).Collect(ctx, days*24)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"accuracy": rep, "metrics": snap})
		}
		formatStats(os.Stdout, rep, snap)
		return nil
	},
}

func formatStats(w io.Writer, rep *feedback.AccuracyReport, snap *monitoring.MetricsSnapshot) {
	fmt.Fprintf(w, "Since:               %s\n", rep.Since.Format("2006-01-02"))
	fmt.Fprintf(w, "Extractions:         %d (%d failed)\n", rep.TotalExtractions, rep.FailedExtractions)
	fmt.Fprintf(w, "Exams extracted:     %d\n", rep.TotalExams)
	fmt.Fprintf(w, "Corrections:         %d (%d pending)\n", rep.TotalCorrections, rep.PendingCorrections)
	fmt.Fprintf(w, "Accuracy:            %.2f%%\n", rep.AccuracyPct)
	fmt.Fprintf(w, "Ignored documents:   %d\n", snap.DocumentsIgnored)
	fmt.Fprintf(w, "Avg processing:      %.0f ms\n", snap.AvgProcessingMs)
	fmt.Fprintf(w, "Altered exams:       %d (%.1f%%)\n", snap.ExamsAltered, snap.AlteredRate*100)

	if len(rep.CorrectionsByType) > 0 {
		fmt.Fprintln(w, "\nCorrections by type:")
		for _, c := range rep.CorrectionsByType {
			fmt.Fprintf(w, "  %-16s %d\n", c.Key, c.Count)
		}
	}

	if len(rep.FieldErrorRates) > 0 {
		fmt.Fprintln(w, "\nError rate by laboratory and field:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  LAB\tFIELD\tDOCS\tCORRECTED\tRATE")
		for _, r := range rep.FieldErrorRates {
			fmt.Fprintf(tw, "  %s\t%s\t%d\t%d\t%.1f%%\n", r.Laboratory, r.Field, r.Documents, r.Corrected, r.RatePct)
		}
		tw.Flush() //nolint:errcheck
	}

	if len(snap.ByLaboratory) > 0 {
		fmt.Fprintln(w, "\nDocuments by laboratory:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  LAB\tDOCS\tFAILED\tEXAMS\tALTERED")
		for _, l := range snap.ByLaboratory {
			fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\t%d\n", l.Laboratory, l.Documents, l.Failed, l.Exams, l.Altered)
		}
		tw.Flush() //nolint:errcheck
	}
}

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Suggest catalog improvements from pending corrections",
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

		list, err := feedback.New(st).Suggestions(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(os.Stderr, "No suggestions.")
			return nil
		}
		formatSuggestions(os.Stdout, list)
		return nil
	},
}

func formatSuggestions(w io.Writer, list []feedback.Suggestion) {
	for i, s := range list {
		fmt.Fprintf(w, "%d. [%s] %s (%d ocorrências)\n", i+1, s.Type, s.Description, s.Occurrences)
		if len(s.CorrectionIDs) > 0 {
			fmt.Fprintf(w, "   correções: %v\n", s.CorrectionIDs)
		}
	}
}

func init() {
	statsCmd.Flags().Int("days", defaultStatsDays, "report window in days")
	statsCmd.Flags().Bool("json", false, "print JSON instead of text")
	rootCmd.AddCommand(statsCmd, suggestCmd)
}
