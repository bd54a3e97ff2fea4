package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/labexam-cli/internal/config"
	"github.com/sells-group/labexam-cli/internal/feedback"
	"github.com/sells-group/labexam-cli/internal/model"
	"github.com/sells-group/labexam-cli/internal/store"
)

var correctionsCmd = &cobra.Command{
	Use:   "corrections",
	Short: "Record, review and promote reviewer corrections",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate(config.ModeStore)
	},
}

// -- corrections add --

var correctionsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a correction of an extracted exam",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		f := cmd.Flags()
		c := &model.ExamCorrection{}
		c.PdfHash, _ = f.GetString("pdf-hash")
		c.PdfFileName, _ = f.GetString("file")
		c.Laboratory, _ = f.GetString("laboratory")
		c.FieldName, _ = f.GetString("field")
		c.OriginalValue, _ = f.GetString("original")
		c.CorrectedValue, _ = f.GetString("corrected")
		c.Context, _ = f.GetString("context")
		c.Notes, _ = f.GetString("notes")
		typ, _ := f.GetString("type")
		c.CorrectionType = model.CorrectionType(strings.ToUpper(typ))

		if err := feedback.New(st).RecordCorrection(ctx, c); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, c.ID)
		return nil
	},
}

// -- corrections list --

var correctionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List corrections",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		all, _ := cmd.Flags().GetBool("all")
		lab, _ := cmd.Flags().GetString("laboratory")
		typ, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")

		list, err := st.ListCorrections(ctx, store.CorrectionFilter{
			Pending:    !all,
			Laboratory: lab,
			Type:       model.CorrectionType(strings.ToUpper(typ)),
			Limit:      limit,
		})
		if err != nil {
			return eris.Wrap(err, "corrections list")
		}
		if len(list) == 0 {
			fmt.Fprintln(os.Stderr, "No corrections found.")
			return nil
		}
		formatCorrections(os.Stdout, list)
		return nil
	},
}

func formatCorrections(w io.Writer, list []model.ExamCorrection) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tLAB\tFIELD\tORIGINAL\tCORRECTED\tAPPLIED\tCREATED")
	for _, c := range list {
		applied := "-"
		if c.AppliedToCode {
			applied = c.AppliedBy
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.CorrectionType, dash(c.Laboratory), c.FieldName,
			truncateCell(c.OriginalValue), truncateCell(c.CorrectedValue),
			applied, c.CreatedAt.Format(time.DateTime))
	}
	tw.Flush() //nolint:errcheck
}

// -- corrections promote --

var correctionsPromoteCmd = &cobra.Command{
	Use:   "promote <correction-id>",
	Short: "Fold a correction into the catalog",
	Long:  "Writes a synonym, template mapping or few-shot example derived from the correction. Target auto picks one from the correction type.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		targetFlag, _ := cmd.Flags().GetString("target")
		by, _ := cmd.Flags().GetString("by")
		target, err := feedback.ParseTarget(targetFlag)
		if err != nil {
			return err
		}

		p, err := feedback.New(st).Promote(ctx, args[0], target, by)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "correction %s promoted to %s by %s\n", p.CorrectionID, p.Target, p.AppliedBy)
		return nil
	},
}

// -- corrections export --

var correctionsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export corrections, accuracy stats and suggestions as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		days, _ := cmd.Flags().GetInt("days")
		out, _ := cmd.Flags().GetString("out")
		since, err := parseSince("", fmt.Sprint(days))
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if out == "" || out == "-" {
			return feedback.New(st).Export(ctx, os.Stdout, since)
		}
		return writeFile(out, func(w io.Writer) error {
			return feedback.New(st).Export(ctx, w, since)
		})
	},
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncateCell(s string) string {
	const width = 30
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}

func init() {
	af := correctionsAddCmd.Flags()
	af.String("pdf-hash", "", "content hash of the source document")
	af.String("file", "", "source file name")
	af.String("laboratory", "", "laboratory that issued the report")
	af.String("field", "", "standard exam name the correction applies to")
	af.String("type", "", "VALUE, NAME, UNIT, REFERENCE, MISSING or FALSE_POSITIVE")
	af.String("original", "", "value the extractor produced")
	af.String("corrected", "", "value the reviewer expects")
	af.String("context", "", "source line the value was read from")
	af.String("notes", "", "free-text reviewer notes")
	_ = correctionsAddCmd.MarkFlagRequired("pdf-hash")
	_ = correctionsAddCmd.MarkFlagRequired("field")
	_ = correctionsAddCmd.MarkFlagRequired("type")

	correctionsListCmd.Flags().Bool("all", false, "include applied corrections")
	correctionsListCmd.Flags().String("laboratory", "", "filter by laboratory")
	correctionsListCmd.Flags().String("type", "", "filter by correction type")
	correctionsListCmd.Flags().Int("limit", 50, "maximum rows")

	correctionsPromoteCmd.Flags().String("target", "auto", "auto, synonym, template or fewshot")
	correctionsPromoteCmd.Flags().String("by", os.Getenv("USER"), "reviewer applying the correction")

	correctionsExportCmd.Flags().Int("days", defaultStatsDays, "include corrections from the last N days")
	correctionsExportCmd.Flags().StringP("out", "o", "-", "output file (- for stdout)")

	correctionsCmd.AddCommand(correctionsAddCmd, correctionsListCmd, correctionsPromoteCmd, correctionsExportCmd)
	rootCmd.AddCommand(correctionsCmd)
}
