package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/rollcall/internal/output"
	"github.com/jackzampolin/rollcall/internal/svcctx"
)

var (
	validateRoster string
	validateOpts   batchOptions
)

var validateCmd = &cobra.Command{
	Use:   "validate [flags] DOCS...",
	Short: "Validate enrollment documents against a roster",
	Long: `Validate extracts fields from every document, matches each one to at
most one roster student, and writes a report with one row per document in
input order.

Directories expand to their .pdf and .docx files, sorted by numeric suffix.
Per-document failures appear as EXTRACTION_FAILED rows and never change the
exit status.

Examples:
  rollcall validate --roster roster.xlsx forms/
  rollcall validate --roster roster.csv --out report.xlsx form-1.pdf form-2.pdf
  rollcall validate --roster roster.csv --extractor text --threshold 0.8 forms/`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if validateRoster == "" {
			return errors.New("--roster is required")
		}
		validateOpts.HasThreshold = cmd.Flags().Changed("threshold")

		ctx := cmd.Context()
		res, err := runValidation(ctx, svcctx.ServicesFrom(ctx), validateOpts, args, validateRoster)
		if err != nil {
			return err
		}
		return output.Print(res)
	},
}

func init() {
	addBatchFlags(validateCmd, &validateOpts)
	validateCmd.Flags().StringVar(&validateRoster, "roster", "", "reference roster (.csv or .xlsx)")
	validateCmd.Flags().StringVar(&validateOpts.Out, "out", "", "report file, .csv or .xlsx (default: ~/.rollcall/reports/<run-id>.csv)")

	rootCmd.AddCommand(validateCmd)
}

// addBatchFlags registers the extractor, worker, and threshold overrides.
func addBatchFlags(cmd *cobra.Command, opts *batchOptions) {
	cmd.Flags().StringVar(&opts.Extractor, "extractor", "", "extractor name from config (default: defaults.extractor)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent extractions (default: defaults.workers)")
	cmd.Flags().Float64Var(&opts.Threshold, "threshold", 0, "fuzzy name match threshold in [0,1] (default: matching.threshold)")
}
