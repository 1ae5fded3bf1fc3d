package main

import (
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/rollcall/internal/ingest"
	"github.com/jackzampolin/rollcall/internal/output"
	"github.com/jackzampolin/rollcall/internal/pipeline"
	"github.com/jackzampolin/rollcall/internal/svcctx"
)

var (
	sweepRoster string
	sweepOpts   batchOptions
)

// sweepOutput is the match outcome per threshold for one extraction pass.
type sweepOutput struct {
	RunID    string                `json:"run_id" yaml:"run_id"`
	Provider string                `json:"provider" yaml:"provider"`
	Points   []pipeline.SweepPoint `json:"points" yaml:"points"`
}

func (s *sweepOutput) TableHeader() []string {
	return []string{"threshold", "matched", "fuzzy", "unmatched", "failed", "match_rate"}
}

func (s *sweepOutput) TableRows() [][]string {
	rows := make([][]string, len(s.Points))
	for i, p := range s.Points {
		rows[i] = []string{
			formatFloat(p.Threshold),
			strconv.Itoa(p.Matched),
			strconv.Itoa(p.Fuzzy),
			strconv.Itoa(p.Unmatched),
			strconv.Itoa(p.Failed),
			formatFloat(p.MatchRate),
		}
	}
	return rows
}

var sweepCmd = &cobra.Command{
	Use:   "sweep [flags] DOCS...",
	Short: "Compare match rates across fuzzy thresholds",
	Long: `Sweep extracts every document once, then reconciles the batch against
the roster at thresholds 0.60 through 0.95 in steps of 0.05. Use it to pick
matching.threshold for a roster.

Examples:
  rollcall sweep --roster roster.xlsx forms/`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if sweepRoster == "" {
			return errors.New("--roster is required")
		}
		ctx := cmd.Context()
		svc := svcctx.ServicesFrom(ctx)
		cfg := svc.Config.Get()

		ref, err := loadRoster(sweepRoster, cfg, svc.Logger)
		if err != nil {
			return err
		}
		sources, err := ingest.Collect(args)
		if err != nil {
			return err
		}
		orch, err := newOrchestrator(svc, cfg, sweepOpts)
		if err != nil {
			return err
		}

		batch, err := orch.Extract(ctx, sources)
		if err != nil {
			return err
		}
		points, err := orch.Sweep(batch, ref.Records, pipeline.SweepThresholds())
		if err != nil {
			return err
		}
		return output.Print(&sweepOutput{RunID: batch.RunID, Provider: batch.Provider, Points: points})
	},
}

func init() {
	sweepCmd.Flags().StringVar(&sweepRoster, "roster", "", "reference roster (.csv or .xlsx)")
	sweepCmd.Flags().StringVar(&sweepOpts.Extractor, "extractor", "", "extractor name from config (default: defaults.extractor)")
	sweepCmd.Flags().IntVar(&sweepOpts.Workers, "workers", 0, "concurrent extractions (default: defaults.workers)")

	rootCmd.AddCommand(sweepCmd)
}
