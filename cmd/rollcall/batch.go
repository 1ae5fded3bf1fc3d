package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jackzampolin/rollcall/internal/config"
	"github.com/jackzampolin/rollcall/internal/evaluate"
	"github.com/jackzampolin/rollcall/internal/ingest"
	"github.com/jackzampolin/rollcall/internal/normalize"
	"github.com/jackzampolin/rollcall/internal/pipeline"
	"github.com/jackzampolin/rollcall/internal/report"
	"github.com/jackzampolin/rollcall/internal/roster"
	"github.com/jackzampolin/rollcall/internal/svcctx"
)

// batchOptions are the per-run overrides shared by validate, sweep, and watch.
type batchOptions struct {
	Extractor string
	Workers   int
	Threshold float64
	// HasThreshold is set when --threshold was given.
	HasThreshold bool
	Out          string
}

func (o batchOptions) threshold(cfg *config.Config) float64 {
	if o.HasThreshold {
		return o.Threshold
	}
	return cfg.Matching.Threshold
}

// newOrchestrator builds a pipeline for the selected extractor from the
// current config.
func newOrchestrator(svc *svcctx.Services, cfg *config.Config, opts batchOptions) (*pipeline.Orchestrator, error) {
	name := opts.Extractor
	if name == "" {
		name = cfg.Defaults.Extractor
	}
	extractor, err := svc.Registry.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w (enabled extractors: %v)", err, svc.Registry.List())
	}

	logger := svc.Logger
	normalizer, err := normalize.New(normalize.Config{
		Aliases:        cfg.Normalize.Aliases,
		RequiredFields: cfg.Matching.RequiredFields,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	evaluator, err := evaluate.New(cfg.CompareFields)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = cfg.Defaults.Workers
	}

	return pipeline.New(pipeline.Config{
		Extractor:       extractor,
		Loader:          newLoader(cfg, logger),
		Normalizer:      normalizer,
		Evaluator:       evaluator,
		Workers:         workers,
		DocumentTimeout: cfg.Defaults.DocumentTimeout.Std(),
		Logger:          logger,
	})
}

func newLoader(cfg *config.Config, logger *slog.Logger) *ingest.Loader {
	return &ingest.Loader{
		Converter: ingest.NewSofficeConverter(cfg.Convert.SofficePath, cfg.Convert.Timeout.Std()),
		Logger:    logger,
	}
}

func loadRoster(path string, cfg *config.Config, logger *slog.Logger) (*roster.Roster, error) {
	return roster.Load(path, roster.Config{
		Columns: cfg.Roster.Columns,
		Sheet:   cfg.Roster.Sheet,
		Logger:  logger,
	})
}

// validateOutput is the printed result of one validation run.
type validateOutput struct {
	RunID     string              `json:"run_id" yaml:"run_id"`
	Provider  string              `json:"provider" yaml:"provider"`
	Threshold float64             `json:"threshold" yaml:"threshold"`
	Report    string              `json:"report" yaml:"report"`
	Stats     evaluate.BatchStats `json:"stats" yaml:"stats"`

	summary report.Table
}

func (v *validateOutput) TableHeader() []string { return v.summary.Header }

func (v *validateOutput) TableRows() [][]string {
	rows := [][]string{{"run_id", v.RunID}, {"report", v.Report}}
	return append(rows, v.summary.Rows...)
}

// runValidation runs one batch end to end and writes its report. Only
// configuration problems, an unreadable roster, and cancellation are
// returned as errors.
func runValidation(ctx context.Context, svc *svcctx.Services, opts batchOptions, paths []string, rosterPath string) (*validateOutput, error) {
	cfg := svc.Config.Get()
	threshold := opts.threshold(cfg)

	ref, err := loadRoster(rosterPath, cfg, svc.Logger)
	if err != nil {
		return nil, err
	}
	sources, err := ingest.Collect(paths)
	if err != nil {
		return nil, err
	}
	orch, err := newOrchestrator(svc, cfg, opts)
	if err != nil {
		return nil, err
	}

	result, err := orch.Run(ctx, sources, ref.Records, threshold)
	if err != nil {
		return nil, err
	}

	rep := newReport(result, orch, ref)
	out := opts.Out
	if out == "" {
		if err := svc.Home.EnsureExists(); err != nil {
			return nil, err
		}
		out = svc.Home.ReportPath(result.RunID, cfg.Report.Format)
	}
	if err := report.WriteFile(out, rep); err != nil {
		return nil, err
	}
	svc.Logger.Info("report written", "run", result.RunID, "path", out)

	return &validateOutput{
		RunID:     result.RunID,
		Provider:  result.Provider,
		Threshold: threshold,
		Report:    out,
		Stats:     result.Stats,
		summary:   rep.Summary(),
	}, nil
}

func newReport(result *pipeline.Result, orch *pipeline.Orchestrator, ref *roster.Roster) *report.Report {
	return &report.Report{
		Rows:       result.Rows,
		Fields:     orch.Fields(),
		Stats:      result.Stats,
		References: ref.Records,
		Provider:   result.Provider,
		Threshold:  result.Threshold,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
