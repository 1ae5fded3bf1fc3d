// Package pipeline runs a validation batch: concurrent extraction behind the
// provider rate limiter, then serial normalization, identity matching, and
// field evaluation in input order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/rollcall/internal/evaluate"
	"github.com/jackzampolin/rollcall/internal/ingest"
	"github.com/jackzampolin/rollcall/internal/normalize"
	"github.com/jackzampolin/rollcall/internal/providers"
	"github.com/jackzampolin/rollcall/internal/types"
)

const (
	DefaultWorkers         = 4
	DefaultDocumentTimeout = 2 * time.Minute
)

// DocumentLoader reads a source into a provider document.
type DocumentLoader interface {
	Load(ctx context.Context, src ingest.Source) (*providers.Document, error)
}

// LoaderFunc adapts a function to the DocumentLoader interface.
type LoaderFunc func(ctx context.Context, src ingest.Source) (*providers.Document, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, src ingest.Source) (*providers.Document, error) {
	return f(ctx, src)
}

// Config configures an Orchestrator.
type Config struct {
	Extractor providers.Extractor
	Loader    DocumentLoader

	// Normalizer and Evaluator default to the built-in alias table and
	// compared fields.
	Normalizer *normalize.Normalizer
	Evaluator  *evaluate.Evaluator

	// Workers bounds concurrent extractions (default 4). The extractor's
	// MaxConcurrency lowers it further when set.
	Workers int
	// DocumentTimeout bounds each extraction call (default 2m).
	DocumentTimeout time.Duration
	// RPS overrides the extractor's RequestsPerSecond when non-zero.
	RPS float64

	Logger *slog.Logger
}

// Orchestrator runs validation batches for one extractor. The rate limiter
// is shared by every batch the orchestrator runs.
type Orchestrator struct {
	extractor  providers.Extractor
	loader     DocumentLoader
	normalizer *normalize.Normalizer
	evaluator  *evaluate.Evaluator
	limiter    *providers.RateLimiter
	workers    int
	timeout    time.Duration
	logger     *slog.Logger
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Extractor == nil {
		return nil, errors.New("pipeline: extractor is required")
	}
	if cfg.Loader == nil {
		return nil, errors.New("pipeline: loader is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	normalizer := cfg.Normalizer
	if normalizer == nil {
		n, err := normalize.New(normalize.Config{Logger: logger})
		if err != nil {
			return nil, err
		}
		normalizer = n
	}
	evaluator := cfg.Evaluator
	if evaluator == nil {
		e, err := evaluate.New(nil)
		if err != nil {
			return nil, err
		}
		evaluator = e
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if max := cfg.Extractor.MaxConcurrency(); max > 0 && max < workers {
		workers = max
	}
	timeout := cfg.DocumentTimeout
	if timeout <= 0 {
		timeout = DefaultDocumentTimeout
	}
	rps := cfg.RPS
	if rps == 0 {
		rps = cfg.Extractor.RequestsPerSecond()
	}

	return &Orchestrator{
		extractor:  cfg.Extractor,
		loader:     cfg.Loader,
		normalizer: normalizer,
		evaluator:  evaluator,
		limiter:    providers.NewRateLimiter(rps),
		workers:    workers,
		timeout:    timeout,
		logger:     logger.With("provider", cfg.Extractor.Name()),
	}, nil
}

// Workers returns the effective worker count.
func (o *Orchestrator) Workers() int {
	return o.workers
}

// Extractor returns the extractor in use.
func (o *Orchestrator) Extractor() providers.Extractor {
	return o.extractor
}

// RateLimiterStatus reports the shared limiter state.
func (o *Orchestrator) RateLimiterStatus() providers.RateLimiterStatus {
	return o.limiter.Status()
}

// Run extracts every source and reconciles the batch against the roster.
// Only cancellation of ctx aborts the batch; every other failure is
// reported on its document's row.
func (o *Orchestrator) Run(ctx context.Context, sources []ingest.Source, references []types.ReferenceRecord, threshold float64) (*Result, error) {
	start := time.Now()
	batch, err := o.Extract(ctx, sources)
	if err != nil {
		return nil, err
	}
	result, err := o.Reconcile(batch, references, threshold)
	if err != nil {
		return nil, err
	}

	stats := result.Stats
	o.logger.Info("batch complete",
		"run", batch.RunID,
		"documents", stats.Documents,
		"full_match", stats.Count(types.StatusFullMatch),
		"partial_match", stats.Count(types.StatusPartialMatch),
		"unmatched", stats.Count(types.StatusUnmatched),
		"failed", stats.Count(types.StatusExtractionFailed),
		"match_rate", fmt.Sprintf("%.3f", stats.MatchRate),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return result, nil
}

// Fields returns the compared fields, in report column order.
func (o *Orchestrator) Fields() []types.Field {
	return o.evaluator.Fields()
}
