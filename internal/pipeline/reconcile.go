package pipeline

import (
	"fmt"
	"math"

	"github.com/jackzampolin/rollcall/internal/evaluate"
	"github.com/jackzampolin/rollcall/internal/match"
	"github.com/jackzampolin/rollcall/internal/providers"
	"github.com/jackzampolin/rollcall/internal/types"
)

// Result is a reconciled batch.
type Result struct {
	RunID     string                      `json:"run_id" yaml:"run_id"`
	Provider  string                      `json:"provider" yaml:"provider"`
	Threshold float64                     `json:"threshold" yaml:"threshold"`
	Rows      []types.ValidationReportRow `json:"rows" yaml:"rows"`
	Stats     evaluate.BatchStats         `json:"stats" yaml:"stats"`

	// Records holds the normalized record per row, nil for failed documents.
	Records []*types.ExtractedRecord `json:"-" yaml:"-"`
}

// Normalize builds the ExtractedRecord for one extraction. Failed
// extractions return their extraction error.
func (o *Orchestrator) Normalize(ex Extraction) (*types.ExtractedRecord, error) {
	if ex.Err != nil {
		return nil, ex.Err
	}
	if ex.Result == nil {
		return nil, fmt.Errorf("empty response: %w", providers.ErrNoDetections)
	}
	return o.normalizer.Normalize(ex.Source.ID, ex.Result.Detections)
}

// Reconcile normalizes, matches, and evaluates a batch serially in input
// order with a fresh ClaimSet. It performs no I/O, so the same batch can be
// reconciled at several thresholds.
func (o *Orchestrator) Reconcile(batch *Batch, references []types.ReferenceRecord, threshold float64) (*Result, error) {
	matcher, err := match.NewMatcher(references, threshold)
	if err != nil {
		return nil, err
	}

	logger := o.logger.With("run", batch.RunID)
	claims := match.NewClaimSet()
	result := &Result{
		RunID:     batch.RunID,
		Provider:  batch.Provider,
		Threshold: threshold,
		Rows:      make([]types.ValidationReportRow, len(batch.Extractions)),
		Records:   make([]*types.ExtractedRecord, len(batch.Extractions)),
	}

	for i, ex := range batch.Extractions {
		position := ex.Source.Position
		rec, err := o.Normalize(ex)
		if err != nil {
			result.Rows[i] = evaluate.Failed(position, ex.Source.ID, err)
			logger.Debug("document failed", "document", ex.Source.ID, "error", err)
			continue
		}

		m := matcher.Match(rec, claims)
		var ref *types.ReferenceRecord
		if m.Matched() {
			if r, ok := matcher.Reference(m.ReferenceID); ok {
				ref = &r
			}
		}
		row := o.evaluator.Evaluate(position, rec, m, ref)

		result.Rows[i] = row
		result.Records[i] = rec
		logger.Debug("document reconciled",
			"document", ex.Source.ID,
			"status", row.Status,
			"basis", m.Basis,
			"reference", m.ReferenceID,
		)
	}

	result.Stats = evaluate.Aggregate(result.Rows, result.Records, references)
	return result, nil
}

// SweepPoint summarizes one reconciliation in a threshold sweep.
type SweepPoint struct {
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Matched   int     `json:"matched" yaml:"matched"`
	Fuzzy     int     `json:"fuzzy" yaml:"fuzzy"`
	Unmatched int     `json:"unmatched" yaml:"unmatched"`
	Failed    int     `json:"failed" yaml:"failed"`
	MatchRate float64 `json:"match_rate" yaml:"match_rate"`
}

// SweepThresholds returns 0.60 through 0.95 in steps of 0.05.
func SweepThresholds() []float64 {
	out := make([]float64, 0, 8)
	for i := 0; i < 8; i++ {
		out = append(out, math.Round((0.60+0.05*float64(i))*100)/100)
	}
	return out
}

// Sweep reconciles one batch at each threshold.
func (o *Orchestrator) Sweep(batch *Batch, references []types.ReferenceRecord, thresholds []float64) ([]SweepPoint, error) {
	points := make([]SweepPoint, 0, len(thresholds))
	for _, t := range thresholds {
		result, err := o.Reconcile(batch, references, t)
		if err != nil {
			return nil, err
		}
		s := result.Stats
		points = append(points, SweepPoint{
			Threshold: t,
			Matched:   s.Matched,
			Fuzzy:     s.BasisCounts[types.BasisNameFuzzy],
			Unmatched: s.Count(types.StatusUnmatched),
			Failed:    s.Count(types.StatusExtractionFailed),
			MatchRate: s.MatchRate,
		})
	}
	return points, nil
}
