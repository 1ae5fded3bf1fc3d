package evaluate

import (
	"github.com/jackzampolin/rollcall/internal/types"
)

// BatchStats summarizes one validation run.
type BatchStats struct {
	Documents    int                        `json:"documents" yaml:"documents"`
	StatusCounts map[types.RecordStatus]int `json:"status_counts" yaml:"status_counts"`
	BasisCounts  map[types.MatchBasis]int   `json:"basis_counts" yaml:"basis_counts"`

	// FieldComparisons and FieldMismatches count per compared field;
	// MismatchFrequency is their ratio.
	FieldComparisons  map[types.Field]int     `json:"field_comparisons" yaml:"field_comparisons"`
	FieldMismatches   map[types.Field]int     `json:"field_mismatches" yaml:"field_mismatches"`
	MismatchFrequency map[types.Field]float64 `json:"mismatch_frequency" yaml:"mismatch_frequency"`

	// MeanConfidence averages extraction confidence per canonical field
	// across successfully extracted records.
	MeanConfidence map[types.Field]float64 `json:"mean_confidence" yaml:"mean_confidence"`

	UnclaimedReferences []string `json:"unclaimed_references" yaml:"unclaimed_references"`
	Matched             int      `json:"matched" yaml:"matched"`
	MatchRate           float64  `json:"match_rate" yaml:"match_rate"`
}

// Aggregate computes batch statistics. records holds the extracted record
// for each row in the same order, with nil for failed documents. Unclaimed
// references are listed in roster order.
func Aggregate(rows []types.ValidationReportRow, records []*types.ExtractedRecord, references []types.ReferenceRecord) BatchStats {
	stats := BatchStats{
		Documents:         len(rows),
		StatusCounts:      make(map[types.RecordStatus]int),
		BasisCounts:       make(map[types.MatchBasis]int),
		FieldComparisons:  make(map[types.Field]int),
		FieldMismatches:   make(map[types.Field]int),
		MismatchFrequency: make(map[types.Field]float64),
		MeanConfidence:    make(map[types.Field]float64),
	}

	claimed := make(map[string]bool)
	for _, row := range rows {
		stats.StatusCounts[row.Status]++
		if row.Status != types.StatusExtractionFailed {
			stats.BasisCounts[row.Match.Basis]++
		}
		if row.Match.Matched() {
			stats.Matched++
			claimed[row.Match.ReferenceID] = true
		}
		for _, c := range row.Comparisons {
			stats.FieldComparisons[c.Field]++
			if c.Status == types.ComparisonMismatch {
				stats.FieldMismatches[c.Field]++
			}
		}
	}

	for f, n := range stats.FieldComparisons {
		stats.MismatchFrequency[f] = float64(stats.FieldMismatches[f]) / float64(n)
	}

	sums := make(map[types.Field]float64)
	counts := make(map[types.Field]int)
	for _, rec := range records {
		if rec == nil {
			continue
		}
		for _, f := range types.CanonicalFields {
			if c, ok := rec.Confidences[f]; ok {
				sums[f] += c
				counts[f]++
			}
		}
	}
	for f, n := range counts {
		stats.MeanConfidence[f] = sums[f] / float64(n)
	}

	stats.UnclaimedReferences = []string{}
	for _, ref := range references {
		if !claimed[ref.ID] {
			stats.UnclaimedReferences = append(stats.UnclaimedReferences, ref.ID)
		}
	}

	if stats.Documents > 0 {
		stats.MatchRate = float64(stats.Matched) / float64(stats.Documents)
	}
	return stats
}

// Count returns the number of rows with the given status.
func (s BatchStats) Count(status types.RecordStatus) int {
	return s.StatusCounts[status]
}
