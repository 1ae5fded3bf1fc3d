// Package evaluate compares matched record pairs field by field and
// aggregates batch statistics.
package evaluate

import (
	"fmt"

	"github.com/jackzampolin/rollcall/internal/types"
)

// Evaluator compares the configured fields of matched pairs.
type Evaluator struct {
	fields []types.Field
}

// New creates an Evaluator for the named fields. An empty list selects
// types.ComparedFields. Fields are compared in canonical order regardless
// of the order given.
func New(fields []string) (*Evaluator, error) {
	if len(fields) == 0 {
		return &Evaluator{fields: types.ComparedFields}, nil
	}

	want := make(map[types.Field]bool, len(fields))
	for _, name := range fields {
		f := types.Field(name)
		if !f.IsCanonical() {
			return nil, fmt.Errorf("compare field %q is not a canonical field", name)
		}
		if f.IsIdentity() {
			return nil, fmt.Errorf("compare field %q is an identity field and is resolved by matching", name)
		}
		want[f] = true
	}

	e := &Evaluator{}
	for _, f := range types.CanonicalFields {
		if want[f] {
			e.fields = append(e.fields, f)
		}
	}
	return e, nil
}

// Fields returns the compared fields in canonical order.
func (e *Evaluator) Fields() []types.Field {
	return e.fields
}

// Compare emits one comparison per compared field present in either record.
func (e *Evaluator) Compare(extracted *types.ExtractedRecord, reference *types.ReferenceRecord) []types.FieldComparison {
	var out []types.FieldComparison
	for _, f := range e.fields {
		ev := extracted.Fields.Get(f)
		rv := reference.Fields.Get(f)
		if !ev.IsPresent() && !rv.IsPresent() {
			continue
		}

		c := types.FieldComparison{Field: f, ExtractedValue: ev, ReferenceValue: rv}
		switch {
		case !ev.IsPresent():
			c.Status = types.ComparisonMissingInExtracted
		case !rv.IsPresent():
			c.Status = types.ComparisonMissingInReference
		case ev.String() == rv.String():
			c.Status = types.ComparisonMatch
		default:
			c.Status = types.ComparisonMismatch
		}
		out = append(out, c)
	}
	return out
}

// Evaluate builds the report row for a normalized document. reference must
// be the record named by match, or nil when the match is UNMATCHED.
func (e *Evaluator) Evaluate(position int, extracted *types.ExtractedRecord, match types.MatchResult, reference *types.ReferenceRecord) types.ValidationReportRow {
	row := types.ValidationReportRow{
		Position:       position,
		DocumentID:     extracted.SourceDocumentID,
		Match:          match,
		ExtractedName:  extracted.Fields.FullName.String(),
		MeanConfidence: extracted.MeanConfidence(),
	}

	if !match.Matched() || reference == nil {
		row.Status = types.StatusUnmatched
		return row
	}

	row.ReferenceName = reference.Fields.FullName.String()
	row.Comparisons = e.Compare(extracted, reference)
	row.Status = Status(row.Comparisons)
	return row
}

// Failed builds the row for a document that produced no usable record.
func Failed(position int, documentID string, err error) types.ValidationReportRow {
	row := types.ValidationReportRow{
		Position:   position,
		DocumentID: documentID,
		Status:     types.StatusExtractionFailed,
		Match: types.MatchResult{
			ExtractedRecordID: documentID,
			Basis:             types.BasisUnmatched,
		},
	}
	if err != nil {
		row.Error = err.Error()
	}
	return row
}

// Status derives the record status of a matched pair from its comparisons.
func Status(comparisons []types.FieldComparison) types.RecordStatus {
	for _, c := range comparisons {
		if c.Status != types.ComparisonMatch {
			return types.StatusPartialMatch
		}
	}
	return types.StatusFullMatch
}
