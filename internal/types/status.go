package types

// MatchBasis records which matcher rule produced a match.
type MatchBasis string

const (
	BasisExactID   MatchBasis = "EXACT_ID"
	BasisNameExact MatchBasis = "NAME_EXACT"
	BasisNameFuzzy MatchBasis = "NAME_FUZZY"
	BasisUnmatched MatchBasis = "UNMATCHED"
)

// ComparisonStatus classifies one field comparison.
type ComparisonStatus string

const (
	ComparisonMatch              ComparisonStatus = "MATCH"
	ComparisonMismatch           ComparisonStatus = "MISMATCH"
	ComparisonMissingInExtracted ComparisonStatus = "MISSING_IN_EXTRACTED"
	ComparisonMissingInReference ComparisonStatus = "MISSING_IN_REFERENCE"
)

// RecordStatus is the record-level outcome of validation.
type RecordStatus string

const (
	StatusFullMatch        RecordStatus = "FULL_MATCH"
	StatusPartialMatch     RecordStatus = "PARTIAL_MATCH"
	StatusUnmatched        RecordStatus = "UNMATCHED"
	StatusExtractionFailed RecordStatus = "EXTRACTION_FAILED"
)

// RecordStatuses lists every record status in report order.
var RecordStatuses = []RecordStatus{
	StatusFullMatch,
	StatusPartialMatch,
	StatusUnmatched,
	StatusExtractionFailed,
}

// OptInStatus is the tri-state opt-in value.
type OptInStatus string

const (
	OptIn        OptInStatus = "OPT_IN"
	OptOut       OptInStatus = "OPT_OUT"
	OptInUnknown OptInStatus = "UNKNOWN"
)

// TransportationNeed categorizes the requested service window.
type TransportationNeed string

const (
	NeedAMOnly  TransportationNeed = "AM_ONLY"
	NeedPMOnly  TransportationNeed = "PM_ONLY"
	NeedBoth    TransportationNeed = "BOTH"
	NeedNone    TransportationNeed = "NONE"
	NeedUnclear TransportationNeed = "UNCLEAR"
)

// MatchResult links an extracted record to at most one reference record.
type MatchResult struct {
	ExtractedRecordID string     `json:"extracted_record_id" yaml:"extracted_record_id"`
	ReferenceID       string     `json:"reference_id,omitempty" yaml:"reference_id,omitempty"`
	Score             float64    `json:"match_score" yaml:"match_score"`
	Basis             MatchBasis `json:"match_basis" yaml:"match_basis"`
	// Note explains non-obvious outcomes, such as an id match that was
	// already claimed by an earlier document.
	Note string `json:"note,omitempty" yaml:"note,omitempty"`
}

// Matched reports whether a reference record was selected.
func (m MatchResult) Matched() bool {
	return m.Basis != BasisUnmatched && m.ReferenceID != ""
}

// FieldComparison is the outcome of comparing one field of a matched pair.
type FieldComparison struct {
	Field          Field            `json:"field_name" yaml:"field_name"`
	ExtractedValue Value            `json:"extracted_value" yaml:"extracted_value"`
	ReferenceValue Value            `json:"reference_value" yaml:"reference_value"`
	Status         ComparisonStatus `json:"status" yaml:"status"`
}

// ValidationReportRow is the validation outcome for one input document.
type ValidationReportRow struct {
	Position       int               `json:"position" yaml:"position"`
	DocumentID     string            `json:"document_id" yaml:"document_id"`
	Status         RecordStatus      `json:"status" yaml:"status"`
	Match          MatchResult       `json:"match" yaml:"match"`
	Comparisons    []FieldComparison `json:"comparisons" yaml:"comparisons"`
	ExtractedName  string            `json:"extracted_name,omitempty" yaml:"extracted_name,omitempty"`
	ReferenceName  string            `json:"reference_name,omitempty" yaml:"reference_name,omitempty"`
	MeanConfidence float64           `json:"mean_confidence" yaml:"mean_confidence"`
	Error          string            `json:"error,omitempty" yaml:"error,omitempty"`
}

// Comparison returns the comparison for a field, if one was emitted.
func (r *ValidationReportRow) Comparison(f Field) (FieldComparison, bool) {
	for _, c := range r.Comparisons {
		if c.Field == f {
			return c, true
		}
	}
	return FieldComparison{}, false
}
