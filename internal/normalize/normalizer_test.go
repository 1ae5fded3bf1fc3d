package normalize

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jackzampolin/rollcall/internal/types"
)

func newTestNormalizer(t *testing.T, cfg Config) *Normalizer {
	t.Helper()
	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return n
}

func TestNormalize(t *testing.T) {
	n := newTestNormalizer(t, Config{})

	detections := []types.FieldDetection{
		{FieldName: "Student Name:", RawValue: "  SMITH,   Jon ", Confidence: 0.92},
		{FieldName: "Student #", RawValue: "00 42", Confidence: 0.88},
		{FieldName: "DOB", RawValue: "March 4th, 2015", Confidence: 0.7},
		{FieldName: "Grade Level", RawValue: "3rd", Confidence: 0.81},
		{FieldName: "School", RawValue: "Lincoln Elem.", Confidence: 0.9},
		{FieldName: "Bus Route", RawValue: "Route #07", Confidence: 0.6},
		{FieldName: "Opt-In", RawValue: ":selected: Yes", Confidence: 0.75},
		{FieldName: "Favorite Color", RawValue: "  blue ", Confidence: 0.5},
	}

	rec, err := n.Normalize("form-1.pdf", detections)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	want := map[types.Field]string{
		types.FieldFullName:    "jon smith",
		types.FieldStudentID:   "0042",
		types.FieldDateOfBirth: "2015-03-04",
		types.FieldGrade:       "3",
		types.FieldSchool:      "lincoln elementary",
		types.FieldRoute:       "7",
		types.FieldOptIn:       "OPT_IN",
	}
	if diff := cmp.Diff(want, rec.Fields.Map()); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}

	if rec.Confidences[types.FieldFullName] != 0.92 {
		t.Errorf("full_name confidence = %v, want 0.92", rec.Confidences[types.FieldFullName])
	}
	if got := rec.Extra["Favorite Color"]; got != "blue" {
		t.Errorf("extra[Favorite Color] = %q, want %q", got, "blue")
	}
	if rec.SourceDocumentID != "form-1.pdf" {
		t.Errorf("SourceDocumentID = %q", rec.SourceDocumentID)
	}
}

func TestNormalizeMissingName(t *testing.T) {
	n := newTestNormalizer(t, Config{})

	tests := []struct {
		name       string
		detections []types.FieldDetection
	}{
		{name: "no detections"},
		{
			name: "name detected blank",
			detections: []types.FieldDetection{
				{FieldName: "Student Name", RawValue: "   ", Confidence: 0.4},
				{FieldName: "Grade", RawValue: "4", Confidence: 0.9},
			},
		},
		{
			name: "name placeholder dashes",
			detections: []types.FieldDetection{
				{FieldName: "Student Name", RawValue: "---", Confidence: 0.8},
				{FieldName: "Grade", RawValue: "4", Confidence: 0.9},
			},
		},
		{
			name: "name only honorific",
			detections: []types.FieldDetection{
				{FieldName: "Student Name", RawValue: "Mr.", Confidence: 0.8},
			},
		},
		{
			name: "only unknown fields",
			detections: []types.FieldDetection{
				{FieldName: "Signature", RawValue: "J. Smith", Confidence: 0.4},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := n.Normalize("doc", tt.detections)
			var nerr *NormalizationError
			if !errors.As(err, &nerr) {
				t.Fatalf("Normalize() error = %v, want *NormalizationError", err)
			}
			if len(nerr.Missing) != 1 || nerr.Missing[0] != types.FieldFullName {
				t.Errorf("Missing = %v, want [full_name]", nerr.Missing)
			}
			if rec == nil {
				t.Fatal("expected partial record alongside error")
			}
		})
	}
}

func TestNormalizeDuplicateDetections(t *testing.T) {
	n := newTestNormalizer(t, Config{})

	rec, err := n.Normalize("doc", []types.FieldDetection{
		{FieldName: "Name", RawValue: "Alex Le", Confidence: 0.5},
		{FieldName: "Student Name", RawValue: "Alex Lee", Confidence: 0.9},
		{FieldName: "Grade", RawValue: "banana", Confidence: 0.99},
		{FieldName: "Grade Level", RawValue: "2", Confidence: 0.3},
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got := rec.Fields.FullName.String(); got != "alex lee" {
		t.Errorf("full_name = %q, want higher-confidence %q", got, "alex lee")
	}
	if got := rec.Fields.Grade.String(); got != "2" {
		t.Errorf("grade = %q, want normalizable value %q", got, "2")
	}
	if got := rec.Extra["Name"]; got != "Alex Le" {
		t.Errorf("losing detection not kept in extras: %v", rec.Extra)
	}
	if got := rec.Extra["Grade"]; got != "banana" {
		t.Errorf("unparseable grade not kept in extras: %v", rec.Extra)
	}
}

func TestNormalizeUnparseableValueIsAbsent(t *testing.T) {
	n := newTestNormalizer(t, Config{})

	rec, err := n.Normalize("doc", []types.FieldDetection{
		{FieldName: "Name", RawValue: "Ana Diaz", Confidence: 0.9},
		{FieldName: "Date of Birth", RawValue: "sometime in spring", Confidence: 0.9},
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if rec.Fields.DateOfBirth.IsPresent() {
		t.Errorf("date_of_birth = %q, want absent", rec.Fields.DateOfBirth.String())
	}
	if _, ok := rec.Confidences[types.FieldDateOfBirth]; ok {
		t.Error("absent field should carry no confidence")
	}
	if rec.Extra["Date of Birth"] != "sometime in spring" {
		t.Errorf("raw date not preserved: %v", rec.Extra)
	}
}

func TestNormalizeConfiguredAliases(t *testing.T) {
	n := newTestNormalizer(t, Config{
		Aliases:        map[string]string{"Alumno": "full_name", "Parada": "route"},
		RequiredFields: []string{"full_name", "school"},
	})

	rec, err := n.Normalize("doc", []types.FieldDetection{
		{FieldName: "ALUMNO", RawValue: "José Núñez", Confidence: 0.8},
		{FieldName: "parada", RawValue: "12", Confidence: 0.8},
	})
	var nerr *NormalizationError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NormalizationError for missing school, got %v", err)
	}
	if diff := cmp.Diff([]types.Field{types.FieldSchool}, nerr.Missing); diff != "" {
		t.Errorf("Missing mismatch (-want +got):\n%s", diff)
	}
	if got := rec.Fields.FullName.String(); got != "jose nunez" {
		t.Errorf("full_name = %q, want %q", got, "jose nunez")
	}
	if got := rec.Fields.Route.String(); got != "12" {
		t.Errorf("route = %q, want 12", got)
	}
}

func TestNewRejectsUnknownFields(t *testing.T) {
	if _, err := New(Config{Aliases: map[string]string{"x": "shoe_size"}}); err == nil {
		t.Error("expected error for alias to unknown field")
	}
	if _, err := New(Config{RequiredFields: []string{"shoe_size"}}); err == nil {
		t.Error("expected error for unknown required field")
	}
}
