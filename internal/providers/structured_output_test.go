package providers

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jackzampolin/rollcall/internal/types"
)

func TestParseStructuredJSON_StripsCodeFence(t *testing.T) {
	content := "```json\n{\"ok\":true}\n```"
	got, err := parseStructuredJSON(content)
	if err != nil {
		t.Fatalf("parseStructuredJSON() error = %v", err)
	}
	if string(got) != `{"ok":true}` {
		t.Fatalf("parseStructuredJSON() = %s", got)
	}
}

func TestParseStructuredJSON_SurroundingText(t *testing.T) {
	content := "Here are the fields you asked for:\n{\"fields\":[]}\nLet me know if you need more."
	got, err := parseStructuredJSON(content)
	if err != nil {
		t.Fatalf("parseStructuredJSON() error = %v", err)
	}
	if string(got) != `{"fields":[]}` {
		t.Fatalf("parseStructuredJSON() = %s", got)
	}
}

func TestParseStructuredJSON_Invalid(t *testing.T) {
	for _, content := range []string{"", "   ", "no json here", "{broken"} {
		if _, err := parseStructuredJSON(content); err == nil {
			t.Errorf("parseStructuredJSON(%q) expected error", content)
		}
	}
}

func TestDecodeDetections(t *testing.T) {
	content := `{"fields":[
		{"field_name":"Student Name","raw_value":"Jon Smith","confidence":0.93},
		{"field_name":"Grade","raw_value":3},
		{"field_name":"Opt In","raw_value":true,"confidence":1.7},
		{"field_name":"Route","raw_value":null,"confidence":-2}
	]}`

	got, err := decodeDetections(content, 0.5)
	if err != nil {
		t.Fatalf("decodeDetections() error = %v", err)
	}
	want := []types.FieldDetection{
		{FieldName: "Student Name", RawValue: "Jon Smith", Confidence: 0.93},
		{FieldName: "Grade", RawValue: "3", Confidence: 0.5},
		{FieldName: "Opt In", RawValue: "yes", Confidence: 1},
		{FieldName: "Route", RawValue: "", Confidence: 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decodeDetections() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeDetections_SchemaViolation(t *testing.T) {
	tests := []string{
		`{"items":[]}`,
		`{"fields":[{"raw_value":"x"}]}`,
		`{"fields":[{"field_name":"","raw_value":"x"}]}`,
		`{"fields":"nope"}`,
	}
	for _, content := range tests {
		_, err := decodeDetections(content, 0.5)
		if err == nil || !strings.Contains(err.Error(), "schema") {
			t.Errorf("decodeDetections(%s) error = %v, want schema error", content, err)
		}
	}
}
