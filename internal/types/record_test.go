package types

import (
	"encoding/json"
	"math"
	"testing"
)

func TestValue(t *testing.T) {
	t.Run("empty text is absent", func(t *testing.T) {
		v := Present("")
		if v.IsPresent() {
			t.Error("Present(\"\") should be absent")
		}
	})

	t.Run("present text round trips", func(t *testing.T) {
		s, ok := Present("jon smith").Get()
		if !ok || s != "jon smith" {
			t.Errorf("Get() = %q, %v, want %q, true", s, ok, "jon smith")
		}
	})

	t.Run("absent marshals to empty string", func(t *testing.T) {
		b, err := json.Marshal(Absent())
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		if string(b) != `""` {
			t.Errorf("Marshal() = %s, want \"\"", b)
		}
	})
}

func TestFieldsGetSet(t *testing.T) {
	var f Fields
	for _, name := range CanonicalFields {
		if !f.Set(name, Present(string(name))) {
			t.Fatalf("Set(%s) returned false", name)
		}
	}
	for _, name := range CanonicalFields {
		if got := f.Get(name).String(); got != string(name) {
			t.Errorf("Get(%s) = %q, want %q", name, got, name)
		}
	}

	if f.Set(Field("shoe_size"), Present("9")) {
		t.Error("Set() accepted a non-canonical field")
	}
	if f.Get(Field("shoe_size")).IsPresent() {
		t.Error("Get() returned a value for a non-canonical field")
	}
	if len(f.Map()) != len(CanonicalFields) {
		t.Errorf("Map() has %d entries, want %d", len(f.Map()), len(CanonicalFields))
	}
}

func TestFieldClassification(t *testing.T) {
	for _, f := range ComparedFields {
		if f.IsIdentity() {
			t.Errorf("%s is listed as compared but is an identity field", f)
		}
		if !f.IsCanonical() {
			t.Errorf("%s is not canonical", f)
		}
	}
	if !FieldFullName.IsIdentity() || !FieldStudentID.IsIdentity() {
		t.Error("name and student id must be identity fields")
	}
}

func TestMeanConfidence(t *testing.T) {
	r := &ExtractedRecord{Confidences: map[Field]float64{
		FieldFullName: 0.9,
		FieldGrade:    0.5,
	}}
	if got := r.MeanConfidence(); math.Abs(got-0.7) > 1e-9 {
		t.Errorf("MeanConfidence() = %v, want 0.7", got)
	}

	empty := &ExtractedRecord{}
	if got := empty.MeanConfidence(); got != 0 {
		t.Errorf("MeanConfidence() on empty record = %v, want 0", got)
	}
}
