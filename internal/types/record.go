// Package types provides the record model shared by the validation pipeline.
// This package has no dependencies on other rollcall packages to avoid import cycles.
package types

// Field is a canonical schema field name.
type Field string

const (
	FieldFullName           Field = "full_name"
	FieldStudentID          Field = "student_id"
	FieldDateOfBirth        Field = "date_of_birth"
	FieldSchool             Field = "school"
	FieldGrade              Field = "grade"
	FieldRoute              Field = "route"
	FieldOptIn              Field = "opt_in_status"
	FieldAddress            Field = "address"
	FieldParentName         Field = "parent_name"
	FieldPhone              Field = "phone"
	FieldEmail              Field = "email"
	FieldTransportationNeed Field = "transportation_need"
)

// CanonicalFields lists every canonical field in report order.
var CanonicalFields = []Field{
	FieldFullName,
	FieldStudentID,
	FieldDateOfBirth,
	FieldSchool,
	FieldGrade,
	FieldRoute,
	FieldOptIn,
	FieldAddress,
	FieldParentName,
	FieldPhone,
	FieldEmail,
	FieldTransportationNeed,
}

// ComparedFields lists the fields the evaluator compares by default.
// Identity fields are resolved by the matcher instead.
var ComparedFields = []Field{
	FieldDateOfBirth,
	FieldSchool,
	FieldGrade,
	FieldRoute,
	FieldOptIn,
	FieldAddress,
	FieldParentName,
	FieldPhone,
	FieldEmail,
	FieldTransportationNeed,
}

// IsCanonical reports whether f names a canonical field.
func (f Field) IsCanonical() bool {
	for _, c := range CanonicalFields {
		if c == f {
			return true
		}
	}
	return false
}

// IsIdentity reports whether f is used for identity matching.
func (f Field) IsIdentity() bool {
	return f == FieldFullName || f == FieldStudentID
}

// Value is a normalized field value. The zero Value is absent.
type Value struct {
	text    string
	present bool
}

// Present returns a present Value. Empty text yields an absent Value.
func Present(text string) Value {
	if text == "" {
		return Value{}
	}
	return Value{text: text, present: true}
}

// Absent returns the absent marker.
func Absent() Value {
	return Value{}
}

// Get returns the text and whether the value is present.
func (v Value) Get() (string, bool) {
	return v.text, v.present
}

// IsPresent reports whether a value was observed.
func (v Value) IsPresent() bool {
	return v.present
}

// String returns the text, or "" when absent.
func (v Value) String() string {
	return v.text
}

// Equal reports whether both values are absent or both carry the same text.
func (v Value) Equal(o Value) bool {
	return v.present == o.present && v.text == o.text
}

// MarshalText renders absent values as an empty string.
func (v Value) MarshalText() ([]byte, error) {
	return []byte(v.text), nil
}

// Fields holds one Value per canonical field.
type Fields struct {
	FullName           Value
	StudentID          Value
	DateOfBirth        Value
	School             Value
	Grade              Value
	Route              Value
	OptIn              Value
	Address            Value
	ParentName         Value
	Phone              Value
	Email              Value
	TransportationNeed Value
}

// Get returns the value for a canonical field. Unknown fields are absent.
func (f *Fields) Get(name Field) Value {
	if p := f.slot(name); p != nil {
		return *p
	}
	return Value{}
}

// Set assigns the value for a canonical field. Unknown fields are ignored
// and reported as false.
func (f *Fields) Set(name Field, v Value) bool {
	p := f.slot(name)
	if p == nil {
		return false
	}
	*p = v
	return true
}

// Map returns the present values keyed by field.
func (f *Fields) Map() map[Field]string {
	out := make(map[Field]string)
	for _, name := range CanonicalFields {
		if s, ok := f.Get(name).Get(); ok {
			out[name] = s
		}
	}
	return out
}

func (f *Fields) slot(name Field) *Value {
	switch name {
	case FieldFullName:
		return &f.FullName
	case FieldStudentID:
		return &f.StudentID
	case FieldDateOfBirth:
		return &f.DateOfBirth
	case FieldSchool:
		return &f.School
	case FieldGrade:
		return &f.Grade
	case FieldRoute:
		return &f.Route
	case FieldOptIn:
		return &f.OptIn
	case FieldAddress:
		return &f.Address
	case FieldParentName:
		return &f.ParentName
	case FieldPhone:
		return &f.Phone
	case FieldEmail:
		return &f.Email
	case FieldTransportationNeed:
		return &f.TransportationNeed
	}
	return nil
}

// FieldDetection is one key/value pair reported by an extractor.
type FieldDetection struct {
	FieldName  string  `json:"field_name" yaml:"field_name"`
	RawValue   string  `json:"raw_value" yaml:"raw_value"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// ExtractedRecord is a normalized student record built from one document.
type ExtractedRecord struct {
	SourceDocumentID string
	Fields           Fields
	Confidences      map[Field]float64
	// Extra holds detections whose names did not map to a canonical field,
	// and raw text for values that could not be normalized.
	Extra map[string]string
}

// MeanConfidence averages the confidences of the record's canonical fields.
func (r *ExtractedRecord) MeanConfidence() float64 {
	if len(r.Confidences) == 0 {
		return 0
	}
	var sum float64
	var n int
	for _, f := range CanonicalFields {
		if c, ok := r.Confidences[f]; ok {
			sum += c
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// ReferenceRecord is one roster row.
type ReferenceRecord struct {
	// ID is the roster student id when present and unique, otherwise a
	// synthesized "row:NNNNN" key.
	ID     string
	Row    int
	Fields Fields
}
