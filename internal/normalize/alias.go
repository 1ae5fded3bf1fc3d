package normalize

import (
	"fmt"
	"strings"

	"github.com/jackzampolin/rollcall/internal/types"
)

// DefaultAliases maps detected field names to canonical fields. Keys are
// matched after AliasKey normalization, so punctuation and case do not matter.
var DefaultAliases = map[string]types.Field{
	// full_name
	"name":                  types.FieldFullName,
	"student":               types.FieldFullName,
	"student name":          types.FieldFullName,
	"students name":         types.FieldFullName,
	"student full name":     types.FieldFullName,
	"name of student":       types.FieldFullName,
	"full name":             types.FieldFullName,
	"child name":            types.FieldFullName,
	"childs name":           types.FieldFullName,
	"pupil name":            types.FieldFullName,
	"student legal name":    types.FieldFullName,
	"nombre del estudiante": types.FieldFullName,
	"nombre del alumno":     types.FieldFullName,

	// student_id
	"id":                   types.FieldStudentID,
	"student id":           types.FieldStudentID,
	"student no":           types.FieldStudentID,
	"student number":       types.FieldStudentID,
	"student id number":    types.FieldStudentID,
	"id number":            types.FieldStudentID,
	"id no":                types.FieldStudentID,
	"local id":             types.FieldStudentID,
	"district id":          types.FieldStudentID,
	"sis id":               types.FieldStudentID,
	"lasid":                types.FieldStudentID,
	"numero de estudiante": types.FieldStudentID,

	// date_of_birth
	"dob":                 types.FieldDateOfBirth,
	"date of birth":       types.FieldDateOfBirth,
	"birth date":          types.FieldDateOfBirth,
	"birthdate":           types.FieldDateOfBirth,
	"birthday":            types.FieldDateOfBirth,
	"fecha de nacimiento": types.FieldDateOfBirth,

	// school
	"school":               types.FieldSchool,
	"school name":          types.FieldSchool,
	"school of attendance": types.FieldSchool,
	"attending school":     types.FieldSchool,
	"campus":               types.FieldSchool,
	"escuela":              types.FieldSchool,

	// grade
	"grade":         types.FieldGrade,
	"grade level":   types.FieldGrade,
	"current grade": types.FieldGrade,
	"grade in fall": types.FieldGrade,
	"gr":            types.FieldGrade,
	"grado":         types.FieldGrade,

	// route
	"route":        types.FieldRoute,
	"bus route":    types.FieldRoute,
	"route number": types.FieldRoute,
	"route no":     types.FieldRoute,
	"bus":          types.FieldRoute,
	"bus number":   types.FieldRoute,
	"bus no":       types.FieldRoute,
	"ruta":         types.FieldRoute,

	// opt_in_status
	"opt in":                      types.FieldOptIn,
	"opt in status":               types.FieldOptIn,
	"opt in out":                  types.FieldOptIn,
	"transportation opt in":       types.FieldOptIn,
	"i would like transportation": types.FieldOptIn,
	"request transportation":      types.FieldOptIn,
	"transportation requested":    types.FieldOptIn,
	"needs transportation":        types.FieldOptIn,
	"bus rider":                   types.FieldOptIn,
	"rider":                       types.FieldOptIn,

	// address
	"address":             types.FieldAddress,
	"home address":        types.FieldAddress,
	"street address":      types.FieldAddress,
	"residence address":   types.FieldAddress,
	"residential address": types.FieldAddress,
	"pickup address":      types.FieldAddress,
	"direccion":           types.FieldAddress,

	// parent_name
	"parent":               types.FieldParentName,
	"parent name":          types.FieldParentName,
	"parent guardian":      types.FieldParentName,
	"parent guardian name": types.FieldParentName,
	"guardian":             types.FieldParentName,
	"guardian name":        types.FieldParentName,
	"nombre del padre":     types.FieldParentName,

	// phone
	"phone":         types.FieldPhone,
	"phone number":  types.FieldPhone,
	"telephone":     types.FieldPhone,
	"parent phone":  types.FieldPhone,
	"contact phone": types.FieldPhone,
	"cell":          types.FieldPhone,
	"cell phone":    types.FieldPhone,
	"telefono":      types.FieldPhone,

	// email
	"email":              types.FieldEmail,
	"e mail":             types.FieldEmail,
	"email address":      types.FieldEmail,
	"parent email":       types.FieldEmail,
	"correo electronico": types.FieldEmail,

	// transportation_need
	"transportation needs": types.FieldTransportationNeed,
	"transportation need":  types.FieldTransportationNeed,
	"transportation type":  types.FieldTransportationNeed,
	"service requested":    types.FieldTransportationNeed,
	"am pm":                types.FieldTransportationNeed,
	"am pickup pm dropoff": types.FieldTransportationNeed,
	"pickup dropoff":       types.FieldTransportationNeed,
}

// keywordRule maps a name containing all of its tokens to a field. Rules are
// consulted in order when no exact alias matches.
type keywordRule struct {
	tokens []string
	field  types.Field
}

var keywordRules = []keywordRule{
	{[]string{"parent", "name"}, types.FieldParentName},
	{[]string{"guardian"}, types.FieldParentName},
	{[]string{"student", "id"}, types.FieldStudentID},
	{[]string{"student", "number"}, types.FieldStudentID},
	{[]string{"birth"}, types.FieldDateOfBirth},
	{[]string{"student", "name"}, types.FieldFullName},
	{[]string{"child", "name"}, types.FieldFullName},
	{[]string{"email"}, types.FieldEmail},
	{[]string{"phone"}, types.FieldPhone},
	{[]string{"telephone"}, types.FieldPhone},
	{[]string{"address"}, types.FieldAddress},
	{[]string{"school"}, types.FieldSchool},
	{[]string{"grade"}, types.FieldGrade},
	{[]string{"route"}, types.FieldRoute},
	{[]string{"opt"}, types.FieldOptIn},
	{[]string{"am", "pm"}, types.FieldTransportationNeed},
	{[]string{"pickup"}, types.FieldTransportationNeed},
	{[]string{"dropoff"}, types.FieldTransportationNeed},
}

// AliasKey normalizes a detected field name for alias lookup: selection
// markers removed, accents stripped, case folded, "#" read as "no", and
// every other run of punctuation collapsed to one space.
func AliasKey(name string) string {
	name, _ = stripSelectionMarkers(name)
	name = strings.ReplaceAll(name, "#", " no ")
	return strings.Join(words(name), " ")
}

// AliasTable resolves detected field names to canonical fields.
type AliasTable struct {
	entries map[string]types.Field
}

// NewAliasTable builds a table from DefaultAliases plus overrides. Override
// values must name canonical fields.
func NewAliasTable(overrides map[string]string) (*AliasTable, error) {
	t := &AliasTable{entries: make(map[string]types.Field, len(DefaultAliases)+len(overrides))}
	for _, f := range types.CanonicalFields {
		t.entries[AliasKey(strings.ReplaceAll(string(f), "_", " "))] = f
	}
	for k, f := range DefaultAliases {
		t.entries[AliasKey(k)] = f
	}
	for k, v := range overrides {
		f := types.Field(v)
		if !f.IsCanonical() {
			return nil, fmt.Errorf("alias %q maps to unknown field %q", k, v)
		}
		key := AliasKey(k)
		if key == "" {
			return nil, fmt.Errorf("alias %q has no usable characters", k)
		}
		t.entries[key] = f
	}
	return t, nil
}

// Lookup returns the canonical field for a detected name.
func (t *AliasTable) Lookup(name string) (types.Field, bool) {
	key := AliasKey(name)
	if key == "" {
		return "", false
	}
	if f, ok := t.entries[key]; ok {
		return f, true
	}
	tokens := strings.Fields(key)
	for _, rule := range keywordRules {
		if containsAll(tokens, rule.tokens) {
			return rule.field, true
		}
	}
	return "", false
}

func containsAll(tokens, want []string) bool {
	for _, w := range want {
		if !hasToken(tokens, w) {
			return false
		}
	}
	return true
}
