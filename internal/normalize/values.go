package normalize

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/jackzampolin/rollcall/internal/types"
)

// DateLayout is the canonical calendar form for dates.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"1-2-2006",
	"01.02.2006",
	"1/2/06",
	"01/02/06",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
	"20060102",
}

var (
	honorifics = map[string]bool{"mr": true, "mrs": true, "ms": true, "miss": true, "mx": true, "dr": true, "prof": true}
	suffixes   = map[string]bool{"jr": true, "sr": true, "ii": true, "iii": true, "iv": true}
)

// Value normalizes raw text for a canonical field. Blank or unrecognizable
// input yields the absent marker.
func Value(field types.Field, raw string) types.Value {
	raw = CollapseSpace(raw)
	if raw == "" {
		return types.Absent()
	}
	switch field {
	case types.FieldFullName, types.FieldParentName:
		return types.Present(Name(raw))
	case types.FieldStudentID:
		return types.Present(StudentID(raw))
	case types.FieldDateOfBirth:
		return types.Present(Date(raw))
	case types.FieldSchool:
		return types.Present(School(raw))
	case types.FieldGrade:
		return types.Present(Grade(raw))
	case types.FieldRoute:
		return types.Present(Route(raw))
	case types.FieldOptIn:
		return types.Present(string(ParseOptIn(raw)))
	case types.FieldAddress:
		return types.Present(Address(raw))
	case types.FieldPhone:
		return types.Present(Phone(raw))
	case types.FieldEmail:
		return types.Present(Email(raw))
	case types.FieldTransportationNeed:
		return types.Present(string(ParseTransportationNeed(raw)))
	}
	return types.Absent()
}

// Name folds a person's name into comparison form: accents stripped, case
// folded, honorifics and generational suffixes dropped, and "Last, First"
// reordered to "first last". Text with nothing left but punctuation,
// honorifics, or suffixes yields "".
func Name(raw string) string {
	s, _ := stripSelectionMarkers(raw)
	s = CollapseSpace(s)
	if i := strings.Index(s, ","); i >= 0 {
		last := strings.TrimSpace(s[:i])
		rest := strings.TrimSpace(s[i+1:])
		if rest != "" && !onlySuffixes(rest) {
			s = rest + " " + last
		}
	}

	var b strings.Builder
	for _, r := range Fold(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '\'':
			b.WriteRune(r)
		case r == '’':
			b.WriteByte('\'')
		default:
			b.WriteByte(' ')
		}
	}

	tokens := strings.Fields(b.String())
	kept := tokens[:0]
	for _, t := range tokens {
		bare := strings.Trim(t, "-'")
		if bare == "" || honorifics[bare] || suffixes[bare] {
			continue
		}
		kept = append(kept, t)
	}
	return strings.Join(kept, " ")
}

func onlySuffixes(s string) bool {
	for _, t := range words(s) {
		if !suffixes[t] {
			return false
		}
	}
	return true
}

// StudentID removes whitespace and upper-cases letters.
func StudentID(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), ""))
}

// Date parses raw into DateLayout. Unparseable input returns "".
func Date(raw string) string {
	s := CollapseSpace(strings.TrimSuffix(strings.TrimSpace(raw), "."))
	// "Jan. 2, 2006" and ordinal days ("January 2nd, 2006")
	s = strings.ReplaceAll(s, ". ", " ")
	s = stripOrdinals(s)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Year() < 1900 || t.Year() > 2100 {
			return ""
		}
		return t.Format(DateLayout)
	}
	return ""
}

func stripOrdinals(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		trail := ""
		if strings.HasSuffix(f, ",") {
			f, trail = strings.TrimSuffix(f, ","), ","
		}
		for _, suf := range []string{"st", "nd", "rd", "th"} {
			head := strings.TrimSuffix(strings.ToLower(f), suf)
			if head != strings.ToLower(f) && head != "" && isDigits(head) {
				f = head
				break
			}
		}
		fields[i] = f + trail
	}
	return strings.Join(fields, " ")
}

var (
	gradeWords = map[string]string{
		"first": "1", "second": "2", "third": "3", "fourth": "4", "fifth": "5", "sixth": "6",
		"seventh": "7", "eighth": "8", "ninth": "9", "tenth": "10", "eleventh": "11", "twelfth": "12",
		"freshman": "9", "sophomore": "10", "junior": "11", "senior": "12",
	}
	kindergarten    = map[string]bool{"k": true, "kg": true, "kinder": true, "kindergarten": true, "kindergarden": true}
	prekindergarten = map[string]bool{"pk": true, "prek": true, "pre": true, "prekindergarten": true, "preschool": true}
)

// Grade returns "PK", "TK", "K", or "1".."12". Unrecognized input returns "".
func Grade(raw string) string {
	tokens := words(raw)
	var kept []string
	for _, t := range tokens {
		if t == "grade" || t == "gr" || t == "grado" || t == "level" {
			continue
		}
		kept = append(kept, t)
	}
	if len(kept) == 0 {
		return ""
	}
	joined := strings.Join(kept, "")
	switch {
	case prekindergarten[joined] || (len(kept) > 1 && kept[0] == "pre"):
		return "PK"
	case joined == "tk" || joined == "transitionalkindergarten":
		return "TK"
	case kindergarten[joined]:
		return "K"
	}
	if g, ok := gradeWords[kept[0]]; ok {
		return g
	}
	num := kept[0]
	for _, suf := range []string{"st", "nd", "rd", "th"} {
		num = strings.TrimSuffix(num, suf)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 || n > 12 {
		return ""
	}
	return strconv.Itoa(n)
}

// Route upper-cases a route designation and drops "route"/"bus" prefixes
// and leading zeros on numeric routes.
func Route(raw string) string {
	tokens := words(strings.ReplaceAll(raw, "#", " "))
	var kept []string
	for i, t := range tokens {
		if len(kept) == 0 && i < len(tokens)-1 {
			switch t {
			case "route", "rt", "bus", "no", "number", "num", "ruta":
				continue
			}
		}
		kept = append(kept, t)
	}
	if len(kept) == 0 {
		return ""
	}
	if len(kept) == 1 && isDigits(kept[0]) {
		if trimmed := strings.TrimLeft(kept[0], "0"); trimmed != "" {
			return trimmed
		}
		return "0"
	}
	return strings.ToUpper(strings.Join(kept, " "))
}

// School folds a school name and expands common abbreviations.
func School(raw string) string {
	expansions := map[string][]string{
		"elem": {"elementary"},
		"es":   {"elementary", "school"},
		"ms":   {"middle", "school"},
		"hs":   {"high", "school"},
		"jr":   {"junior"},
		"sch":  {"school"},
		"acad": {"academy"},
	}
	var out []string
	for _, t := range words(raw) {
		if exp, ok := expansions[t]; ok {
			out = append(out, exp...)
			continue
		}
		out = append(out, t)
	}
	return strings.Join(out, " ")
}

// Phone keeps digits only. North American numbers with a leading country
// code are trimmed to ten digits. Fewer than seven digits returns "".
func Phone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) < 7 || len(digits) > 15 {
		return ""
	}
	return digits
}

// Email lower-cases an address. Text without "@" returns "".
func Email(raw string) string {
	s := strings.ToLower(strings.Join(strings.Fields(raw), ""))
	at := strings.Index(s, "@")
	if at <= 0 || at == len(s)-1 {
		return ""
	}
	return s
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
