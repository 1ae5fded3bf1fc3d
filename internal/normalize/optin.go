package normalize

import (
	"strings"

	"github.com/jackzampolin/rollcall/internal/types"
)

var (
	optInPhrases = map[string]bool{
		"yes": true, "y": true, "true": true, "t": true, "1": true, "x": true,
		"checked": true, "selected": true, "on": true, "si": true,
		"opt in": true, "optin": true, "opted in": true, "i opt in": true,
		"accept": true, "accepted": true, "yes please": true, "rider": true,
		"needs transportation": true, "need transportation": true,
		"requesting transportation": true, "transportation requested": true,
	}
	optOutPhrases = map[string]bool{
		"no": true, "n": true, "false": true, "f": true, "0": true,
		"unchecked": true, "unselected": true, "off": true, "none": true,
		"opt out": true, "optout": true, "opted out": true, "i opt out": true,
		"decline": true, "declined": true, "no thanks": true, "not needed": true,
		"non rider": true, "no transportation": true, "does not need transportation": true,
	}
)

// ParseOptIn coerces opt-in text into the tri-state. Any observed text that
// is not recognizably yes or no is UNKNOWN.
func ParseOptIn(raw string) types.OptInStatus {
	stripped, selected := stripSelectionMarkers(raw)
	tokens := words(stripped)
	if len(tokens) == 0 {
		if selected {
			return types.OptIn
		}
		if selectionMarker.MatchString(raw) {
			return types.OptOut
		}
		return types.OptInUnknown
	}

	phrase := strings.Join(tokens, " ")
	switch {
	case optInPhrases[phrase]:
		return types.OptIn
	case optOutPhrases[phrase]:
		return types.OptOut
	case strings.Contains(phrase, "opt out") || strings.Contains(phrase, "do not") || tokens[0] == "no":
		return types.OptOut
	case strings.Contains(phrase, "opt in") || tokens[0] == "yes":
		return types.OptIn
	}
	return types.OptInUnknown
}

// ParseTransportationNeed categorizes free text describing which service
// windows a student needs.
func ParseTransportationNeed(raw string) types.TransportationNeed {
	stripped, _ := stripSelectionMarkers(raw)
	tokens := words(stripped)
	if len(tokens) == 0 {
		return types.NeedUnclear
	}
	phrase := " " + strings.Join(tokens, " ") + " "

	if strings.Contains(phrase, " no transportation ") || strings.Contains(phrase, " not needed ") ||
		strings.Contains(phrase, " none ") || phrase == " no " || phrase == " n a " {
		return types.NeedNone
	}
	if strings.Contains(phrase, " both ") || strings.Contains(phrase, " round trip ") {
		return types.NeedBoth
	}

	am := hasToken(tokens, "am", "morning", "pickup", "mornings") || strings.Contains(phrase, " pick up ")
	pm := hasToken(tokens, "pm", "afternoon", "dropoff", "afternoons") || strings.Contains(phrase, " drop off ")
	switch {
	case am && pm:
		return types.NeedBoth
	case am:
		return types.NeedAMOnly
	case pm:
		return types.NeedPMOnly
	}
	return types.NeedUnclear
}
