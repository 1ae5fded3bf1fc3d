package normalize

import (
	"strings"
)

var addressAbbreviations = map[string]string{
	"street":    "ST",
	"str":       "ST",
	"avenue":    "AVE",
	"av":        "AVE",
	"road":      "RD",
	"drive":     "DR",
	"boulevard": "BLVD",
	"lane":      "LN",
	"court":     "CT",
	"place":     "PL",
	"circle":    "CIR",
	"parkway":   "PKWY",
	"highway":   "HWY",
	"terrace":   "TER",
	"trail":     "TRL",
	"way":       "WAY",
	"apartment": "APT",
	"suite":     "STE",
	"unit":      "UNIT",
	"north":     "N",
	"south":     "S",
	"east":      "E",
	"west":      "W",
	"northeast": "NE",
	"northwest": "NW",
	"southeast": "SE",
	"southwest": "SW",
}

// Address upper-cases a street address, removes checkbox markers and
// punctuation, and abbreviates street types and directionals.
func Address(raw string) string {
	stripped, _ := stripSelectionMarkers(raw)
	tokens := words(strings.ReplaceAll(stripped, "#", " "))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if abbr, ok := addressAbbreviations[t]; ok {
			out = append(out, abbr)
			continue
		}
		out = append(out, strings.ToUpper(t))
	}
	return strings.Join(out, " ")
}
