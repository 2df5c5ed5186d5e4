package catalog

import (
	"strings"
	"sync"
)

// regionNames lists subdivision names by postal code for the countries
// locations and tax jurisdictions are usually entered in.
var regionNames = map[string]string{
	// United States
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas",
	"CA": "California", "CO": "Colorado", "CT": "Connecticut", "DE": "Delaware",
	"DC": "District of Columbia", "FL": "Florida", "GA": "Georgia", "HI": "Hawaii",
	"ID": "Idaho", "IL": "Illinois", "IN": "Indiana", "IA": "Iowa",
	"KS": "Kansas", "KY": "Kentucky", "LA": "Louisiana", "ME": "Maine",
	"MD": "Maryland", "MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota",
	"MS": "Mississippi", "MO": "Missouri", "MT": "Montana", "NE": "Nebraska",
	"NV": "Nevada", "NH": "New Hampshire", "NJ": "New Jersey", "NM": "New Mexico",
	"NY": "New York", "NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio",
	"OK": "Oklahoma", "OR": "Oregon", "PA": "Pennsylvania", "PR": "Puerto Rico",
	"RI": "Rhode Island", "SC": "South Carolina", "SD": "South Dakota", "TN": "Tennessee",
	"TX": "Texas", "UT": "Utah", "VT": "Vermont", "VA": "Virginia",
	"WA": "Washington", "WV": "West Virginia", "WI": "Wisconsin", "WY": "Wyoming",

	// Canada
	"AB": "Alberta", "BC": "British Columbia", "MB": "Manitoba", "NB": "New Brunswick",
	"NL": "Newfoundland and Labrador", "NS": "Nova Scotia", "NT": "Northwest Territories",
	"NU": "Nunavut", "ON": "Ontario", "PE": "Prince Edward Island", "QC": "Quebec",
	"SK": "Saskatchewan", "YT": "Yukon",
}

// regionCodes is the reverse index, lower-cased name to code.
var regionCodes = sync.OnceValue(func() map[string]string {
	out := make(map[string]string, len(regionNames))
	for code, name := range regionNames {
		out[strings.ToLower(name)] = code
	}
	return out
})

// NormalizeRegion turns a state or province name into its postal code.
// Known codes are upper-cased; anything else is returned trimmed.
func NormalizeRegion(s string) string {
	s = strings.TrimSpace(s)
	if _, ok := regionNames[strings.ToUpper(s)]; ok {
		return strings.ToUpper(s)
	}
	if code, ok := regionCodes()[strings.ToLower(s)]; ok {
		return code
	}
	return s
}

// jurisdiction normalizes tax jurisdictions, which are codes of any kind:
// region names become postal codes and everything is upper-cased.
func jurisdiction(s string) string {
	return upper(NormalizeRegion(s))
}
