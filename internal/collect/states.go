package collect

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// State is a jurisdiction the directory can filter on.
type State struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var states = []State{
	{"AL", "Alabama"}, {"AK", "Alaska"}, {"AZ", "Arizona"}, {"AR", "Arkansas"},
	{"CA", "California"}, {"CO", "Colorado"}, {"CT", "Connecticut"}, {"DE", "Delaware"},
	{"FL", "Florida"}, {"GA", "Georgia"}, {"HI", "Hawaii"}, {"ID", "Idaho"},
	{"IL", "Illinois"}, {"IN", "Indiana"}, {"IA", "Iowa"}, {"KS", "Kansas"},
	{"KY", "Kentucky"}, {"LA", "Louisiana"}, {"ME", "Maine"}, {"MD", "Maryland"},
	{"MA", "Massachusetts"}, {"MI", "Michigan"}, {"MN", "Minnesota"}, {"MS", "Mississippi"},
	{"MO", "Missouri"}, {"MT", "Montana"}, {"NE", "Nebraska"}, {"NV", "Nevada"},
	{"NH", "New Hampshire"}, {"NJ", "New Jersey"}, {"NM", "New Mexico"}, {"NY", "New York"},
	{"NC", "North Carolina"}, {"ND", "North Dakota"}, {"OH", "Ohio"}, {"OK", "Oklahoma"},
	{"OR", "Oregon"}, {"PA", "Pennsylvania"}, {"RI", "Rhode Island"}, {"SC", "South Carolina"},
	{"SD", "South Dakota"}, {"TN", "Tennessee"}, {"TX", "Texas"}, {"UT", "Utah"},
	{"VT", "Vermont"}, {"VA", "Virginia"}, {"WA", "Washington"}, {"WV", "West Virginia"},
	{"WI", "Wisconsin"}, {"WY", "Wyoming"},
	{"DC", "District of Columbia"},
	{"PR", "Puerto Rico"}, {"GU", "Guam"}, {"VI", "U.S. Virgin Islands"},
	{"AS", "American Samoa"}, {"MP", "Northern Mariana Islands"},
}

// States returns every supported jurisdiction in table order.
func States() []State {
	out := make([]State, len(states))
	copy(out, states)
	return out
}

// LookupState finds a jurisdiction by postal code or name, ignoring case
// and surrounding whitespace.
func LookupState(s string) (State, bool) {
	fold := cases.Fold()
	key := fold.String(strings.Join(strings.Fields(s), " "))
	if key == "" {
		return State{}, false
	}
	for _, st := range states {
		if fold.String(st.Code) == key || fold.String(st.Name) == key {
			return st, true
		}
	}
	return State{}, false
}

// searchTerms returns the lower-cased name and code used as query terms.
func (s State) searchTerms() []string {
	lower := cases.Lower(language.AmericanEnglish)
	return []string{lower.String(s.Name), lower.String(s.Code)}
}
