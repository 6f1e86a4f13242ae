package collect

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DefaultKeywords are words common in nonprofit names.
var DefaultKeywords = []string{
	"foundation", "association", "society", "institute", "center", "council",
	"trust", "fund", "alliance", "coalition", "network", "group", "organization",
	"charity", "church", "temple", "synagogue", "school", "college", "university",
	"hospital", "health", "medical", "community", "family", "children", "youth", "project",
	"arts", "museum", "library", "research", "education", "housing", "veterans",
	"services", "support", "relief", "development", "international", "american",
}

// DefaultBigrams are two-letter prefixes that widen coverage beyond the
// keyword searches.
var DefaultBigrams = []string{
	"al", "am", "an", "ar", "as", "at", "ca", "ce", "ch", "ci", "co", "cr",
	"de", "di", "do", "ea", "ed", "el", "em", "en", "ex", "fa", "fi", "fo",
	"fr", "ge", "gl", "go", "gr", "ha", "he", "hi", "ho", "hu", "in", "is",
	"ja", "jo", "ka", "ki", "la", "le", "li", "lo", "ma", "me", "mi", "mo",
	"na", "ne", "no", "of", "op", "or", "pa", "pe", "pr", "qu", "ra", "re",
	"ri", "ro", "sa", "sc", "se", "sh", "so", "st", "su", "ta", "te", "th",
	"ti", "to", "tr", "un", "up", "ur", "va", "vi", "wa", "we", "wi", "wo", "yo",
}

// QuerySet is the ordered list of search terms for one collection pass.
type QuerySet struct {
	terms []string
}

// NewQuerySet builds a set from terms. Terms are trimmed and lower-cased;
// blanks and repeats are dropped, keeping first-seen order.
func NewQuerySet(terms ...string) QuerySet {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return QuerySet{terms: out}
}

// Terms returns a copy of the terms in search order.
func (q QuerySet) Terms() []string {
	out := make([]string, len(q.terms))
	copy(out, q.terms)
	return out
}

// Len returns the number of terms.
func (q QuerySet) Len() int { return len(q.terms) }

// DefaultQuerySet is the keyword list, the state's name and code and, when
// alphabetical is set, every single letter and the default bigrams.
func DefaultQuerySet(state State, alphabetical bool) QuerySet {
	terms := append([]string{}, DefaultKeywords...)
	terms = append(terms, state.searchTerms()...)
	if alphabetical {
		terms = append(terms, letters()...)
		terms = append(terms, DefaultBigrams...)
	}
	return NewQuerySet(terms...)
}

func letters() []string {
	out := make([]string, 0, 26)
	for c := 'a'; c <= 'z'; c++ {
		out = append(out, string(c))
	}
	return out
}

// queryFile is the YAML layout of a query file. Omitted lists fall back to
// the defaults; an explicit empty list disables them.
type queryFile struct {
	Keywords            *[]string `yaml:"keywords"`
	Bigrams             *[]string `yaml:"bigrams"`
	Extra               []string  `yaml:"extra"`
	IncludeState        *bool     `yaml:"include_state"`
	IncludeAlphabetical *bool     `yaml:"include_alphabetical"`
}

// LoadQuerySet reads a query file. alphabetical is the default for files
// that do not set include_alphabetical.
func LoadQuerySet(path string, state State, alphabetical bool) (QuerySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return QuerySet{}, eris.Wrapf(err, "collect: read query file %s", path)
	}

	var f queryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return QuerySet{}, eris.Wrapf(err, "collect: parse query file %s", path)
	}

	keywords := DefaultKeywords
	if f.Keywords != nil {
		keywords = *f.Keywords
	}
	bigrams := DefaultBigrams
	if f.Bigrams != nil {
		bigrams = *f.Bigrams
	}
	if f.IncludeAlphabetical != nil {
		alphabetical = *f.IncludeAlphabetical
	}

	terms := append([]string{}, keywords...)
	if f.IncludeState == nil || *f.IncludeState {
		terms = append(terms, state.searchTerms()...)
	}
	terms = append(terms, f.Extra...)
	if alphabetical {
		terms = append(terms, letters()...)
		terms = append(terms, bigrams...)
	}

	qs := NewQuerySet(terms...)
	if qs.Len() == 0 {
		return QuerySet{}, eris.Errorf("collect: query file %s yields no terms", path)
	}
	return qs, nil
}
