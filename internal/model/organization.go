// Package model holds the domain types shared by the enrichment pipeline.
package model

import (
	"sort"
	"strings"
)

// Organization is a tax-exempt entity returned by the directory search.
// The EIN is treated as an opaque key.
type Organization struct {
	EIN  string `json:"ein"`
	Name string `json:"name"`
}

// IdentifierSet is the deduplicated, read-only result of a collection pass.
type IdentifierSet struct {
	orgs []Organization
}

// NewIdentifierSet builds a set ordered by EIN. When the same EIN appears
// more than once, the first occurrence wins.
func NewIdentifierSet(orgs []Organization) IdentifierSet {
	seen := make(map[string]struct{}, len(orgs))
	out := make([]Organization, 0, len(orgs))
	for _, o := range orgs {
		if o.EIN == "" {
			continue
		}
		if _, dup := seen[o.EIN]; dup {
			continue
		}
		seen[o.EIN] = struct{}{}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EIN < out[j].EIN })
	return IdentifierSet{orgs: out}
}

// Len returns the number of organizations in the set.
func (s IdentifierSet) Len() int { return len(s.orgs) }

// Organizations returns a copy of the members.
func (s IdentifierSet) Organizations() []Organization {
	out := make([]Organization, len(s.orgs))
	copy(out, s.orgs)
	return out
}

// Limit returns a set holding at most n members. n <= 0 returns s unchanged.
func (s IdentifierSet) Limit(n int) IdentifierSet {
	if n <= 0 || n >= len(s.orgs) {
		return s
	}
	return IdentifierSet{orgs: s.orgs[:n:n]}
}

// FormVariant is the IRS return type of a filing.
type FormVariant string

const (
	Form990   FormVariant = "990"
	Form990EZ FormVariant = "990-EZ"
	Form990PF FormVariant = "990-PF"
	FormOther FormVariant = "other"
)

// ParseFormVariant maps the directory's form labels onto a FormVariant.
// The directory reports form types both as integers (0, 1, 2) and as
// strings ("990", "990EZ", "990PF").
func ParseFormVariant(raw string) FormVariant {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	switch s {
	case "0", "990":
		return Form990
	case "1", "990EZ":
		return Form990EZ
	case "2", "990PF":
		return Form990PF
	default:
		return FormOther
	}
}

// FormEra selects the field layout of a return. The 2008 redesign of
// Form 990 moved most line numbers.
type FormEra string

const (
	EraPre2008  FormEra = "pre-2008"
	EraPost2008 FormEra = "post-2008"
)

// EraForYear returns the layout era for a tax year.
func EraForYear(year int) FormEra {
	if year < 2008 {
		return EraPre2008
	}
	return EraPost2008
}

// FilingReference points at one filing and its scanned document.
type FilingReference struct {
	EIN         string      `json:"ein"`
	TaxYear     int         `json:"tax_year"`
	Form        FormVariant `json:"form"`
	DocumentURL string      `json:"document_url,omitempty"`
}

// HasDocument reports whether the filing has a document locator.
func (f FilingReference) HasDocument() bool {
	return strings.TrimSpace(f.DocumentURL) != ""
}

// Era returns the layout era implied by the tax year.
func (f FilingReference) Era() FormEra {
	return EraForYear(f.TaxYear)
}
