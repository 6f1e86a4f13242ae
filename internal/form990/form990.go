// Package form990 reads financial figures out of the plain text of an IRS
// Form 990 return.
package form990

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-cli/internal/model"
)

// Version is the detected layout of a return.
type Version string

const (
	VersionPre2008  Version = "pre-2008"
	VersionPost2008 Version = "post-2008"
	VersionUnknown  Version = "unknown"
)

// VersionForEra maps a filing era onto a parser version.
func VersionForEra(era model.FormEra) Version {
	if era == model.EraPre2008 {
		return VersionPre2008
	}
	return VersionPost2008
}

// Financials holds the figures found in one return. Missing figures are nil.
type Financials struct {
	TotalRevenue          *float64
	ContributionsGrants   *float64
	ProgramServiceRevenue *float64
	InvestmentIncome      *float64
	TotalExpenses         *float64

	// ExecCompensation maps an officer title to the compensation reported
	// for it.
	ExecCompensation map[string]float64

	OrganizationName string
	TaxYear          int
	Version          Version
	Confidence       float64
}

// TotalExecCompensation sums compensation across titled officers. It is nil
// when no officer compensation was found.
func (f Financials) TotalExecCompensation() *float64 {
	if len(f.ExecCompensation) == 0 {
		return nil
	}
	var sum float64
	for _, v := range f.ExecCompensation {
		sum += v
	}
	return &sum
}

// HasFigures reports whether revenue or executive compensation was found.
func (f Financials) HasFigures() bool {
	return f.TotalRevenue != nil || len(f.ExecCompensation) > 0
}

// Titles returns the officer titles in a stable order.
func (f Financials) Titles() []string {
	out := make([]string, 0, len(f.ExecCompensation))
	for t := range f.ExecCompensation {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// DetectVersion scores the text against layout indicators of each era.
func DetectVersion(text string) Version {
	post := countMatches(text, post2008Indicators)
	pre := countMatches(text, pre2008Indicators)

	zap.L().Debug("form990: version scores",
		zap.Int("post_2008", post),
		zap.Int("pre_2008", pre),
	)

	switch {
	case post > pre && post > 0:
		return VersionPost2008
	case pre > 0:
		return VersionPre2008
	default:
		return VersionUnknown
	}
}

func countMatches(text string, patterns []*regexp.Regexp) int {
	n := 0
	for _, re := range patterns {
		if re.MatchString(text) {
			n++
		}
	}
	return n
}

// Parse extracts figures using the patterns of version. VersionUnknown
// parses with the post-2008 layout.
func Parse(text string, version Version) Financials {
	text = Normalize(text)
	if version == "" || version == VersionUnknown {
		version = VersionPost2008
	}

	p := &post2008
	if version == VersionPre2008 {
		p = &pre2008
	}

	f := Financials{Version: version}
	f.TotalRevenue = firstAmount(text, p.totalRevenueSummary)
	if f.TotalRevenue == nil || *f.TotalRevenue == 0 {
		if v := firstAmount(text, p.totalRevenue); v != nil {
			f.TotalRevenue = v
		}
	}
	f.ContributionsGrants = firstAmount(text, p.contributions)
	f.ProgramServiceRevenue = firstAmount(text, p.programRevenue)
	f.InvestmentIncome = firstAmount(text, p.investmentIncome)
	f.TotalExpenses = firstAmount(text, p.totalExpenses)

	if version == VersionPost2008 {
		f.ExecCompensation = partVIICompensation(text)
	}
	if len(f.ExecCompensation) == 0 {
		f.ExecCompensation = titledCompensation(text, p.officers)
	}

	f.OrganizationName = organizationName(text)
	f.TaxYear = taxYear(text)
	f.Confidence = confidence(f)
	return f
}

// ParseAuto detects the version from the text and parses it.
func ParseAuto(text string) Financials {
	text = Normalize(text)
	return Parse(text, DetectVersion(text))
}

// firstAmount returns the first match across patterns that cleans to a
// valid amount.
func firstAmount(text string, patterns []*regexp.Regexp) *float64 {
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if v, ok := CleanAmount(m[len(m)-1]); ok {
				return &v
			}
		}
	}
	return nil
}

// partVIICompensation reads officer compensation from the Part VII section A
// table, which ends where Part VIII begins.
func partVIICompensation(text string) map[string]float64 {
	loc := partVIIHeader.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	section := text[loc[1]:]
	if end := partVIIIStart.FindStringIndex(section); end != nil {
		section = section[:end[0]]
	}

	comp := make(map[string]float64)
	for _, t := range partVIITitles {
		for _, m := range t.re.FindAllStringSubmatchIndex(section, -1) {
			if t.label == "President" && vicePrefix.MatchString(section[:m[2]]) {
				continue
			}
			if v, ok := CleanAmount(section[m[4]:m[5]]); ok && v > 0 {
				comp[t.label] = v
			}
		}
	}
	return comp
}

// titledCompensation applies patterns whose first group is the title and
// whose last group is the amount.
func titledCompensation(text string, patterns []*regexp.Regexp) map[string]float64 {
	comp := make(map[string]float64)
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(m) < 3 {
				continue
			}
			if v, ok := CleanAmount(m[len(m)-1]); ok && v > 0 {
				comp[strings.TrimSpace(m[1])] = v
			}
		}
	}
	return comp
}

func organizationName(text string) string {
	window := head(text, nameSearchWindow)
	for _, re := range namePatterns {
		m := re.FindStringSubmatch(window)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if len(name) > 3 && len(name) < 200 {
			return name
		}
	}
	return ""
}

func taxYear(text string) int {
	window := head(text, yearSearchWindow)
	for _, re := range yearPatterns {
		m := re.FindStringSubmatch(window)
		if m == nil {
			continue
		}
		year, err := strconv.Atoi(m[1])
		if err == nil && year >= minTaxYear && year <= maxTaxYear {
			return year
		}
	}
	return 0
}

// Field weights of the confidence score. The consistency bonus is always
// part of the denominator.
const (
	weightRevenue       = 0.3
	weightExpenses      = 0.2
	weightContributions = 0.1
	weightProgram       = 0.1
	weightCompensation  = 0.15
	weightName          = 0.1
	weightYear          = 0.05
	weightConsistency   = 0.1

	consistencyTolerance = 0.2
)

// confidence scores found fields against their weights and awards a bonus
// when contributions plus program revenue come within 20% of total revenue.
func confidence(f Financials) float64 {
	var score, total float64
	add := func(present bool, w float64) {
		if present {
			score += w
			total += w
		}
	}
	add(f.TotalRevenue != nil, weightRevenue)
	add(f.TotalExpenses != nil, weightExpenses)
	add(f.ContributionsGrants != nil, weightContributions)
	add(f.ProgramServiceRevenue != nil, weightProgram)
	add(len(f.ExecCompensation) > 0, weightCompensation)
	add(f.OrganizationName != "", weightName)
	add(f.TaxYear != 0, weightYear)

	if nonZero(f.TotalRevenue) && nonZero(f.ContributionsGrants) && nonZero(f.ProgramServiceRevenue) {
		sum := *f.ContributionsGrants + *f.ProgramServiceRevenue
		diff := sum - *f.TotalRevenue
		if diff < 0 {
			diff = -diff
		}
		if diff / *f.TotalRevenue < consistencyTolerance {
			score += weightConsistency
		}
	}
	total += weightConsistency

	return score / total
}

func nonZero(v *float64) bool { return v != nil && *v != 0 }
