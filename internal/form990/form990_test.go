package form990

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/nonprofit-cli/internal/model"
)

const post2008Return = `Return of Organization Exempt From Income Tax
Name of organization: HARBOR LIGHT FOUNDATION
For calendar year 2019
Total revenue $ 812,500
Total contributions 500,000
Total program service revenue 300,000
3 Investment income 12,500
TOTAL EXPENSES 790,000
Part VII Section A. Officers, Directors, Trustees, Key Employees, and Highest Compensated Employees
JANE DOE Executive Director 95,000
JOHN ROE Vice President 40,000
MARY POE Treasurer 0
Part VIII Statement of Revenue
`

const pre2008Return = `Form 990 (2005)
Name of organization: OLD MILL SOCIETY
Part I Revenue, Expenses, and Changes in Net Assets or Fund Balances
Contributions, gifts, grants and similar amounts received 150,000
Program service revenue including government fees 75,000
Total revenue 240,000
Total expenses 210,000
Officers compensation 60,000
`

func TestCleanAmount(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"$1,234", 1234, true},
		{"(5,000)", -5000, true},
		{"12 345", 12345, true},
		{" 42 ", 42, true},
		{"1,000,000,000,000", 1e12, true},
		{"2,000,000,000,000", 0, false},
		{",", 0, false},
		{"", 0, false},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"inf", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := CleanAmount(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "Total 123", Normalize("Total １２３"))
	assert.Equal(t, "a\nb\nc", Normalize("a\r\nb\rc"))
}

func TestDetectVersion(t *testing.T) {
	assert.Equal(t, VersionPost2008, DetectVersion(post2008Return))
	assert.Equal(t, VersionPre2008, DetectVersion(pre2008Return))
	assert.Equal(t, VersionUnknown, DetectVersion("nothing recognizable here"))
	assert.Equal(t, VersionPost2008, DetectVersion("Form 990 (2016)"))
}

func TestVersionForEra(t *testing.T) {
	assert.Equal(t, VersionPre2008, VersionForEra(model.EraPre2008))
	assert.Equal(t, VersionPost2008, VersionForEra(model.EraPost2008))
}

func TestParse_Post2008(t *testing.T) {
	f := Parse(post2008Return, VersionPost2008)

	require.NotNil(t, f.TotalRevenue)
	assert.Equal(t, 812500.0, *f.TotalRevenue)
	require.NotNil(t, f.ContributionsGrants)
	assert.Equal(t, 500000.0, *f.ContributionsGrants)
	require.NotNil(t, f.ProgramServiceRevenue)
	assert.Equal(t, 300000.0, *f.ProgramServiceRevenue)
	require.NotNil(t, f.InvestmentIncome)
	assert.Equal(t, 12500.0, *f.InvestmentIncome)
	require.NotNil(t, f.TotalExpenses)
	assert.Equal(t, 790000.0, *f.TotalExpenses)

	assert.Equal(t, map[string]float64{
		"Executive Director": 95000,
		"Vice President":     40000,
	}, f.ExecCompensation)
	assert.Equal(t, []string{"Executive Director", "Vice President"}, f.Titles())
	require.NotNil(t, f.TotalExecCompensation())
	assert.Equal(t, 135000.0, *f.TotalExecCompensation())

	assert.Equal(t, "HARBOR LIGHT FOUNDATION", f.OrganizationName)
	assert.Equal(t, 2019, f.TaxYear)
	assert.Equal(t, VersionPost2008, f.Version)
	assert.InDelta(t, 1.0, f.Confidence, 1e-9)
	assert.True(t, f.HasFigures())
}

func TestParse_Pre2008(t *testing.T) {
	f := Parse(pre2008Return, VersionPre2008)

	require.NotNil(t, f.TotalRevenue)
	assert.Equal(t, 240000.0, *f.TotalRevenue)
	require.NotNil(t, f.ContributionsGrants)
	assert.Equal(t, 150000.0, *f.ContributionsGrants)
	require.NotNil(t, f.ProgramServiceRevenue)
	assert.Equal(t, 75000.0, *f.ProgramServiceRevenue)
	require.NotNil(t, f.TotalExpenses)
	assert.Equal(t, 210000.0, *f.TotalExpenses)
	assert.Nil(t, f.InvestmentIncome)

	assert.Equal(t, map[string]float64{"Officers": 60000}, f.ExecCompensation)
	assert.Equal(t, "OLD MILL SOCIETY", f.OrganizationName)
	assert.Equal(t, 2005, f.TaxYear)
	assert.InDelta(t, 1.0, f.Confidence, 1e-9)
}

func TestParseAuto_DetectsLayout(t *testing.T) {
	assert.Equal(t, VersionPost2008, ParseAuto(post2008Return).Version)
	assert.Equal(t, VersionPre2008, ParseAuto(pre2008Return).Version)
}

func TestParse_UnknownUsesPost2008(t *testing.T) {
	f := Parse("Total revenue 500,000", VersionUnknown)
	assert.Equal(t, VersionPost2008, f.Version)
	require.NotNil(t, f.TotalRevenue)
	assert.Equal(t, 500000.0, *f.TotalRevenue)
}

func TestParse_PartialConfidence(t *testing.T) {
	f := Parse("Total revenue 500,000", VersionPost2008)
	assert.InDelta(t, 0.75, f.Confidence, 1e-9)
	assert.Nil(t, f.TotalExecCompensation())
	assert.True(t, f.HasFigures())
}

func TestParse_SkipsImplausibleAmounts(t *testing.T) {
	f := Parse("Total revenue 9,999,999,999,999\nTotal revenue 1,000", VersionPost2008)
	require.NotNil(t, f.TotalRevenue)
	assert.Equal(t, 1000.0, *f.TotalRevenue)
}

func TestParse_NothingFound(t *testing.T) {
	f := Parse("scanned page with no legible figures", VersionPost2008)
	assert.False(t, f.HasFigures())
	assert.Equal(t, 0.0, f.Confidence)
	assert.Empty(t, f.OrganizationName)
	assert.Zero(t, f.TaxYear)
}
