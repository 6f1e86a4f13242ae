package form990

import "regexp"

// fieldPatterns lists, per field, the expressions tried in order. The last
// capture group of each expression holds the amount.
type fieldPatterns struct {
	totalRevenue        []*regexp.Regexp
	totalRevenueSummary []*regexp.Regexp
	contributions       []*regexp.Regexp
	programRevenue      []*regexp.Regexp
	investmentIncome    []*regexp.Regexp
	totalExpenses       []*regexp.Regexp
	officers            []*regexp.Regexp
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?is)` + e)
	}
	return out
}

// Post-2008 layout: Part I summary lines 8-12, Part VIII statement of
// revenue, Part IX functional expenses.
var post2008 = fieldPatterns{
	totalRevenueSummary: compileAll(
		`Total revenue.*?[\s\$]+([\d,]+)`,
		`12\s+Total revenue.*?([\d,]+)`,
		`Line 12.*?Total revenue.*?([\d,]+)`,
	),
	totalRevenue: compileAll(
		`Part VIII.*?Statement of Revenue.*?Total.*?([\d,]+)`,
		`12\s+Total revenue \(must equal Part VIII.*?line 12\).*?([\d,]+)`,
		`TOTAL REVENUE.*?([\d,]+)`,
	),
	contributions: compileAll(
		`1h\s+Total.*?contributions.*?([\d,]+)`,
		`Contributions.*?grants.*?line 1h.*?([\d,]+)`,
		`Total contributions.*?([\d,]+)`,
	),
	programRevenue: compileAll(
		`2g\s+Total.*?program service revenue.*?([\d,]+)`,
		`Program service revenue.*?line 2g.*?([\d,]+)`,
		`Total program service revenue.*?([\d,]+)`,
	),
	investmentIncome: compileAll(
		`3\s+Investment income.*?([\d,]+)`,
		`Line 3.*?Investment income.*?([\d,]+)`,
	),
	totalExpenses: compileAll(
		`25\s+Total functional expenses.*?([\d,]+)`,
		`Total expenses.*?line 25.*?([\d,]+)`,
		`TOTAL EXPENSES.*?([\d,]+)`,
	),
	officers: compileAll(
		`(President|CEO|Executive Director|Chief Executive).*?([\d,]+)`,
	),
}

// Pre-2008 layout: Part I "Revenue, Expenses, and Changes in Net Assets".
var pre2008 = fieldPatterns{
	totalRevenue: compileAll(
		`Total revenue.*?([\d,]+)`,
		`REVENUE.*?TOTAL.*?([\d,]+)`,
		`Total support and revenue.*?([\d,]+)`,
	),
	contributions: compileAll(
		`Contributions.*?gifts.*?grants.*?([\d,]+)`,
		`Direct public support.*?([\d,]+)`,
		`Government grants.*?([\d,]+)`,
	),
	programRevenue: compileAll(
		`Program service revenue.*?([\d,]+)`,
		`Fees for services.*?([\d,]+)`,
	),
	totalExpenses: compileAll(
		`Total expenses.*?([\d,]+)`,
		`EXPENSES.*?TOTAL.*?([\d,]+)`,
	),
	officers: compileAll(
		`(President|CEO|Executive Director).*?compensation.*?([\d,]+)`,
		`(Officers).*?compensation.*?([\d,]+)`,
	),
}

// Version indicators are matched line by line.
var (
	post2008Indicators = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Part VIII.*Statement of Revenue`),
		regexp.MustCompile(`(?i)Part VII.*Officers.*Directors.*Trustees.*Key Employees`),
		regexp.MustCompile(`(?i)Schedule J.*Compensation Information`),
		regexp.MustCompile(`(?i)Part VI.*Governance.*Management.*Disclosure`),
		regexp.MustCompile(`(?i)990\s*\((?:2008|2009|201\d|202\d)\)`),
	}
	pre2008Indicators = []*regexp.Regexp{
		regexp.MustCompile(`(?i)990\s*\(200[1-7]\)`),
		regexp.MustCompile(`(?i)Revenue.*Expenses.*and.*Changes.*in.*Net.*Assets`),
		regexp.MustCompile(`(?i)Part I.*Revenue.*Expenses.*and.*Changes`),
	}
)

// Part VII section A lists officers, directors, trustees and key employees.
var (
	partVIIHeader = regexp.MustCompile(`(?is)Part VII.*?Section A.*?Officers.*?Directors.*?Trustees.*?Key Employees.*?Highest Compensated Employees`)
	partVIIIStart = regexp.MustCompile(`(?i)Part VIII`)
)

// officerTitle maps a title expression in a Part VII table to the label
// recorded for it. President excludes vice presidents.
type officerTitle struct {
	re    *regexp.Regexp
	label string
}

var partVIITitles = []officerTitle{
	{regexp.MustCompile(`(?i)(Chief Executive Officer|CEO).*?([\d,]+)`), "CEO"},
	{regexp.MustCompile(`(?i)(President).*?([\d,]+)`), "President"},
	{regexp.MustCompile(`(?i)(Executive Director).*?([\d,]+)`), "Executive Director"},
	{regexp.MustCompile(`(?i)(Chief Financial Officer|CFO).*?([\d,]+)`), "CFO"},
	{regexp.MustCompile(`(?i)(Chief Operating Officer|COO).*?([\d,]+)`), "COO"},
	{regexp.MustCompile(`(?i)(Vice President).*?([\d,]+)`), "Vice President"},
	{regexp.MustCompile(`(?i)(Secretary).*?([\d,]+)`), "Secretary"},
	{regexp.MustCompile(`(?i)(Treasurer).*?([\d,]+)`), "Treasurer"},
}

var vicePrefix = regexp.MustCompile(`(?i)vice[\s-]*$`)

var (
	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?im)Name of organization[:\s]+(.*?)(?:\n|EIN)`),
		regexp.MustCompile(`(?im)Legal name of organization[:\s]+(.*?)$`),
		regexp.MustCompile(`(?im)^([A-Z][A-Za-z\s,\.]+(?:INC|CORP|FOUNDATION|FUND|SOCIETY|ASSOCIATION|ORGANIZATION))`),
	}
	yearPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)tax year (\d{4})`),
		regexp.MustCompile(`(?i)Tax year beginning.*?(\d{4})`),
		regexp.MustCompile(`(?i)Form 990.*?(\d{4})`),
		regexp.MustCompile(`(?i)calendar year (\d{4})`),
	}
)

const (
	nameSearchWindow = 2000
	yearSearchWindow = 1000
	minTaxYear       = 1990
	maxTaxYear       = 2030
)
