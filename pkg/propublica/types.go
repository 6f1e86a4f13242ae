package propublica

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/nonprofit-cli/internal/model"
)

// SearchResponse is one page of /search.json.
type SearchResponse struct {
	TotalResults  int                   `json:"total_results"`
	NumPages      int                   `json:"num_pages"`
	CurPage       int                   `json:"cur_page"`
	PerPage       int                   `json:"per_page"`
	Organizations []OrganizationSummary `json:"organizations"`
}

// OrganizationSummary is an organization as listed in search results.
type OrganizationSummary struct {
	EIN      json.Number `json:"ein"`
	StrEIN   string      `json:"strein"`
	Name     string      `json:"name"`
	SubName  string      `json:"sub_name"`
	City     string      `json:"city"`
	State    string      `json:"state"`
	NTEECode string      `json:"ntee_code"`
	SubsecCD int         `json:"subseccd"`
}

// Organization converts the summary to the pipeline's identifier type.
func (s OrganizationSummary) Organization() model.Organization {
	return model.Organization{EIN: NormalizeEIN(s.EIN.String()), Name: strings.TrimSpace(s.Name)}
}

// NormalizeEIN renders an EIN as nine digits. Dashes are removed and
// leading zeros restored. Values that are not numeric are returned trimmed.
func NormalizeEIN(raw string) string {
	s := strings.ReplaceAll(strings.TrimSpace(raw), "-", "")
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return s
	}
	return fmt.Sprintf("%09d", n)
}

// OrganizationResponse is the body of /organizations/{ein}.json.
type OrganizationResponse struct {
	Organization       OrganizationDetail `json:"organization"`
	FilingsWithData    []Filing           `json:"filings_with_data"`
	FilingsWithoutData []FilingDocument   `json:"filings_without_data"`
}

// OrganizationDetail is the organization header of the detail response.
type OrganizationDetail struct {
	EIN   json.Number `json:"ein"`
	Name  string      `json:"name"`
	City  string      `json:"city"`
	State string      `json:"state"`
}

// Filing is a filing whose financial fields were digitized by the IRS.
type Filing struct {
	TaxPrd          int      `json:"tax_prd"`
	TaxPrdYr        int      `json:"tax_prd_yr"`
	FormType        int      `json:"formtype"`
	PDFURL          *string  `json:"pdf_url"`
	TotRevenue      *float64 `json:"totrevenue"`
	TotFuncExpns    *float64 `json:"totfuncexpns"`
	PctCompensation *float64 `json:"pct_compnsatncurrofcr"`
}

// FilingDocument is a filing known only by its scanned document.
type FilingDocument struct {
	TaxPrd      int     `json:"tax_prd"`
	TaxPrdYr    int     `json:"tax_prd_yr"`
	FormTypeStr string  `json:"formtype_str"`
	PDFURL      *string `json:"pdf_url"`
}

// LatestFiling is the most recent filing of an organization, merged from
// both filing lists.
type LatestFiling struct {
	TaxYear     int
	Form        model.FormVariant
	DocumentURL string
	// WithData is set when the filing came from filings_with_data.
	WithData bool

	Revenue         *float64
	Expenses        *float64
	PctCompensation *float64
}

// Latest returns the filing with the greatest tax year. On a tie the
// digitized filing wins. ok is false when the organization has no filings.
func (r *OrganizationResponse) Latest() (LatestFiling, bool) {
	var best LatestFiling
	found := false
	for _, f := range r.FilingsWithData {
		if !found || f.TaxPrdYr > best.TaxYear {
			best = LatestFiling{
				TaxYear:         f.TaxPrdYr,
				Form:            model.ParseFormVariant(strconv.Itoa(f.FormType)),
				DocumentURL:     documentURL(f.PDFURL),
				WithData:        true,
				Revenue:         f.TotRevenue,
				Expenses:        f.TotFuncExpns,
				PctCompensation: f.PctCompensation,
			}
			found = true
		}
	}
	for _, f := range r.FilingsWithoutData {
		if !found || f.TaxPrdYr > best.TaxYear {
			best = LatestFiling{
				TaxYear:     f.TaxPrdYr,
				Form:        model.ParseFormVariant(f.FormTypeStr),
				DocumentURL: documentURL(f.PDFURL),
			}
			found = true
		}
	}
	return best, found
}

// Reference builds the FilingReference for ein.
func (l LatestFiling) Reference(ein string) model.FilingReference {
	return model.FilingReference{
		EIN:         ein,
		TaxYear:     l.TaxYear,
		Form:        l.Form,
		DocumentURL: l.DocumentURL,
	}
}

// RevenueFigure returns total revenue when it is reported and positive.
func (l LatestFiling) RevenueFigure() *float64 {
	if l.Revenue == nil || *l.Revenue <= 0 {
		return nil
	}
	v := *l.Revenue
	return &v
}

// CompensationFigure returns officer compensation derived from functional
// expenses and the compensation share, rounded to cents.
func (l LatestFiling) CompensationFigure() *float64 {
	if l.Expenses == nil || l.PctCompensation == nil || *l.PctCompensation < 0 {
		return nil
	}
	v := roundCents(*l.Expenses * *l.PctCompensation)
	return &v
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func documentURL(p *string) string {
	if p == nil {
		return ""
	}
	s := strings.TrimSpace(*p)
	if s == "null" {
		return ""
	}
	return s
}
