package model

// Provenance tags where a record's figures came from.
type Provenance string

const (
	ProvenanceDirectory   Provenance = "directory_api"
	ProvenanceAI          Provenance = "ai_extraction"
	ProvenanceOCR         Provenance = "ocr_extraction"
	ProvenanceUnavailable Provenance = "unavailable"
)

// FinancialRecord is the resolved financial summary of one organization's
// latest filing. Revenue and ExecCompensation are independently nullable.
type FinancialRecord struct {
	EIN              string      `json:"ein"`
	Name             string      `json:"name"`
	FilingYear       int         `json:"filing_year"`
	Form             FormVariant `json:"form,omitempty"`
	Revenue          *float64    `json:"revenue"`
	ExecCompensation *float64    `json:"exec_compensation"`
	Provenance       Provenance  `json:"provenance"`
	DocumentURL      string      `json:"document_url,omitempty"`
	Notes            string      `json:"notes,omitempty"`
}

// HasRevenue reports whether revenue is known.
func (r FinancialRecord) HasRevenue() bool { return r.Revenue != nil }

// HasExecCompensation reports whether executive compensation is known.
func (r FinancialRecord) HasExecCompensation() bool { return r.ExecCompensation != nil }

// Complete reports whether both figures are known.
func (r FinancialRecord) Complete() bool {
	return r.HasRevenue() && r.HasExecCompensation()
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
