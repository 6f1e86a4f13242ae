// Package export writes run results to a spreadsheet.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/nonprofit-cli/internal/model"
	"github.com/sells-group/nonprofit-cli/internal/resilience"
)

// Sheet names.
const (
	SheetData       = "Nonprofit Data"
	SheetSummary    = "Summary"
	SheetUnresolved = "Unresolved"
)

const amountFormat = "#,##0"

var dataHeader = []string{
	"Organization Name",
	"EIN",
	"Filing Year",
	"Form",
	"Total Revenue",
	"Executive Compensation",
	"Data Source",
	"Document URL",
	"Notes",
}

var unresolvedHeader = []string{
	"EIN",
	"Organization Name",
	"Category",
	"Source",
	"Error Type",
	"Error",
	"Failed At",
}

// Report is everything written to one workbook.
type Report struct {
	StateName   string
	Method      string
	Records     []model.FinancialRecord
	Stats       model.StatsSnapshot
	Unresolved  []resilience.DLQEntry
	Collected   int
	Interrupted bool
	GeneratedAt time.Time
}

// FileName returns nonprofit_data_<State>_<method>_<timestamp>.xlsx. Spaces
// in the state name become underscores and parentheses are dropped.
func FileName(stateName, method string, at time.Time) string {
	clean := strings.NewReplacer(" ", "_", "(", "", ")", "", ".", "").Replace(strings.TrimSpace(stateName))
	return fmt.Sprintf("nonprofit_data_%s_%s_%s.xlsx", clean, method, at.Format("20060102_150405"))
}

// SortRecords returns the records ordered by revenue, highest first.
// Records without revenue come last; ties are ordered by EIN.
func SortRecords(records []model.FinancialRecord) []model.FinancialRecord {
	out := make([]model.FinancialRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Revenue, out[j].Revenue
		switch {
		case a == nil && b == nil:
			return out[i].EIN < out[j].EIN
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a > *b
		default:
			return out[i].EIN < out[j].EIN
		}
	})
	return out
}

// WriteToDir writes the report into dir under FileName and returns the
// full path. dir is created if needed.
func WriteToDir(dir string, r Report) (string, error) {
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "export: create output dir %s", dir)
	}
	path := filepath.Join(dir, FileName(r.StateName, r.Method, r.GeneratedAt))
	if err := Write(path, r); err != nil {
		return "", err
	}
	return path, nil
}

// Write saves the report as a workbook with data, summary and unresolved
// sheets.
func Write(path string, r Report) error {
	f := xlsx.NewFile()

	if err := writeData(f, SortRecords(r.Records)); err != nil {
		return err
	}
	if err := writeSummary(f, r); err != nil {
		return err
	}
	if err := writeUnresolved(f, r.Unresolved); err != nil {
		return err
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}

	zap.L().Info("export: workbook saved",
		zap.String("path", path),
		zap.Int("records", len(r.Records)),
		zap.Int("unresolved", len(r.Unresolved)),
	)
	return nil
}

func headerStyle() *xlsx.Style {
	s := xlsx.NewStyle()
	s.Font.Bold = true
	return s
}

func addHeader(sheet *xlsx.Sheet, names []string) {
	style := headerStyle()
	row := sheet.AddRow()
	for _, name := range names {
		cell := row.AddCell()
		cell.SetString(name)
		cell.SetStyle(style)
	}
}

func addAmount(row *xlsx.Row, v *float64) {
	cell := row.AddCell()
	if v == nil {
		cell.SetString("N/A")
		return
	}
	cell.SetFloatWithFormat(*v, amountFormat)
}

func writeData(f *xlsx.File, records []model.FinancialRecord) error {
	sheet, err := f.AddSheet(SheetData)
	if err != nil {
		return eris.Wrap(err, "export: add data sheet")
	}
	addHeader(sheet, dataHeader)

	for _, rec := range records {
		row := sheet.AddRow()
		row.AddCell().SetString(rec.Name)
		row.AddCell().SetString(rec.EIN)
		if rec.FilingYear > 0 {
			row.AddCell().SetInt(rec.FilingYear)
		} else {
			row.AddCell().SetString("N/A")
		}
		row.AddCell().SetString(string(rec.Form))
		addAmount(row, rec.Revenue)
		addAmount(row, rec.ExecCompensation)
		row.AddCell().SetString(string(rec.Provenance))
		row.AddCell().SetString(rec.DocumentURL)
		row.AddCell().SetString(rec.Notes)
	}
	return nil
}

func writeSummary(f *xlsx.File, r Report) error {
	sheet, err := f.AddSheet(SheetSummary)
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}
	addHeader(sheet, []string{"Metric", "Value"})

	s := r.Stats
	text := func(label, v string) {
		row := sheet.AddRow()
		row.AddCell().SetString(label)
		row.AddCell().SetString(v)
	}
	count := func(label string, n int) {
		row := sheet.AddRow()
		row.AddCell().SetString(label)
		row.AddCell().SetInt(n)
	}

	text("Run ID", s.RunID)
	text("State", r.StateName)
	text("Parsing Method", r.Method)
	text("Generated At", r.GeneratedAt.Format(time.RFC3339))
	if r.Interrupted {
		text("Status", "interrupted")
	} else {
		text("Status", "complete")
	}
	count("Organizations Collected", r.Collected)
	count("Organizations Dispatched", s.Total)
	count("Organizations Processed", s.Processed)
	count("Records Exported", len(r.Records))
	count("From Directory API", s.API)
	count("From AI Extraction", s.AISuccess)
	count("From OCR Extraction", s.OCRSuccess)
	count("Not Available", s.NotAvailable)
	count("Rate Limited", s.RateLimited)
	count("Errors", s.Errors)

	row := sheet.AddRow()
	row.AddCell().SetString("Elapsed Seconds")
	row.AddCell().SetFloatWithFormat(s.ElapsedSeconds, "0.0")
	row = sheet.AddRow()
	row.AddCell().SetString("AI Cost (USD)")
	row.AddCell().SetFloatWithFormat(s.AICostUSD, "0.0000")

	if lo, hi, ok := span(r.Records, func(rec model.FinancialRecord) *float64 { return rec.Revenue }); ok {
		text("Revenue Range", fmt.Sprintf("$%s - $%s", thousands(lo), thousands(hi)))
	}
	if lo, hi, ok := span(r.Records, func(rec model.FinancialRecord) *float64 { return rec.ExecCompensation }); ok {
		text("Compensation Range", fmt.Sprintf("$%s - $%s", thousands(lo), thousands(hi)))
	}
	return nil
}

func writeUnresolved(f *xlsx.File, entries []resilience.DLQEntry) error {
	sheet, err := f.AddSheet(SheetUnresolved)
	if err != nil {
		return eris.Wrap(err, "export: add unresolved sheet")
	}
	addHeader(sheet, unresolvedHeader)

	for _, e := range entries {
		row := sheet.AddRow()
		row.AddCell().SetString(e.Organization.EIN)
		row.AddCell().SetString(e.Organization.Name)
		row.AddCell().SetString(string(e.Category))
		row.AddCell().SetString(string(e.Source))
		row.AddCell().SetString(e.ErrorType)
		row.AddCell().SetString(e.Error)
		row.AddCell().SetString(e.FailedAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// span returns the smallest and largest known value of a figure.
func span(records []model.FinancialRecord, figure func(model.FinancialRecord) *float64) (lo, hi float64, ok bool) {
	for _, rec := range records {
		v := figure(rec)
		if v == nil {
			continue
		}
		if !ok || *v < lo {
			lo = *v
		}
		if !ok || *v > hi {
			hi = *v
		}
		ok = true
	}
	return lo, hi, ok
}

// thousands formats v rounded to whole units with comma separators.
func thousands(v float64) string {
	return message.NewPrinter(language.AmericanEnglish).Sprintf("%.0f", v)
}
