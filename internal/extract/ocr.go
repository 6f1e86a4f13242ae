package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-cli/internal/form990"
	"github.com/sells-group/nonprofit-cli/internal/model"
	"github.com/sells-group/nonprofit-cli/internal/ocr"
)

// OCRStrategy turns the document into text and reads it with the Form 990
// pattern parser.
type OCRStrategy struct {
	text ocr.Extractor
}

// NewOCRStrategy creates the OCR strategy over a text extractor.
func NewOCRStrategy(text ocr.Extractor) *OCRStrategy {
	return &OCRStrategy{text: text}
}

func (s *OCRStrategy) Provenance() model.Provenance { return model.ProvenanceOCR }

func (s *OCRStrategy) Source() model.Source { return model.SourceDocument }

// Extract parses the document text. The layout is chosen from the filing's
// tax year and only detected from the text when the year is unknown.
func (s *OCRStrategy) Extract(ctx context.Context, doc Document) (*Result, error) {
	text, err := s.text.ExtractText(ctx, doc.Path)
	if err != nil {
		if errors.Is(err, ocr.ErrNoText) {
			return nil, ErrNoData
		}
		return nil, eris.Wrap(err, "extract: ocr")
	}

	version := form990.VersionForEra(doc.Ref.Era())
	if doc.Ref.TaxYear <= 0 {
		version = form990.DetectVersion(form990.Normalize(text))
	}

	f := form990.Parse(text, version)
	zap.L().Debug("extract: form 990 parsed",
		zap.String("ein", doc.Ref.EIN),
		zap.String("version", string(f.Version)),
		zap.Float64("confidence", f.Confidence),
		zap.Strings("titles", f.Titles()),
	)
	if !f.HasFigures() {
		return nil, ErrNoData
	}

	return &Result{
		Revenue:          f.TotalRevenue,
		ExecCompensation: f.TotalExecCompensation(),
		Confidence:       confidenceLevel(f.Confidence),
		Notes:            fmt.Sprintf("%s layout, parser confidence %.2f", f.Version, f.Confidence),
	}, nil
}

// confidenceLevel buckets a parser score into the levels the AI strategy
// reports.
func confidenceLevel(score float64) string {
	switch {
	case score >= 0.7:
		return "high"
	case score >= 0.3:
		return "medium"
	default:
		return "low"
	}
}
