// Package ocr turns filing PDFs into text, falling back from the embedded
// text layer to optical character recognition for scanned returns.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/nonprofit-cli/internal/config"
)

// DefaultMinTextChars is the text-layer length below which a document is
// treated as scanned.
const DefaultMinTextChars = 200

// Extractor extracts text content from PDF files.
type Extractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// NewExtractor creates an Extractor based on config. Both providers read
// the text layer first; the provider decides what handles scanned pages.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	text := NewPdfToText(cfg.PdfToTextPath)
	switch cfg.Provider {
	case "local", "":
		scan := NewTesseract(cfg.PdfToPPMPath, cfg.TesseractPath, cfg.DPI, cfg.TempDir)
		return NewLayered(text, scan, cfg.MinTextChars), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		return NewLayered(text, NewMistralOCR(cfg.MistralKey, cfg.MistralModel), cfg.MinTextChars), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
