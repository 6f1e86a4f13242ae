package ocr

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrNoText is returned when neither the text layer nor recognition
// produced any text.
var ErrNoText = eris.New("ocr: no extractable text")

// Layered reads the embedded text layer and falls back to a scanner when
// that text is sparse.
type Layered struct {
	text     Extractor
	scan     Extractor
	minChars int
}

// NewLayered creates a Layered extractor. minChars <= 0 uses
// DefaultMinTextChars.
func NewLayered(text, scan Extractor, minChars int) *Layered {
	if minChars <= 0 {
		minChars = DefaultMinTextChars
	}
	return &Layered{text: text, scan: scan, minChars: minChars}
}

// ExtractText returns the text layer when it holds at least minChars
// non-space characters, otherwise the scanner's output. A failed text
// layer is not fatal. When the scanner fails the sparse text layer is
// returned if there is one.
func (l *Layered) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	text, err := l.text.ExtractText(ctx, pdfPath)
	if err != nil {
		zap.L().Debug("ocr: text layer failed", zap.String("path", pdfPath), zap.Error(err))
		text = ""
	}
	if len(strings.TrimSpace(text)) >= l.minChars {
		return text, nil
	}
	if ctx.Err() != nil {
		return "", eris.Wrap(ctx.Err(), "ocr: cancelled")
	}

	zap.L().Debug("ocr: text layer sparse, scanning pages",
		zap.String("path", pdfPath),
		zap.Int("chars", len(strings.TrimSpace(text))),
	)
	scanned, scanErr := l.scan.ExtractText(ctx, pdfPath)
	if scanErr != nil {
		if strings.TrimSpace(text) != "" {
			return text, nil
		}
		return "", eris.Wrap(scanErr, "ocr: scan")
	}
	if strings.TrimSpace(scanned) == "" {
		if strings.TrimSpace(text) != "" {
			return text, nil
		}
		return "", ErrNoText
	}
	return scanned, nil
}
