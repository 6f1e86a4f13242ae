package ocr

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultDPI is the page rendering resolution.
const DefaultDPI = 300

// Tesseract renders PDF pages with pdftoppm and recognizes each page with
// the tesseract CLI.
type Tesseract struct {
	renderPath string
	ocrPath    string
	dpi        int
	tempDir    string
}

// NewTesseract creates a Tesseract extractor. Empty paths fall back to
// "pdftoppm" and "tesseract" on PATH.
func NewTesseract(renderPath, ocrPath string, dpi int, tempDir string) *Tesseract {
	if renderPath == "" {
		renderPath = "pdftoppm"
	}
	if ocrPath == "" {
		ocrPath = "tesseract"
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Tesseract{renderPath: renderPath, ocrPath: ocrPath, dpi: dpi, tempDir: tempDir}
}

// ExtractText renders every page to PNG and concatenates the recognized
// text in page order.
func (t *Tesseract) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	dir, err := os.MkdirTemp(t.tempDir, "ocr-pages-")
	if err != nil {
		return "", eris.Wrap(err, "ocr: create page dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	pages, err := t.render(ctx, pdfPath, dir)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i, page := range pages {
		text, err := t.recognize(ctx, page)
		if err != nil {
			return "", err
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(strings.TrimRight(text, "\n"))
	}
	return sb.String(), nil
}

func (t *Tesseract) render(ctx context.Context, pdfPath, dir string) ([]string, error) {
	prefix := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, t.renderPath, "-r", strconv.Itoa(t.dpi), "-png", pdfPath, prefix)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "ocr: pdftoppm failed for %s: %s", pdfPath, stderr.String())
	}

	pages, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, eris.Wrap(err, "ocr: list pages")
	}
	if len(pages) == 0 {
		return nil, eris.Errorf("ocr: pdftoppm produced no pages for %s", pdfPath)
	}
	sort.Slice(pages, func(i, j int) bool { return pageNumber(pages[i]) < pageNumber(pages[j]) })
	return pages, nil
}

func (t *Tesseract) recognize(ctx context.Context, imagePath string) (string, error) {
	cmd := exec.CommandContext(ctx, t.ocrPath, imagePath, "stdout", "--oem", "3", "--psm", "6")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: tesseract failed for %s: %s", filepath.Base(imagePath), stderr.String())
	}
	return stdout.String(), nil
}

// pageNumber parses the trailing page index from "page-07.png".
func pageNumber(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), ".png")
	idx := strings.LastIndex(base, "-")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(base[idx+1:])
	if err != nil {
		return 0
	}
	return n
}
