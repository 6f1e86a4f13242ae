package fetcher

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
)

var pdfMagic = []byte("%PDF")

// DownloadPDF fetches a filing document to path and verifies that the body
// starts with the PDF signature. On a signature mismatch the file is removed
// and ErrNotPDF is returned.
func (f *HTTPFetcher) DownloadPDF(ctx context.Context, rawURL string, path string) (int64, error) {
	n, err := f.DownloadToFile(ctx, rawURL, path)
	if err != nil {
		_ = os.Remove(path)
		return n, err
	}

	ok, err := IsPDF(path)
	if err != nil {
		return n, err
	}
	if !ok {
		_ = os.Remove(path)
		return n, eris.Wrapf(ErrNotPDF, "download %s", rawURL)
	}
	return n, nil
}

// IsPDF reports whether the file at path starts with the PDF signature.
func IsPDF(path string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, eris.Wrap(err, "open file")
	}
	defer file.Close() //nolint:errcheck

	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(file, head); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return false, nil
		}
		return false, eris.Wrap(err, "read file")
	}
	return bytes.Equal(head, pdfMagic), nil
}
