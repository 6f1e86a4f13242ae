// Package fetcher downloads directory responses and filing documents with
// per-host rate limiting.
package fetcher

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = eris.New("fetcher: not found")

// ErrNotPDF is returned when a downloaded document lacks the PDF signature.
var ErrNotPDF = eris.New("fetcher: response is not a PDF")

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)

	// DownloadPDF fetches a filing document to path and verifies the PDF
	// signature. Returns bytes written.
	DownloadPDF(ctx context.Context, url string, path string) (int64, error)
}
