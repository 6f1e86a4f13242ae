package fetcher

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// DecodeJSONObject decodes a single JSON object from a reader.
func DecodeJSONObject[T any](r io.Reader) (*T, error) {
	var obj T
	if err := json.NewDecoder(r).Decode(&obj); err != nil {
		return nil, eris.Wrap(err, "json: decode object")
	}
	return &obj, nil
}

// GetJSON downloads url with f and decodes the body into T.
func GetJSON[T any](ctx context.Context, f Fetcher, url string) (*T, error) {
	body, err := f.Download(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck
	return DecodeJSONObject[T](body)
}
