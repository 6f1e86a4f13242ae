// Package propublica provides a client for the ProPublica Nonprofit
// Explorer API v2.
package propublica

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/nonprofit-cli/internal/fetcher"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://projects.propublica.org/nonprofits/api/v2"

// charitableCode restricts search to 501(c)(3) organizations.
const charitableCode = "3"

// ErrNotFound is returned when an organization does not exist.
var ErrNotFound = eris.New("propublica: organization not found")

// Client defines the directory operations used by the pipeline.
type Client interface {
	// Search returns one page of 501(c)(3) organizations matching query in
	// the given state. A page past the end yields an empty response.
	Search(ctx context.Context, query, stateCode string, page int) (*SearchResponse, error)
	// Organization returns the organization and its filings.
	Organization(ctx context.Context, ein string) (*OrganizationResponse, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

type httpClient struct {
	baseURL string
	fetch   fetcher.Fetcher
}

// NewClient creates a directory client that issues requests through f.
func NewClient(f fetcher.Fetcher, opts ...Option) Client {
	c := &httpClient{
		baseURL: DefaultBaseURL,
		fetch:   f,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// searchURL builds the search URL for a term, state and zero-based page.
func (c *httpClient) searchURL(query, stateCode string, page int) string {
	q := url.Values{}
	q.Set("q", query)
	q.Set("state[id]", stateCode)
	q.Set("c_code[id]", charitableCode)
	q.Set("page", strconv.Itoa(page))
	return c.baseURL + "/search.json?" + q.Encode()
}

func (c *httpClient) Search(ctx context.Context, query, stateCode string, page int) (*SearchResponse, error) {
	resp, err := fetcher.GetJSON[SearchResponse](ctx, c.fetch, c.searchURL(query, stateCode, page))
	if err != nil {
		if errors.Is(err, fetcher.ErrNotFound) {
			return &SearchResponse{CurPage: page}, nil
		}
		return nil, eris.Wrapf(err, "propublica: search %q page %d", query, page)
	}
	return resp, nil
}

func (c *httpClient) Organization(ctx context.Context, ein string) (*OrganizationResponse, error) {
	id := strings.TrimLeft(NormalizeEIN(ein), "0")
	if id == "" {
		return nil, eris.Errorf("propublica: invalid ein %q", ein)
	}
	reqURL := fmt.Sprintf("%s/organizations/%s.json", c.baseURL, url.PathEscape(id))

	resp, err := fetcher.GetJSON[OrganizationResponse](ctx, c.fetch, reqURL)
	if err != nil {
		if errors.Is(err, fetcher.ErrNotFound) {
			return nil, eris.Wrapf(ErrNotFound, "ein %s", ein)
		}
		return nil, eris.Wrapf(err, "propublica: organization %s", ein)
	}
	return resp, nil
}
