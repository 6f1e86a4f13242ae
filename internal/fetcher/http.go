package fetcher

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/nonprofit-cli/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	// Source labels rate-limit errors raised by this fetcher.
	Source string

	UserAgent string

	// AltUserAgent is tried once when the server answers 403.
	AltUserAgent string

	// Headers are sent on every request.
	Headers map[string]string

	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration

	RateLimiters     map[string]*rate.Limiter
	AdaptiveLimiters map[string]*AdaptiveLimiter
}

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 1.2
	if newRate > a.maxRate {
		newRate = a.maxRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 0.5
	if newRate < a.minRate {
		newRate = a.minRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
	zap.L().Warn("adaptive rate limit: reducing rate after 429",
		zap.Float64("new_rate", float64(newRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher implements Fetcher using net/http with retry and rate limiting.
// 5xx responses and network errors are retried with backoff. 429 responses
// are never retried: they slow the host's adaptive limiter and surface as a
// resilience.RateLimitError.
type HTTPFetcher struct {
	client           *http.Client
	opts             HTTPOptions
	limiters         map[string]*rate.Limiter
	adaptiveLimiters map[string]*AdaptiveLimiter
}

// ProPublicaHost is the directory API and document host.
const ProPublicaHost = "projects.propublica.org"

// DefaultRateLimiters returns the default per-host rate limiters.
func DefaultRateLimiters() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		ProPublicaHost: rate.NewLimiter(5, 5),
	}
}

// DefaultAdaptiveLimiters returns adaptive rate limiters for known hosts.
func DefaultAdaptiveLimiters() map[string]*AdaptiveLimiter {
	return map[string]*AdaptiveLimiter{
		ProPublicaHost: NewAdaptiveLimiter(5, 5),
	}
}

// DocumentHeaders are browser-like headers accepted by filing document hosts.
func DocumentHeaders() map[string]string {
	return map[string]string{
		"Accept":                    "application/pdf,application/octet-stream,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.9",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
		"Referer":                   "https://projects.propublica.org/nonprofits/",
	}
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "nonprofit-cli/1.0"
	}
	if opts.Source == "" {
		opts.Source = "http"
	}
	limiters := make(map[string]*rate.Limiter)
	for k, v := range opts.RateLimiters {
		limiters[k] = v
	}
	adaptive := opts.AdaptiveLimiters
	if adaptive == nil {
		adaptive = DefaultAdaptiveLimiters()
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:             opts,
		limiters:         limiters,
		adaptiveLimiters: adaptive,
	}
}

// adaptiveLimiterFor returns the adaptive limiter for the given host, if any.
func (f *HTTPFetcher) adaptiveLimiterFor(rawURL string) *AdaptiveLimiter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return f.adaptiveLimiters[u.Host]
}

func (f *HTTPFetcher) limiterFor(rawURL string) *rate.Limiter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rate.NewLimiter(20, 20)
	}
	if lim, ok := f.limiters[u.Host]; ok {
		return lim
	}
	return rate.NewLimiter(20, 20)
}

func (f *HTTPFetcher) wait(ctx context.Context, rawURL string, adaptive *AdaptiveLimiter) error {
	if adaptive != nil {
		return adaptive.Wait(ctx)
	}
	return f.limiterFor(rawURL).Wait(ctx)
}

func (f *HTTPFetcher) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	target := req.URL.String()
	adaptive := f.adaptiveLimiterFor(target)

	var lastErr error
	for attempt := range f.opts.MaxRetries {
		if err := f.wait(ctx, target, adaptive); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}

		cloned := req.Clone(ctx)
		resp, err := f.client.Do(cloned)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "request cancelled")
			}
			lastErr = err
			zap.L().Warn("http request failed, retrying",
				zap.String("url", target),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			f.backoff(ctx, attempt)
			continue
		}

		if resilience.IsRateLimitHTTPStatus(resp.StatusCode) {
			_ = resp.Body.Close()
			if adaptive != nil {
				adaptive.OnRateLimit()
			}
			zap.L().Warn("rate limited (429)",
				zap.String("source", f.opts.Source),
				zap.String("url", target),
			)
			rl := resilience.NewRateLimitError(f.opts.Source, resp.StatusCode,
				eris.Errorf("http 429 from %s", target))
			rl.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			return nil, rl
		}

		if resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = resilience.NewTransientError(
				eris.Errorf("http %d from %s", resp.StatusCode, target), resp.StatusCode)
			zap.L().Warn("server error, retrying",
				zap.String("url", target),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			f.backoff(ctx, attempt)
			continue
		}

		if adaptive != nil {
			adaptive.OnSuccess()
		}

		return resp, nil
	}

	return nil, eris.Wrap(lastErr, "all retries exhausted")
}

func (f *HTTPFetcher) backoff(ctx context.Context, attempt int) {
	base := f.opts.BackoffBase
	maxBackoff := 30 * time.Second
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL, userAgent string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	for k, v := range f.opts.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("User-Agent", userAgent)
	return f.doWithRetry(ctx, req)
}

// Download fetches the URL and returns the response body. A 403 is retried
// once with the alternate user agent when one is configured.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := f.get(ctx, rawURL, f.opts.UserAgent)
	if err != nil {
		return nil, eris.Wrap(err, "download")
	}

	if resp.StatusCode == http.StatusForbidden && f.opts.AltUserAgent != "" {
		_ = resp.Body.Close()
		zap.L().Info("http 403, retrying with alternate user agent", zap.String("url", rawURL))
		resp, err = f.get(ctx, rawURL, f.opts.AltUserAgent)
		if err != nil {
			return nil, eris.Wrap(err, "download")
		}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, nil
	case http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, eris.Wrapf(ErrNotFound, "download %s", rawURL)
	default:
		_ = resp.Body.Close()
		return nil, eris.Errorf("download: unexpected status %d from %s", resp.StatusCode, rawURL)
	}
}

// DownloadToFile fetches the URL and writes it to the given path.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, body)
	if err != nil {
		return n, eris.Wrap(err, "write file")
	}

	return n, nil
}
