package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"
)

// TransientError wraps an error that is safe to retry (5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// RateLimitError reports that a dependency refused a request for quota
// reasons. It is never retried in place: callers surface it so the
// coordinator can pause the affected lane.
type RateLimitError struct {
	Source     string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: rate limited", e.Source)
	}
	return fmt.Sprintf("%s: rate limited: %v", e.Source, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// NewRateLimitError wraps err as a rate-limit refusal from source.
func NewRateLimitError(source string, statusCode int, err error) *RateLimitError {
	return &RateLimitError{Source: source, StatusCode: statusCode, Err: err}
}

// rateLimitPatterns are message fragments that AI and document providers
// use for quota refusals when no status code is available.
var rateLimitPatterns = []string{
	"http 429",
	"status 429",
	"429 too many requests",
	"rate limit",
	"rate_limit",
	"quota",
	"resource_exhausted",
	"too many requests",
}

// IsRateLimit returns true if err (or any error in its chain) is a
// RateLimitError or a TransientError carrying status 429. Message text is
// not consulted: clients that only get a message back decide with
// LooksRateLimited and return a RateLimitError themselves.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}

	var te *TransientError
	return errors.As(err, &te) && te.StatusCode == 429
}

// LooksRateLimited reports whether a provider message reads like a quota
// refusal.
func LooksRateLimited(msg string) bool {
	msg = strings.ToLower(msg)
	for _, p := range rateLimitPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient error patterns (network
// timeouts, connection resets, DNS failures). Rate-limit errors are never
// transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if IsRateLimit(err) {
		return false
	}

	// Check for explicit TransientError in chain.
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	// Check for network-level transient errors.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Connection reset / refused / DNS.
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
		"unexpected eof",
		"overloaded",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry. 429 is handled by
// IsRateLimitHTTPStatus instead.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504, // Gateway Timeout
		529: // Overloaded
		return true
	default:
		return false
	}
}

// IsRateLimitHTTPStatus returns true for quota refusals.
func IsRateLimitHTTPStatus(statusCode int) bool {
	return statusCode == 429
}
