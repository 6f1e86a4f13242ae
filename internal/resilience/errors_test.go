package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

func TestIsTransient_ExplicitTransientError(t *testing.T) {
	err := NewTransientError(errors.New("server overloaded"), 503)
	if !IsTransient(err) {
		t.Error("expected TransientError to be transient")
	}
}

func TestIsTransient_WrappedTransientError(t *testing.T) {
	inner := NewTransientError(errors.New("bad gateway"), 502)
	wrapped := fmt.Errorf("api call failed: %w", inner)
	if !IsTransient(wrapped) {
		t.Error("expected wrapped TransientError to be transient")
	}
}

func TestIsTransient_RateLimitNeverTransient(t *testing.T) {
	errs := []error{
		NewRateLimitError("directory", 429, errors.New("slow down")),
		NewTransientError(errors.New("too many"), 429),
		fmt.Errorf("gemini: %w", errors.New("Resource_Exhausted")),
	}
	for _, err := range errs {
		if IsTransient(err) {
			t.Errorf("expected %v to not be transient", err)
		}
	}
}

func TestIsTransient_NilError(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_RegularError(t *testing.T) {
	err := errors.New("invalid input: missing field")
	if IsTransient(err) {
		t.Error("regular error should not be transient")
	}
}

func TestIsTransient_ConnectionReset(t *testing.T) {
	err := fmt.Errorf("write tcp: %w", syscall.ECONNRESET)
	if !IsTransient(err) {
		t.Error("ECONNRESET should be transient")
	}
}

func TestIsTransient_ConnectionRefused(t *testing.T) {
	err := fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED)
	if !IsTransient(err) {
		t.Error("ECONNREFUSED should be transient")
	}
}

func TestIsTransient_NetworkTimeout(t *testing.T) {
	err := &net.DNSError{IsTimeout: true, Err: "timeout"}
	if !IsTransient(err) {
		t.Error("network timeout should be transient")
	}
}

func TestIsTransient_StringPatterns(t *testing.T) {
	patterns := []string{
		"connection reset by peer",
		"broken pipe",
		"TLS handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	}
	for _, p := range patterns {
		err := errors.New(p)
		if !IsTransient(err) {
			t.Errorf("expected %q to be transient", p)
		}
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	transient := []int{408, 500, 502, 503, 504, 529}
	for _, code := range transient {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to be transient", code)
		}
	}

	permanent := []int{200, 201, 400, 401, 403, 404, 405, 409, 422, 429}
	for _, code := range permanent {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to NOT be transient", code)
		}
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	te := NewTransientError(inner, 500)

	if !errors.Is(te, inner) {
		t.Error("TransientError.Unwrap should return the inner error")
	}

	if te.StatusCode != 500 {
		t.Errorf("expected StatusCode 500, got %d", te.StatusCode)
	}
}

func TestTransientError_ErrorMessage(t *testing.T) {
	inner := errors.New("something went wrong")
	te := NewTransientError(inner, 503)

	if te.Error() != "something went wrong" {
		t.Errorf("expected error message %q, got %q", inner.Error(), te.Error())
	}
}

func TestIsRateLimit(t *testing.T) {
	limited := []error{
		NewRateLimitError("ai", 429, nil),
		fmt.Errorf("wrapped: %w", NewRateLimitError("document", 429, errors.New("x"))),
		NewTransientError(errors.New("x"), 429),
	}
	for _, err := range limited {
		if !IsRateLimit(err) {
			t.Errorf("expected %q to be a rate limit", err)
		}
	}

	notLimited := []error{
		nil,
		errors.New("fetch organization 429123456: not found"),
		NewTransientError(errors.New("x"), 503),
		errors.New("invalid json"),
		errors.New("Rate limit exceeded"),
		fmt.Errorf("resolve: %w", errors.New("daily quota reached")),
		NewTransientError(errors.New("too many requests"), 503),
	}
	for _, err := range notLimited {
		if IsRateLimit(err) {
			t.Errorf("expected %v to not be a rate limit", err)
		}
	}
}

func TestLooksRateLimited(t *testing.T) {
	for _, msg := range []string{
		`POST "https://api.anthropic.com/v1/messages": 429 Too Many Requests`,
		"Rate limit exceeded",
		"daily quota reached",
		"RESOURCE_EXHAUSTED",
		`{"type":"rate_limit_error"}`,
	} {
		if !LooksRateLimited(msg) {
			t.Errorf("expected %q to read as a quota refusal", msg)
		}
	}
	for _, msg := range []string{"", "invalid json", "fetch organization 429123456: not found"} {
		if LooksRateLimited(msg) {
			t.Errorf("expected %q not to read as a quota refusal", msg)
		}
	}
}

func TestRateLimitError_Message(t *testing.T) {
	err := NewRateLimitError("ai", 429, errors.New("slow down"))
	if err.Error() != "ai: rate limited: slow down" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if NewRateLimitError("directory", 429, nil).Error() != "directory: rate limited" {
		t.Error("unexpected message for nil cause")
	}
	if !IsRateLimitHTTPStatus(429) || IsRateLimitHTTPStatus(503) {
		t.Error("IsRateLimitHTTPStatus mismatch")
	}
}
