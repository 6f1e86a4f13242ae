package model

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Source identifies which external dependency reported a rate limit.
type Source string

const (
	SourceDirectory Source = "directory"
	SourceAI        Source = "ai"
	SourceDocument  Source = "document"
)

// Reason explains why no usable record exists for an organization.
type Reason string

const (
	ReasonNoFiling          Reason = "no-filing"
	ReasonNoDocument        Reason = "no-filing-document"
	ReasonNoExtractableData Reason = "no-extractable-data"
	ReasonOutOfRange        Reason = "out-of-range"
)

// ErrCancelled is the cause recorded for work abandoned at shutdown.
var ErrCancelled = eris.New("cancelled")

// errUnknownCause stands in for a nil cause passed to Failed.
var errUnknownCause = eris.New("unknown failure")

type outcomeKind uint8

const (
	kindInvalid outcomeKind = iota
	kindSuccess
	kindRateLimited
	kindUnavailable
	kindFailed
)

// Outcome is the result of resolving one organization. It is one of
// Success, RateLimited, Unavailable or Failed and can only be built through
// those constructors.
type Outcome struct {
	kind   outcomeKind
	record FinancialRecord
	source Source
	reason Reason
	cause  error
}

// Success wraps a resolved record.
func Success(r FinancialRecord) Outcome {
	return Outcome{kind: kindSuccess, record: r}
}

// RateLimited reports that src refused the request for quota reasons.
func RateLimited(src Source) Outcome {
	return Outcome{kind: kindRateLimited, source: src}
}

// Unavailable reports that no usable data exists for the given reason.
func Unavailable(reason Reason) Outcome {
	return Outcome{kind: kindUnavailable, reason: reason}
}

// Failed reports an unexpected error.
func Failed(cause error) Outcome {
	if cause == nil {
		cause = errUnknownCause
	}
	return Outcome{kind: kindFailed, cause: cause}
}

// IsSuccess reports whether the outcome carries a record.
func (o Outcome) IsSuccess() bool { return o.kind == kindSuccess }

// IsRateLimited reports whether the outcome is a rate-limit refusal.
func (o Outcome) IsRateLimited() bool { return o.kind == kindRateLimited }

// IsUnavailable reports whether no usable data exists.
func (o Outcome) IsUnavailable() bool { return o.kind == kindUnavailable }

// IsFailed reports whether the outcome is an unexpected error. The zero
// Outcome counts as failed.
func (o Outcome) IsFailed() bool { return o.kind == kindFailed || o.kind == kindInvalid }

// Record returns the resolved record when the outcome is a success.
func (o Outcome) Record() (FinancialRecord, bool) {
	if o.kind != kindSuccess {
		return FinancialRecord{}, false
	}
	return o.record, true
}

// RateLimitSource returns the refusing dependency of a RateLimited outcome.
func (o Outcome) RateLimitSource() (Source, bool) {
	if o.kind != kindRateLimited {
		return "", false
	}
	return o.source, true
}

// Reason returns the reason of an Unavailable outcome.
func (o Outcome) Reason() (Reason, bool) {
	if o.kind != kindUnavailable {
		return "", false
	}
	return o.reason, true
}

// Err returns the cause of a Failed outcome, or nil.
func (o Outcome) Err() error {
	switch o.kind {
	case kindFailed:
		return o.cause
	case kindInvalid:
		return errUnknownCause
	default:
		return nil
	}
}

// WithRecord replaces the record of a Success outcome. Other variants are
// returned unchanged.
func (o Outcome) WithRecord(r FinancialRecord) Outcome {
	if o.kind != kindSuccess {
		return o
	}
	o.record = r
	return o
}

func (o Outcome) String() string {
	switch o.kind {
	case kindSuccess:
		return fmt.Sprintf("success(%s)", o.record.Provenance)
	case kindRateLimited:
		return fmt.Sprintf("rate_limited(%s)", o.source)
	case kindUnavailable:
		return fmt.Sprintf("unavailable(%s)", o.reason)
	case kindFailed:
		return fmt.Sprintf("failed(%v)", o.cause)
	default:
		return "invalid"
	}
}
