package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sells-group/nonprofit-cli/internal/model"
)

// Error types reported by ClassifyError.
const (
	ErrorTypeRateLimit = "rate_limit"
	ErrorTypeTransient = "transient"
	ErrorTypePermanent = "permanent"
)

// DLQEntry records an organization that ended a run without a usable
// outcome and is worth retrying in a later run.
type DLQEntry struct {
	Organization model.Organization `json:"organization"`
	Category     model.Category     `json:"category"`
	Source       model.Source       `json:"source,omitempty"`
	Error        string             `json:"error,omitempty"`
	ErrorType    string             `json:"error_type"`
	FailedAt     time.Time          `json:"failed_at"`
}

// NewDLQEntry builds an entry from a rate-limited or failed outcome. It
// returns false for outcomes that are final.
func NewDLQEntry(org model.Organization, o model.Outcome, at time.Time) (DLQEntry, bool) {
	e := DLQEntry{
		Organization: org,
		Category:     model.Classify(o),
		FailedAt:     at,
	}
	switch {
	case o.IsRateLimited():
		e.Source, _ = o.RateLimitSource()
		e.ErrorType = ErrorTypeRateLimit
	case o.IsFailed():
		err := o.Err()
		e.Error = err.Error()
		e.ErrorType = ClassifyError(err)
	default:
		return DLQEntry{}, false
	}
	return e, true
}

// DLQ collects entries from concurrent workers.
type DLQ struct {
	mu      sync.Mutex
	entries []DLQEntry
}

// Add appends an entry.
func (q *DLQ) Add(e DLQEntry) {
	q.mu.Lock()
	q.entries = append(q.entries, e)
	q.mu.Unlock()
}

// Len returns the number of entries.
func (q *DLQ) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Entries returns a copy of all entries ordered by EIN.
func (q *DLQ) Entries() []DLQEntry {
	q.mu.Lock()
	out := make([]DLQEntry, len(q.entries))
	copy(out, q.entries)
	q.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Organization.EIN < out[j].Organization.EIN
	})
	return out
}

// ClassifyError categorizes an error as "rate_limit", "transient" or "permanent".
func ClassifyError(err error) string {
	switch {
	case IsRateLimit(err):
		return ErrorTypeRateLimit
	case IsTransient(err):
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}
