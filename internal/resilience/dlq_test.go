package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sells-group/nonprofit-cli/internal/model"
)

func TestNewDLQEntry(t *testing.T) {
	org := model.Organization{EIN: "061234567", Name: "Hartford Food Bank"}
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	e, ok := NewDLQEntry(org, model.RateLimited(model.SourceAI), at)
	if !ok {
		t.Fatal("expected rate-limited outcome to produce an entry")
	}
	if e.ErrorType != ErrorTypeRateLimit || e.Source != model.SourceAI {
		t.Errorf("unexpected entry %+v", e)
	}
	if e.Category != model.CategoryRateLimited {
		t.Errorf("expected category rate_limited, got %s", e.Category)
	}

	e, ok = NewDLQEntry(org, model.Failed(errors.New("invalid json")), at)
	if !ok {
		t.Fatal("expected failed outcome to produce an entry")
	}
	if e.ErrorType != ErrorTypePermanent || e.Error != "invalid json" {
		t.Errorf("unexpected entry %+v", e)
	}

	if _, ok := NewDLQEntry(org, model.Unavailable(model.ReasonNoFiling), at); ok {
		t.Error("unavailable outcome should not produce an entry")
	}
	if _, ok := NewDLQEntry(org, model.Success(model.FinancialRecord{}), at); ok {
		t.Error("success should not produce an entry")
	}
}

func TestDLQ_EntriesSorted(t *testing.T) {
	var q DLQ
	q.Add(DLQEntry{Organization: model.Organization{EIN: "3"}})
	q.Add(DLQEntry{Organization: model.Organization{EIN: "1"}})
	q.Add(DLQEntry{Organization: model.Organization{EIN: "2"}})

	if q.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", q.Len())
	}
	got := q.Entries()
	for i, want := range []string{"1", "2", "3"} {
		if got[i].Organization.EIN != want {
			t.Errorf("entry %d: expected EIN %s, got %s", i, want, got[i].Organization.EIN)
		}
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"transient error", NewTransientError(errors.New("503"), 503), ErrorTypeTransient},
		{"permanent error", errors.New("invalid input"), ErrorTypePermanent},
		{"connection reset", errors.New("connection reset by peer"), ErrorTypeTransient},
		{"rate limit", NewRateLimitError("ai", 429, errors.New("slow down")), ErrorTypeRateLimit},
		{"wrapped rate limit", fmt.Errorf("resolve: %w", NewRateLimitError("document", 429, nil)), ErrorTypeRateLimit},
		{"quota wording alone", errors.New("parse: quota field missing"), ErrorTypePermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %q, want %q", got, tt.want)
			}
		})
	}
}
