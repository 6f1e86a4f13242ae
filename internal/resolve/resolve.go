// Package resolve turns one organization into a financial record, using the
// directory's digitized figures when it can and the filing document when it
// must.
package resolve

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/nonprofit-cli/internal/model"
	"github.com/sells-group/nonprofit-cli/internal/resilience"
	"github.com/sells-group/nonprofit-cli/pkg/propublica"
)

// Default ceilings on in-flight calls.
const (
	DefaultMaxAPI        = 10
	DefaultMaxExtraction = 3
)

// DocumentExtractor reads figures out of a filing document.
type DocumentExtractor interface {
	Extract(ctx context.Context, ref model.FilingReference) model.Outcome
}

// Bounds is an inclusive revenue range. Records without revenue always
// pass.
type Bounds struct {
	Min float64
	Max float64
}

// DefaultBounds is 250,000 to 1,000,000.
func DefaultBounds() Bounds {
	return Bounds{Min: 250_000, Max: 1_000_000}
}

// Admits reports whether revenue falls inside the range. Unknown revenue is
// admitted.
func (b Bounds) Admits(revenue *float64) bool {
	if revenue == nil {
		return true
	}
	return *revenue >= b.Min && *revenue <= b.Max
}

// Validate rejects negative or inverted bounds.
func (b Bounds) Validate() error {
	if b.Min < 0 || b.Max < 0 {
		return eris.Errorf("resolve: revenue bounds must be >= 0 (got %.0f..%.0f)", b.Min, b.Max)
	}
	if b.Min > b.Max {
		return eris.Errorf("resolve: revenue min %.0f exceeds max %.0f", b.Min, b.Max)
	}
	return nil
}

// Resolver resolves organizations. It is safe for concurrent use; the two
// ceilings bound directory and extraction calls independently of how many
// goroutines call Resolve.
type Resolver struct {
	directory propublica.Client
	extractor DocumentExtractor
	bounds    Bounds

	apiSlots     *semaphore.Weighted
	extractSlots *semaphore.Weighted
	extractLane  *resilience.Cooldown
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithBounds sets the revenue filter.
func WithBounds(b Bounds) Option {
	return func(r *Resolver) { r.bounds = b }
}

// WithCeilings sets the maximum concurrent directory and extraction calls.
func WithCeilings(api, extraction int) Option {
	return func(r *Resolver) {
		if api > 0 {
			r.apiSlots = semaphore.NewWeighted(int64(api))
		}
		if extraction > 0 {
			r.extractSlots = semaphore.NewWeighted(int64(extraction))
		}
	}
}

// WithExtractionLane makes extraction wait while the lane is cooling down.
func WithExtractionLane(lane *resilience.Cooldown) Option {
	return func(r *Resolver) { r.extractLane = lane }
}

// New creates a Resolver. extractor may be nil, in which case filings
// without digitized figures resolve as unavailable.
func New(directory propublica.Client, extractor DocumentExtractor, opts ...Option) *Resolver {
	r := &Resolver{
		directory:    directory,
		extractor:    extractor,
		bounds:       DefaultBounds(),
		apiSlots:     semaphore.NewWeighted(DefaultMaxAPI),
		extractSlots: semaphore.NewWeighted(DefaultMaxExtraction),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve produces the outcome for one organization. Errors are never
// retried here; the caller decides what to do with a RateLimited or
// Failed outcome.
func (r *Resolver) Resolve(ctx context.Context, org model.Organization) model.Outcome {
	log := zap.L().With(zap.String("ein", org.EIN))

	resp, err := r.fetchOrganization(ctx, org.EIN)
	if err != nil {
		return directoryOutcome(ctx, err)
	}

	latest, ok := resp.Latest()
	if !ok {
		log.Debug("resolve: no filings")
		return model.Unavailable(model.ReasonNoFiling)
	}

	base := model.FinancialRecord{
		EIN:         org.EIN,
		Name:        org.Name,
		FilingYear:  latest.TaxYear,
		Form:        latest.Form,
		DocumentURL: latest.DocumentURL,
	}
	if base.Name == "" {
		base.Name = resp.Organization.Name
	}

	ref := latest.Reference(org.EIN)

	var partial model.FinancialRecord
	havePartial := false
	if latest.WithData {
		partial = base
		partial.Provenance = model.ProvenanceDirectory
		partial.Revenue = latest.RevenueFigure()
		partial.ExecCompensation = latest.CompensationFigure()

		switch {
		case partial.Complete():
			return r.admit(model.Success(partial))
		case !partial.HasRevenue() && !partial.HasExecCompensation():
			// nothing digitized; the document is the only source
		case !ref.HasDocument():
			return r.admit(model.Success(partial))
		default:
			havePartial = true
		}
	}

	if !ref.HasDocument() || r.extractor == nil {
		return model.Unavailable(model.ReasonNoDocument)
	}

	out := r.extract(ctx, ref)
	switch {
	case out.IsSuccess():
		rec, _ := out.Record()
		rec.EIN = base.EIN
		rec.Name = base.Name
		if havePartial {
			fillGaps(&rec, partial)
		}
		return r.admit(out.WithRecord(rec))
	case out.IsUnavailable() && havePartial:
		log.Debug("resolve: extraction found nothing, keeping directory figures")
		return r.admit(model.Success(partial))
	default:
		return out
	}
}

func (r *Resolver) fetchOrganization(ctx context.Context, ein string) (*propublica.OrganizationResponse, error) {
	if err := r.apiSlots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.apiSlots.Release(1)
	return r.directory.Organization(ctx, ein)
}

func (r *Resolver) extract(ctx context.Context, ref model.FilingReference) model.Outcome {
	if r.extractLane != nil {
		if err := r.extractLane.Wait(ctx); err != nil {
			return model.Failed(eris.Wrap(model.ErrCancelled, "resolve: waiting for extraction lane"))
		}
	}
	if err := r.extractSlots.Acquire(ctx, 1); err != nil {
		return model.Failed(eris.Wrap(model.ErrCancelled, "resolve: waiting for extraction slot"))
	}
	defer r.extractSlots.Release(1)
	return r.extractor.Extract(ctx, ref)
}

// admit applies the revenue filter to a successful outcome.
func (r *Resolver) admit(o model.Outcome) model.Outcome {
	rec, ok := o.Record()
	if !ok {
		return o
	}
	if !r.bounds.Admits(rec.Revenue) {
		zap.L().Debug("resolve: revenue out of range",
			zap.String("ein", rec.EIN),
			zap.Float64("revenue", *rec.Revenue),
		)
		return model.Unavailable(model.ReasonOutOfRange)
	}
	return o
}

func directoryOutcome(ctx context.Context, err error) model.Outcome {
	switch {
	case resilience.IsRateLimit(err):
		return model.RateLimited(model.SourceDirectory)
	case errors.Is(err, propublica.ErrNotFound):
		return model.Unavailable(model.ReasonNoFiling)
	case ctx.Err() != nil:
		return model.Failed(eris.Wrap(model.ErrCancelled, "resolve: fetch organization"))
	default:
		return model.Failed(eris.Wrap(err, "resolve: fetch organization"))
	}
}

// fillGaps copies figures the extraction missed from the directory.
func fillGaps(rec *model.FinancialRecord, dir model.FinancialRecord) {
	var filled []string
	if rec.Revenue == nil && dir.Revenue != nil {
		rec.Revenue = dir.Revenue
		filled = append(filled, "revenue")
	}
	if rec.ExecCompensation == nil && dir.ExecCompensation != nil {
		rec.ExecCompensation = dir.ExecCompensation
		filled = append(filled, "compensation")
	}
	if len(filled) == 0 {
		return
	}
	note := "directory " + filled[0]
	if len(filled) == 2 {
		note += " and " + filled[1]
	}
	if rec.Notes != "" {
		rec.Notes += "; "
	}
	rec.Notes += note
}
