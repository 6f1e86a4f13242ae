// Package extract reads financial figures out of filing documents by
// walking an ordered chain of strategies.
package extract

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-cli/internal/config"
	"github.com/sells-group/nonprofit-cli/internal/fetcher"
	"github.com/sells-group/nonprofit-cli/internal/model"
	"github.com/sells-group/nonprofit-cli/internal/resilience"
)

// ErrNoData is returned by a strategy that ran but found neither revenue
// nor executive compensation.
var ErrNoData = eris.New("extract: no usable figures")

// Document is a downloaded filing.
type Document struct {
	Ref  model.FilingReference
	Path string
}

// Result holds the figures a strategy found. Either figure may be nil but
// not both.
type Result struct {
	Revenue          *float64
	ExecCompensation *float64
	Confidence       string
	Notes            string
}

// Strategy is one way of reading figures out of a document.
type Strategy interface {
	// Provenance tags records produced by this strategy.
	Provenance() model.Provenance
	// Source is the cooldown lane charged when the strategy is rate limited.
	Source() model.Source
	Extract(ctx context.Context, doc Document) (*Result, error)
}

// Chain builds the strategy order for a parsing method. The ai method tries
// the AI strategy and falls back to OCR; the ocr method uses OCR only. A
// nil strategy is skipped.
func Chain(method string, ai, ocr Strategy) []Strategy {
	var out []Strategy
	if method != config.ParsingMethodOCR && ai != nil {
		out = append(out, ai)
	}
	if ocr != nil {
		out = append(out, ocr)
	}
	return out
}

// Extractor downloads a filing once and hands it to each strategy in turn.
type Extractor struct {
	fetcher    fetcher.Fetcher
	strategies []Strategy
	tempDir    string

	mu       sync.Mutex
	attempts map[model.Provenance]int
}

// New creates an Extractor. tempDir may be empty for the OS default.
func New(f fetcher.Fetcher, strategies []Strategy, tempDir string) *Extractor {
	return &Extractor{
		fetcher:    f,
		strategies: strategies,
		tempDir:    tempDir,
		attempts:   make(map[model.Provenance]int),
	}
}

// Extract resolves the figures of one filing. The outcome is a Success
// tagged with the provenance of the strategy that produced it, a
// RateLimited that stops the chain, an Unavailable when every strategy came
// up empty, or a Failed for download errors and cancellation.
func (e *Extractor) Extract(ctx context.Context, ref model.FilingReference) model.Outcome {
	if !ref.HasDocument() {
		return model.Unavailable(model.ReasonNoDocument)
	}

	log := zap.L().With(zap.String("ein", ref.EIN), zap.Int("tax_year", ref.TaxYear))

	path, cleanup, err := e.download(ctx, ref.DocumentURL)
	if err != nil {
		return e.downloadOutcome(ctx, ref, err)
	}
	defer cleanup()

	doc := Document{Ref: ref, Path: path}
	for _, s := range e.strategies {
		if ctx.Err() != nil {
			return model.Failed(eris.Wrap(model.ErrCancelled, "extract"))
		}
		e.countAttempt(s.Provenance())

		res, err := s.Extract(ctx, doc)
		switch {
		case err == nil && res != nil && (res.Revenue != nil || res.ExecCompensation != nil):
			log.Debug("extract: strategy succeeded", zap.String("strategy", string(s.Provenance())))
			return model.Success(model.FinancialRecord{
				EIN:              ref.EIN,
				FilingYear:       ref.TaxYear,
				Form:             ref.Form,
				Revenue:          res.Revenue,
				ExecCompensation: res.ExecCompensation,
				Provenance:       s.Provenance(),
				DocumentURL:      ref.DocumentURL,
				Notes:            res.Notes,
			})
		case err != nil && resilience.IsRateLimit(err):
			log.Warn("extract: rate limited",
				zap.String("strategy", string(s.Provenance())),
				zap.String("source", string(s.Source())),
				zap.Error(err),
			)
			return model.RateLimited(s.Source())
		case err != nil && ctx.Err() != nil:
			return model.Failed(eris.Wrap(model.ErrCancelled, "extract"))
		default:
			if err == nil {
				err = ErrNoData
			}
			log.Debug("extract: strategy came up empty, trying next",
				zap.String("strategy", string(s.Provenance())),
				zap.Error(err),
			)
		}
	}
	return model.Unavailable(model.ReasonNoExtractableData)
}

// Attempts returns how many times each strategy has been invoked.
func (e *Extractor) Attempts() map[model.Provenance]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[model.Provenance]int, len(e.attempts))
	for k, v := range e.attempts {
		out[k] = v
	}
	return out
}

func (e *Extractor) countAttempt(p model.Provenance) {
	e.mu.Lock()
	e.attempts[p]++
	e.mu.Unlock()
}

func (e *Extractor) download(ctx context.Context, url string) (string, func(), error) {
	f, err := os.CreateTemp(e.tempDir, "filing-*.pdf")
	if err != nil {
		return "", nil, eris.Wrap(err, "extract: create temp file")
	}
	path := f.Name()
	_ = f.Close()
	cleanup := func() { _ = os.Remove(path) }

	if _, err := e.fetcher.DownloadPDF(ctx, url, path); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

func (e *Extractor) downloadOutcome(ctx context.Context, ref model.FilingReference, err error) model.Outcome {
	log := zap.L().With(zap.String("ein", ref.EIN), zap.String("url", ref.DocumentURL))
	switch {
	case resilience.IsRateLimit(err):
		log.Warn("extract: document download rate limited", zap.Error(err))
		return model.RateLimited(model.SourceDocument)
	case ctx.Err() != nil:
		return model.Failed(eris.Wrap(model.ErrCancelled, "extract: download"))
	case errors.Is(err, fetcher.ErrNotFound):
		log.Debug("extract: document missing", zap.Error(err))
		return model.Unavailable(model.ReasonNoDocument)
	case errors.Is(err, fetcher.ErrNotPDF):
		log.Debug("extract: document is not a PDF", zap.Error(err))
		return model.Unavailable(model.ReasonNoExtractableData)
	default:
		return model.Failed(eris.Wrap(err, "extract: download document"))
	}
}
